package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"brewcore/internal/backup"
	"brewcore/internal/core"
	"brewcore/internal/stagegraph"
	"brewcore/pkg/domain"
)

const meadRecipe = `
id: still-mead
name: Still Mead
batch_size: 10
batch_unit: L
stages:
  - stage_type_id: must_prep
    order: 1
    ingredients:
      - {ingredient_type_id: honey, amount: 3, unit: kg, scaling_method: linear}
      - {ingredient_type_id: water, amount: 7, unit: L, scaling_method: linear}
  - stage_type_id: fermentation
    order: 2
    ingredients:
      - {ingredient_type_id: yeast, amount: 5, unit: g, scaling_method: fixed}
`

type cli struct {
	t   *testing.T
	dir string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("BREWCORE_CONFIG", "")
	t.Setenv("BREWCORE_STORAGE_DRIVER", "sqlite")
	t.Setenv("BREWCORE_SQLITE_PATH", filepath.Join(dir, "cellar.db"))
	t.Setenv("BREWCORE_BACKUP_DRIVER", "fs")
	t.Setenv("BREWCORE_BACKUP_FS_ROOT", filepath.Join(dir, "backups"))
	t.Setenv("BREWCORE_LOG_LEVEL", "error")
	return &cli{t: t, dir: dir}
}

func (c *cli) exec(args ...string) (string, error) {
	c.t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func (c *cli) run(args ...string) string {
	c.t.Helper()
	out, err := c.exec(args...)
	if err != nil {
		c.t.Fatalf("brewctl %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func (c *cli) runJSON(v any, args ...string) {
	c.t.Helper()
	out := c.run(append([]string{"--json"}, args...)...)
	if err := json.Unmarshal([]byte(out), v); err != nil {
		c.t.Fatalf("decode %s output %q: %v", strings.Join(args, " "), out, err)
	}
}

func (c *cli) seedCellar() {
	c.t.Helper()
	c.run("ingredient-type", "add", "--id", "honey", "--name", "Honey", "--context", "fermentable")
	c.run("ingredient-type", "add", "--id", "water", "--name", "Water", "--context", "water")
	c.run("ingredient-type", "add", "--id", "yeast", "--name", "Yeast", "--context", "yeast")
	c.run("consumable", "add", "--id", "wildflower", "--name", "Wildflower Honey", "--unit", "kg", "--ingredient-type", "honey")
	c.run("consumable", "add", "--id", "tap", "--name", "Tap Water", "--unit", "L", "--ingredient-type", "water", "--on-demand")
	c.run("consumable", "add", "--id", "ec1118", "--name", "EC-1118", "--unit", "g", "--ingredient-type", "yeast")
	c.run("inventory", "add-lot", "wildflower", "--id", "lot-old", "--qty", "2", "--unit", "kg", "--cost", "8", "--purchased", "2026-01-01")
	c.run("inventory", "add-lot", "wildflower", "--id", "lot-new", "--qty", "4", "--unit", "kg", "--cost", "10", "--purchased", "2026-02-01")

	path := filepath.Join(c.dir, "mead.yaml")
	if err := os.WriteFile(path, []byte(meadRecipe), 0o600); err != nil {
		c.t.Fatalf("write recipe: %v", err)
	}
	c.run("recipe", "create", "-f", path)
}

func stageID(t *testing.T, b domain.Batch, stageType string) string {
	t.Helper()
	for _, s := range b.Stages {
		if s.StageTypeID == stageType {
			return s.ID
		}
	}
	t.Fatalf("batch %s has no %s stage", b.ID, stageType)
	return ""
}

func TestBatchWorkflowThroughCLI(t *testing.T) {
	c := newCLI(t)
	c.seedCellar()

	var report validationReport
	c.runJSON(&report, "recipe", "validate", "still-mead")
	if !report.Valid {
		t.Fatalf("expected valid recipe, got %+v", report)
	}
	c.run("recipe", "finalize", "still-mead")

	var batch domain.Batch
	c.runJSON(&batch, "batch", "create", "--recipe", "still-mead", "--id", "b1", "--name", "Spring Mead")
	if batch.Status != domain.BatchStatusPlanned || len(batch.Stages) != 2 {
		t.Fatalf("unexpected batch %+v", batch)
	}
	prep := stageID(t, batch, stagegraph.MustPrep)

	c.run("batch", "start", "b1", prep, "--date", "2026-03-01")

	var used domain.BatchIngredient
	c.runJSON(&used, "batch", "use", "b1", prep, "--consumable", "wildflower", "--amount", "3", "--unit", "kg", "--at", "2026-03-01")
	if used.ActualAmount != 3 || used.ActualCost != 2*8+1*10 {
		t.Fatalf("expected FIFO draw costing 26, got %+v", used)
	}
	c.run("batch", "use", "b1", prep, "--consumable", "tap", "--amount", "7", "--unit", "L")

	var lots []domain.InventoryLot
	c.runJSON(&lots, "inventory", "list", "--consumable", "wildflower")
	if len(lots) != 2 || lots[0].Status != domain.LotStatusConsumed || lots[1].QuantityRemaining != 3 {
		t.Fatalf("unexpected lots after draw %+v", lots)
	}

	var events []domain.ConsumptionEvent
	c.runJSON(&events, "inventory", "events")
	if len(events) != 1 || events[0].TotalUsed != 3 {
		t.Fatalf("expected one ledger event for tracked stock, got %+v", events)
	}

	c.run("batch", "complete", "b1", prep, "--date", "2026-03-02")
	c.runJSON(&batch, "batch", "show", "b1")
	if batch.Status != domain.BatchStatusActive {
		t.Fatalf("expected active batch, got %s", batch.Status)
	}

	if _, err := c.exec("batch", "abandon", "b1"); err == nil {
		t.Fatalf("expected abandon without --reason to fail")
	}
	c.runJSON(&batch, "batch", "abandon", "b1", "--reason", "infected")
	if batch.Status != domain.BatchStatusAbandoned || batch.AbandonReason != "infected" {
		t.Fatalf("unexpected abandoned batch %+v", batch)
	}
}

func TestManualConsumptionAndReversal(t *testing.T) {
	c := newCLI(t)
	c.seedCellar()

	out, err := c.exec("inventory", "consume", "wildflower", "--amount", "10", "--unit", "kg", "--reason", "spilled")
	if err == nil || !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected shortfall conflict, got %v (%s)", err, out)
	}

	var res core.ConsumptionResult
	c.runJSON(&res, "inventory", "consume", "wildflower", "--amount", "1", "--unit", "kg", "--reason", "spilled")
	if res.EventID == "" || res.TotalUsed != 1 {
		t.Fatalf("unexpected consumption %+v", res)
	}
	c.run("inventory", "reverse", res.EventID, "--reason", "found it")

	var lots []domain.InventoryLot
	c.runJSON(&lots, "inventory", "list", "--available", "--consumable", "wildflower")
	if len(lots) != 2 || lots[0].QuantityRemaining != 2 {
		t.Fatalf("expected stock restored, got %+v", lots)
	}

	c.run("inventory", "expire", "lot-old")
	c.runJSON(&lots, "inventory", "list", "--available", "--consumable", "wildflower")
	if len(lots) != 1 || lots[0].ID != "lot-new" {
		t.Fatalf("expired lot still available: %+v", lots)
	}
}

func TestRecipeValidationFailureExitsNonZero(t *testing.T) {
	c := newCLI(t)
	c.seedCellar()
	path := filepath.Join(c.dir, "broken.yaml")
	broken := "id: broken\nname: Broken\nbatch_size: 5\nbatch_unit: L\nstages:\n  - stage_type_id: fermentation\n    order: 1\n"
	if err := os.WriteFile(path, []byte(broken), 0o600); err != nil {
		t.Fatalf("write recipe: %v", err)
	}
	c.run("recipe", "create", "-f", path)
	out, err := c.exec("recipe", "validate", "broken")
	if !errors.Is(err, errSilent) || !strings.HasPrefix(out, "invalid: ") {
		t.Fatalf("expected silent failure with reason, got %v %q", err, out)
	}
	if _, err := c.exec("recipe", "finalize", "broken"); err == nil {
		t.Fatalf("expected finalize to reject invalid recipe")
	}
}

func TestBackupRoundTrip(t *testing.T) {
	c := newCLI(t)
	c.seedCellar()

	var info backup.Info
	c.runJSON(&info, "backup", "push")
	if !strings.HasPrefix(info.Key, backup.Prefix+"cellar/") {
		t.Fatalf("unexpected archive key %q", info.Key)
	}
	var infos []backup.Info
	c.runJSON(&infos, "backup", "list")
	if len(infos) != 1 || infos[0].Key != info.Key {
		t.Fatalf("unexpected archives %+v", infos)
	}

	if _, err := c.exec("backup", "restore", info.Key); !errors.Is(err, backup.ErrExists) {
		t.Fatalf("expected restore over live database to be refused, got %v", err)
	}
	restored := filepath.Join(c.dir, "restored.db")
	c.run("backup", "restore", info.Key, restored)

	t.Setenv("BREWCORE_SQLITE_PATH", restored)
	var recipes []domain.Recipe
	c.runJSON(&recipes, "recipe", "list")
	if len(recipes) != 1 || recipes[0].ID != "still-mead" {
		t.Fatalf("restored database lost recipes: %+v", recipes)
	}

	c.run("backup", "delete", info.Key)
	if _, err := c.exec("backup", "delete", info.Key); !errors.Is(err, backup.ErrNotFound) {
		t.Fatalf("expected second delete to report not found, got %v", err)
	}
}

func TestDBPathAndExport(t *testing.T) {
	c := newCLI(t)
	c.run("vessel", "add", "--id", "carboy", "--name", "Carboy", "--capacity", "23")

	var status dbStatus
	c.runJSON(&status, "db", "path")
	if status.Path != filepath.Join(c.dir, "cellar.db") || !status.Exists {
		t.Fatalf("unexpected db status %+v", status)
	}
	dest := filepath.Join(c.dir, "copy.db")
	c.run("db", "export", dest)
	if _, err := os.Stat(dest); err != nil {
		t.Fatalf("export missing: %v", err)
	}

	t.Setenv("BREWCORE_STORAGE_DRIVER", "memory")
	if _, err := c.exec("db", "path"); err == nil {
		t.Fatalf("expected memory driver to have no database file")
	}
}

func TestStagesAndConfigSkipStore(t *testing.T) {
	c := newCLI(t)
	var stages []domain.StageType
	c.runJSON(&stages, "stages")
	if len(stages) != len(stagegraph.Default().Stages()) {
		t.Fatalf("unexpected stage listing %+v", stages)
	}
	if _, err := os.Stat(filepath.Join(c.dir, "cellar.db")); err == nil {
		t.Fatalf("listing stages must not create the database")
	}
	out := c.run("config", "show")
	if !strings.Contains(out, "cellar.db") {
		t.Fatalf("expected env override in config, got %q", out)
	}
}

func TestTraceAndMetricsTextfile(t *testing.T) {
	c := newCLI(t)
	prom := filepath.Join(c.dir, "brewcore.prom")
	trace := filepath.Join(c.dir, "trace.jsonl")
	t.Setenv("BREWCORE_METRICS_ENABLED", "true")
	t.Setenv("BREWCORE_METRICS_TEXTFILE", prom)

	c.run("--trace", trace, "vessel", "add", "--name", "Carboy")
	if _, err := c.exec("--trace", trace, "vessel", "add"); err == nil {
		t.Fatalf("expected nameless vessel to fail")
	}

	raw, err := os.ReadFile(trace)
	if err != nil {
		t.Fatalf("read trace: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected a span per command, got %q", raw)
	}
	var span core.JSONTraceEntry
	if err := json.Unmarshal([]byte(lines[1]), &span); err != nil {
		t.Fatalf("decode span: %v", err)
	}
	if span.Operation != "create_vessel" || span.Status != core.AuditStatusError {
		t.Fatalf("unexpected span %+v", span)
	}

	metrics, err := os.ReadFile(prom)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(metrics), `brewcore_service_operations_total{operation="create_vessel",status="error"} 1`) {
		t.Fatalf("expected failed create in textfile, got:\n%s", metrics)
	}
}

func TestExpvarMetricsTextfile(t *testing.T) {
	c := newCLI(t)
	out := filepath.Join(c.dir, "metrics.json")
	t.Setenv("BREWCORE_METRICS_ENABLED", "true")
	t.Setenv("BREWCORE_METRICS_EXPORTER", "expvar")
	t.Setenv("BREWCORE_METRICS_TEXTFILE", out)

	c.run("vessel", "add", "--name", "Carboy")
	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	var snap core.ExpvarMetricsSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	if snap.Results["create_vessel"]["success"] != 1 {
		t.Fatalf("expected one successful create, got %+v", snap.Results)
	}
}
