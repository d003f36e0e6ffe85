package fsstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"brewcore/internal/backup/objstore"
)

func TestStoreRoundTrip(t *testing.T) {
	root := t.TempDir()
	store, err := New(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if store.Driver() != objstore.DriverFilesystem || store.Root() != root {
		t.Fatalf("unexpected store %s %s", store.Driver(), store.Root())
	}
	ctx := context.Background()
	payload := []byte("sqlite bytes")
	info, err := store.Put(ctx, "brewcore/2026/cellar.db", bytes.NewReader(payload), objstore.PutOptions{
		ContentType: "application/vnd.sqlite3",
		Metadata:    map[string]string{"source": "cellar.db"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	sum := sha256.Sum256(payload)
	if info.ETag != hex.EncodeToString(sum[:]) || info.Size != int64(len(payload)) {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := os.Stat(filepath.Join(root, "brewcore", "2026", "cellar.db.meta")); err != nil {
		t.Fatalf("expected sidecar: %v", err)
	}
	if _, err := store.Put(ctx, "brewcore/2026/cellar.db", bytes.NewReader(nil), objstore.PutOptions{}); !errors.Is(err, objstore.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	got, rc, err := store.Get(ctx, "brewcore/2026/cellar.db")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if !bytes.Equal(body, payload) || got.Metadata["source"] != "cellar.db" || got.ContentType != "application/vnd.sqlite3" {
		t.Fatalf("unexpected object %+v %q", got, body)
	}
	if head, err := store.Head(ctx, "brewcore/2026/cellar.db"); err != nil || head.ETag != info.ETag {
		t.Fatalf("head: %v %+v", err, head)
	}

	if _, err := store.Put(ctx, "other.db", bytes.NewReader([]byte("x")), objstore.PutOptions{}); err != nil {
		t.Fatalf("put other: %v", err)
	}
	list, err := store.List(ctx, "brewcore/")
	if err != nil || len(list) != 1 || list[0].Key != "brewcore/2026/cellar.db" {
		t.Fatalf("list: %v %+v", err, list)
	}
	if all, _ := store.List(ctx, ""); len(all) != 2 {
		t.Fatalf("expected two archives, got %+v", all)
	}

	if ok, err := store.Delete(ctx, "brewcore/2026/cellar.db"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := store.Delete(ctx, "brewcore/2026/cellar.db"); err != nil || ok {
		t.Fatalf("second delete: %v %v", ok, err)
	}
	if _, err := store.Head(ctx, "brewcore/2026/cellar.db"); !errors.Is(err, objstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := store.Get(ctx, "brewcore/2026/cellar.db"); !errors.Is(err, objstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreRejectsUnsafeKeys(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	for _, key := range []string{"", "  ", "/etc/passwd", "../escape", "a/../../b", "x.meta"} {
		if _, err := store.Put(ctx, key, bytes.NewReader(nil), objstore.PutOptions{}); err == nil {
			t.Fatalf("expected %q to be rejected", key)
		}
		if _, err := store.Delete(ctx, key); err == nil {
			t.Fatalf("expected delete of %q to be rejected", key)
		}
	}
}

func TestNewDefaultsRootAndReportsCorruptSidecar(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer func() { _ = os.Chdir(wd) }()
	store, err := New("")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if store.Root() != DefaultRoot {
		t.Fatalf("expected default root, got %s", store.Root())
	}
	if err := os.WriteFile(filepath.Join(DefaultRoot, "broken.db.meta"), []byte("{"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := store.Head(context.Background(), "broken.db"); err == nil || errors.Is(err, objstore.ErrNotFound) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if _, err := store.List(context.Background(), ""); err == nil {
		t.Fatalf("expected list to surface decode error")
	}
}
