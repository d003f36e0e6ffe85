package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// fileDatabase is a store backed by a single database file.
type fileDatabase interface {
	Path() string
	Exists() bool
	Export(ctx context.Context, dest string) error
}

func (s *session) fileDatabase() (fileDatabase, error) {
	db, ok := s.store.(fileDatabase)
	if !ok {
		return nil, fmt.Errorf("storage driver %T has no database file; use the sqlite driver", s.store)
	}
	return db, nil
}

type dbStatus struct {
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
}

func newDBCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect and copy the SQLite database",
	}
	cmd.AddCommand(newDBPathCommand(ctx), newDBExportCommand(ctx))
	return cmd
}

func newDBPathCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the database path",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(c context.Context, s *session) error {
				db, err := s.fileDatabase()
				if err != nil {
					return err
				}
				status := dbStatus{Path: db.Path(), Exists: db.Exists()}
				return ctx.emit(cmd, status, func() {
					fmt.Fprintln(cmd.OutOrStdout(), status.Path)
				})
			})
		},
	}
}

func newDBExportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "export <dest>",
		Short: "Write a consistent copy of the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(c context.Context, s *session) error {
				db, err := s.fileDatabase()
				if err != nil {
					return err
				}
				if err := db.Export(c, args[0]); err != nil {
					return err
				}
				s.logger.Info("database exported", "from", db.Path(), "to", args[0])
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s\n", db.Path(), args[0])
				return nil
			})
		},
	}
}
