package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"brewcore/internal/backup"
	"brewcore/internal/storelock"
)

func newBackupCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Archive the database to the configured backup store",
	}
	cmd.AddCommand(
		newBackupPushCommand(ctx),
		newBackupListCommand(ctx),
		newBackupRestoreCommand(ctx),
		newBackupDeleteCommand(ctx),
	)
	return cmd
}

func newBackupPushCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Upload a snapshot of the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(c context.Context, s *session) error {
				db, err := s.fileDatabase()
				if err != nil {
					return err
				}
				store, err := ctx.backupStore(c)
				if err != nil {
					return err
				}
				info, err := backup.Archive(c, db, store, time.Now())
				if err != nil {
					return err
				}
				s.logger.Info("backup uploaded", "driver", store.Driver(), "key", info.Key, "size", info.Size)
				return ctx.emit(cmd, info, func() {
					fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s (%d bytes)\n", info.Key, info.Size)
				})
			})
		},
	}
}

func newBackupListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List archives",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.backupStore(cmd.Context())
			if err != nil {
				return err
			}
			infos, err := backup.List(cmd.Context(), store)
			if err != nil {
				return err
			}
			return ctx.emitRows(cmd, infos, []string{"Key", "Bytes", "Created"}, func() [][]string {
				rows := make([][]string, 0, len(infos))
				for _, info := range infos {
					rows = append(rows, []string{info.Key, strconv.FormatInt(info.Size, 10), info.Metadata["created-at"]})
				}
				return rows
			}, alignLeft, alignRight)
		},
	}
}

func newBackupRestoreCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <key> [dest]",
		Short: "Download an archive; dest defaults to the configured database path",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dest := cfg.Storage.SQLitePath
			if len(args) == 2 {
				dest = args[1]
			}
			lock, err := storelock.Acquire(dest)
			if err != nil {
				return err
			}
			defer func() { _ = lock.Release() }()

			store, err := ctx.backupStore(cmd.Context())
			if err != nil {
				return err
			}
			info, err := backup.Restore(cmd.Context(), store, args[0], dest)
			if err != nil {
				return err
			}
			return ctx.emit(cmd, info, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Restored %s to %s\n", info.Key, dest)
			})
		},
	}
}

func newBackupDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.backupStore(cmd.Context())
			if err != nil {
				return err
			}
			removed, err := store.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("archive %s: %w", args[0], backup.ErrNotFound)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}
