package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bowerhall/tiermem/internal/logger"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired episodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		size := batchSize
		if size <= 0 {
			size = a.cfg.Memory.SweepBatchSize
		}

		n, err := a.mem.Episodic().SweepExpired(cmd.Context(), size)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired episodes\n", n)
		return nil
	},
}

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Remove near-duplicate episodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var n int
		if ownerID != "" {
			n, err = a.mem.Deduplicator().Run(cmd.Context(), ownerID)
		} else {
			n, err = a.mem.Deduplicator().RunAll(cmd.Context())
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d duplicate episodes\n", n)
		return nil
	},
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Embed entries stored without a vector",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		size := batchSize
		if size <= 0 {
			size = a.cfg.Jobs.BackfillBatch
		}

		n, err := a.mem.Backfill(cmd.Context(), size)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "embedded %d entries\n", n)
		return nil
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up the memory database",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if outPath != "" {
			if err := a.store.Backup(cmd.Context(), outPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backup written to %s\n", outPath)
			return nil
		}

		name, err := a.uploadBackup(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "backup uploaded as %s\n", name)
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore [object]",
	Short: "List uploaded backups or download one",
	Long: `Without an argument, restore lists the uploaded backups. With an object
name it downloads that backup to --out. The live database is never touched;
stop tiermem and move the file into place yourself.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		sc, err := a.storage()
		if err != nil {
			return err
		}

		if len(args) == 0 {
			files, err := sc.Backups(cmd.Context())
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\t%s\n", f.Name, f.Size, f.ModTime.UTC().Format(time.RFC3339))
			}
			return nil
		}

		if outPath == "" {
			return fmt.Errorf("--out is required when downloading a backup")
		}
		if err := sc.DownloadBackup(cmd.Context(), args[0], outPath); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "backup %s written to %s\n", args[0], outPath)
		return nil
	},
}

// uploadBackup snapshots the database to a temporary file and uploads it.
func (a *app) uploadBackup(ctx context.Context) (string, error) {
	sc, err := a.storage()
	if err != nil {
		return "", err
	}
	if err := sc.Init(ctx); err != nil {
		return "", err
	}

	tmp := filepath.Join(os.TempDir(), "tiermem-backup-"+uuid.NewString()+".db")
	defer func() {
		if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove backup file", "path", tmp, "error", err)
		}
	}()

	if err := a.store.Backup(ctx, tmp); err != nil {
		return "", err
	}

	return sc.UploadBackup(ctx, tmp)
}
