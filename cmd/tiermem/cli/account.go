package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bowerhall/tiermem/internal/logger"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export everything stored for an owner",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		snap, err := a.mem.Export(cmd.Context(), ownerID)
		if err != nil {
			return err
		}

		if !upload {
			return printJSON(cmd.OutOrStdout(), snap)
		}

		sc, err := a.storage()
		if err != nil {
			return err
		}
		if err := sc.Init(cmd.Context()); err != nil {
			return err
		}

		name, err := sc.UploadExport(cmd.Context(), ownerID, snap)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "export uploaded to %s/%s\n", sc.ExportBucket(), name)
		return nil
	},
}

var forgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Delete everything stored for an owner",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirm {
			return fmt.Errorf("refusing to delete %s without --yes", ownerID)
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.mem.DeleteOwner(cmd.Context(), ownerID)
		if err != nil {
			return err
		}

		if sc, err := a.storage(); err == nil {
			n, err := sc.DeleteExports(cmd.Context(), ownerID)
			if err != nil {
				logger.Warn("failed to delete stored exports", "owner", ownerID, "error", err)
			} else if n > 0 {
				logger.Info("stored exports deleted", "owner", ownerID, "count", n)
			}
		}

		return printJSON(cmd.OutOrStdout(), report)
	},
}
