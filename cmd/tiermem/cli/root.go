package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	ownerID    string
	importance string
	recallK    int
	batchSize  int
	upload     bool
	confirm    bool
	outPath    string
	userMsg    string
	replyMsg   string
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "tiermem",
	Short: "Tiered memory for a personal assistant",
	Long: `tiermem stores what an assistant knows about its users in three tiers:
durable core facts, a rotating window of working notes, and an expiring
episodic log. It assembles them into a context pack for each message.`,
	SilenceUsage: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := RootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.AddCommand(rememberCmd, assembleCmd, extractCmd)
	RootCmd.AddCommand(sweepCmd, dedupCmd, backfillCmd, backupCmd, restoreCmd)
	RootCmd.AddCommand(exportCmd, forgetCmd)
	RootCmd.AddCommand(serveCmd)

	for _, cmd := range []*cobra.Command{rememberCmd, assembleCmd, extractCmd, exportCmd, forgetCmd} {
		cmd.Flags().StringVarP(&ownerID, "owner", "o", "", "Owner (user) id")
		cmd.MarkFlagRequired("owner")
	}

	rememberCmd.Flags().StringVarP(&importance, "importance", "i", "episode", "Tier to store in (core, working, episode)")
	assembleCmd.Flags().IntVarP(&recallK, "limit", "k", 0, "Episodes to recall (default from RECALL_K)")

	extractCmd.Flags().StringVar(&userMsg, "user", "", "User message")
	extractCmd.Flags().StringVar(&replyMsg, "assistant", "", "Assistant reply")
	extractCmd.MarkFlagRequired("user")

	dedupCmd.Flags().StringVarP(&ownerID, "owner", "o", "", "Only deduplicate this owner")
	sweepCmd.Flags().IntVar(&batchSize, "batch", 0, "Rows per transaction (default from SWEEP_BATCH_SIZE)")
	backfillCmd.Flags().IntVar(&batchSize, "batch", 0, "Texts per embedding call (default from BACKFILL_BATCH_SIZE)")
	backupCmd.Flags().StringVar(&outPath, "out", "", "Write the backup here instead of uploading it")
	restoreCmd.Flags().StringVar(&outPath, "out", "", "Where to write the downloaded backup")
	exportCmd.Flags().BoolVar(&upload, "upload", false, "Upload the export to object storage")
	forgetCmd.Flags().BoolVar(&confirm, "yes", false, "Confirm deletion")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
