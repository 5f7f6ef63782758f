package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bowerhall/tiermem/internal/extract"
	"github.com/bowerhall/tiermem/internal/memory"
)

var rememberCmd = &cobra.Command{
	Use:   "remember [text]",
	Short: "Store text in a memory tier",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		fact := memory.Fact{
			Text:       strings.Join(args, " "),
			Importance: memory.ParseImportance(importance),
		}

		n, err := a.mem.Remember(cmd.Context(), ownerID, []memory.Fact{fact})
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("nothing stored")
		}

		fmt.Fprintf(cmd.OutOrStdout(), "stored in %s memory\n", strings.ToLower(string(fact.Importance)))
		return nil
	},
}

var assembleCmd = &cobra.Command{
	Use:   "assemble [query]",
	Short: "Print the context pack for a message",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		pack, err := a.mem.Orchestrator().Assemble(cmd.Context(), ownerID, strings.Join(args, " "), recallK)
		if err != nil {
			return err
		}

		return printJSON(cmd.OutOrStdout(), pack)
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract facts from an exchange with Claude and store them",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.cfg.Extractor.Enabled {
			return fmt.Errorf("extractor not configured (set ANTHROPIC_API_KEY)")
		}

		ex := extract.New(extract.NewClaude(a.cfg.Extractor.APIKey, a.cfg.Extractor.Model))

		facts, err := ex.Extract(cmd.Context(), userMsg, replyMsg)
		if err != nil {
			return err
		}

		n, err := a.mem.Remember(cmd.Context(), ownerID, facts)
		if err != nil {
			return err
		}

		return printJSON(cmd.OutOrStdout(), map[string]any{"extracted": facts, "stored": n})
	},
}
