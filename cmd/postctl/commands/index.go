package commands

import (
	"fmt"

	"github.com/azure/linkedin-content-bot/internal/ingest"
	"github.com/spf13/cobra"
)

var indexForce bool

var indexCmd = &cobra.Command{
	Use:   "index <github-url>",
	Short: "Clone or pull a repository and index it",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&indexForce, "force", false, "Re-embed even when the head commit did not move")
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	url, err := ingest.NormalizeURL(args[0])
	if err != nil {
		return err
	}

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	res, err := a.Indexer.Index(ctx, chatID, url, indexForce)
	if err != nil {
		return err
	}
	if useJSON() {
		return outputJSON(res.Record)
	}

	state := "indexed"
	if res.Reused {
		state = "up to date"
	}
	fmt.Printf("%s %s: %d chunks at %s\n", res.Record.Name, state, res.Record.ChunkCount, res.Record.LastIndexedCommit)
	return nil
}
