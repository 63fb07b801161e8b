package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var trendsLimit int

var trendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Show current developer trends from all enabled sources",
	Args:  cobra.NoArgs,
	RunE:  runTrends,
}

func init() {
	trendsCmd.Flags().IntVar(&trendsLimit, "limit", 10, "Maximum number of trends")
}

func runTrends(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	trends, err := a.Trends.Fetch(ctx, trendsLimit)
	if err != nil {
		return err
	}
	if useJSON() {
		return outputJSON(trends)
	}
	for i, t := range trends {
		fmt.Printf("%2d. %-16s %.3f  %-10s %s\n", i+1, t.Label, t.Relevance, t.Source, t.Title)
	}
	return nil
}
