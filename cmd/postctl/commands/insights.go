package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Show learned insights and recommendations for a chat",
	Args:  cobra.NoArgs,
	RunE:  runInsights,
}

func runInsights(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	all, err := a.Store.Insights(ctx, chatID, "")
	if err != nil {
		return err
	}
	rec, err := a.Learner.Recommendations(ctx, chatID)
	if err != nil {
		return err
	}
	if useJSON() {
		return outputJSON(map[string]any{"insights": all, "recommendations": rec})
	}

	fmt.Println(rec.Summary)
	if len(all) == 0 {
		return nil
	}
	fmt.Println()
	for _, r := range all {
		fmt.Printf("%-7s %-24s score %5.1f  samples %d\n", r.Category, r.Key, r.Score, r.SampleCount)
	}
	return nil
}
