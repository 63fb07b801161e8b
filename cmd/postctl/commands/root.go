package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/azure/linkedin-content-bot/internal/app"
	"github.com/azure/linkedin-content-bot/internal/config"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// chatID scopes every command to one user's data
	chatID int64

	// outputFormat controls output format (text, json)
	outputFormat string

	// verbose enables info logging to stderr
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "postctl",
	Short: "Operator tool for the LinkedIn content bot",
	Long: `postctl runs the content bot's building blocks from the command line.

It reads the same environment (or .env file) as the bot and works on the same
databases, so repositories indexed here are reused by the bot.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logrus.SetOutput(os.Stderr)
		logrus.SetLevel(logrus.WarnLevel)
		if verbose {
			logrus.SetLevel(logrus.InfoLevel)
		}
	},
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().Int64Var(&chatID, "chat", 0, "Chat id whose repositories and insights to use")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "text", "Output format: text, json")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log progress to stderr")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(trendsCmd)
	rootCmd.AddCommand(insightsCmd)
	rootCmd.AddCommand(unpublishCmd)
}

func loadApp(ctx context.Context) (*app.App, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return app.Build(ctx, cfg)
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func useJSON() bool {
	switch outputFormat {
	case "json":
		return true
	case "text", "":
		return false
	}
	fmt.Fprintf(os.Stderr, "unknown format %q, using text\n", outputFormat)
	return false
}
