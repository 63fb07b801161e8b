package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/azure/linkedin-content-bot/internal/generator"
	"github.com/azure/linkedin-content-bot/internal/index"
	"github.com/azure/linkedin-content-bot/internal/ingest"
	"github.com/azure/linkedin-content-bot/internal/models"
	"github.com/spf13/cobra"
)

var (
	generateFocus      string
	generateStyle      string
	generateVariations int
)

var generateCmd = &cobra.Command{
	Use:   "generate <github-url>",
	Short: "Write post variations for a repository without sending them",
	Long: `Generate indexes the repository if needed, retrieves context for the focus
and writes up to three variations (short, story, tutorial). Nothing is stored
or sent to the chat.`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&generateFocus, "focus", "", "What the post should be about (default: main features)")
	generateCmd.Flags().StringVar(&generateStyle, "style", "", "Style tag such as short-form-with-code or long-form-narrative")
	generateCmd.Flags().IntVar(&generateVariations, "variations", 1, "Number of variations to write (1-3)")
}

type generatedPost struct {
	Variant string `json:"variant"`
	Words   int    `json:"words"`
	Text    string `json:"text"`
}

func runGenerate(cmd *cobra.Command, args []string) error {
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

	res, err := a.Indexer.Index(ctx, chatID, url, false)
	if err != nil {
		return err
	}
	commits, err := ingest.RecentCommits(res.Snapshot.Dir, time.Now().Add(-ingest.DefaultLookback))
	if err != nil {
		return fmt.Errorf("failed to read commits: %w", err)
	}

	focus := generateFocus
	if focus == "" {
		focus = index.DefaultFocus
	}
	pc, err := a.Retriever.ContextForPost(ctx, chatID, url, focus)
	if err != nil {
		return err
	}

	req := generator.Request{
		RepoURL:  url,
		RepoName: models.RepoName(url),
		Mode:     models.ModeHighlights,
		Style:    models.Style{Length: models.LengthShort, WithCode: true},
		Context:  pc.Text(),
		Snippets: generator.SnippetsFrom(pc.Snippets),
		Focus:    generateFocus,
	}
	if len(commits) > 0 {
		req.Mode = models.ModeCommits
		req.Style.Length = models.LengthMedium
		req.Commits = commits
		req.Diff = ingest.Diff(commits)
	}
	if generateStyle != "" {
		if req.Style, err = models.ParseStyleTag(generateStyle); err != nil {
			return err
		}
	}

	posts, err := a.Generator.Variations(ctx, req, generateVariations)
	if err != nil {
		return err
	}

	out := make([]generatedPost, len(posts))
	for i, p := range posts {
		out[i] = generatedPost{Variant: generator.Variants[i], Words: generator.WordCount(p), Text: p}
	}
	if useJSON() {
		return outputJSON(out)
	}

	fmt.Printf("%s, %s mode, %s, context from %s\n", req.RepoName, req.Mode, req.Style.Tag(), strings.Join(pc.Files(), ", "))
	for _, p := range out {
		fmt.Printf("\n=== %s (%d words) ===\n%s\n", p.Variant, p.Words, p.Text)
	}
	return nil
}
