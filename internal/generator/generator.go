// Package generator turns repository context into LinkedIn post drafts.
package generator

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/azure/linkedin-content-bot/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/tiktoken-go/tokenizer"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultTokenBudget bounds the code context sent to the model
	DefaultTokenBudget = 6000

	maxPromptSnippets = 3
	truncatedMarker   = "\n... (context truncated)"
)

// Snippet is a code excerpt offered to the model
type Snippet struct {
	FilePath  string
	StartLine int
	EndLine   int
	Code      string
}

// SnippetsFrom turns retrieved chunks into prompt snippets
func SnippetsFrom(chunks []models.ScoredChunk) []Snippet {
	out := make([]Snippet, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, Snippet{
			FilePath:  c.FilePath,
			StartLine: c.StartLine,
			EndLine:   c.EndLine,
			Code:      c.Content,
		})
	}
	return out
}

// Request describes one post to generate
type Request struct {
	RepoURL  string
	RepoName string
	Mode     models.Mode
	Style    models.Style
	Trend    *models.TrendItem
	Commits  []models.Commit
	Diff     string
	Context  string
	Snippets []Snippet
	Focus    string
	Variant  string
}

// Generator renders prompts and calls the provider
type Generator struct {
	provider Provider
	codec    tokenizer.Codec
	budget   int
}

// NewGenerator creates a generator. A non-positive budget uses DefaultTokenBudget.
func NewGenerator(provider Provider, budget int) (*Generator, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer: %w", err)
	}
	if budget <= 0 {
		budget = DefaultTokenBudget
	}
	return &Generator{provider: provider, codec: codec, budget: budget}, nil
}

// Provider returns the underlying model provider
func (g *Generator) Provider() Provider {
	return g.provider
}

// Prompt renders the user prompt for req
func (g *Generator) Prompt(req Request) (string, error) {
	name := req.RepoName
	if name == "" {
		name = models.RepoName(req.RepoURL)
	}
	data := promptData{
		RepoName:   name,
		RepoURL:    req.RepoURL,
		Trend:      req.Trend,
		Activity:   formatActivity(req),
		Context:    g.truncate(strings.TrimSpace(req.Context)),
		Snippets:   formatSnippets(req.Snippets),
		Guidelines: guidelines(req),
	}
	if data.Context == "" {
		data.Context = "No code context available"
	}

	var buf bytes.Buffer
	if err := humanPrompt.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return buf.String(), nil
}

// Generate writes one post
func (g *Generator) Generate(ctx context.Context, req Request) (string, error) {
	prompt, err := g.Prompt(req)
	if err != nil {
		return "", err
	}
	text, err := g.provider.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return "", err
	}
	return cleanPost(text), nil
}

// Variations writes up to three posts, one per variant, in variant order
func (g *Generator) Variations(ctx context.Context, req Request, n int) ([]string, error) {
	n = max(1, min(n, len(Variants)))
	out := make([]string, n)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(n)
	for i := 0; i < n; i++ {
		variant := req
		variant.Variant = Variants[i]
		eg.Go(func() error {
			text, err := g.Generate(egCtx, variant)
			if err != nil {
				return fmt.Errorf("variation %q: %w", variant.Variant, err)
			}
			out[i] = text
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Generator) count(text string) int {
	n, err := g.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return n
}

// truncate keeps whole leading lines of text within the token budget
func (g *Generator) truncate(text string) string {
	if text == "" || g.count(text) <= g.budget {
		return text
	}
	lines := strings.Split(text, "\n")
	lo, hi := 0, len(lines)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if g.count(strings.Join(lines[:mid], "\n")) <= g.budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	logrus.Debugf("Truncated code context from %d to %d lines", len(lines), lo)
	return strings.Join(lines[:lo], "\n") + truncatedMarker
}

// cleanPost strips wrappers models sometimes put around the post
func cleanPost(text string) string {
	text = strings.TrimSpace(text)
	for _, prefix := range []string{"Here's your LinkedIn post:", "Here is the LinkedIn post:", "LinkedIn post:"} {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimSpace(strings.TrimPrefix(text, prefix))
		}
	}
	if len(text) >= 2 && text[0] == '"' && text[len(text)-1] == '"' && strings.Count(text, `"`) == 2 {
		text = text[1 : len(text)-1]
	}
	return strings.TrimSpace(text)
}

// WordCount counts whitespace separated words
func WordCount(text string) int {
	return len(strings.Fields(text))
}
