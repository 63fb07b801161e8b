package generator

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/azure/linkedin-content-bot/internal/models"
)

const systemPrompt = `You are a Senior Technical Evangelist who writes engaging LinkedIn posts about code and software development.

Your posts are:
- Conversational and authentic, never robotic or overly formal
- Educational but accessible to a broad developer audience
- Easy to scan, with line breaks between short paragraphs
- Closed with a question or call to action
- Tagged with 3-5 relevant hashtags

Format code snippets using triple backticks with the language specified.
Reply with the post text only.`

var humanPrompt = template.Must(template.New("post").Parse(`Write an engaging LinkedIn post about the GitHub repository below.

Repository: {{.RepoName}} ({{.RepoURL}})
{{- if .Trend}}

Trending topic to connect to: "{{.Trend.Label}}"{{if .Trend.Title}} (from {{.Trend.Source}}: {{.Trend.Title}}){{end}}
{{- end}}

Recent activity:
{{.Activity}}

Relevant code context:
{{.Context}}

Code snippets you may include:
{{.Snippets}}

Guidelines:
{{range .Guidelines}}- {{.}}
{{end}}
Write the LinkedIn post:`))

// Variants used for multiple drafts
var Variants = []string{"short and punchy", "storytelling narrative", "tutorial/educational"}

type promptData struct {
	RepoName   string
	RepoURL    string
	Trend      *models.TrendItem
	Activity   string
	Context    string
	Snippets   string
	Guidelines []string
}

func lengthGuideline(length string) string {
	switch length {
	case models.LengthLong:
		return "Go deep: 250-400 words across 4-6 paragraphs."
	case models.LengthMedium:
		return "Aim for 100-250 words across 3-5 paragraphs."
	default:
		return "Keep it under 100 words: 2-4 short paragraphs."
	}
}

func guidelines(req Request) []string {
	var out []string
	if req.Mode == models.ModeCommits {
		out = append(out, "Highlight what is new in the recent commits and why it matters.")
	} else {
		out = append(out, "Find one interesting aspect of the existing code and explain it.")
	}
	if req.Trend != nil {
		out = append(out, fmt.Sprintf("Tie the post to the current interest in %q without forcing it.", req.Trend.Label))
	}
	out = append(out, lengthGuideline(req.Style.Length))
	if req.Style.WithCode {
		out = append(out, "Include one short code snippet that illustrates the point.")
	} else {
		out = append(out, "Do not include code blocks; tell it as a narrative.")
	}
	if req.Variant != "" {
		out = append(out, "Post style: "+req.Variant+".")
	}
	if req.Focus != "" {
		out = append(out, "Focus on: "+req.Focus+".")
	}
	return append(out, "Make it relatable to other developers.")
}

func formatActivity(req Request) string {
	if len(req.Commits) == 0 && strings.TrimSpace(req.Diff) == "" {
		return "No recent commits"
	}
	var b strings.Builder
	for _, c := range req.Commits {
		fmt.Fprintf(&b, "- %s %s (%s)\n", shortHash(c.Hash), firstLine(c.Message), c.Author)
	}
	if d := strings.TrimSpace(req.Diff); d != "" {
		b.WriteString(d)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatSnippets(snippets []Snippet) string {
	if len(snippets) == 0 {
		return "No specific snippets selected"
	}
	var b strings.Builder
	for i, s := range snippets {
		if i == maxPromptSnippets {
			break
		}
		fmt.Fprintf(&b, "--- Snippet %d from %s (lines %d-%d) ---\n%s\n", i+1, s.FilePath, s.StartLine, s.EndLine, s.Code)
	}
	return strings.TrimRight(b.String(), "\n")
}

func shortHash(h string) string {
	if len(h) > 7 {
		return h[:7]
	}
	return h
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
