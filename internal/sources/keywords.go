package sources

import (
	"math"
	"net/url"
	"strings"
	"time"
	"unicode"
)

// devKeywords is the vocabulary used to label developer stories
var devKeywords = []string{
	"python", "javascript", "typescript", "rust", "go", "golang",
	"api", "database", "sql", "nosql", "postgres", "mongodb",
	"react", "vue", "angular", "svelte", "nextjs", "node",
	"docker", "kubernetes", "k8s", "aws", "cloud", "devops",
	"ai", "ml", "llm", "gpt", "openai", "anthropic", "claude",
	"git", "github", "gitlab", "ci", "cd", "pipeline",
	"security", "auth", "oauth", "jwt", "encryption",
	"performance", "optimization", "scaling", "architecture",
	"testing", "tdd", "debugging", "refactoring",
	"startup", "saas", "open source", "oss",
	"frontend", "backend", "fullstack", "web", "mobile",
	"linux", "unix", "terminal", "cli", "shell",
}

// devDomains are link targets that make a story developer relevant on their own
var devDomains = []string{
	"github.com", "gitlab.com", "dev.to", "medium.com",
	"stackoverflow.com", "npmjs.com", "pypi.org",
	"docs.python.org", "developer.mozilla.org",
	"aws.amazon.com", "cloud.google.com", "azure.microsoft.com",
}

// tweetTerms are extra terms that count as topics in tweets
var tweetTerms = []string{
	"api", "database", "deploy", "release", "update", "feature",
	"bug", "fix", "security", "performance", "open source",
	"beta", "alpha", "v1", "v2",
}

// keywordAliases folds synonyms onto one label
var keywordAliases = map[string]string{
	"golang":     "go",
	"rustlang":   "rust",
	"k8s":        "kubernetes",
	"oss":        "open source",
	"postgresql": "postgres",
}

// normalizeText lowercases and keeps only letters, digits and '+', '#'
func normalizeText(s string) string {
	var b strings.Builder
	b.WriteByte(' ')
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '+' || r == '#' {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	b.WriteByte(' ')
	return strings.Join(strings.Fields(b.String()), " ")
}

// matchKeywords returns vocabulary words found as whole words in text, in vocabulary order
func matchKeywords(text string, vocabulary []string) []string {
	padded := " " + normalizeText(text) + " "
	seen := make(map[string]bool)
	var out []string
	for _, kw := range vocabulary {
		if !strings.Contains(padded, " "+kw+" ") {
			continue
		}
		label := canonicalLabel(kw)
		if !seen[label] {
			seen[label] = true
			out = append(out, label)
		}
	}
	return out
}

func canonicalLabel(kw string) string {
	kw = strings.ToLower(strings.TrimSpace(kw))
	if alias, ok := keywordAliases[kw]; ok {
		return alias
	}
	return kw
}

// isDevDomain reports whether a link points at a developer site
func isDevDomain(link string) bool {
	if link == "" {
		return false
	}
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for _, d := range devDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// decay weights a signal by its age, halving after one day
func decay(age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	return 1 / (1 + age.Hours()/24)
}

// roundRelevance keeps relevance values stable for display and ordering
func roundRelevance(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
