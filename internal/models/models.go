package models

import (
	"fmt"
	"strings"
	"time"
)

// RepositoryRecord tracks the indexing state of a connected repository
type RepositoryRecord struct {
	ChatID            int64     `json:"chat_id"`
	URL               string    `json:"url"`
	Name              string    `json:"name"`
	LastIndexedCommit string    `json:"last_indexed_commit"`
	ChunkCount        int       `json:"chunk_count"`
	IndexedAt         time.Time `json:"indexed_at"`
}

// TrendItem is a topic currently popular in a developer feed. Never persisted.
type TrendItem struct {
	Label     string    `json:"label"`
	Source    string    `json:"source"`    // "hackernews", "twitter"
	Relevance float64   `json:"relevance"` // normalised to 0-1
	FetchedAt time.Time `json:"fetched_at"`
	Title     string    `json:"title,omitempty"` // strongest story behind the label
	URL       string    `json:"url,omitempty"`
}

// Mode is the generation mode picked by the strategist
type Mode string

const (
	ModeCommits    Mode = "commits"
	ModeHighlights Mode = "highlights"
)

// Length buckets used for style and insights
const (
	LengthShort  = "short"
	LengthMedium = "medium"
	LengthLong   = "long"
)

// Style describes the shape of a post
type Style struct {
	Length   string `json:"length"`
	WithCode bool   `json:"with_code"`
}

// Tag renders the style as e.g. "short-form-with-code" or "long-form-narrative"
func (s Style) Tag() string {
	length := s.Length
	if length == "" {
		length = LengthShort
	}
	if s.WithCode {
		return length + "-form-with-code"
	}
	return length + "-form-narrative"
}

// ParseStyleTag is the inverse of Style.Tag
func ParseStyleTag(tag string) (Style, error) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	length, rest, ok := strings.Cut(tag, "-form-")
	if !ok {
		return Style{}, fmt.Errorf("invalid style tag %q", tag)
	}
	switch length {
	case LengthShort, LengthMedium, LengthLong:
	default:
		return Style{}, fmt.Errorf("invalid style length %q", length)
	}
	switch rest {
	case "with-code":
		return Style{Length: length, WithCode: true}, nil
	case "narrative":
		return Style{Length: length}, nil
	}
	return Style{}, fmt.Errorf("invalid style tag %q", tag)
}

// LengthBucket classifies a post by word count
func LengthBucket(words int) string {
	switch {
	case words < 100:
		return LengthShort
	case words < 250:
		return LengthMedium
	default:
		return LengthLong
	}
}

// PostRecord is a generated post. Only PublishedAt and LinkedInPostID change after creation.
type PostRecord struct {
	ID             string     `json:"id"`
	ChatID         int64      `json:"chat_id"`
	RepoURL        string     `json:"repo_url"`
	Content        string     `json:"content"`
	TrendMatched   *string    `json:"trend_matched,omitempty"`
	Style          Style      `json:"style"`
	Mode           Mode       `json:"mode"`
	Reasoning      string     `json:"reasoning"`
	CreatedAt      time.Time  `json:"created_at"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	LinkedInPostID string     `json:"linkedin_post_id,omitempty"`
}

// IsPublished reports whether the post reached LinkedIn
func (p *PostRecord) IsPublished() bool {
	return p.PublishedAt != nil
}

// MetricRecord holds the engagement numbers reported for a post
type MetricRecord struct {
	PostID      string    `json:"post_id"`
	Likes       int       `json:"likes"`
	Comments    int       `json:"comments"`
	Shares      int       `json:"shares"`
	Impressions int       `json:"impressions"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// InsightCategory groups learned performance scores
type InsightCategory string

const (
	InsightTopic  InsightCategory = "topic"
	InsightStyle  InsightCategory = "style"
	InsightLength InsightCategory = "length"
	InsightRepo   InsightCategory = "repo"
)

// Style insight keys
const (
	StyleWithCode = "with_code"
	StyleNoCode   = "no_code"
)

// InsightRecord is the learned performance of one (category, key) pair for a user
type InsightRecord struct {
	ChatID      int64           `json:"chat_id"`
	Category    InsightCategory `json:"category"`
	Key         string          `json:"key"`
	Score       float64         `json:"score"`
	SampleCount int             `json:"sample_count"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Selection is the strategist's decision for one run
type Selection struct {
	RepoURL       string     `json:"repo_url"`
	RepoName      string     `json:"repo_name"`
	Trend         *TrendItem `json:"trend,omitempty"`
	Mode          Mode       `json:"mode"`
	Style         Style      `json:"style"`
	Justification string     `json:"justification"`
}

// TrendLabel returns the matched trend label or nil
func (s Selection) TrendLabel() *string {
	if s.Trend == nil {
		return nil
	}
	label := s.Trend.Label
	return &label
}

// Commit is a summary of a repository commit
type Commit struct {
	Hash         string    `json:"hash"`
	Message      string    `json:"message"`
	Author       string    `json:"author"`
	When         time.Time `json:"when"`
	FilesChanged []string  `json:"files_changed,omitempty"`
}

// Chunk is an indexed piece of a repository file
type Chunk struct {
	ID        string    `json:"id"`
	ChatID    int64     `json:"chat_id"`
	RepoURL   string    `json:"repo_url"`
	FilePath  string    `json:"file_path"`
	Language  string    `json:"language"`
	StartLine int       `json:"start_line"`
	EndLine   int       `json:"end_line"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`
}

// ScoredChunk is a search hit
type ScoredChunk struct {
	Chunk
	Score float64 `json:"score"`
}

// RepoName returns the last path segment of a repository URL without a .git suffix
func RepoName(url string) string {
	url = strings.TrimRight(strings.TrimSpace(url), "/")
	if i := strings.LastIndex(url, "/"); i >= 0 {
		url = url[i+1:]
	}
	return strings.TrimSuffix(url, ".git")
}
