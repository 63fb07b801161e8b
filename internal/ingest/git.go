package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/azure/linkedin-content-bot/internal/models"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/sirupsen/logrus"
)

// DefaultLookback is how far back commits count as recent
const DefaultLookback = 7 * 24 * time.Hour

const (
	cloneDepth     = 100
	maxCommits     = 20
	maxCommitStats = 10
)

// ErrInvalidURL is returned for anything that is not a GitHub repository URL
var ErrInvalidURL = errors.New("invalid repository URL")

var githubURLPattern = regexp.MustCompile(`^https://github\.com/([A-Za-z0-9_.-]+)/([A-Za-z0-9_.-]+?)(\.git)?/?$`)

// NormalizeURL validates a GitHub URL and returns it in canonical form
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "github.com/") {
		raw = "https://" + raw
	}
	m := githubURLPattern.FindStringSubmatch(raw)
	if m == nil {
		return "", fmt.Errorf("%w: %q, expected https://github.com/<owner>/<repo>", ErrInvalidURL, raw)
	}
	return fmt.Sprintf("https://github.com/%s/%s", m[1], m[2]), nil
}

// Snapshot is a local checkout at a known commit
type Snapshot struct {
	URL    string
	Dir    string
	Head   string
	Cloned bool // true when this call created the checkout
}

// Loader keeps one checkout per user and repository under a cache directory
type Loader struct {
	cacheDir string
}

// NewLoader creates a loader rooted at cacheDir
func NewLoader(cacheDir string) *Loader {
	return &Loader{cacheDir: cacheDir}
}

// Dir returns the checkout directory for a user's repository
func (l *Loader) Dir(chatID int64, url string) string {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(url, "https://github.com/"), ".git")
	safe := strings.NewReplacer("/", "__", ":", "_", "\\", "_").Replace(trimmed)
	return filepath.Join(l.cacheDir, fmt.Sprint(chatID), safe)
}

// Sync clones the repository or pulls the existing checkout.
// A checkout that cannot be pulled is removed and cloned again.
func (l *Loader) Sync(ctx context.Context, chatID int64, url string, force bool) (*Snapshot, error) {
	dir := l.Dir(chatID, url)

	if force {
		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("failed to clear checkout: %w", err)
		}
	}

	if repo, err := git.PlainOpen(dir); err == nil {
		pullErr := pull(ctx, repo)
		if pullErr == nil {
			head, err := headHash(repo)
			if err != nil {
				return nil, err
			}
			return &Snapshot{URL: url, Dir: dir, Head: head}, nil
		}
		logrus.Warnf("Pull of %s failed, re-cloning: %v", url, pullErr)
		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("failed to clear checkout: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	logrus.Infof("Cloning %s", url)
	repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:          url,
		Depth:        cloneDepth,
		SingleBranch: true,
	})
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to clone %s: %w", url, err)
	}

	head, err := headHash(repo)
	if err != nil {
		return nil, err
	}
	return &Snapshot{URL: url, Dir: dir, Head: head, Cloned: true}, nil
}

// Remove deletes a user's checkout
func (l *Loader) Remove(chatID int64, url string) error {
	return os.RemoveAll(l.Dir(chatID, url))
}

func pull(ctx context.Context, repo *git.Repository) error {
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	err = wt.PullContext(ctx, &git.PullOptions{RemoteName: "origin", Force: true})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return err
	}
	return nil
}

func headHash(repo *git.Repository) (string, error) {
	ref, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	return ref.Hash().String(), nil
}

// HeadCommit returns the hash HEAD points at in a checkout
func HeadCommit(dir string) (string, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", dir, err)
	}
	return headHash(repo)
}

// RecentCommits returns up to 20 commits authored after since, newest first
func RecentCommits(dir string, since time.Time) ([]models.Commit, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", dir, err)
	}
	ref, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash(), Since: &since})
	if err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	defer iter.Close()

	var commits []models.Commit
	err = iter.ForEach(func(c *object.Commit) error {
		if len(commits) >= maxCommits {
			return storer.ErrStop
		}
		commit := models.Commit{
			Hash:    c.Hash.String()[:7],
			Message: strings.TrimSpace(c.Message),
			Author:  c.Author.Name,
			When:    c.Author.When,
		}
		if len(commits) < maxCommitStats {
			// shallow history may lack the parent; stats are best effort
			if stats, err := c.Stats(); err == nil {
				for _, s := range stats {
					commit.FilesChanged = append(commit.FilesChanged, s.Name)
				}
			}
		}
		commits = append(commits, commit)
		return nil
	})
	if err != nil && !errors.Is(err, storer.ErrStop) {
		return nil, fmt.Errorf("failed to walk log: %w", err)
	}
	return commits, nil
}

// Diff renders a short changelog of commits for prompts
func Diff(commits []models.Commit) string {
	var b strings.Builder
	for _, c := range commits {
		fmt.Fprintf(&b, "- %s %s (%s)\n", c.Hash, firstLine(c.Message), c.Author)
		for i, f := range c.FilesChanged {
			if i == 5 {
				fmt.Fprintf(&b, "    ... and %d more\n", len(c.FilesChanged)-5)
				break
			}
			fmt.Fprintf(&b, "    %s\n", f)
		}
	}
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
