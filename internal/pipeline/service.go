// Package pipeline runs one post generation for a user, from trend fetch to draft delivery.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/azure/linkedin-content-bot/internal/config"
	"github.com/azure/linkedin-content-bot/internal/engagement"
	"github.com/azure/linkedin-content-bot/internal/generator"
	"github.com/azure/linkedin-content-bot/internal/index"
	"github.com/azure/linkedin-content-bot/internal/ingest"
	"github.com/azure/linkedin-content-bot/internal/metrics"
	"github.com/azure/linkedin-content-bot/internal/models"
	"github.com/azure/linkedin-content-bot/internal/notifications"
	"github.com/azure/linkedin-content-bot/internal/strategist"
	"github.com/azure/linkedin-content-bot/internal/users"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Triggers
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

var (
	// ErrDraftPending suppresses a run while the user still has a draft to approve
	ErrDraftPending = errors.New("a draft is already waiting for approval")
	// ErrRunInProgress is returned when the user already has a run going
	ErrRunInProgress = errors.New("a run is already in progress")
	// ErrBudgetExhausted means the run hit its step or time budget before deciding
	ErrBudgetExhausted = errors.New("could not decide within the run budget")
	// ErrNoRepositories is returned when the user has not connected any repository
	ErrNoRepositories = errors.New("no repositories connected")
)

const repoParallelism = 3

// RepoIndexer keeps a repository's index current
type RepoIndexer interface {
	Index(ctx context.Context, chatID int64, url string, force bool) (*index.Result, error)
}

// ContextRetriever answers queries against the index
type ContextRetriever interface {
	ContextForPost(ctx context.Context, chatID int64, url, focus string) (*index.PostContext, error)
	MatchTrends(ctx context.Context, chatID int64, url string, labels []string) (map[string]float64, error)
}

// TrendFetcher returns current trends
type TrendFetcher interface {
	Fetch(ctx context.Context, limit int) ([]models.TrendItem, error)
}

// PostWriter writes post text
type PostWriter interface {
	Generate(ctx context.Context, req generator.Request) (string, error)
}

// MetricsReader reads engagement of a published LinkedIn post
type MetricsReader interface {
	PostMetrics(ctx context.Context, token, postID string) (*models.MetricRecord, error)
}

// Deps are the collaborators of the pipeline
type Deps struct {
	Users     *users.Store
	Store     *engagement.Store
	Learner   *engagement.Learner
	Indexer   RepoIndexer
	Retriever ContextRetriever
	Trends    TrendFetcher
	Writer    PostWriter
	Notifier  notifications.NotificationInterface
	LinkedIn  MetricsReader
}

// Outcome is the result of a successful run
type Outcome struct {
	Post      *models.PostRecord
	Selection models.Selection
}

// Service orchestrates runs. Runs for different users proceed concurrently.
type Service struct {
	config *config.Config
	deps   Deps

	commits func(dir string, since time.Time) ([]models.Commit, error)
	now     func() time.Time

	flightMu sync.Mutex
	inFlight map[int64]bool

	metrics *Metrics
	mu      sync.RWMutex
}

// Metrics holds run counters for the status endpoint
type Metrics struct {
	Runs            int       `json:"runs"`
	Drafts          int       `json:"drafts"`
	Suppressed      int       `json:"suppressed"`
	Undecided       int       `json:"undecided"`
	Failures        int       `json:"failures"`
	MetricsFetched  int       `json:"metrics_fetched"`
	LastRun         time.Time `json:"last_run"`
	LastRunDuration string    `json:"last_run_duration"`
}

// NewService creates a pipeline service
func NewService(cfg *config.Config, deps Deps) *Service {
	return &Service{
		config:   cfg,
		deps:     deps,
		commits:  ingest.RecentCommits,
		now:      time.Now,
		inFlight: make(map[int64]bool),
		metrics:  &Metrics{},
	}
}

func (s *Service) acquire(chatID int64) bool {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	if s.inFlight[chatID] {
		return false
	}
	s.inFlight[chatID] = true
	return true
}

func (s *Service) release(chatID int64) {
	s.flightMu.Lock()
	delete(s.inFlight, chatID)
	s.flightMu.Unlock()
}

// Run generates and delivers one draft for chatID. focus optionally steers retrieval.
func (s *Service) Run(ctx context.Context, chatID int64, trigger, focus string) (*Outcome, error) {
	if !s.acquire(chatID) {
		return nil, ErrRunInProgress
	}
	defer s.release(chatID)

	start := s.now()
	log := logrus.WithFields(logrus.Fields{"chat_id": chatID, "trigger": trigger})
	log.Info("Starting post run")

	if s.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RunTimeout)
		defer cancel()
	}

	out, err := s.run(ctx, chatID, trigger, focus, newBudget(s.config.AgentMaxSteps))
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", ErrBudgetExhausted, err)
	}
	s.record(start, err)
	metrics.ObserveRun(trigger, OutcomeLabel(err))

	switch {
	case err == nil:
		log.Infof("Draft %s ready in %v", out.Post.ID, s.now().Sub(start))
	case errors.Is(err, ErrDraftPending):
		log.Info("Run suppressed, draft pending")
	default:
		log.Errorf("Run failed: %v", err)
	}
	return out, err
}

func (s *Service) run(ctx context.Context, chatID int64, trigger, focus string, steps *budget) (*Outcome, error) {
	if _, pending, err := s.deps.Store.PeekPending(ctx, chatID); err != nil {
		return nil, err
	} else if pending {
		return nil, ErrDraftPending
	}

	user, err := s.deps.Users.Get(chatID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, ErrNoRepositories
		}
		return nil, err
	}
	if len(user.Repos) == 0 {
		return nil, ErrNoRepositories
	}

	if err := steps.step("trends"); err != nil {
		return nil, err
	}
	trends := s.fetchTrends(ctx)

	if err := steps.step("repositories"); err != nil {
		return nil, err
	}
	statuses, err := s.repoStatuses(ctx, chatID, user.Repos)
	if err != nil {
		return nil, err
	}

	if err := steps.step("match"); err != nil {
		return nil, err
	}
	if err := s.matchTrends(ctx, chatID, statuses, trends); err != nil {
		return nil, err
	}

	if err := steps.step("insights"); err != nil {
		return nil, err
	}
	insights, err := s.deps.Store.Insights(ctx, chatID, "")
	if err != nil {
		return nil, err
	}
	lastRepo := ""
	if last, err := s.deps.Store.LastPost(ctx, chatID); err == nil {
		lastRepo = last.RepoURL
	} else if !errors.Is(err, engagement.ErrNotFound) {
		return nil, err
	}

	if err := steps.step("select"); err != nil {
		return nil, err
	}
	input := strategist.Input{Trends: trends, Insights: insights, LastPostRepo: lastRepo}
	for _, st := range statuses {
		input.Repos = append(input.Repos, st.candidate)
	}
	sel, err := strategist.Select(input)
	if err != nil {
		return nil, err
	}
	chosen := statusFor(statuses, sel.RepoURL)

	if err := steps.step("retrieve"); err != nil {
		return nil, err
	}
	if focus == "" && sel.Trend != nil {
		focus = sel.Trend.Label
	}
	pc, err := s.deps.Retriever.ContextForPost(ctx, chatID, sel.RepoURL, focus)
	if err != nil {
		return nil, err
	}

	if err := steps.step("generate"); err != nil {
		return nil, err
	}
	req := generator.Request{
		RepoURL:  sel.RepoURL,
		RepoName: sel.RepoName,
		Mode:     sel.Mode,
		Style:    sel.Style,
		Trend:    sel.Trend,
		Context:  pc.Text(),
		Snippets: generator.SnippetsFrom(pc.Snippets),
		Focus:    focus,
	}
	if sel.Mode == models.ModeCommits && chosen != nil {
		req.Commits = chosen.commits
		req.Diff = ingest.Diff(chosen.commits)
	}
	content, err := s.deps.Writer.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	post := &models.PostRecord{
		ChatID:       chatID,
		RepoURL:      sel.RepoURL,
		Content:      content,
		TrendMatched: sel.TrendLabel(),
		Style:        sel.Style,
		Mode:         sel.Mode,
		Reasoning:    sel.Justification,
	}
	created, err := s.deps.Store.CreateDraft(ctx, post)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, ErrDraftPending
	}

	draft := &notifications.Draft{ChatID: chatID, RepoName: sel.RepoName, Post: post, Trigger: trigger}
	if err := s.deps.Notifier.SendDraft(ctx, draft); err != nil {
		// the draft stays pending and can still be approved
		logrus.WithField("chat_id", chatID).Warnf("Draft delivery incomplete: %v", err)
	}

	return &Outcome{Post: post, Selection: sel}, nil
}

func (s *Service) fetchTrends(ctx context.Context) []models.TrendItem {
	if s.deps.Trends == nil {
		return nil
	}
	trends, err := s.deps.Trends.Fetch(ctx, s.config.TrendLimit)
	if err != nil {
		logrus.Warnf("Continuing without trends: %v", err)
		return nil
	}
	return trends
}

type repoStatus struct {
	candidate strategist.Candidate
	commits   []models.Commit
}

func statusFor(statuses []*repoStatus, url string) *repoStatus {
	for _, st := range statuses {
		if st.candidate.URL == url {
			return st
		}
	}
	return nil
}

// repoStatuses syncs every repository and collects its recent commits.
// A repository that fails to sync is left out of the run.
func (s *Service) repoStatuses(ctx context.Context, chatID int64, repos []string) ([]*repoStatus, error) {
	results := make([]*repoStatus, len(repos))
	since := s.now().Add(-ingest.DefaultLookback)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(repoParallelism)
	for i, url := range repos {
		g.Go(func() error {
			st := &repoStatus{candidate: strategist.Candidate{URL: url, Name: models.RepoName(url)}}
			res, err := s.deps.Indexer.Index(gctx, chatID, url, false)
			switch {
			case errors.Is(err, index.ErrNoIndexableContent):
				results[i] = st
				return nil
			case err != nil:
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logrus.WithFields(logrus.Fields{"chat_id": chatID, "repo": url}).Warnf("Skipping repository: %v", err)
				return nil
			}

			st.candidate.ChunkCount = res.Record.ChunkCount
			commits, err := s.commits(res.Snapshot.Dir, since)
			if err != nil {
				logrus.WithFields(logrus.Fields{"chat_id": chatID, "repo": url}).Warnf("Failed to read commits: %v", err)
			}
			st.commits = commits
			st.candidate.RecentCommits = len(commits)
			if len(commits) > 0 {
				st.candidate.LastCommitAt = commits[0].When
			}
			results[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []*repoStatus
	for _, st := range results {
		if st != nil {
			out = append(out, st)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no repository could be loaded", strategist.ErrNoIndexableContent)
	}
	return out, nil
}

func (s *Service) matchTrends(ctx context.Context, chatID int64, statuses []*repoStatus, trends []models.TrendItem) error {
	if len(trends) == 0 {
		return nil
	}
	labels := make([]string, len(trends))
	for i, t := range trends {
		labels[i] = t.Label
	}
	for _, st := range statuses {
		if st.candidate.ChunkCount == 0 {
			continue
		}
		hits, err := s.deps.Retriever.MatchTrends(ctx, chatID, st.candidate.URL, labels)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logrus.WithField("chat_id", chatID).Warnf("Trend matching failed for %s: %v", st.candidate.URL, err)
			continue
		}
		st.candidate.TrendHits = hits
	}
	return nil
}

func (s *Service) record(start time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.Runs++
	s.metrics.LastRun = start
	s.metrics.LastRunDuration = s.now().Sub(start).String()
	switch OutcomeLabel(err) {
	case metrics.OutcomeDrafted:
		s.metrics.Drafts++
	case metrics.OutcomeSuppressed:
		s.metrics.Suppressed++
	case metrics.OutcomeUndecided:
		s.metrics.Undecided++
	default:
		s.metrics.Failures++
	}
}

// GetMetrics returns the run counters as JSON
func (s *Service) GetMetrics() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, _ := json.MarshalIndent(s.metrics, "", "  ")
	return string(data)
}

// OutcomeLabel maps a run error to a metrics outcome
func OutcomeLabel(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeDrafted
	case errors.Is(err, ErrDraftPending), errors.Is(err, ErrRunInProgress):
		return metrics.OutcomeSuppressed
	case errors.Is(err, ErrBudgetExhausted):
		return metrics.OutcomeUndecided
	default:
		return metrics.OutcomeFailed
	}
}

// UserMessage turns a run error into the text shown to the user
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDraftPending):
		return "You already have a draft waiting. Reply `post` to publish it or /discard to drop it."
	case errors.Is(err, ErrRunInProgress):
		return "A post is already being generated for you. Hang on."
	case errors.Is(err, ErrNoRepositories):
		return "No repositories connected. Use /connect <github-url> first."
	case errors.Is(err, strategist.ErrNoIndexableContent), errors.Is(err, index.ErrNoIndexableContent):
		return "None of your repositories has indexable content. Try /refresh or connect another repository."
	case errors.Is(err, ErrBudgetExhausted):
		return "Could not decide on a post this time. Try /generate again later."
	default:
		return fmt.Sprintf("Post generation failed: %v", err)
	}
}
