package chat

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/azure/linkedin-content-bot/internal/config"
	"github.com/azure/linkedin-content-bot/internal/engagement"
	"github.com/azure/linkedin-content-bot/internal/index"
	"github.com/azure/linkedin-content-bot/internal/linkedin"
	"github.com/azure/linkedin-content-bot/internal/models"
	"github.com/azure/linkedin-content-bot/internal/pipeline"
	"github.com/azure/linkedin-content-bot/internal/storage"
	"github.com/azure/linkedin-content-bot/internal/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const testRepo = "https://github.com/acme/bot"

type fakeMessenger struct {
	mu   sync.Mutex
	sent map[int64][]string
}

func (f *fakeMessenger) SendMessage(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sent == nil {
		f.sent = make(map[int64][]string)
	}
	f.sent[chatID] = append(f.sent[chatID], text)
	return nil
}

func (f *fakeMessenger) last(chatID int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.sent[chatID]
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

func (f *fakeMessenger) all(chatID int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.sent[chatID], "\n---\n")
}

type fakeIndexer struct {
	mu      sync.Mutex
	indexed []string
	removed []string
	err     error
}

func (f *fakeIndexer) Index(_ context.Context, chatID int64, url string, force bool) (*index.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.indexed = append(f.indexed, url)
	return &index.Result{Record: &models.RepositoryRecord{ChatID: chatID, URL: url, ChunkCount: 12, LastIndexedCommit: "0123456789abcdef"}}, nil
}

func (f *fakeIndexer) Remove(_ context.Context, _ int64, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, url)
	return nil
}

type fakeRunner struct {
	mu     sync.Mutex
	focus  []string
	result error
}

func (f *fakeRunner) Run(_ context.Context, _ int64, trigger, focus string) (*pipeline.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.focus = append(f.focus, focus)
	return nil, f.result
}

type fakeScheduler struct {
	scheduled map[int64]string
}

func (f *fakeScheduler) ScheduleUser(u *users.UserConfig) error {
	f.scheduled[u.ChatID] = u.DailyTime
	return nil
}

func (f *fakeScheduler) RemoveUser(chatID int64) {
	delete(f.scheduled, chatID)
}

func (f *fakeScheduler) NextRun(chatID int64) (time.Time, bool) {
	if _, ok := f.scheduled[chatID]; !ok {
		return time.Time{}, false
	}
	return time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC), true
}

type fakePublisher struct {
	mu     sync.Mutex
	posts  []string
	fail   error
	delay  time.Duration
	urnErr error

	// onCreate runs at the start of every CreatePost call
	onCreate func()
}

func (f *fakePublisher) UserURN(context.Context, string) (string, error) {
	if f.urnErr != nil {
		return "", f.urnErr
	}
	return "urn:li:person:abc", nil
}

func (f *fakePublisher) CreatePost(_ context.Context, token, author, text string) (*linkedin.PostResult, error) {
	time.Sleep(f.delay)
	if f.onCreate != nil {
		f.onCreate()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	f.posts = append(f.posts, text)
	id := "urn:li:share:1"
	return &linkedin.PostResult{ID: id, URL: linkedin.PostURL(id)}, nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posts)
}

type fakeAuth struct {
	enabled bool
}

func (f *fakeAuth) Enabled() bool { return f.enabled }

func (f *fakeAuth) AuthURL(chatID int64) (string, error) {
	return "https://www.linkedin.com/oauth/v2/authorization?state=s", nil
}

func (f *fakeAuth) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	if code != "good" {
		return nil, errors.New("invalid code")
	}
	return &oauth2.Token{AccessToken: "li-token", Expiry: time.Now().Add(time.Hour)}, nil
}

type trendList []models.TrendItem

func (t trendList) Fetch(context.Context, int) ([]models.TrendItem, error) {
	return t, nil
}

type botFixture struct {
	bot       *Bot
	messenger *fakeMessenger
	users     *users.Store
	store     *engagement.Store
	indexer   *fakeIndexer
	runner    *fakeRunner
	scheduler *fakeScheduler
	publisher *fakePublisher
	archive   *storage.LocalStorage
}

func newBotFixture(t *testing.T) *botFixture {
	t.Helper()
	store, err := engagement.Open(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	blobs, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	f := &botFixture{
		messenger: &fakeMessenger{},
		users:     users.NewStore(blobs, 2),
		store:     store,
		indexer:   &fakeIndexer{},
		runner:    &fakeRunner{},
		scheduler: &fakeScheduler{scheduled: map[int64]string{}},
		publisher: &fakePublisher{},
		archive:   blobs,
	}
	f.bot, err = NewBot(&config.Config{DefaultTimezone: "UTC", MaxReposPerUser: 2, TrendLimit: 5}, Deps{
		Messenger: f.messenger,
		Users:     f.users,
		Store:     store,
		Learner:   engagement.NewLearner(store, 0.2),
		Indexer:   f.indexer,
		Runner:    f.runner,
		Scheduler: f.scheduler,
		Publisher: f.publisher,
		Auth:      &fakeAuth{enabled: true},
		Trends:    trendList{{Label: "rust", Source: "hackernews", Relevance: 1}},
		Archive:   blobs,
	})
	require.NoError(t, err)
	return f
}

func (f *botFixture) send(chatID int64, text string) {
	u := Update{UpdateID: 1, Message: &Message{Text: text}}
	u.Message.Chat.ID = chatID
	f.bot.Handle(context.Background(), u)
	f.bot.Wait()
}

func (f *botFixture) draft(t *testing.T, chatID int64, content string) *models.PostRecord {
	t.Helper()
	post := &models.PostRecord{ChatID: chatID, RepoURL: testRepo, Content: content, Mode: models.ModeHighlights,
		Style: models.Style{Length: models.LengthShort, WithCode: true}, Reasoning: "Picked bot with score 50 out of 1 repositories."}
	require.NoError(t, f.store.CreatePost(context.Background(), post))
	ok, err := f.store.PutPending(context.Background(), chatID, post.ID)
	require.NoError(t, err)
	require.True(t, ok)
	return post
}

func (f *botFixture) linkLinkedIn(t *testing.T, chatID int64) {
	t.Helper()
	_, err := f.users.SetLinkedIn(chatID, "li-token", time.Now().Add(time.Hour), "urn:li:person:abc")
	require.NoError(t, err)
}

func (f *botFixture) pending(t *testing.T, chatID int64) bool {
	t.Helper()
	_, ok, err := f.store.PeekPending(context.Background(), chatID)
	require.NoError(t, err)
	return ok
}

func TestNewBot_InvalidTimezone(t *testing.T) {
	_, err := NewBot(&config.Config{DefaultTimezone: "Mars/Olympus"}, Deps{})
	assert.Error(t, err)
}

func TestBot_ConnectIndexesRepository(t *testing.T) {
	f := newBotFixture(t)

	f.send(1, "/connect github.com/acme/bot")
	user, err := f.users.Get(1)
	require.NoError(t, err)
	assert.Equal(t, []string{testRepo}, user.Repos)
	assert.Equal(t, []string{testRepo}, f.indexer.indexed)
	assert.Contains(t, f.messenger.last(1), "Indexed bot: 12 chunks at 0123456")

	f.send(1, "/addrepo https://github.com/acme/two")
	f.send(1, "/addrepo https://github.com/acme/three")
	assert.Contains(t, f.messenger.last(1), "already have 2 repositories")

	f.send(1, "/connect https://gitlab.com/acme/bot")
	assert.Contains(t, f.messenger.last(1), "Invalid GitHub URL")
}

func TestBot_DisconnectDropsIndex(t *testing.T) {
	f := newBotFixture(t)
	_, err := f.users.AddRepo(1, testRepo)
	require.NoError(t, err)

	f.send(1, "/disconnect")
	assert.Equal(t, []string{testRepo}, f.indexer.removed)
	user, err := f.users.Get(1)
	require.NoError(t, err)
	assert.Empty(t, user.Repos)

	f.send(1, "/removerepo")
	assert.Contains(t, f.messenger.last(1), "No repositories to remove")
}

func TestBot_UsersAreIsolated(t *testing.T) {
	f := newBotFixture(t)
	f.send(1, "/connect https://github.com/acme/bot")
	f.send(2, "/repos")
	assert.Contains(t, f.messenger.last(2), "No repositories connected")
}

func TestBot_TimeSchedulesUser(t *testing.T) {
	f := newBotFixture(t)

	f.send(1, "/time 09:30 Europe/Berlin")
	assert.Equal(t, "09:30", f.scheduler.scheduled[1])
	assert.Contains(t, f.messenger.last(1), "Daily draft time set to 09:30 (Europe/Berlin)")
	assert.Contains(t, f.messenger.last(1), "Next draft:")

	f.send(1, "/time 25:00")
	assert.Contains(t, f.messenger.last(1), "Invalid time")

	f.send(1, "/time 10:00 Nowhere/City")
	assert.Contains(t, f.messenger.last(1), "Unknown time zone")

	f.send(1, "/cleartime")
	_, scheduled := f.scheduler.scheduled[1]
	assert.False(t, scheduled)
	user, err := f.users.Get(1)
	require.NoError(t, err)
	assert.Empty(t, user.DailyTime)
}

func TestBot_GenerateRunsPipeline(t *testing.T) {
	f := newBotFixture(t)

	f.send(1, "/generate the auth flow")
	assert.Equal(t, []string{"the auth flow"}, f.runner.focus)

	f.runner.result = pipeline.ErrDraftPending
	f.send(1, "/generate")
	assert.Equal(t, pipeline.UserMessage(pipeline.ErrDraftPending), f.messenger.last(1))

	f.runner.result = pipeline.ErrRunInProgress
	f.send(1, "/GENERATE@content_bot")
	assert.Contains(t, f.messenger.last(1), "already being generated")
}

func TestBot_ApprovalWithoutLinkedInKeepsDraft(t *testing.T) {
	f := newBotFixture(t)
	f.draft(t, 1, "hello world")

	f.send(1, "post")
	assert.True(t, f.pending(t, 1))
	assert.Contains(t, f.messenger.last(1), "LinkedIn is not connected")
	assert.Zero(t, f.publisher.count())
}

func TestBot_ApprovalPublishesOnce(t *testing.T) {
	f := newBotFixture(t)
	f.linkLinkedIn(t, 1)
	post := f.draft(t, 1, "hello world")
	f.publisher.delay = 20 * time.Millisecond

	var wg sync.WaitGroup
	for _, reply := range []string{"post", "YES", "Go", "ship", "post"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.send(1, reply)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.publisher.count())
	assert.False(t, f.pending(t, 1))

	stored, err := f.store.GetPost(context.Background(), post.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsPublished())
	assert.Equal(t, "urn:li:share:1", stored.LinkedInPostID)

	data, err := f.archive.Retrieve(ArchiveName(post))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"linkedin_post_id": "urn:li:share:1"`)
	assert.Contains(t, f.messenger.all(1), "Posted to LinkedIn!")

	f.send(1, "post")
	assert.Contains(t, f.messenger.last(1), "No pending draft")
	assert.Equal(t, 1, f.publisher.count())
}

func TestBot_OtherRepliesLeaveDraftPending(t *testing.T) {
	f := newBotFixture(t)
	f.linkLinkedIn(t, 1)
	f.draft(t, 1, "hello world")

	for _, reply := range []string{"ship it", "maybe later", "nope"} {
		f.send(1, reply)
		assert.True(t, f.pending(t, 1), reply)
	}
	assert.Zero(t, f.publisher.count())
	assert.Contains(t, f.messenger.last(1), "I didn't understand that")
}

func TestBot_PublishFailureRestoresDraft(t *testing.T) {
	f := newBotFixture(t)
	f.linkLinkedIn(t, 1)
	f.draft(t, 1, "hello world")
	f.publisher.fail = linkedin.ErrUnauthorized

	f.send(1, "ship")
	assert.True(t, f.pending(t, 1))
	assert.Contains(t, f.messenger.last(1), "/auth to reconnect")

	f.publisher.fail = nil
	f.send(1, "ship")
	assert.False(t, f.pending(t, 1))
	assert.Equal(t, 1, f.publisher.count())
}

func TestBot_PublishFailureAfterNewerDraftTellsUser(t *testing.T) {
	ctx := context.Background()
	f := newBotFixture(t)
	f.linkLinkedIn(t, 1)
	f.draft(t, 1, "older draft")

	newer := &models.PostRecord{ChatID: 1, RepoURL: testRepo, Content: "newer draft", Mode: models.ModeHighlights,
		Style: models.Style{Length: models.LengthShort}}
	f.publisher.onCreate = func() {
		created, err := f.store.CreateDraft(ctx, newer)
		assert.NoError(t, err)
		assert.True(t, created)
	}
	f.publisher.fail = errors.New("linkedin unavailable")

	f.send(1, "ship")
	assert.Contains(t, f.messenger.last(1), "replaced the one you approved")

	id, ok, err := f.store.PeekPending(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, newer.ID, id)
}

func TestBot_Discard(t *testing.T) {
	f := newBotFixture(t)
	f.draft(t, 1, "hello world")

	f.send(1, "/discard")
	assert.False(t, f.pending(t, 1))
	assert.Contains(t, f.messenger.last(1), "Draft discarded")

	f.send(1, "/discard")
	assert.Equal(t, "No pending draft.", f.messenger.last(1))
}

func TestBot_Stats(t *testing.T) {
	ctx := context.Background()
	f := newBotFixture(t)

	f.send(1, "/stats 10 2")
	assert.Contains(t, f.messenger.last(1), "No posts found")

	post := f.draft(t, 1, "hello world")
	f.send(1, "/stats 10 2")
	assert.Equal(t, "Last post hasn't been published yet.", f.messenger.last(1))

	require.NoError(t, f.store.MarkPublished(ctx, post.ID, "urn:li:share:5", time.Now()))
	f.send(1, "/stats ten 2")
	assert.Contains(t, f.messenger.last(1), "not a valid count")

	f.send(1, "/stats 10 2 1 500")
	assert.Contains(t, f.messenger.last(1), "Recorded metrics for your bot post")

	m, err := f.store.GetMetrics(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, m.Likes)
	assert.Equal(t, 500, m.Impressions)

	repos, err := f.store.Insights(ctx, 1, models.InsightRepo)
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, 1, repos[0].SampleCount)
}

func TestBot_WhyAndHistory(t *testing.T) {
	f := newBotFixture(t)

	f.send(1, "/why")
	assert.Contains(t, f.messenger.last(1), "No posts yet")

	f.draft(t, 1, "hello world")
	f.send(1, "/why")
	assert.Contains(t, f.messenger.last(1), "Picked bot with score 50")

	f.send(1, "/history")
	assert.Contains(t, f.messenger.last(1), "bot, no trend, short-form-with-code, draft")
}

func TestBot_AuthFlow(t *testing.T) {
	f := newBotFixture(t)

	f.send(1, "/auth")
	assert.Contains(t, f.messenger.last(1), "linkedin.com/oauth")

	f.send(1, "/authcode bad")
	assert.Contains(t, f.messenger.last(1), "authentication failed")

	f.send(1, "/authcode good")
	assert.Contains(t, f.messenger.last(1), "LinkedIn connected successfully")
	user, err := f.users.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "urn:li:person:abc", user.LinkedInURN)

	f.send(1, "/authstatus")
	assert.Contains(t, f.messenger.last(1), "LinkedIn: connected")

	f.send(1, "/auth")
	assert.Contains(t, f.messenger.last(1), "already connected")

	f.send(1, "/deauth")
	user, err = f.users.Get(1)
	require.NoError(t, err)
	assert.Empty(t, user.LinkedInToken)
}

func TestBot_StatusTrendsInsights(t *testing.T) {
	f := newBotFixture(t)
	_, err := f.users.AddRepo(1, testRepo)
	require.NoError(t, err)
	f.draft(t, 1, "hello world")

	f.send(1, "/status")
	status := f.messenger.last(1)
	assert.Contains(t, status, "Repositories (1/2)")
	assert.Contains(t, status, "Daily draft: off")
	assert.Contains(t, status, "LinkedIn: not connected")
	assert.Contains(t, status, "Draft: waiting for approval")

	f.send(1, "/trends")
	assert.Contains(t, f.messenger.last(1), "1. rust (1.00, hackernews)")

	f.send(1, "/insights")
	assert.Contains(t, f.messenger.last(1), "Not enough data yet")

	f.send(1, "/nonsense")
	assert.Contains(t, f.messenger.last(1), "Unknown command")
}
