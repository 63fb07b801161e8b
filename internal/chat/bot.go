package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	// users pick IANA zones in /time, which must resolve without system zoneinfo
	_ "time/tzdata"

	"github.com/azure/linkedin-content-bot/internal/config"
	"github.com/azure/linkedin-content-bot/internal/engagement"
	"github.com/azure/linkedin-content-bot/internal/index"
	"github.com/azure/linkedin-content-bot/internal/linkedin"
	"github.com/azure/linkedin-content-bot/internal/notifications"
	"github.com/azure/linkedin-content-bot/internal/pipeline"
	"github.com/azure/linkedin-content-bot/internal/storage"
	"github.com/azure/linkedin-content-bot/internal/users"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// Runner generates a draft on demand
type Runner interface {
	Run(ctx context.Context, chatID int64, trigger, focus string) (*pipeline.Outcome, error)
}

// RepoIndexer indexes and forgets repositories
type RepoIndexer interface {
	Index(ctx context.Context, chatID int64, url string, force bool) (*index.Result, error)
	Remove(ctx context.Context, chatID int64, url string) error
}

// Scheduler keeps the daily job of each user in sync with their settings
type Scheduler interface {
	ScheduleUser(user *users.UserConfig) error
	RemoveUser(chatID int64)
	NextRun(chatID int64) (time.Time, bool)
}

// Publisher posts to LinkedIn
type Publisher interface {
	UserURN(ctx context.Context, token string) (string, error)
	CreatePost(ctx context.Context, token, author, text string) (*linkedin.PostResult, error)
}

// Authenticator runs the LinkedIn OAuth flow
type Authenticator interface {
	Enabled() bool
	AuthURL(chatID int64) (string, error)
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// Deps are the collaborators of the bot
type Deps struct {
	Messenger notifications.Messenger
	Users     *users.Store
	Store     *engagement.Store
	Learner   *engagement.Learner
	Indexer   RepoIndexer
	Runner    Runner
	Scheduler Scheduler
	Publisher Publisher
	Auth      Authenticator
	Trends    pipeline.TrendFetcher
	Archive   storage.StorageInterface
}

type handler func(ctx context.Context, chatID int64, args []string)

// Bot routes chat messages to commands and handles draft approval
type Bot struct {
	deps       Deps
	defaultLoc *time.Location
	maxRepos   int
	trendLimit int
	commands   map[string]handler
	now        func() time.Time
	wg         sync.WaitGroup
}

// NewBot creates a bot. DEFAULT_TIMEZONE must be a valid IANA zone.
func NewBot(cfg *config.Config, deps Deps) (*Bot, error) {
	loc, err := time.LoadLocation(cfg.DefaultTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_TIMEZONE %q: %w", cfg.DefaultTimezone, err)
	}
	b := &Bot{
		deps:       deps,
		defaultLoc: loc,
		maxRepos:   cfg.MaxReposPerUser,
		trendLimit: cfg.TrendLimit,
		now:        time.Now,
	}
	b.commands = map[string]handler{
		"/start":      b.help,
		"/help":       b.help,
		"/connect":    b.connect,
		"/addrepo":    b.connect,
		"/disconnect": b.disconnect,
		"/removerepo": b.disconnect,
		"/repos":      b.repos,
		"/time":       b.setTime,
		"/cleartime":  b.clearTime,
		"/generate":   b.generate,
		"/discard":    b.discard,
		"/refresh":    b.refresh,
		"/status":     b.status,
		"/insights":   b.insights,
		"/trends":     b.trendsCommand,
		"/history":    b.history,
		"/why":        b.why,
		"/stats":      b.stats,
		"/auth":       b.auth,
		"/authcode":   b.authCode,
		"/authstatus": b.authStatus,
		"/deauth":     b.deauth,
	}
	return b, nil
}

// Handle processes one update
func (b *Bot) Handle(ctx context.Context, u Update) {
	if u.Message == nil || strings.TrimSpace(u.Message.Text) == "" {
		return
	}
	chatID := u.Message.Chat.ID
	text := strings.TrimSpace(u.Message.Text)

	if strings.HasPrefix(text, "/") {
		fields := strings.Fields(text)
		name := strings.ToLower(fields[0])
		// commands in groups arrive as /cmd@botname
		if i := strings.Index(name, "@"); i > 0 {
			name = name[:i]
		}
		cmd, ok := b.commands[name]
		if !ok {
			b.reply(ctx, chatID, "Unknown command. Use /help to see what I can do.")
			return
		}
		logrus.WithFields(logrus.Fields{"chat_id": chatID, "command": name}).Debug("Handling command")
		cmd(ctx, chatID, fields[1:])
		return
	}

	if IsApproval(text) {
		b.Approve(ctx, chatID)
		return
	}

	b.reply(ctx, chatID, "I didn't understand that.\n\nUse /help to see available commands, or /generate to create a post.")
}

// Wait blocks until background work started by commands has finished
func (b *Bot) Wait() {
	b.wg.Wait()
}

// async runs fn outside the update loop, detached from the poll context's cancellation
func (b *Bot) async(ctx context.Context, fn func(ctx context.Context)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn(context.WithoutCancel(ctx))
	}()
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.deps.Messenger.SendMessage(ctx, chatID, text); err != nil {
		logrus.WithField("chat_id", chatID).Errorf("Failed to reply: %v", err)
	}
}
