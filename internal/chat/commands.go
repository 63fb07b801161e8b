package chat

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/azure/linkedin-content-bot/internal/engagement"
	"github.com/azure/linkedin-content-bot/internal/index"
	"github.com/azure/linkedin-content-bot/internal/ingest"
	"github.com/azure/linkedin-content-bot/internal/models"
	"github.com/azure/linkedin-content-bot/internal/pipeline"
	"github.com/azure/linkedin-content-bot/internal/users"
	"github.com/sirupsen/logrus"
)

const historyLimit = 5

const helpText = `LinkedIn Content Bot

I turn your GitHub repositories into LinkedIn posts. Every post is a draft until you approve it.

Setup:
/connect <url> - connect a public GitHub repository (also /addrepo)
/disconnect [url] - remove a repository (also /removerepo)
/repos - list connected repositories
/time <HH:MM> [zone] - daily draft time, e.g. /time 09:00 Europe/Berlin
/cleartime - stop daily drafts

Content:
/generate [focus] - draft a post now
/discard - drop the pending draft
/refresh - re-index your repositories
/why - why the last post was picked
/trends - current developer trends

Learning:
/stats <likes> <comments> [shares] [impressions] - record metrics of your last published post
/insights - what has worked so far
/history - recent posts

LinkedIn:
/auth - connect LinkedIn
/authcode <code> - finish connecting with a code
/authstatus - connection status
/deauth - disconnect LinkedIn

/status - your configuration

To publish a draft reply with post, yes, go, or ship.`

func (b *Bot) help(ctx context.Context, chatID int64, _ []string) {
	b.reply(ctx, chatID, helpText)
}

func (b *Bot) connect(ctx context.Context, chatID int64, args []string) {
	if len(args) == 0 {
		b.reply(ctx, chatID, "Usage: /connect https://github.com/user/repo")
		return
	}
	url, err := ingest.NormalizeURL(args[0])
	if err != nil {
		b.reply(ctx, chatID, "Invalid GitHub URL. Example: https://github.com/user/repo")
		return
	}

	user, err := b.deps.Users.AddRepo(chatID, url)
	if err != nil {
		if errors.Is(err, users.ErrRepoLimit) {
			b.reply(ctx, chatID, fmt.Sprintf("You already have %d repositories connected. Remove one with /disconnect first.", b.maxRepos))
			return
		}
		logrus.WithField("chat_id", chatID).Errorf("Failed to add repository: %v", err)
		b.reply(ctx, chatID, "Could not save the repository, please try again.")
		return
	}

	name := models.RepoName(url)
	b.reply(ctx, chatID, fmt.Sprintf("Repository added: %s (%d/%d). Indexing it now...", name, len(user.Repos), b.maxRepos))
	b.async(ctx, func(ctx context.Context) {
		b.reply(ctx, chatID, b.indexSummary(ctx, chatID, url, false))
	})
}

func (b *Bot) indexSummary(ctx context.Context, chatID int64, url string, force bool) string {
	name := models.RepoName(url)
	res, err := b.deps.Indexer.Index(ctx, chatID, url, force)
	switch {
	case errors.Is(err, index.ErrNoIndexableContent):
		return fmt.Sprintf("%s has no indexable content. It will be skipped until it does.", name)
	case err != nil:
		logrus.WithFields(logrus.Fields{"chat_id": chatID, "repo": url}).Errorf("Indexing failed: %v", err)
		return fmt.Sprintf("Could not index %s: %v", name, err)
	case res.Reused:
		return fmt.Sprintf("%s is up to date (%d chunks).", name, res.Record.ChunkCount)
	}
	return fmt.Sprintf("Indexed %s: %d chunks at %s.", name, res.Record.ChunkCount, shortHash(res.Record.LastIndexedCommit))
}

func (b *Bot) disconnect(ctx context.Context, chatID int64, args []string) {
	user, err := b.deps.Users.Get(chatID)
	if err != nil || len(user.Repos) == 0 {
		b.reply(ctx, chatID, "No repositories to remove. Use /connect <url> to add one.")
		return
	}

	var url string
	switch {
	case len(args) > 0:
		url, err = ingest.NormalizeURL(args[0])
		if err != nil {
			b.reply(ctx, chatID, "Invalid GitHub URL. Use /repos to see your repositories.")
			return
		}
	case len(user.Repos) == 1:
		url = user.Repos[0]
	default:
		b.reply(ctx, chatID, "Usage: /disconnect <url>\n\nYour repositories:\n"+repoList(user.Repos))
		return
	}

	removed, err := b.deps.Users.RemoveRepo(chatID, url)
	if err != nil {
		logrus.WithField("chat_id", chatID).Errorf("Failed to remove repository: %v", err)
		b.reply(ctx, chatID, "Could not remove the repository, please try again.")
		return
	}
	if !removed {
		b.reply(ctx, chatID, "That repository is not connected. Use /repos to see your repositories.")
		return
	}
	if err := b.deps.Indexer.Remove(ctx, chatID, url); err != nil {
		logrus.WithFields(logrus.Fields{"chat_id": chatID, "repo": url}).Warnf("Failed to drop index: %v", err)
	}
	b.reply(ctx, chatID, fmt.Sprintf("Repository removed: %s", models.RepoName(url)))
}

func repoList(repos []string) string {
	var sb strings.Builder
	for i, r := range repos {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, r)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Bot) repos(ctx context.Context, chatID int64, _ []string) {
	user, err := b.deps.Users.Get(chatID)
	if err != nil || len(user.Repos) == 0 {
		b.reply(ctx, chatID, fmt.Sprintf("No repositories connected.\n\nUse /connect https://github.com/user/repo to add one. You can connect up to %d.", b.maxRepos))
		return
	}
	b.reply(ctx, chatID, fmt.Sprintf("Connected repositories (%d/%d):\n%s", len(user.Repos), b.maxRepos, repoList(user.Repos)))
}

func (b *Bot) setTime(ctx context.Context, chatID int64, args []string) {
	if len(args) == 0 {
		b.reply(ctx, chatID, "Usage: /time HH:MM [zone], e.g. /time 09:00 or /time 18:30 America/New_York")
		return
	}
	loc := b.defaultLoc
	if len(args) > 1 {
		l, err := time.LoadLocation(args[1])
		if err != nil {
			b.reply(ctx, chatID, fmt.Sprintf("Unknown time zone %q. Use an IANA name like Europe/Berlin.", args[1]))
			return
		}
		loc = l
	}

	user, err := b.deps.Users.SetDailyTime(chatID, args[0], loc)
	if err != nil {
		if errors.Is(err, users.ErrInvalidTime) {
			b.reply(ctx, chatID, "Invalid time. Use 24 hour HH:MM, e.g. 09:00 or 18:30.")
			return
		}
		logrus.WithField("chat_id", chatID).Errorf("Failed to set daily time: %v", err)
		b.reply(ctx, chatID, "Could not save the time, please try again.")
		return
	}
	if err := b.deps.Scheduler.ScheduleUser(user); err != nil {
		logrus.WithField("chat_id", chatID).Errorf("Failed to schedule user: %v", err)
		b.reply(ctx, chatID, "Time saved, but scheduling failed. Please try again.")
		return
	}

	msg := fmt.Sprintf("Daily draft time set to %s (%s).", user.DailyTime, user.TimezoneName)
	if next, ok := b.deps.Scheduler.NextRun(chatID); ok {
		msg += "\nNext draft: " + next.In(user.Location()).Format("Mon 02 Jan 15:04")
	}
	b.reply(ctx, chatID, msg)
}

func (b *Bot) clearTime(ctx context.Context, chatID int64, _ []string) {
	if _, err := b.deps.Users.ClearDailyTime(chatID); err != nil {
		logrus.WithField("chat_id", chatID).Errorf("Failed to clear daily time: %v", err)
		b.reply(ctx, chatID, "Could not clear the time, please try again.")
		return
	}
	b.deps.Scheduler.RemoveUser(chatID)
	b.reply(ctx, chatID, "Daily drafts disabled. Use /time HH:MM to turn them back on.")
}

func (b *Bot) generate(ctx context.Context, chatID int64, args []string) {
	focus := strings.Join(args, " ")
	b.reply(ctx, chatID, "Generating your LinkedIn post... This may take a moment.")
	b.async(ctx, func(ctx context.Context) {
		_, err := b.deps.Runner.Run(ctx, chatID, pipeline.TriggerManual, focus)
		switch {
		case err == nil:
			// the draft was delivered by the pipeline
		case errors.Is(err, pipeline.ErrRunInProgress):
			b.reply(ctx, chatID, "A post is already being generated for you.")
		default:
			b.reply(ctx, chatID, pipeline.UserMessage(err))
		}
	})
}

func (b *Bot) discard(ctx context.Context, chatID int64, _ []string) {
	_, ok, err := b.deps.Store.ClaimPending(ctx, chatID)
	if err != nil {
		logrus.WithField("chat_id", chatID).Errorf("Failed to discard draft: %v", err)
		b.reply(ctx, chatID, "Could not discard the draft, please try again.")
		return
	}
	if !ok {
		b.reply(ctx, chatID, "No pending draft.")
		return
	}
	b.reply(ctx, chatID, "Draft discarded. Use /generate for a new one.")
}

func (b *Bot) refresh(ctx context.Context, chatID int64, _ []string) {
	user, err := b.deps.Users.Get(chatID)
	if err != nil || len(user.Repos) == 0 {
		b.reply(ctx, chatID, "No repositories connected. Use /connect <github-url> first.")
		return
	}
	b.reply(ctx, chatID, fmt.Sprintf("Re-indexing %d repositories...", len(user.Repos)))
	repos := append([]string(nil), user.Repos...)
	b.async(ctx, func(ctx context.Context) {
		lines := make([]string, 0, len(repos))
		for _, url := range repos {
			lines = append(lines, b.indexSummary(ctx, chatID, url, true))
		}
		b.reply(ctx, chatID, strings.Join(lines, "\n"))
	})
}

func (b *Bot) status(ctx context.Context, chatID int64, _ []string) {
	user, err := b.deps.Users.Get(chatID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			b.reply(ctx, chatID, "Nothing configured yet. Start with /connect <github-url>.")
			return
		}
		b.reply(ctx, chatID, "Could not load your configuration, please try again.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Your configuration\n\n")
	fmt.Fprintf(&sb, "Repositories (%d/%d):\n", len(user.Repos), b.maxRepos)
	if len(user.Repos) == 0 {
		sb.WriteString("none\n")
	} else {
		sb.WriteString(repoList(user.Repos) + "\n")
	}

	if user.DailyTime == "" {
		sb.WriteString("\nDaily draft: off\n")
	} else {
		fmt.Fprintf(&sb, "\nDaily draft: %s (%s)\n", user.DailyTime, user.TimezoneName)
		if next, ok := b.deps.Scheduler.NextRun(chatID); ok {
			fmt.Fprintf(&sb, "Next draft: %s\n", next.In(user.Location()).Format("Mon 02 Jan 15:04"))
		}
	}

	if user.LinkedInConnected(b.now()) {
		sb.WriteString("LinkedIn: connected\n")
	} else {
		sb.WriteString("LinkedIn: not connected (use /auth)\n")
	}

	if _, pending, err := b.deps.Store.PeekPending(ctx, chatID); err == nil && pending {
		sb.WriteString("Draft: waiting for approval\n")
	}
	b.reply(ctx, chatID, strings.TrimRight(sb.String(), "\n"))
}

func (b *Bot) insights(ctx context.Context, chatID int64, _ []string) {
	rec, err := b.deps.Learner.Recommendations(ctx, chatID)
	if err != nil {
		logrus.WithField("chat_id", chatID).Errorf("Failed to load insights: %v", err)
		b.reply(ctx, chatID, "Could not load insights, please try again.")
		return
	}

	var sb strings.Builder
	sb.WriteString("What works for you\n\n")
	sb.WriteString(rec.Summary + "\n")
	writeInsights(&sb, "Topics", rec.BestTopics)
	writeInsights(&sb, "Repositories", rec.BestRepos)
	if rec.BestStyle != nil {
		fmt.Fprintf(&sb, "\nStyle: %s (%.0f, %d posts)\n", rec.BestStyle.Key, rec.BestStyle.Score, rec.BestStyle.SampleCount)
	}
	if rec.BestLength != nil {
		fmt.Fprintf(&sb, "Length: %s (%.0f, %d posts)\n", rec.BestLength.Key, rec.BestLength.Score, rec.BestLength.SampleCount)
	}
	b.reply(ctx, chatID, strings.TrimRight(sb.String(), "\n"))
}

func writeInsights(sb *strings.Builder, title string, list []models.InsightRecord) {
	if len(list) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n%s:\n", title)
	for _, r := range list {
		fmt.Fprintf(sb, "- %s: %.0f (%d posts)\n", r.Key, r.Score, r.SampleCount)
	}
}

func (b *Bot) trendsCommand(ctx context.Context, chatID int64, _ []string) {
	trends, err := b.deps.Trends.Fetch(ctx, b.trendLimit)
	if err != nil {
		b.reply(ctx, chatID, "Could not fetch trends right now. Try again later.")
		return
	}
	if len(trends) == 0 {
		b.reply(ctx, chatID, "No developer trends found right now.")
		return
	}
	var sb strings.Builder
	sb.WriteString("Trending now:\n")
	for i, t := range trends {
		fmt.Fprintf(&sb, "%d. %s (%.2f, %s)\n", i+1, t.Label, t.Relevance, t.Source)
	}
	b.reply(ctx, chatID, strings.TrimRight(sb.String(), "\n"))
}

func (b *Bot) history(ctx context.Context, chatID int64, _ []string) {
	posts, err := b.deps.Store.RecentPosts(ctx, chatID, historyLimit)
	if err != nil {
		b.reply(ctx, chatID, "Could not load your history, please try again.")
		return
	}
	if len(posts) == 0 {
		b.reply(ctx, chatID, "No posts yet. Use /generate to create one.")
		return
	}
	var sb strings.Builder
	sb.WriteString("Recent posts:\n")
	for _, p := range posts {
		state := "draft"
		if p.IsPublished() {
			state = "published"
		}
		trend := "no trend"
		if p.TrendMatched != nil {
			trend = *p.TrendMatched
		}
		fmt.Fprintf(&sb, "- %s %s, %s, %s, %s\n", p.CreatedAt.Format("2006-01-02"), models.RepoName(p.RepoURL), trend, p.Style.Tag(), state)
	}
	b.reply(ctx, chatID, strings.TrimRight(sb.String(), "\n"))
}

func (b *Bot) why(ctx context.Context, chatID int64, _ []string) {
	post, err := b.deps.Store.LastPost(ctx, chatID)
	if err != nil {
		b.reply(ctx, chatID, "No posts yet. Use /generate to create one.")
		return
	}
	b.reply(ctx, chatID, "Why this post:\n\n"+post.Reasoning)
}

func (b *Bot) stats(ctx context.Context, chatID int64, args []string) {
	if len(args) < 2 || len(args) > 4 {
		b.reply(ctx, chatID, "Usage: /stats <likes> <comments> [shares] [impressions]")
		return
	}
	values := make([]int, 4)
	for i, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil || n < 0 {
			b.reply(ctx, chatID, fmt.Sprintf("%q is not a valid count. Usage: /stats <likes> <comments> [shares] [impressions]", a))
			return
		}
		values[i] = n
	}

	post, err := b.deps.Store.LastPublishedPost(ctx, chatID)
	if err != nil {
		if errors.Is(err, engagement.ErrNotFound) {
			if _, lastErr := b.deps.Store.LastPost(ctx, chatID); lastErr == nil {
				b.reply(ctx, chatID, "Last post hasn't been published yet.")
			} else {
				b.reply(ctx, chatID, "No posts found. Use /generate to create one.")
			}
			return
		}
		b.reply(ctx, chatID, "Could not load your last post, please try again.")
		return
	}

	m := &models.MetricRecord{
		PostID:      post.ID,
		Likes:       values[0],
		Comments:    values[1],
		Shares:      values[2],
		Impressions: values[3],
		FetchedAt:   b.now(),
	}
	score, err := b.deps.Learner.RecordMetrics(ctx, m)
	if err != nil {
		logrus.WithField("chat_id", chatID).Errorf("Failed to record metrics: %v", err)
		b.reply(ctx, chatID, "Could not record the metrics, please try again.")
		return
	}
	b.reply(ctx, chatID, fmt.Sprintf("Recorded metrics for your %s post: engagement score %.0f. Use /insights to see what works.", models.RepoName(post.RepoURL), score))
}

func shortHash(h string) string {
	if len(h) > 7 {
		return h[:7]
	}
	return h
}
