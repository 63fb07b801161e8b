package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/azure/linkedin-content-bot/internal/config"
	"github.com/azure/linkedin-content-bot/internal/pipeline"
	"github.com/azure/linkedin-content-bot/internal/users"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Runner performs the scheduled work
type Runner interface {
	RunScheduled(ctx context.Context, chatID int64) error
	FetchMetrics(ctx context.Context) (int, error)
}

// UserLister lists every known user for bootstrap
type UserLister interface {
	List() ([]*users.UserConfig, error)
}

// Service handles scheduling of daily drafts and metrics polling.
// Schedules are evaluated in UTC, each user's entry shifted by the offset captured with their daily time.
type Service struct {
	config *config.Config
	runner Runner
	users  UserLister
	cron   *cron.Cron
	parser cron.Parser

	mu      sync.Mutex
	entries map[int64]cron.EntryID
	lastDay map[int64]string
	ctx     context.Context

	now func() time.Time
}

// NewService creates a new scheduler service
func NewService(cfg *config.Config, runner Runner, lister UserLister) *Service {
	return &Service{
		config:  cfg,
		runner:  runner,
		users:   lister,
		cron:    cron.New(cron.WithLocation(time.UTC)),
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		entries: make(map[int64]cron.EntryID),
		lastDay: make(map[int64]string),
		ctx:     context.Background(),
		now:     time.Now,
	}
}

// JobName identifies a user's daily job in logs
func JobName(chatID int64) string {
	return fmt.Sprintf("post_%d", chatID)
}

// CronSpec converts the user's local HH:MM into a UTC cron expression
func CronSpec(user *users.UserConfig) (string, error) {
	hour, minute, err := users.ParseDailyTime(user.DailyTime)
	if err != nil {
		return "", err
	}
	const day = 24 * 60
	utc := (hour*60 + minute - user.TimezoneOffset/60) % day
	if utc < 0 {
		utc += day
	}
	return fmt.Sprintf("%d %d * * *", utc%60, utc/60), nil
}

// ScheduleUser creates or replaces the daily job of a user. No daily time removes it.
func (s *Service) ScheduleUser(user *users.UserConfig) error {
	if user.DailyTime == "" {
		s.RemoveUser(user.ChatID)
		return nil
	}
	spec, err := CronSpec(user)
	if err != nil {
		return err
	}

	chatID := user.ChatID
	loc := user.Location()

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[chatID]; ok {
		s.cron.Remove(id)
		delete(s.entries, chatID)
	}
	id, err := s.cron.AddFunc(spec, func() { s.runDaily(chatID, loc) })
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", JobName(chatID), err)
	}
	s.entries[chatID] = id

	logrus.WithFields(logrus.Fields{
		"chat_id": chatID,
		"job":     JobName(chatID),
		"cron":    spec,
	}).Infof("Scheduled daily draft at %s %s", user.DailyTime, user.TimezoneName)
	return nil
}

// RemoveUser drops the daily job of a user
func (s *Service) RemoveUser(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[chatID]; ok {
		s.cron.Remove(id)
		delete(s.entries, chatID)
		logrus.WithField("chat_id", chatID).Infof("Removed %s", JobName(chatID))
	}
}

// NextRun returns when the user's next daily draft is due
func (s *Service) NextRun(chatID int64) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.entries[chatID]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	entry := s.cron.Entry(id)
	if entry.Schedule == nil {
		return time.Time{}, false
	}
	return entry.Schedule.Next(s.now().UTC()), true
}

// runDaily runs at most once per local calendar day. A missed slot is never made up.
func (s *Service) runDaily(chatID int64, loc *time.Location) {
	log := logrus.WithFields(logrus.Fields{"chat_id": chatID, "job": JobName(chatID)})
	day := s.now().In(loc).Format("2006-01-02")

	s.mu.Lock()
	if s.lastDay[chatID] == day {
		s.mu.Unlock()
		log.Infof("Daily draft already ran on %s, skipping", day)
		return
	}
	s.lastDay[chatID] = day
	ctx := s.ctx
	s.mu.Unlock()

	log.Info("Starting scheduled draft")
	err := s.runner.RunScheduled(ctx, chatID)
	switch {
	case err == nil:
	case errors.Is(err, pipeline.ErrDraftPending), errors.Is(err, pipeline.ErrRunInProgress):
		log.Infof("Scheduled draft skipped: %v", err)
	default:
		log.Errorf("Scheduled draft failed: %v", err)
	}
}

func (s *Service) fetchMetrics() {
	logrus.Info("Starting scheduled metrics fetch")
	if _, err := s.runner.FetchMetrics(s.ctx); err != nil {
		logrus.Errorf("Scheduled metrics fetch failed: %v", err)
	}
}

// Start schedules every user with a daily time plus the metrics job, then starts the clock
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	if s.config.MetricsSchedule != "" {
		schedule, err := s.parser.Parse(s.config.MetricsSchedule)
		if err != nil {
			return fmt.Errorf("invalid METRICS_SCHEDULE %q: %w", s.config.MetricsSchedule, err)
		}
		s.cron.Schedule(schedule, cron.FuncJob(s.fetchMetrics))
	}

	all, err := s.users.List()
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}
	scheduled := 0
	for _, u := range all {
		if u.DailyTime == "" {
			continue
		}
		if err := s.ScheduleUser(u); err != nil {
			logrus.WithField("chat_id", u.ChatID).Errorf("Failed to schedule user: %v", err)
			continue
		}
		scheduled++
	}

	s.cron.Start()
	logrus.Infof("Scheduler started with %d daily drafts and metrics schedule %q", scheduled, s.config.MetricsSchedule)
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		logrus.Info("Scheduler stopped")
	}
}
