package users

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/azure/linkedin-content-bot/internal/storage"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNotFound is returned when a user has never connected
	ErrNotFound = errors.New("user not found")
	// ErrRepoLimit is returned when adding more repositories than allowed
	ErrRepoLimit = errors.New("repository limit reached")
	// ErrInvalidTime is returned for a daily time that is not HH:MM
	ErrInvalidTime = errors.New("invalid daily time")
)

var dailyTimePattern = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)

// UserConfig is everything the bot remembers about one chat
type UserConfig struct {
	ChatID         int64     `json:"chat_id"`
	Repos          []string  `json:"repos"`
	DailyTime      string    `json:"daily_time,omitempty"` // "HH:MM" in the user's zone
	TimezoneName   string    `json:"timezone_name,omitempty"`
	TimezoneOffset int       `json:"timezone_offset"` // seconds east of UTC, captured when the time was set
	LinkedInToken  string    `json:"linkedin_token,omitempty"`
	LinkedInExpiry time.Time `json:"linkedin_expiry,omitempty"`
	LinkedInURN    string    `json:"linkedin_urn,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// LinkedInConnected reports whether an unexpired LinkedIn token is stored
func (u *UserConfig) LinkedInConnected(now time.Time) bool {
	if u.LinkedInToken == "" {
		return false
	}
	return u.LinkedInExpiry.IsZero() || now.Before(u.LinkedInExpiry)
}

// Location returns the fixed zone the daily time is interpreted in
func (u *UserConfig) Location() *time.Location {
	name := u.TimezoneName
	if name == "" {
		name = "UTC"
	}
	return time.FixedZone(name, u.TimezoneOffset)
}

// ParseDailyTime validates "HH:MM" and returns hour and minute
func ParseDailyTime(s string) (int, int, error) {
	m := dailyTimePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, 0, fmt.Errorf("%w: %q, expected HH:MM", ErrInvalidTime, s)
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	return hour, minute, nil
}

// Store persists one JSON document per chat in blob storage
type Store struct {
	storage  storage.StorageInterface
	maxRepos int
	now      func() time.Time

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewStore creates a user config store
func NewStore(s storage.StorageInterface, maxRepos int) *Store {
	if maxRepos < 1 {
		maxRepos = 5
	}
	return &Store{
		storage:  s,
		maxRepos: maxRepos,
		now:      time.Now,
		locks:    make(map[int64]*sync.Mutex),
	}
}

func blobName(chatID int64) string {
	return fmt.Sprintf("users/%d.json", chatID)
}

func (s *Store) lock(chatID int64) func() {
	s.mu.Lock()
	l, ok := s.locks[chatID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[chatID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Get loads a user's configuration
func (s *Store) Get(chatID int64) (*UserConfig, error) {
	data, err := s.storage.Retrieve(blobName(chatID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("chat %d: %w", chatID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load user %d: %w", chatID, err)
	}

	var cfg UserConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode user %d: %w", chatID, err)
	}
	return &cfg, nil
}

// Update applies fn to the user's configuration under a per-user lock and saves it.
// A missing user starts from an empty configuration.
func (s *Store) Update(chatID int64, fn func(*UserConfig) error) (*UserConfig, error) {
	unlock := s.lock(chatID)
	defer unlock()

	cfg, err := s.Get(chatID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		cfg = &UserConfig{ChatID: chatID, CreatedAt: s.now()}
	}

	if err := fn(cfg); err != nil {
		return nil, err
	}
	cfg.UpdatedAt = s.now()

	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode user %d: %w", chatID, err)
	}
	if err := s.storage.Store(blobName(chatID), data); err != nil {
		return nil, fmt.Errorf("failed to save user %d: %w", chatID, err)
	}
	return cfg, nil
}

// Delete forgets a user entirely
func (s *Store) Delete(chatID int64) error {
	unlock := s.lock(chatID)
	defer unlock()
	return s.storage.Delete(blobName(chatID))
}

// List returns all stored users ordered by chat id
func (s *Store) List() ([]*UserConfig, error) {
	names, err := s.storage.List("users/")
	if err != nil {
		return nil, err
	}

	var out []*UserConfig
	for _, name := range names {
		idText := strings.TrimSuffix(strings.TrimPrefix(name, "users/"), ".json")
		chatID, err := strconv.ParseInt(idText, 10, 64)
		if err != nil {
			logrus.Warnf("Skipping unexpected user blob %s", name)
			continue
		}
		cfg, err := s.Get(chatID)
		if err != nil {
			logrus.Warnf("Skipping unreadable user %d: %v", chatID, err)
			continue
		}
		out = append(out, cfg)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out, nil
}

// AddRepo appends a repository URL if absent, up to the configured limit
func (s *Store) AddRepo(chatID int64, url string) (*UserConfig, error) {
	return s.Update(chatID, func(cfg *UserConfig) error {
		for _, r := range cfg.Repos {
			if strings.EqualFold(r, url) {
				return nil
			}
		}
		if len(cfg.Repos) >= s.maxRepos {
			return fmt.Errorf("%w: maximum %d repos allowed", ErrRepoLimit, s.maxRepos)
		}
		cfg.Repos = append(cfg.Repos, url)
		return nil
	})
}

// RemoveRepo drops a repository URL. It reports whether the URL was present.
func (s *Store) RemoveRepo(chatID int64, url string) (bool, error) {
	removed := false
	_, err := s.Update(chatID, func(cfg *UserConfig) error {
		kept := cfg.Repos[:0]
		for _, r := range cfg.Repos {
			if strings.EqualFold(r, url) {
				removed = true
				continue
			}
			kept = append(kept, r)
		}
		cfg.Repos = kept
		return nil
	})
	return removed, err
}

// SetDailyTime stores the daily time and captures the zone offset at this moment
func (s *Store) SetDailyTime(chatID int64, hhmm string, loc *time.Location) (*UserConfig, error) {
	hour, minute, err := ParseDailyTime(hhmm)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	name, offset := s.now().In(loc).Zone()

	return s.Update(chatID, func(cfg *UserConfig) error {
		cfg.DailyTime = fmt.Sprintf("%02d:%02d", hour, minute)
		cfg.TimezoneName = loc.String()
		if cfg.TimezoneName == "" || cfg.TimezoneName == "Local" {
			cfg.TimezoneName = name
		}
		cfg.TimezoneOffset = offset
		return nil
	})
}

// ClearDailyTime removes the schedule
func (s *Store) ClearDailyTime(chatID int64) (*UserConfig, error) {
	return s.Update(chatID, func(cfg *UserConfig) error {
		cfg.DailyTime = ""
		return nil
	})
}

// SetLinkedIn stores an OAuth token and the member URN
func (s *Store) SetLinkedIn(chatID int64, token string, expiry time.Time, urn string) (*UserConfig, error) {
	return s.Update(chatID, func(cfg *UserConfig) error {
		cfg.LinkedInToken = token
		cfg.LinkedInExpiry = expiry
		cfg.LinkedInURN = urn
		return nil
	})
}

// ClearLinkedIn forgets the LinkedIn connection
func (s *Store) ClearLinkedIn(chatID int64) (*UserConfig, error) {
	return s.SetLinkedIn(chatID, "", time.Time{}, "")
}
