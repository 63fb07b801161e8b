// Package linkedin implements the LinkedIn OAuth flow and the posts API.
package linkedin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	authURL  = "https://www.linkedin.com/oauth/v2/authorization"
	tokenURL = "https://www.linkedin.com/oauth/v2/accessToken"

	stateTTL = 10 * time.Minute
)

// Scopes needed to read the member id and publish as the member
var Scopes = []string{"openid", "profile", "w_member_social"}

// ErrNotConfigured is returned when client credentials are missing
var ErrNotConfigured = errors.New("LinkedIn OAuth not configured, set LINKEDIN_CLIENT_ID and LINKEDIN_CLIENT_SECRET")

type pendingState struct {
	chatID  int64
	expires time.Time
}

// OAuth runs the authorization code flow and tracks CSRF states per chat
type OAuth struct {
	config *oauth2.Config

	mu     sync.Mutex
	states map[string]pendingState
	now    func() time.Time
}

// NewOAuth creates the OAuth handler
func NewOAuth(clientID, clientSecret, redirectURL string) *OAuth {
	return &OAuth{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		states: make(map[string]pendingState),
		now:    time.Now,
	}
}

// Enabled reports whether client credentials are set
func (o *OAuth) Enabled() bool {
	return o.config.ClientID != "" && o.config.ClientSecret != ""
}

// AuthURL returns the consent URL for chatID
func (o *OAuth) AuthURL(chatID int64) (string, error) {
	if !o.Enabled() {
		return "", ErrNotConfigured
	}

	state := uuid.NewString()
	now := o.now()

	o.mu.Lock()
	for s, p := range o.states {
		if now.After(p.expires) {
			delete(o.states, s)
		}
	}
	o.states[state] = pendingState{chatID: chatID, expires: now.Add(stateTTL)}
	o.mu.Unlock()

	return o.config.AuthCodeURL(state), nil
}

// ValidateState consumes state and returns its chat. Expired or unknown states fail.
func (o *OAuth) ValidateState(state string) (int64, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	p, ok := o.states[state]
	if !ok {
		return 0, false
	}
	delete(o.states, state)
	if o.now().After(p.expires) {
		return 0, false
	}
	return p.chatID, true
}

// Exchange trades an authorization code for an access token
func (o *OAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if !o.Enabled() {
		return nil, ErrNotConfigured
	}
	token, err := o.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}
	if token.Expiry.IsZero() {
		token.Expiry = o.now().Add(time.Hour)
	}
	return token, nil
}
