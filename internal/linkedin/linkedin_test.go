package linkedin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewClient(5*time.Second, 2)
	c.http.SetRetryWaitTime(time.Millisecond).SetRetryMaxWaitTime(5 * time.Millisecond)
	c.baseURL = srv.URL
	return c
}

func TestOAuth_AuthURLAndState(t *testing.T) {
	o := NewOAuth("id", "secret", "http://localhost:8080/callback")
	require.True(t, o.Enabled())

	raw, err := o.AuthURL(42)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "www.linkedin.com", u.Host)
	q := u.Query()
	assert.Equal(t, "id", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "openid profile w_member_social", q.Get("scope"))
	assert.Equal(t, "http://localhost:8080/callback", q.Get("redirect_uri"))

	state := q.Get("state")
	chatID, ok := o.ValidateState(state)
	assert.True(t, ok)
	assert.Equal(t, int64(42), chatID)

	// states are single use
	_, ok = o.ValidateState(state)
	assert.False(t, ok)
}

func TestOAuth_StateExpires(t *testing.T) {
	o := NewOAuth("id", "secret", "http://x/callback")
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return now }

	raw, err := o.AuthURL(1)
	require.NoError(t, err)
	u, _ := url.Parse(raw)

	now = now.Add(11 * time.Minute)
	_, ok := o.ValidateState(u.Query().Get("state"))
	assert.False(t, ok)
}

func TestOAuth_NotConfigured(t *testing.T) {
	o := NewOAuth("", "", "")
	assert.False(t, o.Enabled())
	_, err := o.AuthURL(1)
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = o.Exchange(context.Background(), "code")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestOAuth_Exchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		assert.Equal(t, "id", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret", r.PostForm.Get("client_secret"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 5184000, "token_type": "Bearer"})
	}))
	defer srv.Close()

	o := NewOAuth("id", "secret", "http://x/callback")
	o.config.Endpoint.TokenURL = srv.URL

	token, err := o.Exchange(context.Background(), "the-code")
	require.NoError(t, err)
	assert.Equal(t, "tok", token.AccessToken)
	assert.True(t, token.Expiry.After(time.Now().Add(24*time.Hour)))
}

func TestClient_UserURN(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/userinfo", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sub":"abc123","name":"Dev"}`))
	})

	urn, err := c.UserURN(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "urn:li:person:abc123", urn)
}

func TestClient_Unauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.UserURN(context.Background(), "expired")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestClient_CreatePost(t *testing.T) {
	var got createPostRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/posts", r.URL.Path)
		assert.Equal(t, "202401", r.Header.Get("LinkedIn-Version"))
		assert.Equal(t, "2.0.0", r.Header.Get("X-Restli-Protocol-Version"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("x-restli-id", "urn:li:share:777")
		w.WriteHeader(http.StatusCreated)
	})

	res, err := c.CreatePost(context.Background(), "tok", "urn:li:person:abc", "Hello #go")
	require.NoError(t, err)
	assert.Equal(t, "urn:li:share:777", res.ID)
	assert.Equal(t, "https://www.linkedin.com/feed/update/urn:li:share:777", res.URL)

	assert.Equal(t, "urn:li:person:abc", got.Author)
	assert.Equal(t, "Hello #go", got.Commentary)
	assert.Equal(t, "PUBLIC", got.Visibility)
	assert.Equal(t, "MAIN_FEED", got.Distribution.FeedDistribution)
	assert.Equal(t, "PUBLISHED", got.LifecycleState)
}

func TestClient_CreatePostNotResentOnServerError(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.CreatePost(context.Background(), "tok", "urn:li:person:abc", "text")
	assert.ErrorIs(t, err, ErrAPI)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_CreatePostNotResentOnTimeout(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		// the post is accepted but the reply arrives after the client gave up
		select {
		case <-time.After(300 * time.Millisecond):
		case <-r.Context().Done():
		}
		w.Header().Set("x-restli-id", "urn:li:share:1")
		w.WriteHeader(http.StatusCreated)
	})
	c.http.SetTimeout(100 * time.Millisecond)

	_, err := c.CreatePost(context.Background(), "tok", "urn:li:person:abc", "text")
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_CreatePostRetriesRateLimit(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("x-restli-id", "urn:li:share:1")
		w.WriteHeader(http.StatusCreated)
	})

	res, err := c.CreatePost(context.Background(), "tok", "urn:li:person:abc", "text")
	require.NoError(t, err)
	assert.Equal(t, "urn:li:share:1", res.ID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_ReadsRetryServerErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sub":"abc"}`))
	})

	urn, err := c.UserURN(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "urn:li:person:abc", urn)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_CreatePostWithoutID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	_, err := c.CreatePost(context.Background(), "tok", "urn", "text")
	assert.ErrorIs(t, err, ErrAPI)
}

func TestClient_PostMetrics(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/socialActions/urn:li:share:777", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"likesSummary":{"totalLikes":12},"commentsSummary":{"aggregatedTotalComments":3}}`))
	})

	m, err := c.PostMetrics(context.Background(), "tok", "urn:li:share:777")
	require.NoError(t, err)
	assert.Equal(t, "urn:li:share:777", m.PostID)
	assert.Equal(t, 12, m.Likes)
	assert.Equal(t, 3, m.Comments)
	assert.False(t, m.FetchedAt.IsZero())
}

func TestClient_DeletePost(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNotFound)
	})
	assert.NoError(t, c.DeletePost(context.Background(), "tok", "urn:li:share:1"))
}
