package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LovationAdmin/finance-tracker/models"
	"github.com/LovationAdmin/finance-tracker/services"
	"github.com/LovationAdmin/finance-tracker/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAccounts map[string]models.User

func (f fakeAccounts) GetUser(username string) (models.User, error) {
	if username == "broken" {
		return models.User{}, errors.New("disk on fire")
	}
	user, ok := f[username]
	if !ok {
		return models.User{}, services.ErrNotFound
	}
	return user, nil
}

func newAuthRouter(tokens *utils.TokenManager, accounts AccountLookup) *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger())
	r.GET("/me", AuthMiddleware(tokens, accounts), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": GetUserID(c)})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()

	tokens := utils.NewTokenManager("test-secret", time.Hour)
	created := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	token, _, err := tokens.GenerateAccessToken("alice", created)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	foreign, _, _ := utils.NewTokenManager("other-secret", time.Hour).GenerateAccessToken("alice", created)
	deleted, _, _ := tokens.GenerateAccessToken("gone", created)
	recreated, _, _ := tokens.GenerateAccessToken("carol", created)
	broken, _, _ := tokens.GenerateAccessToken("broken", created)

	accounts := fakeAccounts{
		"alice": {Username: "alice", CreatedAt: created},
		// carol was deleted and registered again
		"carol": {Username: "carol", CreatedAt: created.Add(time.Millisecond)},
	}
	r := newAuthRouter(tokens, accounts)

	cases := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"bearer header", "Bearer " + token, "", http.StatusOK},
		{"lower-case scheme", "bearer " + token, "", http.StatusOK},
		{"query token", "", "?token=" + token, http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, "", http.StatusUnauthorized},
		{"foreign signature", "Bearer " + foreign, "", http.StatusUnauthorized},
		{"garbage", "Bearer abc.def.ghi", "", http.StatusUnauthorized},
		{"deleted account", "Bearer " + deleted, "", http.StatusUnauthorized},
		{"token from a previous account", "Bearer " + recreated, "", http.StatusUnauthorized},
		{"lookup failure", "Bearer " + broken, "", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/me"+tc.query, nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d (%s)", tc.name, tc.want, w.Code, w.Body.String())
		}
	}
}

func TestRateLimiter(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	r := gin.New()
	r.Use(rl.Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	hit := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	if hit("10.0.0.1") != http.StatusNoContent || hit("10.0.0.1") != http.StatusNoContent {
		t.Fatalf("expected first two requests to pass")
	}
	if code := hit("10.0.0.1"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	if code := hit("10.0.0.2"); code != http.StatusNoContent {
		t.Fatalf("expected other client unaffected, got %d", code)
	}

	now = now.Add(61 * time.Second)
	if code := hit("10.0.0.1"); code != http.StatusNoContent {
		t.Fatalf("expected window reset, got %d", code)
	}

	now = now.Add(2 * time.Minute)
	rl.cleanup()
	if len(rl.requests) != 0 {
		t.Fatalf("expected expired windows dropped, %d left", len(rl.requests))
	}
}

func TestStartCleanupRunsInBackground(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(5, 10*time.Millisecond)
	rl.requests["10.0.0.9"] = &clientRequest{count: 1, resetTime: start}
	rl.now = func() time.Time { return start.Add(time.Hour) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	returned := make(chan struct{})
	go func() {
		rl.StartCleanup(ctx)
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatalf("StartCleanup blocked the caller")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		rl.mu.Lock()
		left := len(rl.requests)
		rl.mu.Unlock()
		if left == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected the cleanup loop to drop the expired window")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
