package trackmania

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/riskibarqy/tm-alerts/internal/domain/leaderboard"
	"github.com/riskibarqy/tm-alerts/internal/platform/cache"
	"github.com/riskibarqy/tm-alerts/internal/platform/logging"
	"github.com/riskibarqy/tm-alerts/internal/usecase"
)

type fakeAuth struct {
	mu          sync.Mutex
	logins      int
	refreshes   int
	refreshGate chan struct{}
}

func (f *fakeAuth) Login(context.Context) (Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins++
	return Token{Access: fmt.Sprintf("login-%d", f.logins), Refresh: "refresh-token", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeAuth) Refresh(ctx context.Context, _ string) (Token, error) {
	if f.refreshGate != nil {
		select {
		case <-f.refreshGate:
		case <-ctx.Done():
			return Token{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return Token{Access: fmt.Sprintf("refresh-%d", f.refreshes), Refresh: "refresh-token", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeAuth) Authorize(req *http.Request, accessToken string) {
	req.Header.Set("authorization", "test "+accessToken)
}

func (f *fakeAuth) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins, f.refreshes
}

type countingRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
	hits     int
	misses   int
}

func (r *countingRecorder) LeaderboardRequest(endpoint, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = map[string]int{}
	}
	r.outcomes[endpoint+":"+outcome]++
}

func (r *countingRecorder) CacheLookup(hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hit {
		r.hits++
		return
	}
	r.misses++
}

func newTestClient(t *testing.T, serverURL string, mutate func(*ClientConfig)) *Client {
	t.Helper()
	cfg := ClientConfig{
		LiveBaseURL:     serverURL,
		NamesBaseURL:    serverURL,
		Timeout:         5 * time.Second,
		RetryBackoff:    time.Millisecond,
		LeaderboardAuth: &fakeAuth{},
		NamingAuth:      &fakeAuth{},
		Logger:          logging.NewNop(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewClient(cfg)
}

func boardEntries(n int) []map[string]any {
	out := make([]map[string]any, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, map[string]any{
			"accountId": fmt.Sprintf("acc-%d", i),
			"zoneName":  "World",
			"position":  i,
			"score":     40000 + i*10,
			"timestamp": 1760659200 + i,
		})
	}
	return out
}

// leaderboardHandler serves offset/length slices of board.
func leaderboardHandler(t *testing.T, board []map[string]any, calls *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if !strings.Contains(r.URL.Path, "/token/leaderboard/group/") {
			t.Errorf("unexpected path=%s", r.URL.Path)
		}
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		length, _ := strconv.Atoi(r.URL.Query().Get("length"))
		end := min(offset+length, len(board))
		var slice []map[string]any
		if offset < len(board) {
			slice = board[offset:end]
		}
		raw, _ := sonic.Marshal(map[string]any{
			"tops": []any{map[string]any{"zoneName": "World", "top": slice}},
		})
		_, _ = w.Write(raw)
	}
}

func TestResolveDisplayNames_ChunksAndSkipsFailedChunk(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	var mu sync.Mutex
	var chunkSizes []int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		ids := r.URL.Query()["accountId[]"]
		mu.Lock()
		chunkSizes = append(chunkSizes, len(ids))
		mu.Unlock()
		if n == 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		names := make(map[string]string, len(ids))
		for _, id := range ids {
			names[id] = "name-" + id
		}
		raw, _ := sonic.Marshal(names)
		_, _ = w.Write(raw)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)

	ids := make([]string, 0, 120)
	for i := 0; i < 120; i++ {
		ids = append(ids, fmt.Sprintf("acc-%03d", i))
	}
	names := client.ResolveDisplayNames(context.Background(), ids)

	if got := calls.Load(); got != 3 {
		t.Fatalf("unexpected call count got=%d want=3", got)
	}
	if len(chunkSizes) != 3 || chunkSizes[0] != 50 || chunkSizes[1] != 50 || chunkSizes[2] != 20 {
		t.Fatalf("unexpected chunk sizes got=%v want=[50 50 20]", chunkSizes)
	}
	if len(names) != 70 {
		t.Fatalf("unexpected resolved count got=%d want=70", len(names))
	}
	if names["acc-000"] != "name-acc-000" || names["acc-119"] != "name-acc-119" {
		t.Fatalf("expected chunks 1 and 3 to resolve, got=%v", names)
	}
	if _, ok := names["acc-060"]; ok {
		t.Fatalf("expected failed chunk to be absent")
	}
}

func TestResolveDisplayNames_DedupesIDs(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if got := len(r.URL.Query()["accountId[]"]); got != 2 {
			t.Errorf("unexpected id count got=%d want=2", got)
		}
		_, _ = w.Write([]byte(`{"a":"Alice","b":"Bob"}`))
	}))
	defer server.Close()

	names := newTestClient(t, server.URL, nil).ResolveDisplayNames(context.Background(), []string{"a", "b", "a", " "})
	if names["a"] != "Alice" || names["b"] != "Bob" {
		t.Fatalf("unexpected names got=%v", names)
	}
	if calls.Load() != 1 {
		t.Fatalf("unexpected call count got=%d want=1", calls.Load())
	}
}

func TestGetLeaderboard_RefreshThenReloginOnUnauthorized(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	board := boardEntries(3)
	ok := leaderboardHandler(t, board, &calls)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("authorization") != "test login-2" {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		ok(w, r)
	}))
	defer server.Close()

	auth := &fakeAuth{}
	client := newTestClient(t, server.URL, func(cfg *ClientConfig) { cfg.LeaderboardAuth = auth })

	entries, err := client.GetLeaderboard(context.Background(), leaderboard.Query{MapUID: "map-1", Length: 5})
	if err != nil {
		t.Fatalf("GetLeaderboard error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("unexpected entries got=%d want=3", len(entries))
	}
	logins, refreshes := auth.counts()
	if logins != 2 || refreshes != 1 {
		t.Fatalf("unexpected auth calls logins=%d refreshes=%d want=2,1", logins, refreshes)
	}
	if calls.Load() != 3 {
		t.Fatalf("unexpected request count got=%d want=3", calls.Load())
	}
}

func TestGetLeaderboard_PermanentUnauthorized(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)
	_, err := client.GetLeaderboard(context.Background(), leaderboard.Query{MapUID: "map-1", Length: 5})
	if !errors.Is(err, usecase.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got=%v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("unexpected request count got=%d want=3", calls.Load())
	}
}

func TestTokenStore_ConcurrentRenewSharesOneRefresh(t *testing.T) {
	t.Parallel()

	auth := &fakeAuth{refreshGate: make(chan struct{})}
	store := NewTokenStore("leaderboard", auth, logging.NewNop())
	stale, err := store.Current(context.Background())
	if err != nil {
		t.Fatalf("Current error: %v", err)
	}

	var wg sync.WaitGroup
	tokens := make([]Token, 10)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], _ = store.Renew(context.Background(), stale, false)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(auth.refreshGate)
	wg.Wait()

	_, refreshes := auth.counts()
	if refreshes != 1 {
		t.Fatalf("unexpected refresh count got=%d want=1", refreshes)
	}
	for i, tok := range tokens {
		if tok.Access != "refresh-1" {
			t.Fatalf("caller %d got token=%q want=refresh-1", i, tok.Access)
		}
	}
}

func TestTokenStore_CancelledCallerDoesNotFailSharedRenewal(t *testing.T) {
	t.Parallel()

	auth := &fakeAuth{refreshGate: make(chan struct{})}
	store := NewTokenStore("leaderboard", auth, logging.NewNop())
	stale, err := store.Current(context.Background())
	if err != nil {
		t.Fatalf("Current error: %v", err)
	}

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := store.Renew(leaderCtx, stale, false)
		leaderErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	type renewed struct {
		token Token
		err   error
	}
	waiter := make(chan renewed, 1)
	go func() {
		token, err := store.Renew(context.Background(), stale, false)
		waiter <- renewed{token: token, err: err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelLeader()
	select {
	case err := <-leaderErr:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected leader to stop with context.Canceled, got=%v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller kept waiting for the renewal")
	}

	close(auth.refreshGate)
	select {
	case got := <-waiter:
		if got.err != nil {
			t.Fatalf("waiter with a live ctx got error: %v", got.err)
		}
		if got.token.Access != "refresh-1" {
			t.Fatalf("unexpected token got=%q want=refresh-1", got.token.Access)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never received the renewed token")
	}

	if _, refreshes := auth.counts(); refreshes != 1 {
		t.Fatalf("unexpected refresh count got=%d want=1", refreshes)
	}
}

func TestGetLeaderboard_DrainsUntilShortPage(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(leaderboardHandler(t, boardEntries(5), &calls))
	defer server.Close()

	client := newTestClient(t, server.URL, func(cfg *ClientConfig) { cfg.PageSize = 2 })
	entries, err := client.GetLeaderboard(context.Background(), leaderboard.Query{MapUID: "map-1"})
	if err != nil {
		t.Fatalf("GetLeaderboard error: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("unexpected entries got=%d want=5", len(entries))
	}
	if calls.Load() != 3 {
		t.Fatalf("unexpected page calls got=%d want=3", calls.Load())
	}
	if entries[4].AccountID != "acc-5" || entries[4].Position != 5 || entries[4].Score != 40050 {
		t.Fatalf("unexpected last entry got=%+v", entries[4])
	}
	if entries[0].Timestamp.Unix() != 1760659201 {
		t.Fatalf("unexpected timestamp got=%v", entries[0].Timestamp)
	}
}

func TestGetLeaderboard_StopsAtPageCap(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(leaderboardHandler(t, boardEntries(50), &calls))
	defer server.Close()

	client := newTestClient(t, server.URL, func(cfg *ClientConfig) {
		cfg.PageSize = 5
		cfg.MaxPages = 3
	})
	entries, err := client.GetLeaderboard(context.Background(), leaderboard.Query{MapUID: "map-1"})
	if err != nil {
		t.Fatalf("GetLeaderboard error: %v", err)
	}
	if len(entries) != 15 || calls.Load() != 3 {
		t.Fatalf("unexpected cap behaviour entries=%d calls=%d want=15,3", len(entries), calls.Load())
	}
}

func TestGetLeaderboard_ServesRepeatedQueryFromCache(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(leaderboardHandler(t, boardEntries(5), &calls))
	defer server.Close()

	recorder := &countingRecorder{}
	client := newTestClient(t, server.URL, func(cfg *ClientConfig) {
		cfg.Cache = cache.NewStore(1<<20, time.Minute)
		cfg.Metrics = recorder
	})

	q := leaderboard.Query{MapUID: "map-1", Group: "Personal_Best", Length: 5}
	for i := 0; i < 2; i++ {
		if _, err := client.GetLeaderboard(context.Background(), q); err != nil {
			t.Fatalf("GetLeaderboard error: %v", err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one upstream call, got=%d", calls.Load())
	}
	if recorder.hits != 1 || recorder.misses != 1 {
		t.Fatalf("unexpected cache lookups hits=%d misses=%d", recorder.hits, recorder.misses)
	}
}

func TestGetLeaderboard_MapsRateLimitAfterRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, func(cfg *ClientConfig) { cfg.MaxRetries = 1 })
	_, err := client.GetLeaderboard(context.Background(), leaderboard.Query{MapUID: "map-1", Length: 5})
	if !errors.Is(err, usecase.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got=%v", err)
	}
	if !isTransient(err) {
		t.Fatalf("expected transient classification for %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("unexpected attempts got=%d want=2", calls.Load())
	}
}

func TestGetTopN_KeepsPerMapErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ok := leaderboardHandler(t, boardEntries(8), &calls)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/map/missing/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		ok(w, r)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)
	result := client.GetTopN(context.Background(), []string{"map-a", "missing", "map-b"}, "", 5)

	if len(result) != 3 {
		t.Fatalf("unexpected map count got=%d want=3", len(result))
	}
	if !errors.Is(result["missing"].Err, usecase.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing map, got=%v", result["missing"].Err)
	}
	for _, mapUID := range []string{"map-a", "map-b"} {
		top := result[mapUID]
		if top.Err != nil || len(top.Entries) != 5 {
			t.Fatalf("unexpected top for %s: entries=%d err=%v", mapUID, len(top.Entries), top.Err)
		}
	}
}

func TestGetTopN_StopsOnUnauthorized(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	result := newTestClient(t, server.URL, nil).GetTopN(context.Background(), []string{"a", "b", "c"}, "", 5)
	for _, mapUID := range []string{"a", "b", "c"} {
		if !errors.Is(result[mapUID].Err, usecase.ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized for %s, got=%v", mapUID, result[mapUID].Err)
		}
	}
	if calls.Load() != 3 {
		t.Fatalf("expected only the first map to be attempted, calls=%d", calls.Load())
	}
}

func TestNadeoAuth_LoginParsesTokenExpiry(t *testing.T) {
	t.Parallel()

	exp := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	claims := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf(`{"exp":%d}`, exp.Unix())))
	access := "hdr." + claims + ".sig"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/authentication/token/basic" {
			t.Errorf("unexpected path=%s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "server-login" || pass != "secret" {
			t.Errorf("unexpected basic auth user=%s ok=%v", user, ok)
		}
		_, _ = w.Write([]byte(`{"accessToken":"` + access + `","refreshToken":"rt"}`))
	}))
	defer server.Close()

	auth := &NadeoAuth{BaseURL: server.URL, AccountLogin: "server-login", Password: "secret", Audience: "NadeoLiveServices"}
	token, err := auth.Login(context.Background())
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if token.Access != access || token.Refresh != "rt" {
		t.Fatalf("unexpected token got=%+v", token)
	}
	if !token.ExpiresAt.Equal(exp) {
		t.Fatalf("unexpected expiry got=%v want=%v", token.ExpiresAt, exp)
	}
}

func TestSanitizeSensitiveText(t *testing.T) {
	t.Parallel()

	got := sanitizeSensitiveText(`send: authorization "nadeo_v1 t=abc.def" and Bearer xyz`)
	if strings.Contains(got, "abc.def") || strings.Contains(got, "xyz") {
		t.Fatalf("expected tokens to be redacted, got=%s", got)
	}
}
