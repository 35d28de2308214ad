package github

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sakif/commit-streak/internal/testutil"
)

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:           baseURL,
		MaxAttempts:       3,
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          time.Second,
		MaxRateLimitWaits: 2,
		PerPage:           2,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient starts an httptest server running mux and returns a client
// pointed at it, driven by a fake clock.
func newTestClient(t *testing.T, mux http.Handler, mutate ...func(*Config)) (*Client, *testutil.FakeClock, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := testConfig(srv.URL + "/")
	for _, m := range mutate {
		m(&cfg)
	}

	clk := testutil.FixedClock()
	c, err := New("test-token", cfg, WithClock(clk), WithLogger(discardLogger()))
	require.NoError(t, err)
	return c, clk, srv
}

func setRate(w http.ResponseWriter, remaining int, reset time.Time) {
	w.Header().Set("X-RateLimit-Limit", "5000")
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
}

func setNextPage(w http.ResponseWriter, r *http.Request, next int) {
	u := *r.URL
	q := u.Query()
	q.Set("page", strconv.Itoa(next))
	u.RawQuery = q.Encode()
	w.Header().Set("Link", fmt.Sprintf(`<http://%s%s>; rel="next"`, r.Host, u.String()))
}

func writeBody(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

// counter counts requests to a handler.
type counter struct{ n atomic.Int32 }

func (c *counter) inc() int { return int(c.n.Add(1)) }
func (c *counter) get() int { return int(c.n.Load()) }
