package app

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adboard/cmd/identity"
)

func cheapHashing(t *testing.T) {
	t.Helper()
	t.Setenv("ADBOARD_ARGON2_MEMORY_KIB", "8192")
	t.Setenv("ADBOARD_ARGON2_ITERATIONS", "1")
	t.Setenv("ADBOARD_ARGON2_PARALLELISM", "1")
}

func testConfig() Config {
	return Config{
		HTTPAddr:           "127.0.0.1:0",
		LogLevel:           "error",
		LogFormat:          "json",
		MaxBodyBytes:       1 << 20,
		LoginRatePerSecond: 5,
		LoginBurst:         20,
		DBSchema:           "adboard",
		TokenSecret:        strings.Repeat("k", 32),
		TokenTTL:           time.Hour,
		TokenIssuer:        "adboard",
	}
}

func newTestApp(t *testing.T) (*App, *httptest.Server) {
	t.Helper()
	cheapHashing(t)

	a, err := New(context.Background(), testConfig(), NewLogger("error", "json", io.Discard))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	ts := httptest.NewServer(a.Handler())
	t.Cleanup(ts.Close)
	return a, ts
}

func get(t *testing.T, ts *httptest.Server, path string) (int, string, http.Header) {
	t.Helper()
	res, err := ts.Client().Get(ts.URL + path)
	require.NoError(t, err)
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, string(b), res.Header
}

func TestApp_OpsEndpoints(t *testing.T) {
	_, ts := newTestApp(t)

	status, body, hdr := get(t, ts, "/healthz")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok\n", body)
	assert.Len(t, hdr.Get("X-Request-ID"), 26)
	assert.Equal(t, "nosniff", hdr.Get("X-Content-Type-Options"))

	status, _, _ = get(t, ts, "/readyz")
	assert.Equal(t, http.StatusOK, status, "in-memory mode is ready unless the DB is required")

	status, body, _ = get(t, ts, "/metrics")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "adboard_http_request_duration_seconds")
	assert.Contains(t, body, "go_goroutines")
}

func TestApp_ReadinessRequiresDB(t *testing.T) {
	cheapHashing(t)
	cfg := testConfig()
	cfg.ReadinessRequireDB = true

	a, err := New(context.Background(), cfg, NewLogger("error", "json", io.Discard))
	require.NoError(t, err)
	ts := httptest.NewServer(a.Handler())
	defer ts.Close()

	status, _, _ := get(t, ts, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestApp_APIMounted(t *testing.T) {
	a, ts := newTestApp(t)

	_, err := a.Users().Provision(context.Background(), identity.Registration{
		Username: "root", Password: "root-pass", Role: identity.RoleAdmin,
	})
	require.NoError(t, err)

	res, err := ts.Client().Post(ts.URL+"/login", "application/json",
		bytes.NewBufferString(`{"username":"root","password":"root-pass"}`))
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	status, body, _ := get(t, ts, "/nowhere")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, body, `"not_found"`)

	_, metrics, _ := get(t, ts, "/metrics")
	assert.Contains(t, metrics, `adboard_auth_events_total{event="login",outcome="ok"} 1`)
	assert.Contains(t, metrics, `route="/login"`)
}

func TestApp_RunShutsDownOnCancel(t *testing.T) {
	a, _ := newTestApp(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestCreateAdmin(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, createAdmin(ctx, a.Users(), "boss", "pw", &out))
	assert.Contains(t, out.String(), `created admin "boss"`)

	issued, err := a.Users().Login(ctx, "boss", "pw")
	require.NoError(t, err)
	assert.True(t, issued.Principal.IsAdmin())

	err = createAdmin(ctx, a.Users(), "BOSS", "pw", &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}
