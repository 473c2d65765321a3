package target

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestHandler_Default(t *testing.T) {
	h := NewHandler(Config{})
	srv := httptest.NewServer(h)
	defer srv.Close()

	code, body := get(t, srv.URL+"/")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK", body)
	assert.EqualValues(t, 1, h.Requests())
}

func TestHandler_ConfiguredStatusAndDelay(t *testing.T) {
	h := NewHandler(Config{Status: 500, Delay: 30 * time.Millisecond, Body: "boom"})
	srv := httptest.NewServer(h)
	defer srv.Close()

	start := time.Now()
	code, body := get(t, srv.URL+"/")
	assert.Equal(t, 500, code)
	assert.Equal(t, "boom", body)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestHandler_Routes(t *testing.T) {
	srv := httptest.NewServer(NewHandler(Config{}))
	defer srv.Close()

	code, _ := get(t, srv.URL+"/status/404")
	assert.Equal(t, 404, code)

	code, _ = get(t, srv.URL+"/status/abc")
	assert.Equal(t, 400, code)

	code, body := get(t, srv.URL+"/health")
	assert.Equal(t, 200, code)
	assert.Equal(t, "healthy", body)

	start := time.Now()
	code, _ = get(t, srv.URL+"/delay/20")
	assert.Equal(t, 200, code)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	code, _ = get(t, srv.URL+"/nope")
	assert.Equal(t, 404, code)
}

func TestHandler_JitterIsSeeded(t *testing.T) {
	seq := func() []time.Duration {
		h := NewHandler(Config{Delay: time.Millisecond, Jitter: 10 * time.Millisecond, Seed: 7})
		out := make([]time.Duration, 20)
		for i := range out {
			out[i] = h.delay()
		}
		return out
	}

	a, b := seq(), seq()
	assert.Equal(t, a, b)
	for _, d := range a {
		assert.GreaterOrEqual(t, d, time.Millisecond)
		assert.LessOrEqual(t, d, 11*time.Millisecond)
	}
}

func TestServer_ServeAndShutdown(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := NewServer(l.Addr().String(), Config{Status: 201}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx, l) }()

	code, _ := get(t, "http://"+l.Addr().String()+"/")
	assert.Equal(t, 201, code)
	assert.EqualValues(t, 1, s.Handler().Requests())

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
