package registry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pageWithResults = `<html><body><div class="search"></div>
<div class="result_area"><table><tr><td>Astra Linux</td></tr></table></div></body></html>`

const pageWithoutResults = `<html><body><div class="search"><p>Ничего не найдено</p></div></body></html>`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHasResults(t *testing.T) {
	found, err := HasResults(strings.NewReader(pageWithResults))
	require.NoError(t, err)
	assert.True(t, found)

	found, err = HasResults(strings.NewReader(pageWithoutResults))
	require.NoError(t, err)
	assert.False(t, found)

	found, err = HasResults(strings.NewReader(`<div class="result_area">   </div>`))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestHTTPVerifier(t *testing.T) {
	var gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query())
		if r.URL.Query().Get("name") == "Astra Linux" {
			io.WriteString(w, pageWithResults)
			return
		}
		io.WriteString(w, pageWithoutResults)
	}))
	defer srv.Close()

	v := NewHTTPVerifier(HTTPVerifierConfig{BaseURL: srv.URL + "/reestr/", Timeout: 5 * time.Second}, discardLogger())

	found, err := v.Verify(context.Background(), "Astra Linux")
	require.NoError(t, err)
	assert.True(t, found)

	q := gotQuery.Load().(url.Values)
	assert.Equal(t, "Astra Linux", q.Get("name"))
	assert.Equal(t, "100", q.Get("show_count"))
	assert.Equal(t, "Y", q.Get("set_filter"))

	found, err = v.Verify(context.Background(), "Windows 10")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestHTTPVerifierErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	v := NewHTTPVerifier(HTTPVerifierConfig{BaseURL: srv.URL, Timeout: time.Second}, discardLogger())

	_, err := v.Verify(context.Background(), "x")
	var verr *VerificationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Error(), "503")

	srv.Close()
	_, err = v.Verify(context.Background(), "x")
	assert.True(t, errors.As(err, &verr))
}

type countingVerifier struct {
	calls int
	fail  bool
}

func (c *countingVerifier) Verify(ctx context.Context, name string) (bool, error) {
	c.calls++
	if c.fail {
		return false, &VerificationError{Name: name, Err: errors.New("down")}
	}
	return name == "Astra Linux", nil
}

func TestCachingVerifier(t *testing.T) {
	next := &countingVerifier{}
	c := NewCachingVerifier(next)

	for i := 0; i < 3; i++ {
		found, err := c.Verify(context.Background(), "Astra Linux")
		require.NoError(t, err)
		assert.True(t, found)
	}
	found, err := c.Verify(context.Background(), "Windows 10")
	require.NoError(t, err)
	assert.False(t, found)

	assert.Equal(t, 2, next.calls)
	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.Equal(t, 2, stats.Size)
}

func TestCachingVerifierDoesNotCacheErrors(t *testing.T) {
	next := &countingVerifier{fail: true}
	c := NewCachingVerifier(next)

	_, err := c.Verify(context.Background(), "Astra Linux")
	require.Error(t, err)
	next.fail = false
	found, err := c.Verify(context.Background(), "Astra Linux")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 2, next.calls)
}
