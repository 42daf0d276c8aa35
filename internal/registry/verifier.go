// Package registry looks products up in the register of Russian software.
package registry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

// resultsSelector is the container the registry renders only when the search matched.
const resultsSelector = "div.result_area"

// Verifier answers whether a product name is present in the registry.
type Verifier interface {
	Verify(ctx context.Context, name string) (bool, error)
}

// VerificationError means the registry could not give an answer. It never
// stands for "not Russian".
type VerificationError struct {
	Name string
	Err  error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verify %q: %v", e.Name, e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }

// HTTPVerifierConfig configures the registry client.
type HTTPVerifierConfig struct {
	BaseURL  string
	Timeout  time.Duration
	Interval time.Duration // minimum spacing between requests, 0 disables limiting
}

// HTTPVerifier scrapes the registry search page.
type HTTPVerifier struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

func NewHTTPVerifier(cfg HTTPVerifierConfig, logger *slog.Logger) *HTTPVerifier {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}
	return &HTTPVerifier{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
	}
}

// Verify queries the registry by name; true iff the results container is present and not empty.
func (v *HTTPVerifier) Verify(ctx context.Context, name string) (bool, error) {
	if err := v.limiter.Wait(ctx); err != nil {
		return false, &VerificationError{Name: name, Err: fmt.Errorf("rate limit wait: %w", err)}
	}

	params := url.Values{}
	params.Set("name", name)
	params.Set("show_count", "100")
	params.Set("set_filter", "Y")
	fullURL := v.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return false, &VerificationError{Name: name, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9")

	start := time.Now()
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return false, &VerificationError{Name: name, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, &VerificationError{Name: name, Err: fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))}
	}

	found, err := HasResults(resp.Body)
	if err != nil {
		return false, &VerificationError{Name: name, Err: err}
	}
	v.logger.Debug("Registry lookup done.", slog.String("product", name), slog.Bool("found", found), slog.Duration("duration", time.Since(start).Round(time.Millisecond)))
	return found, nil
}

// HasResults reports whether a registry search page lists any match.
func HasResults(page io.Reader) (bool, error) {
	doc, err := goquery.NewDocumentFromReader(page)
	if err != nil {
		return false, fmt.Errorf("parse registry page: %w", err)
	}
	sel := doc.Find(resultsSelector).First()
	if sel.Length() == 0 {
		return false, nil
	}
	return strings.TrimSpace(sel.Text()) != "" || sel.Children().Length() > 0, nil
}
