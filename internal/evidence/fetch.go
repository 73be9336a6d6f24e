// Package evidence fetches proof evidence pages and extracts the text an
// adjudicator reads. Certificate pages, project demos, and badge hosts are
// plain HTML fetches; JavaScript-heavy hosts fall back to a headless
// browser when enabled.
package evidence

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/ashirimi1019/market-ready/internal/apperrors"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// DefaultUserAgent is the user agent string for evidence fetches.
const DefaultUserAgent = "Mozilla/5.0 (compatible; MarketReadyBot/1.0)"

// maxEvidenceBytes bounds how much of a page we read.
const maxEvidenceBytes = 2 << 20

// FetchError describes a failed evidence fetch.
type FetchError struct {
	URL     string
	Message string
	Cause   error
}

func (e *FetchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("evidence fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("evidence fetch error for %s: %s", e.URL, e.Message)
}

func (e *FetchError) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	return apperrors.ErrExternalUnavailable
}

// Options configures fetching.
type Options struct {
	Timeout    time.Duration
	UserAgent  string
	UseBrowser bool
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() *Options {
	return &Options{
		Timeout:   DefaultTimeout,
		UserAgent: DefaultUserAgent,
	}
}

// Fetcher retrieves evidence pages.
type Fetcher struct {
	opts *Options
}

// NewFetcher builds a Fetcher.
func NewFetcher(opts *Options) *Fetcher {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Fetcher{opts: opts}
}

// Excerpt fetches the URL and returns cleaned text suitable for an
// adjudication prompt. When the plain fetch yields too little text and
// browser mode is enabled, the page is re-rendered headlessly.
func (f *Fetcher) Excerpt(ctx context.Context, urlStr string) (string, error) {
	html, err := f.fetchHTML(ctx, urlStr)
	if err != nil {
		return "", err
	}

	text, err := ExtractMainText(html)
	if err != nil {
		return "", &FetchError{URL: urlStr, Message: "text extraction failed", Cause: err}
	}

	if f.opts.UseBrowser && len(strings.TrimSpace(text)) < minRenderedLength {
		rendered, berr := renderWithBrowser(ctx, urlStr, f.opts.Timeout)
		if berr == nil {
			if renderedText, terr := ExtractMainText(rendered); terr == nil && len(renderedText) > len(text) {
				text = renderedText
			}
		}
		// Browser failures fall back to the plain fetch result.
	}

	if len(text) > 8000 {
		text = text[:8000]
	}
	return text, nil
}

func (f *Fetcher) fetchHTML(ctx context.Context, urlStr string) (string, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", &FetchError{URL: urlStr, Message: "invalid URL", Cause: err}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", &FetchError{URL: urlStr, Message: "unsupported scheme " + parsed.Scheme}
	}

	client := &http.Client{Timeout: f.opts.Timeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return "", &FetchError{URL: urlStr, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", &FetchError{URL: urlStr, Message: "HTTP request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxEvidenceBytes))
	if err != nil {
		return "", &FetchError{URL: urlStr, Message: "failed to read response body", Cause: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &FetchError{URL: urlStr, Message: fmt.Sprintf("HTTP status %d", resp.StatusCode)}
	}
	return string(body), nil
}

// evidenceSelectors target the content areas of common certificate and
// project hosts before falling back to the whole body.
var evidenceSelectors = []string{
	"main",
	"article",
	".certificate",
	".credential",
	"[data-testid='credential']",
	".content",
	"#content",
	".readme",
	"#readme",
}

// ExtractMainText parses HTML and returns the main body text with
// navigation and script noise removed.
func ExtractMainText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("nav, footer, header, script, style, noscript, .ad, .sidebar, .cookie-banner, .popup").Remove()

	var main *goquery.Selection
	for _, selector := range evidenceSelectors {
		if sel := doc.Find(selector); sel.Length() > 0 {
			main = sel.First()
			break
		}
	}
	if main == nil {
		main = doc.Find("body")
	}

	return cleanWhitespace(main.Text()), nil
}

func cleanWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	var cleaned []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
