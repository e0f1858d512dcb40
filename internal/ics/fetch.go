package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	appLog "tutcal/internal/log"
)

const (
	defaultTimeout   = 15 * time.Second
	maxBodyBytes     = 32 << 20
	maxErrorBodySize = 4 << 10
)

// Source represents a single feed to download.
type Source struct {
	// Name is used for logging only.
	Name string
	URL  string
}

// StatusError is returned when a feed answers with anything but 200 OK.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
	// Body holds the start of the response body, for diagnostics.
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("fetch %s: %s", RedactURL(e.URL), e.Status)
	}
	return fmt.Sprintf("fetch %s: %s: %s", RedactURL(e.URL), e.Status, e.Body)
}

// Temporary reports whether a retry may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Fetcher downloads feeds over HTTP. It keeps no local state: a failed
// source is reported to the caller, never replaced by an older copy.
type Fetcher struct {
	client    *http.Client
	userAgent string

	// Retries is the number of additional attempts after a temporary failure.
	Retries int
	// NewBackOff returns the retry schedule for one Fetch call.
	// Nil means an exponential backoff starting at 500ms.
	NewBackOff func() backoff.BackOff
}

// NewFetcher creates a Fetcher. A zero timeout selects the default of 15s.
func NewFetcher(timeout time.Duration, userAgent string) *Fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// WithClient replaces the underlying HTTP client.
func (f *Fetcher) WithClient(c *http.Client) *Fetcher {
	f.client = c
	return f
}

// Fetch downloads src and returns the raw body.
func (f *Fetcher) Fetch(ctx context.Context, src Source) ([]byte, error) {
	if src.URL == "" {
		return nil, errors.New("source URL is empty")
	}

	var body []byte
	attempt := 0
	op := func() error {
		attempt++
		b, err := f.fetchOnce(ctx, src)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && !se.Temporary() {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		body = b
		return nil
	}

	notify := func(err error, wait time.Duration) {
		appLog.Warn("ics fetch retry", "name", src.Name, "url", RedactURL(src.URL), "attempt", attempt, "wait", wait, "err", err)
	}

	if err := backoff.RetryNotify(op, f.backOff(ctx), notify); err != nil {
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) backOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff
	if f.NewBackOff != nil {
		b = f.NewBackOff()
	} else {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = 500 * time.Millisecond
		eb.MaxElapsedTime = 30 * time.Second
		b = eb
	}
	retries := f.Retries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

func (f *Fetcher) fetchOnce(ctx context.Context, src Source) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/calendar, */*;q=0.5")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	appLog.Debug("ics fetch start", "name", src.Name, "url", RedactURL(src.URL))

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", RedactURL(src.URL), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, &StatusError{
			URL:        src.URL,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(snippet),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: read body: %w", RedactURL(src.URL), err)
	}
	if len(body) > maxBodyBytes {
		return nil, backoff.Permanent(fmt.Errorf("fetch %s: body exceeds %d bytes", RedactURL(src.URL), maxBodyBytes))
	}

	appLog.Info("ics fetch success", "name", src.Name, "url", RedactURL(src.URL), "status", resp.StatusCode, "bytes", len(body))
	return body, nil
}

// RedactURL keeps scheme and host of u; feed URLs often embed private tokens.
func RedactURL(u string) string {
	const redacted = "...(redacted)"

	parsed, err := url.Parse(u)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "ics://" + redacted
	}
	return parsed.Scheme + "://" + parsed.Host + "/" + redacted
}
