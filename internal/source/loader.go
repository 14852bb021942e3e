// Package source reads the HTML documents the marker operates on: from
// stdin, over HTTP, or from a directory of files.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Input names the document to mark: a page or iframe URL, or piped HTML.
type Input struct {
	URL string

	// Stdin is read when URL is empty; nil reads as an empty document.
	Stdin io.Reader
}

// Loader reads the documents the command marks. The same Loader fetches the
// top-level page and, through frame.HTTP, every same-origin iframe, so all
// requests share one client and timeout.
type Loader struct {
	client  *http.Client
	timeout time.Duration
}

// NewLoader returns a Loader using client, or http.DefaultClient when nil.
// A timeout of zero leaves requests bounded only by ctx.
func NewLoader(client *http.Client, timeout time.Duration) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Loader{
		client:  client,
		timeout: timeout,
	}
}

// Load returns the HTML of input. A non-2xx response is an error carrying the
// status and the first 4KB of the body; for an iframe that error ends up in
// the frame's Document and the branch is skipped.
func (l *Loader) Load(ctx context.Context, input Input) (string, error) {
	if strings.TrimSpace(input.URL) == "" {
		if input.Stdin == nil {
			return "", nil
		}
		b, err := io.ReadAll(input.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, input.URL, nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", "markhtml/1.0")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("http status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(b), nil
}

// ResolveHref resolves an iframe src (or any href) against the URL of the
// document containing it. An unparseable href is returned unchanged.
func ResolveHref(base *url.URL, href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if base == nil {
		return u.String()
	}
	return base.ResolveReference(u).String()
}
