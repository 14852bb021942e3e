package source

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

// TestLoader_Stdin verifies stdin input is read and returned as string.
//
// This is the most common mode when piping HTML from another program.
func TestLoader_Stdin(t *testing.T) {
	t.Parallel()

	l := NewLoader(http.DefaultClient, 1*time.Second)
	html, err := l.Load(context.Background(), Input{
		Stdin: bytes.NewBufferString("<p>x</p>"),
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if html != "<p>x</p>" {
		t.Fatalf("unexpected html: %q", html)
	}
}

// TestLoader_URL verifies the body is returned and the user agent is set.
func TestLoader_URL(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Header.Get("User-Agent")))
	}))
	t.Cleanup(srv.Close)

	l := NewLoader(srv.Client(), 0)
	body, err := l.Load(context.Background(), Input{URL: srv.URL})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if body != "markhtml/1.0" {
		t.Fatalf("unexpected body: %q", body)
	}
}

// TestLoader_URL_Non2xx verifies we include status code and a body snippet.
func TestLoader_URL_Non2xx(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	l := NewLoader(&http.Client{Timeout: 2 * time.Second}, 2*time.Second)
	_, err := l.Load(context.Background(), Input{URL: srv.URL})
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	msg := err.Error()
	if !strings.Contains(msg, "http status 403") || !strings.Contains(msg, "nope") {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestResolveHref verifies relative references resolve against the base.
func TestResolveHref(t *testing.T) {
	t.Parallel()

	base, _ := url.Parse("https://example.com/a/b.html")
	cases := map[string]string{
		"c.html":              "https://example.com/a/c.html",
		"/root.html":          "https://example.com/root.html",
		"https://other.org/x": "https://other.org/x",
		"../up.html?q=1":      "https://example.com/up.html?q=1",
	}
	for in, want := range cases {
		if got := ResolveHref(base, in); got != want {
			t.Fatalf("ResolveHref(%q)=%q want %q", in, got, want)
		}
	}
	if got := ResolveHref(nil, "x.html"); got != "x.html" {
		t.Fatalf("nil base: %q", got)
	}
}
