package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCmd(t *testing.T, args []string, stdin string) (int, string, string) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	code := run(
		context.Background(),
		args,
		bytes.NewBufferString(stdin),
		&stdout,
		&stderr,
		http.DefaultClient,
	)
	return code, stdout.String(), stderr.String()
}

// TestRun_StdinKeywords verifies the "stdin + keywords" happy path.
//
// We test via run() (not main()) so the test is fast, deterministic,
// and does not require an OS-level subprocess.
func TestRun_StdinKeywords(t *testing.T) {
	t.Parallel()

	code, out, errOut := runCmd(t,
		[]string{"-keywords", "quick,fox", "-class", "hit"},
		`<html><head><title>quick</title></head><body><p>The Quick Brown Fox</p></body></html>`,
	)
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, errOut)
	}
	want := `<p>The <mark data-markjs="true" class="hit">Quick</mark> Brown <mark data-markjs="true" class="hit">Fox</mark></p>`
	if !strings.Contains(out, want) {
		t.Fatalf("unexpected output: %s", out)
	}
	if !strings.Contains(out, "<title>quick</title>") {
		t.Fatalf("title must not be marked: %s", out)
	}
}

// TestRun_ListText verifies -list -text prints the wrapper text blocks.
func TestRun_ListText(t *testing.T) {
	t.Parallel()

	code, out, errOut := runCmd(t,
		[]string{"-pattern", "[0-9]+", "-list", "-text"},
		`<p>call 555 or 12</p>`,
	)
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, errOut)
	}
	if out != "555\n\n12\n\n" {
		t.Fatalf("unexpected list output: %q", out)
	}
}

// TestRun_Unmark verifies -unmark removes only wrappers with the class.
func TestRun_Unmark(t *testing.T) {
	t.Parallel()

	code, out, errOut := runCmd(t,
		[]string{"-unmark", "-class", "hit", "-context", "p"},
		`<p><mark data-markjs="true" class="hit">a</mark><mark data-markjs="true">b</mark></p>`,
	)
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, errOut)
	}
	if !strings.Contains(out, `<p>a<mark data-markjs="true">b</mark></p>`) {
		t.Fatalf("unexpected output: %s", out)
	}
}

// TestRun_OptionsFileAndOverrides verifies flags override the options file.
func TestRun_OptionsFileAndOverrides(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "opts.yaml")
	if err := os.WriteFile(path, []byte("element: span\naccuracy: exactly\nexclude: [\".skip\"]\n"), 0o600); err != nil {
		t.Fatalf("write options: %v", err)
	}

	code, out, errOut := runCmd(t,
		[]string{"-options", path, "-keywords", "cat", "-element", "em"},
		`<p>cat catalog</p><p class="skip">cat</p>`,
	)
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, errOut)
	}
	if !strings.Contains(out, `<p><em data-markjs="true">cat</em> catalog</p><p class="skip">cat</p>`) {
		t.Fatalf("unexpected output: %s", out)
	}
}

// TestRun_UsageErrors verifies usage problems return 2.
func TestRun_UsageErrors(t *testing.T) {
	t.Parallel()

	cases := [][]string{
		{},
		{"-keywords", "a", "-pattern", "b"},
		{"-pattern", "("},
		{"-keywords", "a", "-accuracy", "roughly"},
		{"-unmark", "-list"},
		{"-keywords", "a", "-out", "x"},
		{"-options", filepath.Join(t.TempDir(), "missing.json"), "-keywords", "a"},
	}
	for _, args := range cases {
		if code, _, _ := runCmd(t, args, ""); code != 2 {
			t.Fatalf("args %v: code=%d want 2", args, code)
		}
	}
}

// TestRun_URLWithIframes verifies -url fetches the page and same-origin
// iframes are marked through HTTP.
//
// We use httptest so the test does not hit real network.
func TestRun_URLWithIframes(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/page.html":
			_, _ = w.Write([]byte(`<p>lorem</p><iframe src="frame.html"></iframe>`))
		case "/frame.html":
			_, _ = w.Write([]byte(`<p>lorem inside</p>`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	var stdout, stderr bytes.Buffer
	code := run(
		context.Background(),
		[]string{"-url", srv.URL + "/page.html", "-keywords", "lorem", "-iframes", "-list"},
		nil,
		&stdout,
		&stderr,
		srv.Client(),
	)
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, stderr.String())
	}
	if got := strings.Count(stdout.String(), `<mark data-markjs="true">lorem</mark>`); got != 2 {
		t.Fatalf("want 2 wrappers, got %d: %s", got, stdout.String())
	}
}

// TestRun_URL_Non2xx verifies fetch failures return 1.
func TestRun_URL_Non2xx(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-url", srv.URL, "-keywords", "x"}, nil, &stdout, &stderr, srv.Client())
	if code != 1 {
		t.Fatalf("code=%d want 1", code)
	}
	if !strings.Contains(stderr.String(), "http status 403") {
		t.Fatalf("unexpected stderr: %s", stderr.String())
	}
}

// TestRun_DirMode verifies one report per file, iframe sources read from the
// same directory and marked files written to -out.
func TestRun_DirMode(t *testing.T) {
	t.Parallel()

	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "marked")

	files := map[string]string{
		"a.html":    `<p>alpha beta</p>`,
		"b.html":    `<p>gamma</p><iframe src="frames/inner.xml"></iframe>`,
		"notes.txt": `alpha`,
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(in, name), []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(filepath.Join(in, "frames"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(in, "frames", "inner.xml"), []byte(`<p>alpha</p>`), 0o600); err != nil {
		t.Fatal(err)
	}

	code, stdout, errOut := runCmd(t, []string{"-dir", in, "-out", out, "-keywords", "alpha,delta", "-iframes"}, "")
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, errOut)
	}

	var arr []map[string]any
	if err := json.Unmarshal([]byte(stdout), &arr); err != nil {
		t.Fatalf("stdout is not valid json: %v; out=%s", err, stdout)
	}
	if len(arr) != 2 {
		t.Fatalf("want 2 reports got %d: %s", len(arr), stdout)
	}
	if arr[0]["source_file"] != "a.html" || arr[0]["total"] != float64(1) {
		t.Fatalf("unexpected first report: %#v", arr[0])
	}
	if arr[1]["source_file"] != "b.html" || arr[1]["total"] != float64(1) {
		t.Fatalf("unexpected second report: %#v", arr[1])
	}
	noMatch, _ := arr[0]["no_match"].([]any)
	if len(noMatch) != 1 || noMatch[0] != "delta" {
		t.Fatalf("no_match=%#v", arr[0]["no_match"])
	}

	marked, err := os.ReadFile(filepath.Join(out, "a.html"))
	if err != nil {
		t.Fatalf("read marked file: %v", err)
	}
	if !strings.Contains(string(marked), `<mark data-markjs="true">alpha</mark> beta`) {
		t.Fatalf("unexpected marked file: %s", marked)
	}
}
