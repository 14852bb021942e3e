// Command markhtml highlights keywords in HTML and prints the result.
//
// Usage (stdin):
//
//	cat page.html | markhtml -keywords "lorem ipsum,dolor"
//
// Usage (fetch URL, following same-origin iframes):
//
//	markhtml -url "https://example.com/page" -keywords "lorem" -iframes
//
// Usage (regular expression, whole match is wrapped):
//
//	cat page.html | markhtml -pattern "[0-9]{4}"
//
// Usage (remove earlier highlights):
//
//	cat marked.html | markhtml -unmark -class hit
//
// Usage (directory mode, one JSON report per file):
//
//	markhtml -dir "./pages" -keywords "lorem" -out "./marked"
//
// Debug (print the wrappers instead of the document):
//
//	cat page.html | markhtml -keywords "lorem" -list -text
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/net/html"

	"markhtml/internal/dom"
	"markhtml/internal/frame"
	"markhtml/internal/mark"
	"markhtml/internal/pattern"
	"markhtml/internal/source"
)

func main() {
	os.Exit(run(
		context.Background(),
		os.Args[1:],
		os.Stdin,
		os.Stdout,
		os.Stderr,
		http.DefaultClient,
	))
}

// run is split out from main so we can unit test the command without spawning
// an OS process.
//
// It returns a Unix-style exit code:
//   - 0 for success
//   - 2 for usage/config errors
//   - 1 for operational/runtime errors
func run(
	ctx context.Context,
	args []string,
	stdin io.Reader,
	stdout io.Writer,
	stderr io.Writer,
	httpClient *http.Client,
) int {
	fs := flag.NewFlagSet("markhtml", flag.ContinueOnError)
	fs.SetOutput(stderr)

	keywordsFlag := fs.String("keywords", "", "Comma-separated keywords to highlight")
	patternFlag := fs.String("pattern", "", "Regular expression to highlight instead of keywords")
	unmark := fs.Bool("unmark", false, "Remove highlights instead of adding them")
	optionsPath := fs.String("options", "", "Optional: options file (.json, .yaml or .yml)")
	urlFlag := fs.String("url", "", "Optional: fetch HTML from URL instead of stdin")
	dirFlag := fs.String("dir", "", "Optional: directory containing HTML files (one report per file)")
	outDir := fs.String("out", "", "Directory mode: write marked files here")
	contextSel := fs.String("context", "", "CSS selector limiting the marked region (default: whole document)")
	element := fs.String("element", "", "Wrapper element tag")
	className := fs.String("class", "", "Class name added to (or required on) wrappers")
	exclude := fs.String("exclude", "", "Comma-separated CSS selectors whose content is never marked")
	accuracy := fs.String("accuracy", "", "partially, complementary or exactly")
	iframes := fs.Bool("iframes", false, "Also mark the documents of iframes")
	framesDir := fs.String("frames-dir", "", "Directory iframe sources are read from (default: -dir)")
	timeout := fs.Duration("timeout", 20*time.Second, "Timeout for -url fetches and for each iframe")
	debug := fs.Bool("debug", false, "Log diagnostics to stderr")
	list := fs.Bool("list", false, "Debug: print the inserted wrappers instead of the document")
	onlyText := fs.Bool("text", false, "Debug: with -list, print wrapper text instead of HTML")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	modes := 0
	for _, on := range []bool{*keywordsFlag != "", *patternFlag != "", *unmark} {
		if on {
			modes++
		}
	}
	if modes != 1 {
		fmt.Fprintf(stderr, "exactly one of -keywords, -pattern or -unmark is required\n")
		return 2
	}
	if *list && *unmark {
		fmt.Fprintf(stderr, "-list cannot be combined with -unmark\n")
		return 2
	}
	if *outDir != "" && *dirFlag == "" {
		fmt.Fprintf(stderr, "-out requires -dir\n")
		return 2
	}

	opt := mark.DefaultOptions()
	if *optionsPath != "" {
		var err error
		if opt, err = mark.LoadOptionsFile(*optionsPath); err != nil {
			fmt.Fprintf(stderr, "load options: %v\n", err)
			return 2
		}
	}
	if set["element"] {
		opt.Element = *element
	}
	if set["class"] {
		opt.ClassName = *className
	}
	if set["exclude"] {
		opt.Exclude = append(opt.Exclude, splitCSV(*exclude)...)
	}
	if set["accuracy"] {
		if _, ok := pattern.ParseMode(*accuracy); !ok {
			fmt.Fprintf(stderr, "unknown -accuracy %q\n", *accuracy)
			return 2
		}
		opt.Accuracy = mark.Accuracy{Value: *accuracy}
	}
	if set["iframes"] {
		opt.Iframes = *iframes
	}
	if opt.Iframes && opt.IframesTimeout == 0 {
		opt.IframesTimeout = *timeout
	}
	if *debug {
		opt.Debug = true
		opt.Logger = newLogger(stderr)
		defer func() { _ = opt.Logger.Sync() }()
	}

	var re *regexp.Regexp
	if *patternFlag != "" {
		var err error
		if re, err = regexp.Compile(*patternFlag); err != nil {
			fmt.Fprintf(stderr, "compile -pattern: %v\n", err)
			return 2
		}
	}
	keywords := splitCSV(*keywordsFlag)

	// apply runs the selected operation on one document and returns the
	// count plus the keywords that had no match.
	apply := func(doc *goquery.Document, frames frame.Resolver, o mark.Options) (int, []string) {
		var noMatch []string
		o.NoMatch = func(term string) { noMatch = append(noMatch, term) }

		sel := doc.Selection
		if *contextSel != "" {
			sel = doc.Find(*contextSel)
		}
		m := mark.FromSelection(frames, sel)

		switch {
		case *unmark:
			return m.Unmark(ctx, o), nil
		case re != nil:
			return m.MarkRegExp(ctx, re, o), noMatch
		default:
			return m.Mark(ctx, keywords, o), noMatch
		}
	}

	loader := source.NewLoader(httpClient, *timeout)

	// Directory mode: stream output as a single JSON array.
	if *dirFlag != "" {
		root := *framesDir
		if root == "" {
			root = *dirFlag
		}
		frames := frame.NewStatic(frame.DirFetcher(root))

		if *outDir != "" {
			if err := os.MkdirAll(*outDir, 0o755); err != nil {
				fmt.Fprintf(stderr, "create -out: %v\n", err)
				return 1
			}
		}

		enc := json.NewEncoder(stdout)
		enc.SetEscapeHTML(false)

		err := source.EachFile(stdout, *dirFlag, func(f source.File) (map[string]any, error) {
			n, noMatch := apply(f.Doc, frames, opt)
			report := map[string]any{"total": n}
			if len(noMatch) > 0 {
				report["no_match"] = noMatch
			}
			if *outDir != "" {
				out, err := f.Doc.Html()
				if err != nil {
					return nil, fmt.Errorf("render: %w", err)
				}
				if err := os.WriteFile(filepath.Join(*outDir, f.Name), []byte(out), 0o644); err != nil {
					return nil, fmt.Errorf("write marked file: %w", err)
				}
			}
			return report, nil
		}, enc)
		if err != nil {
			fmt.Fprintf(stderr, "dir mark: %v\n", err)
			return 1
		}
		return 0
	}

	// Single input mode: stdin OR -url
	body, err := loader.Load(ctx, source.Input{
		URL:   *urlFlag,
		Stdin: stdin,
	})
	if err != nil {
		fmt.Fprintf(stderr, "load html: %v\n", err)
		return 1
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		fmt.Fprintf(stderr, "parse html: %v\n", err)
		return 1
	}

	var frames frame.Resolver
	switch {
	case *framesDir != "":
		frames = frame.NewStatic(frame.DirFetcher(*framesDir))
	case *urlFlag != "":
		base, err := url.Parse(*urlFlag)
		if err != nil {
			fmt.Fprintf(stderr, "parse -url: %v\n", err)
			return 2
		}
		frames = frame.NewHTTP(loader, base)
	}

	var wrappers []*html.Node
	if *list {
		opt.Each = func(el *html.Node) { wrappers = append(wrappers, el) }
	}
	apply(doc, frames, opt)

	if *list {
		printWrappers(stdout, wrappers, *onlyText)
		return 0
	}

	out, err := doc.Html()
	if err != nil {
		fmt.Fprintf(stderr, "render html: %v\n", err)
		return 1
	}
	if _, err := io.WriteString(stdout, out); err != nil {
		fmt.Fprintf(stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}

// printWrappers prints either outer HTML or text of each wrapper, separated
// by blank lines.
func printWrappers(w io.Writer, wrappers []*html.Node, textOnly bool) {
	for _, el := range wrappers {
		if textOnly {
			fmt.Fprintln(w, strings.TrimSpace(dom.TextContent(el)))
			fmt.Fprintln(w)
			continue
		}
		out, err := goquery.OuterHtml(goquery.NewDocumentFromNode(el).Selection)
		if err != nil {
			fmt.Fprintln(w, dom.TextContent(el))
			fmt.Fprintln(w)
			continue
		}
		fmt.Fprintln(w, out)
		fmt.Fprintln(w)
	}
}

// newLogger returns a development console logger writing to w.
func newLogger(w io.Writer) *zap.Logger {
	enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), zapcore.DebugLevel), zap.Development())
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
