package source

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// File is one parsed document handed to a DirFunc.
type File struct {
	Name string
	Path string
	Doc  *goquery.Document
}

// DirFunc processes one file and returns the report to emit for it. A nil
// report emits nothing.
type DirFunc func(f File) (map[string]any, error)

// EachFile streams a single JSON array to w, emitting the report fn returns
// for each HTML file in dir, with "source_file" added.
//
// Files are visited in filename order. Unreadable or unparseable files are
// skipped; an error from fn aborts the stream.
func EachFile(w io.Writer, dir string, fn DirFunc, enc *json.Encoder) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	if _, err := io.WriteString(w, "["); err != nil {
		return fmt.Errorf("write [: %w", err)
	}

	first := true
	for _, e := range entries {
		if e.IsDir() || !isHTML(e.Name()) {
			continue
		}

		full := filepath.Join(dir, e.Name())
		b, err := os.ReadFile(full)
		if err != nil {
			continue
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(b)))
		if err != nil {
			continue
		}

		report, err := fn(File{Name: e.Name(), Path: full, Doc: doc})
		if err != nil {
			return fmt.Errorf("%s: %w", e.Name(), err)
		}
		if report == nil {
			continue
		}
		report["source_file"] = e.Name()

		if !first {
			if _, err := io.WriteString(w, ","); err != nil {
				return fmt.Errorf("write comma: %w", err)
			}
		}
		first = false
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
	}

	if _, err := io.WriteString(w, "]"); err != nil {
		return fmt.Errorf("write ]: %w", err)
	}
	return nil
}

func isHTML(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm", ".xhtml":
		return true
	}
	return false
}
