package mark

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"

	"markhtml/internal/pattern"
)

// Accuracy is either a bare mode ("partially", "complementary", "exactly")
// or a mode with limiter characters. Both shapes decode from JSON and YAML.
type Accuracy struct {
	Value    string   `json:"value" yaml:"value"`
	Limiters []string `json:"limiters,omitempty" yaml:"limiters,omitempty"`
}

func (a *Accuracy) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*a = Accuracy{Value: s}
		return nil
	}
	type plain Accuracy
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return fmt.Errorf("accuracy: %w", err)
	}
	*a = Accuracy(p)
	return nil
}

func (a *Accuracy) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*a = Accuracy{Value: node.Value}
		return nil
	}
	type plain Accuracy
	var p plain
	if err := node.Decode(&p); err != nil {
		return fmt.Errorf("accuracy: %w", err)
	}
	*a = Accuracy(p)
	return nil
}

// Options configures one call. Start from DefaultOptions: the zero value
// disables separate word search and diacritics.
type Options struct {
	// Element is the wrapper tag; "mark" when empty.
	Element   string   `json:"element" yaml:"element"`
	ClassName string   `json:"className" yaml:"className"`
	Exclude   []string `json:"exclude" yaml:"exclude"`

	Iframes bool `json:"iframes" yaml:"iframes"`
	// IframesTimeout bounds the wait for a single iframe to load. Zero
	// waits until the call's context is done. Files give it as a duration
	// string ("5s"); JSON also accepts a number of milliseconds.
	IframesTimeout time.Duration `json:"iframesTimeout" yaml:"iframesTimeout"`

	SeparateWordSearch bool              `json:"separateWordSearch" yaml:"separateWordSearch"`
	Diacritics         bool              `json:"diacritics" yaml:"diacritics"`
	Synonyms           map[string]string `json:"synonyms" yaml:"synonyms"`
	Accuracy           Accuracy          `json:"accuracy" yaml:"accuracy"`

	Debug bool `json:"debug" yaml:"debug"`

	// Each receives every inserted wrapper element.
	Each func(el *html.Node) `json:"-" yaml:"-"`
	// NoMatch receives a keyword (or the expression source) without matches.
	NoMatch func(term string) `json:"-" yaml:"-"`
	// Filter may veto a single match. node is the text node being scanned,
	// term the keyword (or the matched text for expressions).
	Filter func(node *html.Node, term string, termMatches, totalMatches int) bool `json:"-" yaml:"-"`
	// Done fires exactly once per call with the total count.
	Done func(total int) `json:"-" yaml:"-"`
	// Logger receives diagnostics when Debug is set.
	Logger *zap.Logger `json:"-" yaml:"-"`
}

func (o *Options) UnmarshalJSON(b []byte) error {
	type plain Options
	aux := struct {
		*plain
		IframesTimeout json.RawMessage `json:"iframesTimeout"`
	}{plain: (*plain)(o)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if len(aux.IframesTimeout) == 0 || string(aux.IframesTimeout) == "null" {
		return nil
	}
	d, err := jsonDuration(aux.IframesTimeout)
	if err != nil {
		return fmt.Errorf("iframesTimeout: %w", err)
	}
	o.IframesTimeout = d
	return nil
}

// jsonDuration decodes a duration string or a number of milliseconds.
func jsonDuration(raw json.RawMessage) (time.Duration, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return time.ParseDuration(s)
	}
	var ms float64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return 0, fmt.Errorf("want a duration string or milliseconds, got %s", raw)
	}
	return time.Duration(ms * float64(time.Millisecond)), nil
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		SeparateWordSearch: true,
		Diacritics:         true,
		Synonyms:           map[string]string{},
		Accuracy:           Accuracy{Value: string(pattern.Partially)},
	}
}

// LoadOptionsFile reads options from a .json, .yaml or .yml file on top of
// DefaultOptions.
func LoadOptionsFile(path string) (Options, error) {
	opt := DefaultOptions()

	b, err := os.ReadFile(path)
	if err != nil {
		return opt, fmt.Errorf("read options file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &opt); err != nil {
			return opt, fmt.Errorf("parse options yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(b, &opt); err != nil {
			return opt, fmt.Errorf("parse options json: %w", err)
		}
	}

	if _, ok := pattern.ParseMode(opt.Accuracy.Value); !ok {
		return opt, fmt.Errorf("options: unknown accuracy %q", opt.Accuracy.Value)
	}
	return opt, nil
}

// resolved is Options with every callback and the logger filled in.
type resolved struct {
	Options
	log *zap.Logger
}

func (o Options) resolve() resolved {
	if o.Each == nil {
		o.Each = func(*html.Node) {}
	}
	if o.NoMatch == nil {
		o.NoMatch = func(string) {}
	}
	if o.Filter == nil {
		o.Filter = func(*html.Node, string, int, int) bool { return true }
	}
	if o.Done == nil {
		o.Done = func(int) {}
	}

	log := zap.NewNop()
	if o.Debug && o.Logger != nil {
		log = o.Logger.Named("mark")
	}
	return resolved{Options: o, log: log}
}

func (o resolved) patternConfig() pattern.Config {
	mode, ok := pattern.ParseMode(o.Accuracy.Value)
	if !ok {
		o.log.Warn("unknown accuracy, using partially", zap.String("accuracy", o.Accuracy.Value))
	}
	return pattern.Config{
		Diacritics: o.Diacritics,
		Synonyms:   o.Synonyms,
		Accuracy:   pattern.Accuracy{Mode: mode, Limiters: o.Accuracy.Limiters},
	}
}
