// Package pattern builds the regular expressions used to locate keywords in
// text content.
//
// A keyword is treated as literal text first. The builder then widens it step
// by step (synonyms, diacritics, whitespace) and finally wraps it according to
// the accuracy mode. The resulting source always has two leading capture
// groups: group 1 is the boundary consumed before the keyword (empty unless
// the mode is "exactly") and group 2 is the text to mark.
package pattern

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/dlclark/regexp2"
	"golang.org/x/text/unicode/norm"
)

// Mode selects how much surrounding text participates in a match.
type Mode string

const (
	// Partially matches the keyword anywhere, including inside larger words.
	Partially Mode = "partially"
	// Complementary extends the match over adjacent non-space, non-limiter characters.
	Complementary Mode = "complementary"
	// Exactly matches only whole words or phrases.
	Exactly Mode = "exactly"
)

// ParseMode maps a configuration value onto a Mode. It reports false for
// values it does not recognize.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "partially", "partial":
		return Partially, true
	case "complementary":
		return Complementary, true
	case "exactly", "exact":
		return Exactly, true
	default:
		return Partially, false
	}
}

// Accuracy is the accuracy mode plus optional boundary characters.
// Limiters are only honored by Complementary and Exactly.
type Accuracy struct {
	Mode     Mode
	Limiters []string
}

// Config is the subset of marking options that shapes a pattern.
type Config struct {
	Diacritics bool
	Synonyms   map[string]string
	Accuracy   Accuracy
}

var (
	reMeta   = regexp.MustCompile(`[\-\[\]/{}()*+?.\\^$|]`)
	reBlanks = regexp.MustCompile(`[\s\p{Zs}]+`)
)

// Escape backslash-escapes every regular expression metacharacter in s.
func Escape(s string) string {
	return reMeta.ReplaceAllString(s, `\$0`)
}

// Build turns keyword into a pattern source according to cfg. It never fails;
// an empty keyword yields a valid pattern that only matches empty text.
func Build(keyword string, cfg Config) string {
	s := Escape(norm.NFC.String(keyword))
	if len(cfg.Synonyms) > 0 {
		s = foldSynonyms(s, cfg.Synonyms)
	}
	if cfg.Diacritics {
		s = foldDiacritics(s)
	}
	s = mergeBlanks(s)
	return wrapAccuracy(s, cfg.Accuracy)
}

// Compile builds the pattern for keyword and compiles it case-insensitive and
// multiline.
func Compile(keyword string, cfg Config) (*regexp2.Regexp, error) {
	src := Build(keyword, cfg)
	re, err := regexp2.Compile(src, regexp2.IgnoreCase|regexp2.Multiline)
	if err != nil {
		return nil, fmt.Errorf("compile pattern for %q: %w", keyword, err)
	}
	return re, nil
}

// foldSynonyms replaces both sides of every pair with the alternation of the
// two. Pairs are applied in key order.
func foldSynonyms(s string, synonyms map[string]string) string {
	keys := make([]string, 0, len(synonyms))
	for k := range synonyms {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		k1 := Escape(norm.NFC.String(k))
		k2 := Escape(norm.NFC.String(synonyms[k]))
		if k1 == "" || k2 == "" {
			continue
		}
		re := regexp.MustCompile(`(?i)(` + regexp.QuoteMeta(k1) + `|` + regexp.QuoteMeta(k2) + `)`)
		s = re.ReplaceAllLiteralString(s, "("+k1+"|"+k2+")")
	}
	return s
}

// mergeBlanks lets any run of whitespace in the keyword match any amount of
// whitespace in the text.
func mergeBlanks(s string) string {
	return reBlanks.ReplaceAllLiteralString(s, `[\s]*`)
}

func wrapAccuracy(s string, acc Accuracy) string {
	var alt, class strings.Builder
	for _, l := range acc.Limiters {
		if l == "" {
			continue
		}
		e := Escape(l)
		alt.WriteString("|" + e)
		class.WriteString(e)
	}

	switch acc.Mode {
	case Complementary:
		outside := `[^\s` + class.String() + `]*`
		return `()(` + outside + s + outside + `)`
	case Exactly:
		boundary := `\s` + alt.String()
		return `(^|` + boundary + `)(` + s + `)(?=$|` + boundary + `)`
	default:
		return `()(` + s + `)`
	}
}
