package walk

import (
	"github.com/andybalholm/cascadia"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"markhtml/internal/dom"
)

// builtinExclusions are never searched or unmarked.
var builtinExclusions = []string{"script", "style", "title"}

var markedSelector = cascadia.MustCompile("*[" + dom.MarkerAttr + "='true']")

// Exclusion decides which elements are skipped.
type Exclusion struct {
	selectors []cascadia.Selector
}

// NewExclusion compiles the configured selectors on top of the built-in set.
// Selectors that do not compile are logged and ignored.
func NewExclusion(selectors []string, log *zap.Logger) *Exclusion {
	if log == nil {
		log = zap.NewNop()
	}
	all := append(append([]string{}, selectors...), builtinExclusions...)

	ex := &Exclusion{}
	for _, sel := range all {
		s, err := cascadia.Compile(sel)
		if err != nil {
			log.Warn("ignoring invalid exclude selector", zap.String("selector", sel), zap.Error(err))
			continue
		}
		ex.selectors = append(ex.selectors, s)
	}
	return ex
}

// Matches reports whether el is excluded. With marking set, elements already
// produced by a previous mark are excluded too, so their content is never
// wrapped again.
func (e *Exclusion) Matches(el *html.Node, marking bool) bool {
	if el == nil || el.Type != html.ElementNode {
		return false
	}
	for _, s := range e.selectors {
		if s.Match(el) {
			return true
		}
	}
	return marking && markedSelector.Match(el)
}
