package pattern

import (
	"regexp"
	"strings"
	"unicode"
)

// diacriticClasses maps a base letter to itself plus its accented variants.
var diacriticClasses = []string{
	"aÀÁÂÃÄÅàáâãäåĀāąĄ",
	"cÇçćĆčČ",
	"dđĐďĎ",
	"eÈÉÊËèéêëěĚĒēęĘ",
	"iÌÍÎÏìíîïĪī",
	"lłŁ",
	"nÑñňŇńŃ",
	"oÒÓÔÕÖØòóôõöøŌō",
	"rřŘ",
	"sŠšśŚ",
	"tťŤ",
	"uÙÚÛÜùúûüůŮŪū",
	"yŸÿýÝ",
	"zŽžżŻźŹ",
}

var diacriticMatchers = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(diacriticClasses))
	for i, class := range diacriticClasses {
		out[i] = regexp.MustCompile(`(?i)[` + class + `]`)
	}
	return out
}()

// foldDiacritics replaces every letter that belongs to a class with the whole
// class. Each class is expanded at most once.
func foldDiacritics(s string) string {
	handled := make([]bool, len(diacriticClasses))
	for _, ch := range s {
		for i, class := range diacriticClasses {
			if !strings.ContainsRune(class, ch) && !strings.ContainsRune(class, unicode.ToLower(ch)) {
				continue
			}
			if handled[i] {
				break
			}
			s = diacriticMatchers[i].ReplaceAllLiteralString(s, "["+class+"]")
			handled[i] = true
		}
	}
	return s
}
