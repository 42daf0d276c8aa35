// Package taxonomy holds the set of OKPD2 codes treated as software purchases.
package taxonomy

import (
	"regexp"
	"sort"
	"strings"
)

// codePattern matches OKPD2-style codes: "62", "58.29", "58.29.29.000".
var codePattern = regexp.MustCompile(`^\d{2}(\.\d{1,3})*$`)

// IsCode reports whether s looks like a classification code.
func IsCode(s string) bool {
	return codePattern.MatchString(strings.TrimSpace(s))
}

// Taxonomy is one named classifier group and its member codes. It is built
// once before ingestion and only read afterwards.
type Taxonomy struct {
	Classifier string
	codes      map[string]struct{}
}

func New(classifier string, codes []string) *Taxonomy {
	t := &Taxonomy{Classifier: classifier, codes: make(map[string]struct{}, len(codes))}
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c != "" {
			t.codes[c] = struct{}{}
		}
	}
	return t
}

// Contains is the classification gate: exact membership of the trimmed code.
func (t *Taxonomy) Contains(code string) bool {
	if t == nil {
		return false
	}
	_, ok := t.codes[strings.TrimSpace(code)]
	return ok
}

func (t *Taxonomy) Len() int {
	if t == nil {
		return 0
	}
	return len(t.codes)
}

// Codes returns the member codes in sorted order.
func (t *Taxonomy) Codes() []string {
	out := make([]string, 0, t.Len())
	if t == nil {
		return out
	}
	for c := range t.codes {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
