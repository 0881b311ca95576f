// Package filterstring parses the filter string grammar (§6) used by
// manifests and the CLI: space-separated terms, optionally quoted values,
// conjoined with the literal keyword "and".
package filterstring

import (
	"fmt"
	"strings"
)

// Term is one parsed `<term> <value>...` clause.
type Term struct {
	Name   string
	Values []string
	Mod    string // e.g. "any"/"more"/"less"/"exact" for prefix; empty otherwise
}

var knownTerms = map[string]struct{}{
	"project": {}, "proj": {},
	"collector": {}, "coll": {},
	"router": {}, "rout": {},
	"type":      {},
	"peer":      {},
	"prefix":    {}, "pref": {},
	"community": {}, "comm": {},
	"aspath":    {}, "path": {},
	"ipversion": {}, "ipv": {},
	"elemtype":  {},
}

var prefixModifiers = map[string]struct{}{
	"any": {}, "more": {}, "less": {}, "exact": {},
}

// Parse parses a filter string into its conjunction of terms. Parsing is
// strict: unknown terms, unterminated quotes, and a trailing "and" all
// fail.
func Parse(s string) ([]Term, error) {
	tokens, err := tokenize(s)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, nil
	}

	var terms []Term
	i := 0
	expectTerm := true
	for i < len(tokens) {
		if !expectTerm {
			if tokens[i] != "and" {
				return nil, fmt.Errorf("filterstring: expected %q, got %q", "and", tokens[i])
			}
			i++
			expectTerm = true
			if i >= len(tokens) {
				return nil, fmt.Errorf("filterstring: trailing conjunction")
			}
			continue
		}

		name := tokens[i]
		if _, ok := knownTerms[name]; !ok {
			return nil, fmt.Errorf("filterstring: unknown term %q", name)
		}
		i++

		term := Term{Name: name}
		if (name == "prefix" || name == "pref") && i < len(tokens) {
			if _, ok := prefixModifiers[tokens[i]]; ok {
				term.Mod = tokens[i]
				i++
			}
		}
		for i < len(tokens) && tokens[i] != "and" {
			term.Values = append(term.Values, tokens[i])
			i++
		}
		if len(term.Values) == 0 {
			return nil, fmt.Errorf("filterstring: term %q requires a value", name)
		}
		terms = append(terms, term)
		expectTerm = false
	}

	return terms, nil
}

// tokenize splits s on space characters (tabs and newlines are not
// separators), honoring double-quoted values (which may contain embedded
// spaces). An unterminated quote is an error.
func tokenize(s string) ([]string, error) {
	var tokens []string
	var b strings.Builder
	inQuote := false
	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			inQuote = !inQuote
		case c == ' ' && !inQuote:
			flush()
		default:
			b.WriteByte(c)
		}
	}
	if inQuote {
		return nil, fmt.Errorf("filterstring: unterminated quote")
	}
	flush()
	return tokens, nil
}
