// Package query builds OData filters and runs hybrid searches against
// the code index. Filters are assembled as a typed expression tree and
// rendered to strings only at the edge; terms are sanitized when the
// tree is built, never at render time.
package query

import (
	"fmt"
	"strings"
)

// maxTermLength clamps user-supplied terms before they enter a filter.
const maxTermLength = 200

// NoMatchSentinel is the clause emitted for terms that fail
// sanitization. It matches nothing, so a poisoned term disables its
// own clause without failing the query.
const NoMatchSentinel = "(1 eq 0)"

// suspiciousSubstrings disqualify a term from appearing inside a
// filter expression.
var suspiciousSubstrings = []string{
	" or ", " and ", " eq ", "--", "/*", "*/", "(", ")", ";",
}

// Expr is a node of the filter expression tree.
type Expr interface {
	Render() string
}

type eqExpr struct {
	field string
	value string
}

// Eq matches field equal to value. The value is quote-escaped.
func Eq(field, value string) Expr {
	return eqExpr{field: field, value: escapeQuotes(value)}
}

func (e eqExpr) Render() string {
	return fmt.Sprintf("%s eq '%s'", e.field, e.value)
}

type isMatchExpr struct {
	term   string
	fields []string
}

// IsMatch performs full-text matching of term over fields. A term that
// fails sanitization renders as the no-match sentinel.
func IsMatch(term string, fields ...string) Expr {
	clean, ok := SanitizeTerm(term)
	if !ok {
		return noMatch{}
	}
	return isMatchExpr{term: clean, fields: fields}
}

func (e isMatchExpr) Render() string {
	return fmt.Sprintf("search.ismatch('%s', '%s')", e.term, strings.Join(e.fields, ","))
}

// PathPrefix performs a wildcard prefix match over fields. Prefixes
// come from configuration, not user input, so only quote escaping
// applies; the term sanitizer would reject the wildcard.
func PathPrefix(prefix string, fields ...string) Expr {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil
	}
	return isMatchExpr{term: escapeQuotes(prefix) + "*", fields: fields}
}

type noMatch struct{}

func (noMatch) Render() string { return NoMatchSentinel }

// NoMatch is the expression form of the sentinel.
func NoMatch() Expr { return noMatch{} }

type boolExpr struct {
	op    string
	terms []Expr
}

// And conjoins expressions, skipping nils.
func And(terms ...Expr) Expr { return newBool("and", terms) }

// Or disjoins expressions, skipping nils.
func Or(terms ...Expr) Expr { return newBool("or", terms) }

func newBool(op string, terms []Expr) Expr {
	kept := make([]Expr, 0, len(terms))
	for _, t := range terms {
		if t != nil {
			kept = append(kept, t)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return boolExpr{op: op, terms: kept}
}

func (e boolExpr) Render() string {
	parts := make([]string, len(e.terms))
	for i, t := range e.terms {
		parts[i] = t.Render()
	}
	return "(" + strings.Join(parts, " "+e.op+" ") + ")"
}

type notExpr struct {
	inner Expr
}

// Not negates an expression.
func Not(inner Expr) Expr {
	if inner == nil {
		return nil
	}
	return notExpr{inner: inner}
}

func (e notExpr) Render() string {
	return "not " + e.inner.Render()
}

type rawExpr string

// Raw wraps an already-rendered filter, for combining a caller's
// filter string with built clauses.
func Raw(filter string) Expr {
	if strings.TrimSpace(filter) == "" {
		return nil
	}
	return rawExpr("(" + filter + ")")
}

func (e rawExpr) Render() string { return string(e) }

// Render renders an expression tree, returning "" for nil.
func Render(e Expr) string {
	if e == nil {
		return ""
	}
	return e.Render()
}

// SanitizeTerm clamps a term to maxTermLength, strips it to printable
// ASCII, and rejects terms carrying filter syntax. The second return
// is false when the term must not appear in a filter.
func SanitizeTerm(term string) (string, bool) {
	if len(term) > maxTermLength {
		term = term[:maxTermLength]
	}

	var b strings.Builder
	for i := 0; i < len(term); i++ {
		if term[i] >= 32 && term[i] <= 126 {
			b.WriteByte(term[i])
		}
	}
	clean := b.String()
	if strings.TrimSpace(clean) == "" {
		return "", false
	}

	lower := strings.ToLower(clean)
	for _, bad := range suspiciousSubstrings {
		if strings.Contains(lower, bad) {
			return "", false
		}
	}
	return escapeQuotes(clean), true
}

// escapeQuotes doubles single quotes per OData string literal rules.
func escapeQuotes(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
