package query

import (
	"regexp"
	"strings"
)

// exactMatchFields are the fields the exact-term pass must match in.
var exactMatchFields = []string{"content", "function_name", "class_name", "docstring"}

// Filters describes the structured filter surface exposed to callers.
type Filters struct {
	Repository   string
	Language     string
	Framework    string
	ExactTerms   []string
	ExcludeTerms []string
}

// FilterManager renders structured filters into OData clauses.
type FilterManager struct {
	// ExcludedPathPrefixes are path prefixes removed from every
	// repository-scoped query, e.g. vendored or virtualenv trees that
	// were indexed by mistake.
	ExcludedPathPrefixes []string
}

// NewFilterManager creates a FilterManager with the given path
// exclusions.
func NewFilterManager(excludedPathPrefixes []string) *FilterManager {
	return &FilterManager{ExcludedPathPrefixes: excludedPathPrefixes}
}

// Build renders the full filter for a structured Filters value,
// returning "" when nothing applies.
func (m *FilterManager) Build(f Filters) string {
	return Render(And(
		m.RepositoryClause(f.Repository),
		m.LanguageClause(f.Language),
		m.FrameworkClause(f.Framework),
		ExactTermsClause(f.ExactTerms),
		m.excludeTermsClause(f.ExcludeTerms),
	))
}

// RepositoryClause matches a repository by exact name or by full-text
// match over repository and file_path, which accommodates both bare
// names and owner/repo conventions. Configured path prefixes are
// excluded.
func (m *FilterManager) RepositoryClause(repository string) Expr {
	if repository == "" {
		return nil
	}
	clause := Or(
		Eq("repository", repository),
		IsMatch(repository, "repository", "file_path"),
	)
	for _, prefix := range m.ExcludedPathPrefixes {
		clause = And(clause, Not(PathPrefix(prefix, "file_path")))
	}
	return clause
}

// LanguageClause matches the language tag exactly.
func (m *FilterManager) LanguageClause(language string) Expr {
	if language == "" {
		return nil
	}
	return Eq("language", strings.ToLower(language))
}

// FrameworkClause matches a framework through the import lists.
func (m *FilterManager) FrameworkClause(framework string) Expr {
	if framework == "" {
		return nil
	}
	return IsMatch(framework, "imports", "dependencies")
}

// ExactTermsClause requires every term to match in at least one of the
// exact-match fields.
func ExactTermsClause(terms []string) Expr {
	var clauses []Expr
	for _, term := range terms {
		clauses = append(clauses, IsMatch(term, exactMatchFields...))
	}
	return And(clauses...)
}

func (m *FilterManager) excludeTermsClause(terms []string) Expr {
	var clauses []Expr
	for _, term := range terms {
		clauses = append(clauses, Not(IsMatch(term, exactMatchFields...)))
	}
	return And(clauses...)
}

var (
	quotedPhraseRe = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
	numericRe      = regexp.MustCompile(`\b\d{2,}\b`)
)

// ExtractExactTerms pulls quoted phrases and numeric literals of two
// or more digits out of a query. These trigger the exact-term
// fallback pass.
func ExtractExactTerms(q string) []string {
	var terms []string
	seen := map[string]bool{}
	add := func(term string) {
		term = strings.TrimSpace(term)
		if term != "" && !seen[term] {
			seen[term] = true
			terms = append(terms, term)
		}
	}

	stripped := q
	for _, match := range quotedPhraseRe.FindAllStringSubmatch(q, -1) {
		if match[1] != "" {
			add(match[1])
		} else {
			add(match[2])
		}
		stripped = strings.Replace(stripped, match[0], " ", 1)
	}
	for _, num := range numericRe.FindAllString(stripped, -1) {
		add(num)
	}
	return terms
}
