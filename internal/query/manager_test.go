package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRepositoryClause(t *testing.T) {
	m := NewFilterManager(nil)
	got := Render(m.RepositoryClause("kestrel"))
	assert.Equal(t,
		"(repository eq 'kestrel' or search.ismatch('kestrel', 'repository,file_path'))",
		got)
}

func TestRepositoryClauseExcludesPrefixes(t *testing.T) {
	m := NewFilterManager([]string{"venv/", "node_modules/"})
	got := Render(m.RepositoryClause("kestrel"))
	assert.Contains(t, got, "not search.ismatch('venv/*', 'file_path')")
	assert.Contains(t, got, "not search.ismatch('node_modules/*', 'file_path')")
	assert.NotContains(t, got, NoMatchSentinel)
}

func TestBuildComposesClauses(t *testing.T) {
	m := NewFilterManager(nil)
	got := m.Build(Filters{
		Repository: "kestrel",
		Language:   "Go",
		ExactTerms: []string{"authenticate"},
	})
	assert.Contains(t, got, "repository eq 'kestrel'")
	assert.Contains(t, got, "language eq 'go'")
	assert.Contains(t, got, "search.ismatch('authenticate', 'content,function_name,class_name,docstring')")
}

func TestBuildEmpty(t *testing.T) {
	m := NewFilterManager(nil)
	assert.Equal(t, "", m.Build(Filters{}))
}

func TestExactTermsClauseNeutralizesInjection(t *testing.T) {
	got := Render(ExactTermsClause([]string{"' or '1'='1"}))
	assert.Equal(t, NoMatchSentinel, got)

	got = Render(ExactTermsClause([]string{"safe", "' or '1'='1"}))
	assert.Contains(t, got, "search.ismatch('safe'")
	assert.Contains(t, got, NoMatchSentinel)
}

func TestFrameworkClause(t *testing.T) {
	m := NewFilterManager(nil)
	assert.Equal(t,
		"search.ismatch('gin-gonic', 'imports,dependencies')",
		Render(m.FrameworkClause("gin-gonic")))
}

func TestExcludeTerms(t *testing.T) {
	m := NewFilterManager(nil)
	got := m.Build(Filters{ExcludeTerms: []string{"deprecated"}})
	assert.Equal(t, "not search.ismatch('deprecated', 'content,function_name,class_name,docstring')", got)
}
