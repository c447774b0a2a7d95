package query

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEqEscapesQuotes(t *testing.T) {
	assert.Equal(t, "repository eq 'o''reilly'", Render(Eq("repository", "o'reilly")))
}

func TestIsMatchRendersFields(t *testing.T) {
	got := Render(IsMatch("authenticate", "content", "function_name"))
	assert.Equal(t, "search.ismatch('authenticate', 'content,function_name')", got)
}

func TestIsMatchRejectsSuspiciousTerms(t *testing.T) {
	for _, term := range []string{
		"' or '1'='1",
		"x and y",
		"a eq b",
		"term--comment",
		"a/*b*/c",
		"call(arg)",
		"stmt;drop",
	} {
		assert.Equal(t, NoMatchSentinel, Render(IsMatch(term, "content")), "term %q", term)
	}
}

func TestPathPrefixKeepsWildcard(t *testing.T) {
	got := Render(PathPrefix("venv/", "file_path"))
	assert.Equal(t, "search.ismatch('venv/*', 'file_path')", got)

	got = Render(PathPrefix("o'reilly/", "file_path"))
	assert.Equal(t, "search.ismatch('o''reilly/*', 'file_path')", got)

	assert.Nil(t, PathPrefix("  ", "file_path"))
}

func TestSanitizeTermClampsAndStrips(t *testing.T) {
	long := strings.Repeat("a", 500)
	clean, ok := SanitizeTerm(long)
	assert.True(t, ok)
	assert.Len(t, clean, maxTermLength)

	clean, ok = SanitizeTerm("tab\tnewline\nok\x00")
	assert.True(t, ok)
	assert.Equal(t, "tabnewlineok", clean)

	_, ok = SanitizeTerm("\x01\x02")
	assert.False(t, ok)
	_, ok = SanitizeTerm("   ")
	assert.False(t, ok)
}

func TestSanitizedTermsHaveNoUnescapedQuotes(t *testing.T) {
	clean, ok := SanitizeTerm("it's a 'test'")
	assert.True(t, ok)
	assert.NotContains(t, strings.ReplaceAll(clean, "''", ""), "'")
}

func TestAndOrComposition(t *testing.T) {
	assert.Equal(t, "", Render(And()))
	assert.Equal(t, "language eq 'go'", Render(And(nil, Eq("language", "go"))))
	assert.Equal(t,
		"(language eq 'go' and repository eq 'kestrel')",
		Render(And(Eq("language", "go"), Eq("repository", "kestrel"))))
	assert.Equal(t,
		"(language eq 'go' or language eq 'python')",
		Render(Or(Eq("language", "go"), Eq("language", "python"))))
}

func TestNotAndRaw(t *testing.T) {
	assert.Equal(t, "not language eq 'go'", Render(Not(Eq("language", "go"))))
	assert.Nil(t, Not(nil))
	assert.Equal(t, "(repository eq 'x')", Render(Raw("repository eq 'x'")))
	assert.Nil(t, Raw("  "))
}

func TestExtractExactTerms(t *testing.T) {
	assert.Equal(t, []string{"exact phrase"}, ExtractExactTerms(`find "exact phrase" here`))
	assert.Equal(t, []string{"single"}, ExtractExactTerms(`find 'single' here`))
	assert.Equal(t, []string{"404"}, ExtractExactTerms("error 404 handling"))
	assert.Empty(t, ExtractExactTerms("error 4 handling"), "single digits do not trigger the pass")
	assert.Empty(t, ExtractExactTerms("plain query"))

	terms := ExtractExactTerms(`"handler" returns 500`)
	assert.Equal(t, []string{"handler", "500"}, terms)
}

func TestExtractExactTermsDeduplicates(t *testing.T) {
	assert.Equal(t, []string{"x"}, ExtractExactTerms(`"x" and "x"`))
}
