package chunk

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// grammar binds a tree-sitter language to the node types we extract
// chunks from.
type grammar struct {
	language *sitter.Language
	// functionTypes are node types emitted as function chunks.
	functionTypes map[string]bool
	// classTypes are node types emitted as class chunks.
	classTypes map[string]bool
	// commentType is the grammar's comment node type, used to collect
	// docstrings from leading comments.
	commentType string
	// methodsNested is true when methods live inside class bodies
	// rather than at the top level.
	methodsNested bool
}

var grammars = map[string]*grammar{
	"go": {
		language: golang.GetLanguage(),
		functionTypes: map[string]bool{
			"function_declaration": true,
			"method_declaration":   true,
		},
		classTypes:  map[string]bool{"type_declaration": true},
		commentType: "comment",
	},
	"python": {
		language:      python.GetLanguage(),
		functionTypes: map[string]bool{"function_definition": true},
		classTypes:    map[string]bool{"class_definition": true},
		commentType:   "comment",
		methodsNested: true,
	},
	"javascript": {
		language: javascript.GetLanguage(),
		functionTypes: map[string]bool{
			"function_declaration":           true,
			"generator_function_declaration": true,
		},
		classTypes:  map[string]bool{"class_declaration": true},
		commentType: "comment",
	},
	"typescript": {
		language: typescript.GetLanguage(),
		functionTypes: map[string]bool{
			"function_declaration": true,
		},
		classTypes: map[string]bool{
			"class_declaration":     true,
			"interface_declaration": true,
		},
		commentType: "comment",
	},
	"tsx": {
		language: tsx.GetLanguage(),
		functionTypes: map[string]bool{
			"function_declaration": true,
		},
		classTypes: map[string]bool{
			"class_declaration":     true,
			"interface_declaration": true,
		},
		commentType: "comment",
	},
}

// grammarFor returns the grammar for a language tag, or nil when the
// language has no registered parser.
func grammarFor(language string) *grammar {
	return grammars[language]
}

// SupportedLanguages lists language tags with a registered grammar.
func SupportedLanguages() []string {
	out := make([]string, 0, len(grammars))
	for name := range grammars {
		out = append(out, name)
	}
	return out
}
