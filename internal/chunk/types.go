// Package chunk splits source files into semantic units for indexing.
// Go files are parsed with tree-sitter into function, method, and type
// chunks; every other language, and any file that fails to parse,
// becomes a single whole-file chunk.
package chunk

import (
	"context"
	"path/filepath"
	"strings"
)

// Type classifies a chunk.
type Type string

const (
	// TypeFunction is a top-level function or method.
	TypeFunction Type = "function"
	// TypeClass is a type declaration (struct or interface).
	TypeClass Type = "class"
	// TypeFile is a whole-file fallback chunk.
	TypeFile Type = "file"
)

// Chunk is one retrievable unit of a source file.
type Chunk struct {
	Type         Type
	Content      string
	StartLine    int // 1-based
	EndLine      int // inclusive
	FunctionName string
	ClassName    string
	Signature    string
	Docstring    string
	Imports      []string
}

// Chunker splits file content into chunks. Implementations must be
// deterministic: byte-identical input yields identical chunks in
// identical order.
type Chunker interface {
	Chunk(ctx context.Context, path string, content []byte) ([]Chunk, error)
}

// extensionLanguages maps file extensions to language tags.
var extensionLanguages = map[string]string{
	".go":    "go",
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "tsx",
	".java":  "java",
	".rs":    "rust",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".rb":    "ruby",
	".php":   "php",
	".swift": "swift",
	".kt":    "kotlin",
	".scala": "scala",
	".sh":    "shell",
	".bash":  "shell",
	".sql":   "sql",
	".md":    "markdown",
	".yaml":  "yaml",
	".yml":   "yaml",
	".json":  "json",
	".toml":  "toml",
	".html":  "html",
	".css":   "css",
}

// LanguageForPath returns the language tag for a file path, or "" when
// the extension is unknown.
func LanguageForPath(path string) string {
	return extensionLanguages[strings.ToLower(filepath.Ext(path))]
}

// CountLines returns the number of lines in content; a trailing newline
// does not add an empty final line.
func CountLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := strings.Count(string(content), "\n")
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}

// FileChunk builds the whole-file fallback chunk spanning [1, lines].
func FileChunk(content []byte) Chunk {
	return Chunk{
		Type:      TypeFile,
		Content:   string(content),
		StartLine: 1,
		EndLine:   CountLines(content),
	}
}
