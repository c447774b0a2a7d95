// Package ingest turns repository files into search documents and
// uploads them: scan, chunk, embed, batch.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kestrelsearch/kestrel/internal/chunk"
	"github.com/kestrelsearch/kestrel/internal/ops"
)

const (
	// MaxContentChars caps the content field per document.
	MaxContentChars = 32000

	// maxDocumentBytes is the service's per-document payload limit.
	maxDocumentBytes = 1 << 20

	// maxSerializedBytes keeps serialized documents comfortably under
	// the payload limit, leaving headroom for metadata and the vector.
	maxSerializedBytes = maxDocumentBytes * 8 / 10

	// truncationMarker terminates clipped content so retrieval can see
	// the cut.
	truncationMarker = "..."
)

// Document is one indexed chunk of a repository file.
type Document struct {
	ID            string
	Content       string
	Repository    string
	FilePath      string
	FileExtension string
	Language      string
	ChunkType     chunk.Type
	ChunkID       string
	StartLine     int
	EndLine       int
	FunctionName  string
	ClassName     string
	Signature     string
	Docstring     string
	Imports       []string
	Dependencies  []string
	LastModified  time.Time
	Truncated     bool
	ContentVector []float32
}

// DocumentID derives the stable document key from repository, relative
// path, and chunk index. The same chunk always maps to the same key,
// which makes repeated uploads idempotent merges.
func DocumentID(repository, relPath string, chunkIndex int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d", repository, relPath, chunkIndex)))
	return hex.EncodeToString(sum[:])[:16]
}

// NewDocument builds a Document from a chunk, applying the content
// limits.
func NewDocument(repository, relPath string, chunkIndex int, c chunk.Chunk, modTime time.Time) *Document {
	doc := &Document{
		ID:            DocumentID(repository, relPath, chunkIndex),
		Content:       c.Content,
		Repository:    repository,
		FilePath:      filepath.ToSlash(relPath),
		FileExtension: strings.TrimPrefix(filepath.Ext(relPath), "."),
		Language:      chunk.LanguageForPath(relPath),
		ChunkType:     c.Type,
		ChunkID:       fmt.Sprintf("%s:%d", filepath.ToSlash(relPath), chunkIndex),
		StartLine:     c.StartLine,
		EndLine:       c.EndLine,
		FunctionName:  c.FunctionName,
		ClassName:     c.ClassName,
		Signature:     c.Signature,
		Docstring:     c.Docstring,
		Imports:       c.Imports,
		LastModified:  modTime.UTC(),
	}
	doc.clampContent()
	return doc
}

// clampContent enforces MaxContentChars and the serialized size
// margin. Truncated content ends with the marker and the document is
// flagged so retrieval can surface partial chunks honestly.
func (d *Document) clampContent() {
	if len(d.Content) > MaxContentChars {
		d.Content = cutContent(d.Content, MaxContentChars-len(truncationMarker)) + truncationMarker
		d.Truncated = true
	}

	for overflow := d.serializedSize() - maxSerializedBytes; overflow > 0; overflow = d.serializedSize() - maxSerializedBytes {
		keep := len(d.Content) - overflow - len(truncationMarker)
		if keep <= 0 {
			d.Content = ""
			d.Truncated = true
			break
		}
		d.Content = cutContent(d.Content, keep) + truncationMarker
		d.Truncated = true
	}
}

// cutContent clips s to at most n bytes without splitting a UTF-8
// rune.
func cutContent(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func (d *Document) serializedSize() int {
	raw, err := json.Marshal(d.ToMap())
	if err != nil {
		return 0
	}
	return len(raw)
}

// ToMap renders the document in the index's field layout. The vector
// is omitted when no embedding was generated.
func (d *Document) ToMap() ops.Document {
	m := ops.Document{
		"id":             d.ID,
		"content":        d.Content,
		"repository":     d.Repository,
		"file_path":      d.FilePath,
		"file_extension": d.FileExtension,
		"language":       d.Language,
		"chunk_type":     string(d.ChunkType),
		"chunk_id":       d.ChunkID,
		"start_line":     d.StartLine,
		"end_line":       d.EndLine,
		"function_name":  d.FunctionName,
		"class_name":     d.ClassName,
		"signature":      d.Signature,
		"docstring":      d.Docstring,
		"last_modified":  d.LastModified.Format(time.RFC3339),
		"truncated":      d.Truncated,
	}
	if len(d.Imports) > 0 {
		m["imports"] = d.Imports
	}
	if len(d.Dependencies) > 0 {
		m["dependencies"] = d.Dependencies
	}
	if len(d.ContentVector) > 0 {
		m["content_vector"] = d.ContentVector
	}
	return m
}
