// Package scanner discovers indexable files under a repository root.
// It honors the configured directory exclude set, .gitignore rules, and
// a set of sensitive file patterns that are never indexed.
package scanner

import "time"

// FileInfo describes a discovered file.
type FileInfo struct {
	Path     string    // slash-separated, relative to the scan root
	AbsPath  string    // absolute path on disk
	Size     int64     // bytes
	ModTime  time.Time // last modification time
	Language string    // language tag, "" when unknown
}

// Result is one item streamed from Scan. Exactly one of File and Err
// is set.
type Result struct {
	File *FileInfo
	Err  error
}

// sensitiveFilePatterns are never indexed regardless of configuration.
var sensitiveFilePatterns = []string{
	".env",
	".env.*",
	"*.pem",
	"*.key",
	"*.p12",
	"*.pfx",
	"*credentials*",
	"*secrets*",
	".netrc",
	".npmrc",
	".pypirc",
	"id_rsa",
	"id_dsa",
	"id_ecdsa",
	"id_ed25519",
}

// skipFilePatterns are lockfiles and minified artifacts that add no
// retrieval value.
var skipFilePatterns = []string{
	"*.min.js",
	"*.min.css",
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	"go.sum",
}
