package scanner

import (
	"bytes"
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kestrelsearch/kestrel/internal/chunk"
	"github.com/kestrelsearch/kestrel/internal/config"
	kerrors "github.com/kestrelsearch/kestrel/internal/errors"
	"github.com/kestrelsearch/kestrel/internal/gitignore"
)

// gitignoreCacheSize bounds the matcher cache for long-running watch
// sessions.
const gitignoreCacheSize = 1000

// Scanner walks a repository root and streams indexable files.
type Scanner struct {
	cfg      config.ProcessorConfig
	excluded map[string]bool
	matchers *lru.Cache[string, *gitignore.Matcher]
	logger   *slog.Logger
}

// New creates a Scanner from processor configuration.
func New(cfg config.ProcessorConfig, logger *slog.Logger) (*Scanner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := lru.New[string, *gitignore.Matcher](gitignoreCacheSize)
	if err != nil {
		return nil, kerrors.Wrap(err, kerrors.ErrCodeInternal, "creating gitignore cache")
	}

	excluded := make(map[string]bool)
	for _, name := range cfg.ExcludeSet() {
		excluded[name] = true
	}

	return &Scanner{
		cfg:      cfg,
		excluded: excluded,
		matchers: cache,
		logger:   logger,
	}, nil
}

// Scan validates root and streams discovered files on the returned
// channel. The channel closes when the walk finishes or ctx is
// canceled.
func (s *Scanner) Scan(ctx context.Context, root string) (<-chan Result, error) {
	absRoot, err := s.ValidateRoot(root)
	if err != nil {
		return nil, err
	}

	results := make(chan Result, 64)
	go func() {
		defer close(results)
		s.walk(ctx, absRoot, results)
	}()
	return results, nil
}

// ValidateRoot resolves root to an absolute directory and rejects
// roots that sit inside an excluded directory, such as a virtualenv or
// node_modules tree, unless AllowExternalRoots is set.
func (s *Scanner) ValidateRoot(root string) (string, error) {
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", kerrors.Wrap(err, kerrors.ErrCodeInvalidInput, "resolving root path")
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return "", kerrors.Wrap(err, kerrors.ErrCodeFileNotFound, "root directory not found: "+absRoot)
	}
	if !info.IsDir() {
		return "", kerrors.New(kerrors.ErrCodeInvalidInput, "root path is not a directory: "+absRoot, nil)
	}

	if !s.cfg.AllowExternalRoots {
		for dir := filepath.Dir(absRoot); ; dir = filepath.Dir(dir) {
			if s.excluded[filepath.Base(dir)] {
				return "", kerrors.New(kerrors.ErrCodeUnsafeRoot,
					"root "+absRoot+" is inside excluded directory "+dir+"; set allow_external_roots to index it", nil)
			}
			if dir == filepath.Dir(dir) {
				break
			}
		}
	}
	return absRoot, nil
}

func (s *Scanner) walk(ctx context.Context, absRoot string, results chan<- Result) {
	maxSize := s.cfg.MaxFileSize
	respectGitignore := s.cfg.RespectGitignoreEnabled()

	err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			// Unreadable entries are skipped, not fatal.
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil || relPath == "." {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if s.excluded[d.Name()] {
				return filepath.SkipDir
			}
			if respectGitignore && s.isGitignored(absRoot, relPath, true) {
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinks are not followed.
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if s.shouldSkipFile(relPath) {
			return nil
		}
		if respectGitignore && s.isGitignored(absRoot, relPath, false) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if maxSize > 0 && info.Size() > maxSize {
			s.logger.Debug("skipping oversized file",
				slog.String("path", relPath), slog.Int64("size", info.Size()))
			return nil
		}
		if isBinaryFile(path) {
			return nil
		}

		result := Result{File: &FileInfo{
			Path:     relPath,
			AbsPath:  path,
			Size:     info.Size(),
			ModTime:  info.ModTime(),
			Language: chunk.LanguageForPath(relPath),
		}}
		select {
		case results <- result:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})

	if err != nil && err != context.Canceled {
		select {
		case results <- Result{Err: err}:
		default:
		}
	}
}

// shouldSkipFile checks the sensitive and low-value file patterns
// against the basename.
func (s *Scanner) shouldSkipFile(relPath string) bool {
	base := filepath.Base(relPath)
	for _, pattern := range sensitiveFilePatterns {
		if matchBasename(base, pattern) {
			return true
		}
	}
	for _, pattern := range skipFilePatterns {
		if matchBasename(base, pattern) {
			return true
		}
	}
	return false
}

func matchBasename(base, pattern string) bool {
	if strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*") && len(pattern) > 1 {
		return strings.Contains(strings.ToLower(base), strings.Trim(pattern, "*"))
	}
	ok, err := filepath.Match(pattern, base)
	return err == nil && ok
}

// isGitignored consults the root .gitignore plus every nested
// .gitignore on the path to relPath.
func (s *Scanner) isGitignored(absRoot, relPath string, isDir bool) bool {
	if m := s.matcherFor(absRoot, ""); m != nil && m.Match(relPath, isDir) {
		return true
	}

	dir := filepath.Dir(relPath)
	if dir == "." {
		return false
	}
	parts := strings.Split(filepath.ToSlash(dir), "/")
	for i := range parts {
		base := strings.Join(parts[:i+1], "/")
		m := s.matcherFor(filepath.Join(absRoot, filepath.FromSlash(base)), base)
		if m != nil && m.Match(relPath, isDir) {
			return true
		}
	}
	return false
}

// matcherFor loads and caches the .gitignore matcher for dir, or nil
// when the directory has none.
func (s *Scanner) matcherFor(dir, base string) *gitignore.Matcher {
	if m, ok := s.matchers.Get(dir); ok {
		return m
	}

	path := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	m := gitignore.New()
	if err := m.AddFromFile(path, base); err != nil {
		s.logger.Warn("skipping unreadable gitignore", slog.String("path", path))
		return nil
	}
	s.matchers.Add(dir, m)
	return m
}

// InvalidateGitignoreCache drops cached matchers; watch mode calls
// this when a .gitignore changes.
func (s *Scanner) InvalidateGitignoreCache() {
	s.matchers.Purge()
}

// Eligible applies the walk's file checks to a single path and returns
// its FileInfo when it would be indexed. Watch mode uses this to vet
// individual change events without a full walk.
func (s *Scanner) Eligible(absRoot, relPath string) (*FileInfo, bool) {
	relPath = filepath.ToSlash(relPath)
	for _, part := range strings.Split(relPath, "/") {
		if s.excluded[part] {
			return nil, false
		}
	}
	if s.shouldSkipFile(relPath) {
		return nil, false
	}
	if s.cfg.RespectGitignoreEnabled() && s.isGitignored(absRoot, relPath, false) {
		return nil, false
	}

	absPath := filepath.Join(absRoot, filepath.FromSlash(relPath))
	info, err := os.Lstat(absPath)
	if err != nil || !info.Mode().IsRegular() {
		return nil, false
	}
	if s.cfg.MaxFileSize > 0 && info.Size() > s.cfg.MaxFileSize {
		return nil, false
	}
	if isBinaryFile(absPath) {
		return nil, false
	}
	return &FileInfo{
		Path:     relPath,
		AbsPath:  absPath,
		Size:     info.Size(),
		ModTime:  info.ModTime(),
		Language: chunk.LanguageForPath(relPath),
	}, true
}

// isBinaryFile probes the first 512 bytes for a null byte.
func isBinaryFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	return bytes.IndexByte(buf[:n], 0) >= 0
}
