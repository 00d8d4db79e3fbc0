// Package file implements provider.Provider over a local directory.
package file

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/3leaps/runprogress/pkg/provider"
)

// DefaultMaxKeys is the default page size for List operations.
const DefaultMaxKeys = 1000

// Provider implements provider.Provider for local filesystem paths.
//
// Keys are treated as slash-separated relative paths under BaseDir.
type Provider struct {
	baseDir string
}

var _ provider.Provider = (*Provider)(nil)

type Config struct {
	BaseDir string
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseDir) == "" {
		return fmt.Errorf("base dir is required")
	}
	return nil
}

func New(cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Provider{baseDir: filepath.Clean(cfg.BaseDir)}, nil
}

func (p *Provider) BaseDir() string { return p.baseDir }

func (p *Provider) Close() error { return nil }

// List returns the immediate entries of the directory named by opts.Prefix,
// sorted by name. A missing directory yields an empty result.
func (p *Provider) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	maxKeys := opts.MaxKeys
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}

	dir, err := p.fullPath(opts.Prefix)
	if err != nil {
		return nil, p.wrapError("List", opts.Prefix, err)
	}
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return &provider.ListResult{}, nil
		}
		return nil, p.wrapError("List", opts.Prefix, err)
	}
	// os.ReadDir sorts by filename.

	start := 0
	if opts.ContinuationToken != "" {
		// Start strictly after the last returned name.
		start = sort.Search(len(dirEntries), func(i int) bool {
			return dirEntries[i].Name() > opts.ContinuationToken
		})
	}
	end := start + maxKeys
	if end > len(dirEntries) {
		end = len(dirEntries)
	}

	keyPrefix := strings.Trim(opts.Prefix, "/")
	entries := make([]provider.Entry, 0, end-start)
	for _, de := range dirEntries[start:end] {
		e := provider.Entry{
			Name:  de.Name(),
			Key:   path.Join(keyPrefix, de.Name()),
			IsDir: de.IsDir(),
		}
		if !e.IsDir {
			if info, err := de.Info(); err == nil {
				e.Size = info.Size()
				e.LastModified = info.ModTime()
			}
		}
		entries = append(entries, e)
	}

	res := &provider.ListResult{Entries: entries}
	if end < len(dirEntries) {
		res.IsTruncated = true
		res.ContinuationToken = dirEntries[end-1].Name()
	}
	return res, nil
}

func (p *Provider) GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	full, err := p.fullPath(key)
	if err != nil {
		return nil, 0, p.wrapError("GetObject", key, err)
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, 0, p.wrapError("GetObject", key, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, p.wrapError("GetObject", key, err)
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, 0, &provider.ProviderError{Op: "GetObject", Provider: provider.ProviderFile, Key: key, Err: provider.ErrNotFound}
	}
	return f, st.Size(), nil
}

func (p *Provider) fullPath(key string) (string, error) {
	key = strings.TrimSpace(key)
	key = strings.TrimPrefix(key, "/")
	// Prevent path traversal.
	clean := path.Clean("/" + key)
	clean = strings.TrimPrefix(clean, "/")
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid key path")
	}
	return filepath.Join(p.baseDir, filepath.FromSlash(clean)), nil
}

func (p *Provider) wrapError(op, key string, err error) error {
	wrapped := &provider.ProviderError{Op: op, Provider: provider.ProviderFile, Key: key, Err: err}
	if err == nil {
		wrapped.Err = fmt.Errorf("unknown error")
	}
	// Normalize common filesystem errors to provider sentinels.
	if os.IsNotExist(err) {
		wrapped.Err = provider.ErrNotFound
	}
	if os.IsPermission(err) {
		wrapped.Err = provider.ErrAccessDenied
	}
	return wrapped
}
