// Package provider defines the storage abstraction behind a run directory.
//
// A run directory is read-only from this module's point of view: providers
// list directory entries and stream objects. Authentication uses SDK default
// credential chains; providers should not implement custom auth logic.
package provider

import (
	"context"
	"io"
	"time"
)

// Provider abstracts read access to a run directory.
//
// Implementations should:
//   - Treat keys as slash-separated paths relative to the provider root
//   - Report a missing directory as an empty listing
//   - Be safe for concurrent use
type Provider interface {
	// List returns a page of the immediate entries under Prefix.
	// Use ContinuationToken from ListResult for subsequent pages.
	List(ctx context.Context, opts ListOptions) (*ListResult, error)

	// GetObject opens an object for reading.
	// Returns ErrNotFound if the object does not exist.
	GetObject(ctx context.Context, key string) (body io.ReadCloser, contentLength int64, err error)

	// Close releases any resources held by the provider.
	Close() error
}

// ListOptions configures a List operation.
type ListOptions struct {
	// Prefix is the directory to list. Empty string lists the root.
	// A trailing slash is optional.
	Prefix string

	// ContinuationToken resumes listing from a previous ListResult.
	// Empty string starts from the beginning.
	ContinuationToken string

	// MaxKeys limits the number of entries returned per page.
	// Zero uses provider default (typically 1000).
	MaxKeys int
}

// ListResult contains a page of entries from a List operation.
type ListResult struct {
	// Entries are the immediate children of the listed directory.
	Entries []Entry

	// ContinuationToken is used to retrieve the next page.
	// Empty string indicates no more pages.
	ContinuationToken string

	// IsTruncated indicates whether more results are available.
	IsTruncated bool
}

// Entry is one directory entry.
type Entry struct {
	// Name is the entry name relative to the listed directory.
	Name string

	// Key is the full key relative to the provider root.
	Key string

	// IsDir is set for child directories (common prefixes on object stores).
	IsDir bool

	// Size is the object size in bytes. Zero for directories.
	Size int64

	// LastModified is when the object was last modified, if known.
	LastModified time.Time
}

// ProviderType identifies a storage provider.
type ProviderType string

const (
	// ProviderFile represents a local filesystem directory.
	ProviderFile ProviderType = "file"

	// ProviderS3 represents AWS S3 or S3-compatible storage.
	ProviderS3 ProviderType = "s3"
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	return string(p)
}

// ListAll pages through List and returns every entry under prefix.
func ListAll(ctx context.Context, p Provider, prefix string) ([]Entry, error) {
	var (
		entries []Entry
		token   string
	)
	for {
		res, err := p.List(ctx, ListOptions{Prefix: prefix, ContinuationToken: token})
		if err != nil {
			return nil, err
		}
		entries = append(entries, res.Entries...)
		if !res.IsTruncated || res.ContinuationToken == "" {
			return entries, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		token = res.ContinuationToken
	}
}
