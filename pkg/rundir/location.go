package rundir

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Location parsing errors.
var (
	// ErrInvalidLocation indicates the base location could not be parsed.
	ErrInvalidLocation = errors.New("invalid run directory location")

	// ErrUnsupportedScheme indicates the location scheme is not supported.
	ErrUnsupportedScheme = errors.New("unsupported run directory scheme")
)

// Location is a parsed run directory base.
//
// Supported forms:
//   - /srv/runs or ./runs (local path)
//   - file:///srv/runs
//   - s3://bucket
//   - s3://bucket/prefix/
type Location struct {
	// Scheme is "file" or "s3".
	Scheme string

	// Path is the local directory for file locations.
	Path string

	// Bucket is the bucket name for s3 locations.
	Bucket string

	// Prefix is the key prefix inside Bucket, without surrounding slashes.
	Prefix string
}

// String returns the location in canonical form.
func (l Location) String() string {
	if l.Scheme == "s3" {
		if l.Prefix == "" {
			return fmt.Sprintf("s3://%s/", l.Bucket)
		}
		return fmt.Sprintf("s3://%s/%s/", l.Bucket, l.Prefix)
	}
	return "file://" + l.Path
}

// ParseLocation parses a run directory base.
func ParseLocation(base string) (Location, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return Location{}, fmt.Errorf("%w: empty location", ErrInvalidLocation)
	}

	if !strings.Contains(base, "://") {
		return Location{Scheme: "file", Path: base}, nil
	}

	u, err := url.Parse(base)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrInvalidLocation, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		p := u.Path
		if u.Host != "" && u.Host != "localhost" {
			// file://relative/dir
			p = u.Host + u.Path
		}
		if p == "" {
			return Location{}, fmt.Errorf("%w: missing path in %q", ErrInvalidLocation, base)
		}
		return Location{Scheme: "file", Path: p}, nil
	case "s3":
		if u.Host == "" {
			return Location{}, fmt.Errorf("%w: missing bucket in %q", ErrInvalidLocation, base)
		}
		return Location{Scheme: "s3", Bucket: u.Host, Prefix: strings.Trim(u.Path, "/")}, nil
	default:
		return Location{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}
