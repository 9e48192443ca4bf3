// Package storage provides the artifact mirror. Clip files and thumbnails the
// processing gateway produces live on infrastructure we do not control; the
// mirror copies them to storage we do (local disk or S3) so they survive the
// gateway's own retention policy.
package storage

import (
	"context"
	"io"
	"net/url"
	"path"
	"strings"
)

// Store defines the interface for mirroring artifact files.
type Store interface {
	// Save writes the data under the given key and returns the URL the
	// mirrored artifact is served from.
	Save(ctx context.Context, key string, data io.Reader) (url string, err error)
}

// SafeName derives a filesystem- and key-safe name from an artifact URL.
// Only the final path element is kept.
func SafeName(rawURL string) string {
	name := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		name = path.Base(u.Path)
	} else {
		name = path.Base(name)
	}

	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)

	if name == "" || name == "." || name == "/" {
		return "artifact"
	}
	return name
}
