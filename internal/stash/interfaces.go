package stash

import (
	"context"
	"time"
)

// Fetcher retrieves a single URL, following redirects. The returned
// response carries the final resolved URL, not the requested one.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResponse, error)
}

// Hasher fingerprints extracted text for change detection.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}
