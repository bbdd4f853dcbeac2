// File path: internal/snippet/fetcher.go
package snippet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/codeproof/codeproof/internal/common"
	"github.com/codeproof/codeproof/internal/common/telemetry"
	"github.com/codeproof/codeproof/internal/source"
)

const truncationMarker = "..."

// Fetcher retrieves literal source text for (commit, path, line-range)
// tuples through the source provider, caching results for a bounded TTL.
type Fetcher struct {
	provider source.Provider
	cache    *ttlCache
	maxChars int
	timeout  time.Duration
}

// Option mutates fetcher construction.
type Option func(*Fetcher)

// WithMaxChars bounds snippet length; longer slices are truncated with a
// trailing marker.
func WithMaxChars(max int) Option {
	return func(f *Fetcher) {
		if max > 0 {
			f.maxChars = max
		}
	}
}

// WithTTL bounds how long a cached snippet may be served.
func WithTTL(ttl time.Duration) Option {
	return func(f *Fetcher) {
		if ttl > 0 {
			f.cache = newTTLCache(ttl)
		}
	}
}

// WithFetchTimeout caps each provider round-trip.
func WithFetchTimeout(timeout time.Duration) Option {
	return func(f *Fetcher) {
		if timeout > 0 {
			f.timeout = timeout
		}
	}
}

// NewFetcher wires a fetcher over the given provider.
func NewFetcher(provider source.Provider, opts ...Option) *Fetcher {
	f := &Fetcher{
		provider: provider,
		cache:    newTTLCache(time.Hour),
		maxChars: 500,
		timeout:  10 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// Fetch returns the text of [startLine, endLine] (1-indexed, inclusive) for
// a file pinned at a commit. Cache hits never consult the provider; expired
// entries always do.
func (f *Fetcher) Fetch(ctx context.Context, owner, name, commit, path string, startLine, endLine int) (string, error) {
	key := fmt.Sprintf("%s/%s@%s:%s:%d-%d", owner, name, commit, path, startLine, endLine)
	if content, ok := f.cache.get(key); ok {
		telemetry.RecordSnippetFetch(true)
		return content, nil
	}
	telemetry.RecordSnippetFetch(false)

	fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	data, err := f.provider.GetFile(fetchCtx, owner, name, commit, path)
	if err != nil {
		if fetchCtx.Err() == context.DeadlineExceeded {
			return "", source.NewError(source.ErrTimeout, path, "fetch timed out")
		}
		common.Logger().Warn("snippet: provider fetch failed", "path", path, "error", err)
		return "", err
	}

	content := sliceLines(string(data), startLine, endLine)
	if len(content) > f.maxChars {
		content = content[:f.maxChars] + truncationMarker
	}
	f.cache.set(key, content)
	return content, nil
}

// sliceLines cuts the inclusive 1-indexed line range, clamping to the file.
func sliceLines(content string, startLine, endLine int) string {
	lines := strings.Split(content, "\n")
	if startLine < 1 {
		startLine = 1
	}
	if endLine > len(lines) {
		endLine = len(lines)
	}
	if startLine > len(lines) || endLine < startLine {
		return ""
	}
	return strings.Join(lines[startLine-1:endLine], "\n")
}
