package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedLocator indicates no resolver handles a locator's scheme.
var ErrUnsupportedLocator = errors.New("files: unsupported source locator")

// Resolver opens a readable stream for an opaque source locator.
type Resolver interface {
	Open(ctx context.Context, locator string) (io.ReadCloser, error)
}

// LocalResolver opens plain filesystem paths and file:// URIs.
type LocalResolver struct{}

// Open implements Resolver.
func (LocalResolver) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := LocalPath(locator)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %q", ErrNotRegularFile, path)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return file, nil
}

// LocalPath converts a path or file:// URI into a filesystem path.
func LocalPath(locator string) (string, error) {
	if locator == "" {
		return "", fmt.Errorf("%w: empty locator", ErrUnsupportedLocator)
	}
	if !strings.Contains(locator, "://") {
		return filepath.Clean(locator), nil
	}

	parsed, err := url.Parse(locator)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedLocator, err)
	}
	if parsed.Scheme != "file" {
		return "", fmt.Errorf("%w: scheme %q", ErrUnsupportedLocator, parsed.Scheme)
	}
	if parsed.Host != "" && parsed.Host != "localhost" {
		return "", fmt.Errorf("%w: remote file host %q", ErrUnsupportedLocator, parsed.Host)
	}
	path := parsed.Path
	// file:///C:/x parses with a leading slash before the drive letter.
	if len(path) >= 3 && path[0] == '/' && path[2] == ':' {
		path = path[1:]
	}
	return filepath.FromSlash(path), nil
}

// OpenerFor adapts a Resolver and locator into an Opener.
func OpenerFor(ctx context.Context, resolver Resolver, locator string) Opener {
	return func() (io.ReadCloser, error) {
		if resolver == nil {
			return nil, ErrUnsupportedLocator
		}
		return resolver.Open(ctx, locator)
	}
}
