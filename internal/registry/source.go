package registry

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Source loads raw ABI documents by reference.
type Source interface {
	Load(ctx context.Context, ref string) ([]byte, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, ref string) ([]byte, error)

// Load calls f.
func (f SourceFunc) Load(ctx context.Context, ref string) ([]byte, error) {
	return f(ctx, ref)
}

// FileSource reads ABI documents from the local filesystem. Relative
// references resolve against BaseDir.
type FileSource struct {
	BaseDir string
}

// Load reads the file named by ref.
func (s FileSource) Load(_ context.Context, ref string) ([]byte, error) {
	path := strings.TrimPrefix(ref, "file://")
	if !filepath.IsAbs(path) && s.BaseDir != "" {
		path = filepath.Join(s.BaseDir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read abi file: %w", err)
	}
	return data, nil
}

// ObjectGetter fetches an object body from a bucket.
type ObjectGetter interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
}

// ObjectSource loads s3://bucket/key references from an object store.
type ObjectSource struct {
	Store ObjectGetter
}

// Load fetches the object named by ref.
func (s ObjectSource) Load(ctx context.Context, ref string) ([]byte, error) {
	bucket, key, err := ParseObjectRef(ref)
	if err != nil {
		return nil, err
	}
	if s.Store == nil {
		return nil, fmt.Errorf("object store is not configured for %s", ref)
	}
	return s.Store.GetObject(ctx, bucket, key)
}

// ParseObjectRef splits an s3://bucket/key reference.
func ParseObjectRef(ref string) (string, string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", "", fmt.Errorf("parse object ref %q: %w", ref, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("object ref %q: unsupported scheme %q", ref, u.Scheme)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("object ref %q: bucket and key are required", ref)
	}
	return u.Host, key, nil
}

// MultiSource routes references by prefix: "builtin:" to the embedded ABIs,
// "s3://" to Objects and everything else to Files.
type MultiSource struct {
	Files   Source
	Objects Source
}

// Load dispatches ref to the matching source.
func (s MultiSource) Load(ctx context.Context, ref string) ([]byte, error) {
	switch {
	case strings.HasPrefix(ref, builtinPrefix):
		return BuiltinSource{}.Load(ctx, ref)
	case strings.HasPrefix(ref, "s3://"):
		if s.Objects == nil {
			return nil, fmt.Errorf("no object source configured for %s", ref)
		}
		return s.Objects.Load(ctx, ref)
	default:
		if s.Files == nil {
			return FileSource{}.Load(ctx, ref)
		}
		return s.Files.Load(ctx, ref)
	}
}
