package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalBlobs writes objects under a local directory. Each object appears
// atomically through a tmp file and rename.
type LocalBlobs struct {
	Dir string
}

func (b LocalBlobs) Put(_ context.Context, name string, data []byte, _ string) error {
	target := filepath.Join(b.Dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}
