package export

import (
	"context"
	"os"
	"path/filepath"

	apperrors "github.com/alonelily/FGO-Sprite/internal/errors"
	"github.com/alonelily/FGO-Sprite/internal/utils"
)

// Saver persists one encoded export
type Saver interface {
	Save(ctx context.Context, name string, data []byte) error
}

// SaverFunc adapts a function to Saver
type SaverFunc func(ctx context.Context, name string, data []byte) error

// Save calls f
func (f SaverFunc) Save(ctx context.Context, name string, data []byte) error {
	return f(ctx, name, data)
}

// DirSaver writes exports into a directory, creating it on first use
type DirSaver struct {
	Dir string
}

// Save writes data to Dir/name
func (s DirSaver) Save(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := utils.EnsureDir(s.Dir); err != nil {
		return apperrors.NewIOError("failed to create output directory", err)
	}
	path := filepath.Join(s.Dir, utils.SanitizeFilename(name))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return apperrors.NewIOError("failed to write "+path, err)
	}
	return nil
}
