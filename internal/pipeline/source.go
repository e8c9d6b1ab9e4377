package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/zjrosen/assetcache/internal/asset"
)

// readSource reads path. afero.ReadFile closes the file on every exit path.
func (p *Pipeline) readSource(path string) ([]byte, error) {
	data, err := afero.ReadFile(p.fs, path)
	if err != nil {
		return nil, &asset.SourceError{Path: path, Err: err}
	}
	return data, nil
}

// writeSource replaces path with data through a temp file in the same
// directory, so readers never observe a partial write.
func (p *Pipeline) writeSource(path string, data []byte) error {
	if err := writeAtomic(p.fs, path, data, p.fileMode); err != nil {
		return &asset.SourceError{Path: path, Err: err}
	}
	return nil
}

func writeAtomic(fs afero.Fs, path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanupTmp := true
	defer func() {
		_ = tmp.Close()
		if cleanupTmp {
			_ = fs.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := fs.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := fs.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file into place: %w", err)
	}
	cleanupTmp = false
	return nil
}
