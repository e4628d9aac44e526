package pipeline

import (
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// extractArchive unpacks a zip source into a fresh temporary directory and
// returns the directory plus the entry names in archive order. The directory
// is deliberately not cleaned up here; archive lifetimes belong to the
// surrounding environment (run under a scratch TMPDIR to reclaim them).
func extractArchive(path string) (string, []string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", nil, err
	}
	defer zr.Close()

	tmpDir, err := os.MkdirTemp("", "danbooru-zip-")
	if err != nil {
		return "", nil, err
	}

	var names []string
	for _, f := range zr.File {
		if !filepath.IsLocal(filepath.FromSlash(f.Name)) {
			slog.Warn("skipping unsafe archive entry", "archive", path, "entry", f.Name)
			continue
		}
		if f.FileInfo().IsDir() {
			continue
		}
		if err := extractEntry(f, tmpDir); err != nil {
			return "", nil, fmt.Errorf("extract %s from %s: %w", f.Name, path, err)
		}
		names = append(names, f.Name)
	}
	return tmpDir, names, nil
}

func extractEntry(f *zip.File, dir string) error {
	dest := filepath.Join(dir, filepath.FromSlash(f.Name))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, rc)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}
