package imaging

import (
	"fmt"
	"os"
)

// ResolveOrLink reports whether outputPath is already satisfied. An existing
// file at outputPath satisfies it directly. Otherwise, if linkPath exists, a
// symlink pointing at it is created at outputPath and that satisfies it too.
// A false return means the caller must produce the artifact itself.
//
// The check-then-link sequence is not atomic: it relies on each output path
// being targeted by at most one task per run.
func ResolveOrLink(outputPath, linkPath string) (bool, error) {
	if _, err := os.Stat(outputPath); err == nil {
		return true, nil
	}
	if _, err := os.Stat(linkPath); err == nil {
		if err := os.Symlink(linkPath, outputPath); err != nil {
			return false, fmt.Errorf("link %s: %w", outputPath, err)
		}
		return true, nil
	}
	return false, nil
}
