package metadata

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Scanner line budget: single metadata lines routinely exceed bufio's default
// 64KB token size once tag lists get long.
const (
	initialLineBuf = 64 * 1024
	maxLineBuf     = 16 * 1024 * 1024
)

// Each streams metadata records from every regular file under root. Files are
// newline-delimited JSON; each line is decoded independently. Records for
// which keep returns true are handed to fn; returning false from fn stops the
// stream early. A keep error or an undecodable line is fatal for the whole
// stream. The walk order is not guaranteed and the stream is single-pass.
func Each(root string, keep func(Record) (bool, error), fn func(Record) bool) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		stop, err := eachLine(path, keep, fn)
		if err != nil {
			return err
		}
		if stop {
			return fs.SkipAll
		}
		return nil
	})
}

// eachLine streams one metadata file. stop is true when fn asked to
// terminate the whole stream.
func eachLine(path string, keep func(Record) (bool, error), fn func(Record) bool) (stop bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("open metadata file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, initialLineBuf), maxLineBuf)
	for sc.Scan() {
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return false, fmt.Errorf("%s: decode metadata line: %w", path, err)
		}
		ok, err := keep(rec)
		if err != nil {
			return false, fmt.Errorf("%s: %w", path, err)
		}
		if !ok {
			continue
		}
		if !fn(rec) {
			return true, nil
		}
	}
	if err := sc.Err(); err != nil {
		return false, fmt.Errorf("%s: read metadata: %w", path, err)
	}
	return false, nil
}
