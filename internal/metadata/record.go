package metadata

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
)

// Tag is one entry of a record's tag list. The metadata dumps carry more
// fields per tag (category, post count) but only the name matters here.
type Tag struct {
	Name string `json:"name"`
}

// Record is one metadata entry describing a source image. Records are
// immutable as read; Filename is only ever set on annotated copies produced
// by WithFilename once an output file exists.
//
// ID and Score are json.Number because the 2018-era dumps encode them as
// strings in some shards and as numbers in others.
type Record struct {
	ID       json.Number `json:"id"`
	FileExt  string      `json:"file_ext"`
	Rating   string      `json:"rating"`
	Score    json.Number `json:"score"`
	Tags     []Tag       `json:"tags"`
	Filename string      `json:"filename,omitempty"`
}

// TagNames collects the record's tag names into a set.
func (r Record) TagNames() map[string]struct{} {
	names := make(map[string]struct{}, len(r.Tags))
	for _, t := range r.Tags {
		names[t.Name] = struct{}{}
	}
	return names
}

// ScoreInt converts the score field to an integer.
func (r Record) ScoreInt() (int, error) {
	n, err := strconv.ParseInt(r.Score.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse score %q: %w", r.Score.String(), err)
	}
	return int(n), nil
}

// OutputName is the default destination filename stem for the record.
func (r Record) OutputName() string {
	return r.ID.String() + "." + r.FileExt
}

// SourcePath resolves the expected on-disk location of the record's source
// image under the dataset root. The dumps shard files into subdirectories
// named after the image id modulo 1000, zero-padded to four digits.
func (r Record) SourcePath(dir string) (string, error) {
	id, err := strconv.ParseInt(r.ID.String(), 10, 64)
	if err != nil {
		return "", fmt.Errorf("parse id %q: %w", r.ID.String(), err)
	}
	shard := fmt.Sprintf("%04d", id%1000)
	return filepath.Join(dir, "original", shard, r.OutputName()), nil
}

// WithFilename returns an annotated copy of the record carrying the name of a
// produced output file. The receiver is left untouched.
func (r Record) WithFilename(name string) Record {
	r.Filename = name
	return r
}
