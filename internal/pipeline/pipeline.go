// Package pipeline streams filtered metadata records and fans the resulting
// image work out to a bounded worker pool, aggregating provenance for every
// output file into a single JSON index.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/reidsanders/danbooru-utility/internal/faces"
	"github.com/reidsanders/danbooru-utility/internal/filter"
	"github.com/reidsanders/danbooru-utility/internal/imaging"
	"github.com/reidsanders/danbooru-utility/internal/metadata"
)

// IndexFile is the name of the aggregated metadata index written under the
// save directory at the end of a successful run.
const IndexFile = "index.json"

// progressEvery controls how often a milestone line is written to stderr.
const progressEvery = 100

// Recorder receives the final run provenance. Optional; the JSON index is
// written regardless.
type Recorder interface {
	RecordRun(ctx context.Context, dataset string, started time.Time, filesSeen, produced int, entries []metadata.Record) error
}

// Config states one pipeline run.
type Config struct {
	Directory   string // dataset root, containing original/ shards
	MetadataDir string // metadata subdirectory below Directory
	SaveDir     string
	LinkDir     string
	Size        int // target square side; negative disables resizing
	Faces       bool
	FaceScale   float64
	Overwrite   bool
	MaxExamples int
	Workers     int // pool size in face mode; defaults to NumCPU
	Filter      filter.Config
	Recorder    Recorder
}

// Stats summarizes a completed run.
type Stats struct {
	FilesSeen int
	Produced  int
	Elapsed   time.Duration
}

// Runner coordinates one run over the record stream.
type Runner struct {
	cfg      Config
	detector faces.Detector
}

// New builds a Runner. detector may be nil when cfg.Faces is false.
func New(cfg Config, detector faces.Detector) *Runner {
	if cfg.Workers < 1 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.MaxExamples < 1 {
		cfg.MaxExamples = int(^uint(0) >> 1)
	}
	return &Runner{cfg: cfg, detector: detector}
}

// workerResult is one worker's locally accumulated batch, sent exactly once
// when its task channel drains.
type workerResult struct {
	produced int
	entries  []metadata.Record
	err      error // first fatal (configuration) error, if any
}

// Run executes the pipeline: stream records, dispatch work, join the pool,
// write the index. Per-item failures are logged and skipped; only stream
// decode errors and detector configuration errors fail the run, in which
// case no index is written.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	start := time.Now()

	var (
		tasks   chan faces.Task
		results chan workerResult
		wg      sync.WaitGroup
	)
	if r.cfg.Faces {
		// Channel capacity equals the pool size: a full queue blocks the
		// dispatcher, which is the run's only backpressure mechanism.
		tasks = make(chan faces.Task, r.cfg.Workers)
		results = make(chan workerResult, r.cfg.Workers)
		cropper := faces.Cropper{Detector: r.detector}
		for i := 0; i < r.cfg.Workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				runWorker(cropper, tasks, results)
			}()
		}
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Processing"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	seen := 0
	produced := 0
	entries := make([]metadata.Record, 0)

	dispatch := func(loadPath, destName string, rec metadata.Record) {
		if r.cfg.Faces {
			tasks <- faces.Task{
				SourcePath: loadPath,
				DestName:   destName,
				SaveDir:    r.cfg.SaveDir,
				LinkDir:    r.cfg.LinkDir,
				Size:       r.cfg.Size,
				FaceScale:  r.cfg.FaceScale,
				Overwrite:  r.cfg.Overwrite,
				Record:     rec,
			}
			return
		}
		if annotated, ok := r.normalizeOne(loadPath, destName, rec); ok {
			produced++
			entries = append(entries, annotated)
		}
	}
	progress := func() {
		seen++
		bar.Add(1)
		if seen%progressEvery == 0 {
			fmt.Fprintf(os.Stderr, "Processed %d files. It took %.2f sec\n",
				seen, time.Since(start).Seconds())
		}
	}

	metaRoot := filepath.Join(r.cfg.Directory, r.cfg.MetadataDir)
	streamErr := metadata.Each(metaRoot, r.keep, func(rec metadata.Record) bool {
		if seen >= r.cfg.MaxExamples || ctx.Err() != nil {
			return false
		}
		loadPath, err := rec.SourcePath(r.cfg.Directory)
		if err != nil {
			slog.Warn("skipping record", "id", rec.ID.String(), "error", err)
			return true
		}
		if rec.FileExt == "zip" {
			tmpDir, names, err := extractArchive(loadPath)
			if err != nil {
				slog.Warn("failed to open zip file", "path", loadPath, "error", err)
				return true
			}
			for _, name := range names {
				dispatch(filepath.Join(tmpDir, name), rec.ID.String()+"_"+name, rec)
				progress()
				if seen >= r.cfg.MaxExamples {
					break
				}
			}
			return true
		}
		dispatch(loadPath, rec.OutputName(), rec)
		progress()
		return true
	})

	var fatal error
	if r.cfg.Faces {
		// Closing the task channel is the shutdown signal; each worker
		// answers with exactly one result batch.
		close(tasks)
		wg.Wait()
		close(results)
		for res := range results {
			produced += res.produced
			entries = append(entries, res.entries...)
			if res.err != nil && fatal == nil {
				fatal = res.err
			}
		}
	}
	bar.Finish()

	stats := Stats{FilesSeen: seen, Produced: produced, Elapsed: time.Since(start)}
	if streamErr != nil {
		return stats, streamErr
	}
	if fatal != nil {
		return stats, fatal
	}
	if err := r.writeIndex(entries); err != nil {
		return stats, err
	}
	stats.Elapsed = time.Since(start)
	fmt.Fprintf(os.Stderr, "\nProcessed %d files. Added %d images. It took %.2f sec\n",
		stats.FilesSeen, stats.Produced, stats.Elapsed.Seconds())

	if r.cfg.Recorder != nil {
		if err := r.cfg.Recorder.RecordRun(ctx, r.cfg.Directory, start, stats.FilesSeen, stats.Produced, entries); err != nil {
			slog.Warn("failed to record run provenance", "error", err)
		}
	}
	return stats, nil
}

// keep is the stream predicate: filter config applied to one record. A score
// that cannot be parsed poisons the whole stream, matching the malformed-line
// policy.
func (r *Runner) keep(rec metadata.Record) (bool, error) {
	score, err := rec.ScoreInt()
	if err != nil {
		return false, fmt.Errorf("record %s: %w", rec.ID.String(), err)
	}
	return r.cfg.Filter.Passes(rec.TagNames(), rec.Rating, score), nil
}

// normalizeOne handles the inline (non-face) path for a single image. An
// output already satisfied by the resolver still counts as produced so that
// re-runs rebuild a complete index.
func (r *Runner) normalizeOne(loadPath, destName string, rec metadata.Record) (metadata.Record, bool) {
	writePath := filepath.Join(r.cfg.SaveDir, destName)
	linkPath := filepath.Join(r.cfg.LinkDir, destName)
	if !r.cfg.Overwrite {
		ok, err := imaging.ResolveOrLink(writePath, linkPath)
		if err != nil {
			slog.Warn("resolve output failed", "path", writePath, "error", err)
			return metadata.Record{}, false
		}
		if ok {
			return rec.WithFilename(destName), true
		}
	}
	if err := imaging.Normalize(loadPath, writePath, r.cfg.Size); err != nil {
		slog.Warn("failed to resize and save image", "path", loadPath, "error", err)
		return metadata.Record{}, false
	}
	return rec.WithFilename(destName), true
}

// runWorker is one pool consumer: it pulls tasks until the channel closes and
// reports its batch once. After a fatal configuration error it keeps draining
// so the dispatcher never blocks on a full queue.
func runWorker(c faces.Cropper, tasks <-chan faces.Task, results chan<- workerResult) {
	var res workerResult
	for t := range tasks {
		if res.err != nil {
			continue
		}
		n, entries, err := c.Crop(t)
		if err != nil {
			if errors.Is(err, faces.ErrCascadeNotFound) {
				res.err = err
				continue
			}
			slog.Warn("face crop failed", "path", t.SourcePath, "error", err)
			continue
		}
		res.produced += n
		res.entries = append(res.entries, entries...)
	}
	results <- res
}

// indexDocument is the on-disk shape of the aggregated metadata index.
type indexDocument struct {
	Data []metadata.Record `json:"data"`
}

func (r *Runner) writeIndex(entries []metadata.Record) error {
	path := filepath.Join(r.cfg.SaveDir, IndexFile)
	fmt.Fprintf(os.Stderr, "Saving JSON metadata file: %s\n", path)
	buf, err := json.Marshal(indexDocument{Data: entries})
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}
