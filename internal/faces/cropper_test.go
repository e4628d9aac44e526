package faces

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/reidsanders/danbooru-utility/internal/metadata"
)

// stubDetector returns fixed rectangles and records whether it was invoked.
type stubDetector struct {
	rects  []image.Rectangle
	err    error
	called bool
}

func (d *stubDetector) Detect(image.Image) ([]image.Rectangle, error) {
	d.called = true
	return d.rects, d.err
}

func writeSource(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 180, B: 160, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, nil); err != nil {
		t.Fatal(err)
	}
}

func testTask(t *testing.T, dir string, size int, scale float64) Task {
	t.Helper()
	src := filepath.Join(dir, "src.jpg")
	writeSource(t, src, 200, 200)
	saveDir := filepath.Join(dir, "out")
	linkDir := filepath.Join(dir, "link")
	if err := os.MkdirAll(saveDir, 0o755); err != nil {
		t.Fatal(err)
	}
	return Task{
		SourcePath: src,
		DestName:   "1.jpg",
		SaveDir:    saveDir,
		LinkDir:    linkDir,
		Size:       size,
		FaceScale:  scale,
		Record:     metadata.Record{ID: json.Number("1"), FileExt: "jpg", Rating: "s", Score: json.Number("5")},
	}
}

func TestCropScaleOnePreservesRectSize(t *testing.T) {
	dir := t.TempDir()
	task := testTask(t, dir, 40, 1.0)
	det := &stubDetector{rects: []image.Rectangle{image.Rect(10, 10, 70, 70)}}

	n, entries, err := Cropper{Detector: det}.Crop(task)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("produced %d crops, want 1", n)
	}
	if len(entries) != 1 || entries[0].Filename != "face0_1.jpg" {
		t.Errorf("entries = %+v", entries)
	}

	out := filepath.Join(task.SaveDir, "face0_1.jpg")
	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 40 || cfg.Height != 40 {
		t.Errorf("output is %dx%d, want 40x40", cfg.Width, cfg.Height)
	}
}

func TestCropRejectsSmallCrops(t *testing.T) {
	dir := t.TempDir()
	task := testTask(t, dir, 100, 1.0)
	// A 60x60 face with scale 1.0 cannot fill a 100px canvas without upscaling.
	det := &stubDetector{rects: []image.Rectangle{image.Rect(10, 10, 70, 70)}}

	n, entries, err := Cropper{Detector: det}.Crop(task)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 || len(entries) != 0 {
		t.Errorf("got (%d, %d entries), want nothing saved", n, len(entries))
	}
}

func TestCropClampsAtOrigin(t *testing.T) {
	dir := t.TempDir()
	task := testTask(t, dir, 60, 2.0)
	// Near the origin the expanded rect would go negative; it must clamp to 0
	// and the far edge clips against the image bounds.
	det := &stubDetector{rects: []image.Rectangle{image.Rect(0, 0, 40, 40)}}

	n, _, err := Cropper{Detector: det}.Crop(task)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("produced %d crops, want 1", n)
	}
}

func TestCropMultipleFacesSequentialNames(t *testing.T) {
	dir := t.TempDir()
	task := testTask(t, dir, 40, 1.0)
	det := &stubDetector{rects: []image.Rectangle{
		image.Rect(10, 10, 70, 70),
		image.Rect(100, 100, 160, 160),
	}}

	n, entries, err := Cropper{Detector: det}.Crop(task)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("produced %d crops, want 2", n)
	}
	for i, want := range []string{"face0_1.jpg", "face1_1.jpg"} {
		if entries[i].Filename != want {
			t.Errorf("entry %d filename = %q, want %q", i, entries[i].Filename, want)
		}
		if _, err := os.Stat(filepath.Join(task.SaveDir, want)); err != nil {
			t.Errorf("missing output %s: %v", want, err)
		}
	}
}

func TestCropProbeShortCircuit(t *testing.T) {
	dir := t.TempDir()
	task := testTask(t, dir, 40, 1.0)
	// face0 exists, face1 does not: the probe treats the image as already
	// processed and detection never runs.
	if err := os.WriteFile(filepath.Join(task.SaveDir, "face0_1.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	det := &stubDetector{rects: []image.Rectangle{image.Rect(10, 10, 70, 70)}}

	n, entries, err := Cropper{Detector: det}.Crop(task)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("probe count = %d, want 1", n)
	}
	if entries != nil {
		t.Error("short-circuit must not emit metadata")
	}
	if det.called {
		t.Error("detector ran despite the probe short-circuit")
	}
}

func TestCropProbeResolvesFromLinkDir(t *testing.T) {
	dir := t.TempDir()
	task := testTask(t, dir, 40, 1.0)
	if err := os.MkdirAll(task.LinkDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(task.LinkDir, "face0_1.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	det := &stubDetector{}

	n, _, err := Cropper{Detector: det}.Crop(task)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("probe count = %d, want 1", n)
	}
	// The probe satisfied the slot by symlinking into the save dir.
	fi, err := os.Lstat(filepath.Join(task.SaveDir, "face0_1.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode()&os.ModeSymlink == 0 {
		t.Error("expected a symlink in the save dir")
	}
}

func TestCropOverwriteSkipsProbe(t *testing.T) {
	dir := t.TempDir()
	task := testTask(t, dir, 40, 1.0)
	task.Overwrite = true
	if err := os.WriteFile(filepath.Join(task.SaveDir, "face0_1.jpg"), []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}
	det := &stubDetector{rects: []image.Rectangle{image.Rect(10, 10, 70, 70)}}

	n, _, err := Cropper{Detector: det}.Crop(task)
	if err != nil {
		t.Fatal(err)
	}
	if !det.called {
		t.Error("overwrite run must re-detect")
	}
	if n != 1 {
		t.Errorf("produced %d crops, want 1", n)
	}
}

func TestCropCascadeErrorIsFatal(t *testing.T) {
	dir := t.TempDir()
	task := testTask(t, dir, 40, 1.0)
	det := &stubDetector{err: fmt.Errorf("%w: lbpcascade_animeface.xml", ErrCascadeNotFound)}

	_, _, err := Cropper{Detector: det}.Crop(task)
	if !errors.Is(err, ErrCascadeNotFound) {
		t.Errorf("err = %v, want ErrCascadeNotFound", err)
	}
}

func TestCropUnreadableImage(t *testing.T) {
	dir := t.TempDir()
	task := testTask(t, dir, 40, 1.0)
	task.SourcePath = filepath.Join(dir, "missing.jpg")
	det := &stubDetector{rects: []image.Rectangle{image.Rect(10, 10, 70, 70)}}

	n, entries, err := Cropper{Detector: det}.Crop(task)
	if err != nil {
		t.Fatalf("unreadable image must be recovered, got %v", err)
	}
	if n != 0 || entries != nil {
		t.Errorf("got (%d, %v), want (0, nil)", n, entries)
	}
}
