package faces

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/reidsanders/danbooru-utility/internal/imaging"
	"github.com/reidsanders/danbooru-utility/internal/metadata"
)

// maxProbeSlots caps how many prior face-output slots the re-run probe
// examines per image.
const maxProbeSlots = 20

// Task is one face-crop unit of work, dispatched to a pool worker.
type Task struct {
	SourcePath string
	DestName   string // destination filename stem, e.g. "123456.jpg"
	SaveDir    string
	LinkDir    string
	Size       int
	FaceScale  float64
	Overwrite  bool
	Record     metadata.Record
}

// Cropper detects faces and writes one normalized crop per kept face.
type Cropper struct {
	Detector Detector
}

// Crop processes one task and returns the number of face outputs produced
// plus an annotated record per output.
//
// Before detecting anything it probes up to maxProbeSlots existing
// "face{i}_" outputs through the resolver: once at least one slot is
// satisfied, the first unsatisfied slot ends the probe and the accumulated
// count is returned as-is, treating the image as already processed. That is
// a re-run shortcut carried over from earlier versions of this tool, not a
// correctness guarantee — it can under-detect complete work when detector
// output varies between runs.
//
// A missing cascade resource is returned as an error wrapping
// ErrCascadeNotFound; unreadable images are logged and yield (0, nil, nil).
func (c Cropper) Crop(t Task) (int, []metadata.Record, error) {
	produced := 0
	if !t.Overwrite {
		for i := 0; i < maxProbeSlots; i++ {
			name := fmt.Sprintf("face%d_%s", i, t.DestName)
			ok, err := imaging.ResolveOrLink(
				filepath.Join(t.SaveDir, name),
				filepath.Join(t.LinkDir, name),
			)
			if err != nil {
				return 0, nil, err
			}
			if ok {
				produced++
			} else if produced > 0 {
				return produced, nil, nil
			}
		}
	}
	// The probe was inconclusive; detect from scratch and recount.
	produced = 0

	img, err := loadImage(t.SourcePath)
	if err != nil {
		slog.Warn("unreadable image", "path", t.SourcePath, "error", err)
		return 0, nil, nil
	}
	rects, err := c.Detector.Detect(img)
	if err != nil {
		if errors.Is(err, ErrCascadeNotFound) {
			return 0, nil, err
		}
		slog.Warn("face detection failed", "path", t.SourcePath, "error", err)
		return 0, nil, nil
	}

	var entries []metadata.Record
	for _, r := range rects {
		crop := expand(r, t.FaceScale).Intersect(img.Bounds())
		if crop.Dx() < t.Size || crop.Dy() < t.Size {
			// Too small to fill the target canvas without upscaling.
			continue
		}
		name := fmt.Sprintf("face%d_%s", produced, t.DestName)
		dest := filepath.Join(t.SaveDir, name)
		if err := imaging.NormalizeImage(subImage(img, crop), dest, t.Size); err != nil {
			slog.Warn("face crop save failed", "path", dest, "error", err)
			continue
		}
		produced++
		entries = append(entries, t.Record.WithFilename(name))
	}
	return produced, entries, nil
}

// expand grows a detected rectangle by scale, centered horizontally but
// biased upward vertically so the crop keeps more headroom above the face
// than below it. Origins clamp at zero; the far edges are clipped later
// against the image bounds.
func expand(r image.Rectangle, scale float64) image.Rectangle {
	w := int(float64(r.Dx()) * scale)
	h := int(float64(r.Dy()) * scale)
	x := r.Min.X - (w-r.Dx())/2
	y := r.Min.Y - (h-r.Dy())/4
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	return image.Rect(x, y, x+w, y+h)
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

// subImage views the crop region of img. Every stdlib decoder returns a type
// with SubImage; the draw fallback covers synthetic images in tests.
func subImage(img image.Image, r image.Rectangle) image.Image {
	if s, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return s.SubImage(r)
	}
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		for x := 0; x < r.Dx(); x++ {
			out.Set(x, y, img.At(r.Min.X+x, r.Min.Y+y))
		}
	}
	return out
}
