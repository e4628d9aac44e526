// Package faces locates faces in source images and crops them into
// normalized square outputs.
package faces

import (
	"errors"
	"fmt"
	"image"
	"os"

	"gocv.io/x/gocv"
)

// ErrCascadeNotFound marks a missing or unloadable cascade resource. It is a
// configuration failure, not a per-image one, and aborts the run.
var ErrCascadeNotFound = errors.New("cascade file not found")

// Detector finds face rectangles in a decoded image.
type Detector interface {
	Detect(img image.Image) ([]image.Rectangle, error)
}

// Detection parameters, tuned for the anime-face LBP cascade.
const (
	detectScaleFactor  = 1.1
	detectMinNeighbors = 5
	detectMinSize      = 48
)

// CascadeDetector runs an OpenCV cascade classifier over grayscale,
// histogram-equalized input. The cascade file is loaded on every call;
// workers process images far larger than the cascade, so the reload cost is
// noise.
type CascadeDetector struct {
	CascadeFile string
}

func (d CascadeDetector) Detect(img image.Image) ([]image.Rectangle, error) {
	if _, err := os.Stat(d.CascadeFile); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCascadeNotFound, d.CascadeFile)
	}

	classifier := gocv.NewCascadeClassifier()
	defer classifier.Close()
	if !classifier.Load(d.CascadeFile) {
		return nil, fmt.Errorf("%w: %s", ErrCascadeNotFound, d.CascadeFile)
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert image: %w", err)
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorRGBToGray)
	gocv.EqualizeHist(gray, &gray)

	rects := classifier.DetectMultiScaleWithParams(
		gray,
		detectScaleFactor,
		detectMinNeighbors,
		0,
		image.Pt(detectMinSize, detectMinSize),
		image.Pt(0, 0),
	)
	return rects, nil
}
