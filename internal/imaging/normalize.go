// Package imaging provides the output resolver and the letterbox normalizer
// shared by the inline path and the face-crop workers.
package imaging

import (
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"

	_ "golang.org/x/image/webp" // register WEBP decoder; no encoder exists
)

const jpegQuality = 95

// Normalize decodes the image at srcPath, letterboxes it into a size×size
// square when size >= 0, flattens alpha and palette data onto white RGB, and
// writes the result to destPath in the format implied by the destination
// extension. Any error leaves zero artifacts behind.
func Normalize(srcPath, destPath string, size int) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("decode %s: %w", srcPath, err)
	}
	return NormalizeImage(img, destPath, size)
}

// NormalizeImage applies the same policy as Normalize to an already decoded
// image.
func NormalizeImage(img image.Image, destPath string, size int) error {
	encode, err := encoderFor(destPath)
	if err != nil {
		return err
	}

	var out *image.RGBA
	if size >= 0 {
		out = letterbox(img, size)
	} else {
		out = flatten(img)
	}

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", destPath, err)
	}
	err = encode(f, out)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		// Half-written outputs would defeat the existence check on re-runs.
		os.Remove(destPath)
		return fmt.Errorf("save %s: %w", destPath, err)
	}
	return nil
}

// letterbox scales img to fit a size×size white canvas, preserving aspect
// ratio and centering the result.
func letterbox(img image.Image, size int) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)

	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 || size == 0 {
		return canvas
	}
	scale := float64(size) / float64(b.Dx())
	if s := float64(size) / float64(b.Dy()); s < scale {
		scale = s
	}
	w := int(float64(b.Dx()) * scale)
	h := int(float64(b.Dy()) * scale)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	x0 := (size - w) / 2
	y0 := (size - h) / 2
	xdraw.CatmullRom.Scale(canvas, image.Rect(x0, y0, x0+w, y0+h), img, b, xdraw.Over, nil)
	return canvas
}

// flatten composites img over a white background, dropping alpha channels and
// palettes in favor of plain RGB.
func flatten(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Over)
	return out
}

// encoderFor picks the output encoder from the destination extension. WEBP
// sources have no Go encoder, so a .webp destination is a normalization
// failure rather than a silently re-formatted file.
func encoderFor(destPath string) (func(io.Writer, image.Image) error, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(destPath), "."))
	switch ext {
	case "jpg", "jpeg":
		return func(w io.Writer, m image.Image) error {
			return jpeg.Encode(w, m, &jpeg.Options{Quality: jpegQuality})
		}, nil
	case "png":
		return png.Encode, nil
	case "gif":
		return func(w io.Writer, m image.Image) error {
			return gif.Encode(w, m, nil)
		}, nil
	case "bmp":
		return bmp.Encode, nil
	default:
		return nil, fmt.Errorf("no encoder for %q output", ext)
	}
}
