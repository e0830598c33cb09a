package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	// Extra decoders for phone uploads.
	_ "image/gif"

	_ "golang.org/x/image/webp"
)

var (
	ErrImageProcessingFailed = errors.New("image processing failed")
	ErrInvalidPolicy         = errors.New("invalid normalization policy")
)

// Kind distinguishes media that is normalized from media stored verbatim
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

var videoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".avi":  true,
	".webm": true,
}

// KindFromFilename classifies an upload by its extension
func KindFromFilename(name string) Kind {
	if videoExtensions[strings.ToLower(filepath.Ext(name))] {
		return KindVideo
	}
	return KindImage
}

// ParseKind maps a client supplied type hint to a Kind; anything that is
// not "video" is treated as an image.
func ParseKind(s string) Kind {
	if strings.EqualFold(strings.TrimSpace(s), string(KindVideo)) {
		return KindVideo
	}
	return KindImage
}

// Fit is the resize policy applied before compositing
type Fit string

const (
	// FitContain scales the whole image inside the canvas and pads with white
	FitContain Fit = "contain"
	// FitCrop crops a centered square and resizes it to fill the canvas
	FitCrop Fit = "crop"
)

// Format is the output encoding
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
)

// Policy describes the canvas an image is normalized onto
type Policy struct {
	Size    int
	Fit     Fit
	Format  Format
	Quality int // JPEG only
}

// ContainPolicy letterboxes onto a size×size white PNG canvas
func ContainPolicy(size int) Policy {
	return Policy{Size: size, Fit: FitContain, Format: FormatPNG}
}

// CropPolicy square-crops onto a size×size JPEG at the given quality
func CropPolicy(size, quality int) Policy {
	return Policy{Size: size, Fit: FitCrop, Format: FormatJPEG, Quality: quality}
}

// HDPolicy is the 1200px storefront rendition
func HDPolicy() Policy { return CropPolicy(1200, 85) }

// ThumbnailPolicy is the 400px rendition for slow connections
func ThumbnailPolicy() Policy { return CropPolicy(400, 80) }

// Ext returns the output file extension for the policy
func (p Policy) Ext() string {
	if p.Format == FormatJPEG {
		return ".jpg"
	}
	return ".png"
}

// Validate checks that the policy can produce an image
func (p Policy) Validate() error {
	if p.Size <= 0 {
		return fmt.Errorf("%w: size must be positive, got %d", ErrInvalidPolicy, p.Size)
	}
	switch p.Fit {
	case FitContain, FitCrop:
	default:
		return fmt.Errorf("%w: unknown fit %q", ErrInvalidPolicy, p.Fit)
	}
	switch p.Format {
	case FormatPNG:
	case FormatJPEG:
		if p.Quality < 1 || p.Quality > 100 {
			return fmt.Errorf("%w: jpeg quality must be 1-100, got %d", ErrInvalidPolicy, p.Quality)
		}
	default:
		return fmt.Errorf("%w: unknown format %q", ErrInvalidPolicy, p.Format)
	}
	return nil
}

// Normalize decodes data, fixes its orientation, applies the clockwise
// rotation in degrees and re-encodes it on the policy's square canvas.
// Video is returned unchanged.
func Normalize(data []byte, kind Kind, rotation int, policy Policy) ([]byte, error) {
	if kind == KindVideo {
		return data, nil
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	// Embedded EXIF orientation is applied here and then discarded.
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrImageProcessingFailed, err)
	}

	img := rotateClockwise(src, rotation)

	var fitted *image.NRGBA
	switch policy.Fit {
	case FitCrop:
		fitted = imaging.Fill(img, policy.Size, policy.Size, imaging.Center, imaging.Lanczos)
	default:
		fitted = containWithin(img, policy.Size)
	}

	canvas := imaging.New(policy.Size, policy.Size, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	canvas = imaging.OverlayCenter(canvas, fitted, 1.0)

	var buf bytes.Buffer
	switch policy.Format {
	case FormatJPEG:
		err = imaging.Encode(&buf, canvas, imaging.JPEG, imaging.JPEGQuality(policy.Quality))
	default:
		err = imaging.Encode(&buf, canvas, imaging.PNG)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrImageProcessingFailed, err)
	}

	return buf.Bytes(), nil
}

// rotateClockwise turns img by degrees. Right angles are exact; any other
// angle expands the bounds and fills the corners with transparency.
func rotateClockwise(img image.Image, degrees int) *image.NRGBA {
	switch d := ((degrees % 360) + 360) % 360; d {
	case 0:
		return imaging.Clone(img)
	case 90:
		return imaging.Rotate270(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate90(img)
	default:
		return imaging.Rotate(img, -float64(d), color.Transparent)
	}
}

// containWithin scales img down, never up, so that its longer edge fits size
func containWithin(img *image.NRGBA, size int) *image.NRGBA {
	b := img.Bounds()
	if b.Dx() <= size && b.Dy() <= size {
		return img
	}

	scale := math.Min(float64(size)/float64(b.Dx()), float64(size)/float64(b.Dy()))
	w := max(1, int(math.Round(float64(b.Dx())*scale)))
	h := max(1, int(math.Round(float64(b.Dy())*scale)))
	return imaging.Resize(img, min(w, size), min(h, size), imaging.Lanczos)
}

// NewPolicy builds a policy from configuration strings
func NewPolicy(size int, fit, format string, quality int) (Policy, error) {
	p := Policy{
		Size:    size,
		Fit:     Fit(strings.ToLower(fit)),
		Format:  Format(strings.ToLower(format)),
		Quality: quality,
	}
	if p.Format == "jpg" {
		p.Format = FormatJPEG
	}
	return p, p.Validate()
}
