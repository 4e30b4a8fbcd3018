// Package derive computes image properties from raw asset bytes.
package derive

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/FairForge/metavault/internal/sidecar"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // registers the webp decoder
)

// MIME types the derivations understand
const (
	TypeGIF  = "image/gif"
	TypeJPEG = "image/jpeg"
	TypePNG  = "image/png"
	TypeSVG  = "image/svg+xml"
	TypeWebP = "image/webp"
)

var supported = map[string]bool{
	TypeGIF:  true,
	TypeJPEG: true,
	TypePNG:  true,
	TypeSVG:  true,
	TypeWebP: true,
}

// Supported reports whether mimeType is an image type the catalog derives
// properties for.
func Supported(mimeType string) bool {
	return supported[mimeType]
}

var (
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrEmptyImage      = errors.New("image has no pixels")
)

// Dimensions returns the pixel size of an image.
func Dimensions(data []byte, mimeType string) (sidecar.Dimensions, error) {
	if !Supported(mimeType) {
		return sidecar.Dimensions{}, fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}
	if mimeType == TypeSVG {
		return svgDimensions(data)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return sidecar.Dimensions{}, fmt.Errorf("decode %s config: %w", mimeType, err)
	}
	return sidecar.Dimensions{Width: cfg.Width, Height: cfg.Height}, nil
}

// AverageColor returns the mean color of an image composited over white.
// The result is always opaque because the white backdrop is.
func AverageColor(data []byte, mimeType string) (sidecar.Color, error) {
	img, err := decode(data, mimeType)
	if err != nil {
		return sidecar.Color{}, err
	}

	b := img.Bounds()
	n := float64(b.Dx() * b.Dy())
	if n == 0 {
		return sidecar.Color{}, ErrEmptyImage
	}

	var sr, sg, sb, sa float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBA64Model.Convert(img.At(x, y)).(color.NRGBA64)
			a := float64(c.A) / 0xffff
			sr += float64(c.R)/0x101*a + 255*(1-a)
			sg += float64(c.G)/0x101*a + 255*(1-a)
			sb += float64(c.B)/0x101*a + 255*(1-a)
			sa += 255
		}
	}

	return sidecar.Color{
		Red:   int(math.Round(sr / n)),
		Green: int(math.Round(sg / n)),
		Blue:  int(math.Round(sb / n)),
		Alpha: truncAlpha(int(math.Round(sa / n))),
	}, nil
}

// truncAlpha maps a 0..255 alpha to [0,1] truncated to two decimals.
func truncAlpha(a int) float64 {
	return float64(100*a/255) / 100
}

// ResizeAndCrop fits the image inside a width x height canvas with a white
// background, keeping its aspect ratio and anchoring it top-left. JPEG input
// is re-encoded as JPEG, everything else as PNG. The output MIME type is
// returned with the bytes.
func ResizeAndCrop(data []byte, width, height int, mimeType string) ([]byte, string, error) {
	if width <= 0 || height <= 0 {
		return nil, "", fmt.Errorf("resize: invalid target %dx%d", width, height)
	}
	img, err := decode(data, mimeType)
	if err != nil {
		return nil, "", err
	}

	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, "", ErrEmptyImage
	}

	w, h := fit(b.Dx(), b.Dy(), width, height)

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	xdraw.CatmullRom.Scale(canvas, image.Rect(0, 0, w, h), img, b, xdraw.Over, nil)

	return encode(canvas, mimeType)
}

// Downscale shrinks the image so neither side exceeds maxSide, keeping its
// aspect ratio. Images already within bounds are returned unchanged.
func Downscale(data []byte, maxSide int, mimeType string) ([]byte, string, error) {
	if maxSide <= 0 {
		return nil, "", fmt.Errorf("downscale: invalid bound %d", maxSide)
	}
	img, err := decode(data, mimeType)
	if err != nil {
		return nil, "", err
	}

	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, "", ErrEmptyImage
	}
	if b.Dx() <= maxSide && b.Dy() <= maxSide {
		return data, mimeType, nil
	}

	w, h := fit(b.Dx(), b.Dy(), maxSide, maxSide)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)

	return encode(dst, mimeType)
}

func encode(img image.Image, mimeType string) ([]byte, string, error) {
	var buf bytes.Buffer
	var err error
	outType := TypePNG
	if mimeType == TypeJPEG {
		outType = TypeJPEG
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	} else {
		err = png.Encode(&buf, img)
	}
	if err != nil {
		return nil, "", fmt.Errorf("encode resized image: %w", err)
	}
	return buf.Bytes(), outType, nil
}

// fit scales w x h to fit inside maxW x maxH keeping aspect ratio.
func fit(w, h, maxW, maxH int) (int, int) {
	scale := math.Min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	fw := int(math.Round(float64(w) * scale))
	fh := int(math.Round(float64(h) * scale))
	if fw < 1 {
		fw = 1
	}
	if fh < 1 {
		fh = 1
	}
	return fw, fh
}

func decode(data []byte, mimeType string) (image.Image, error) {
	if !Supported(mimeType) || mimeType == TypeSVG {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}

	var img image.Image
	var err error
	switch mimeType {
	case TypeGIF:
		img, err = gif.Decode(bytes.NewReader(data))
	case TypeJPEG:
		img, err = jpeg.Decode(bytes.NewReader(data))
	case TypePNG:
		img, err = png.Decode(bytes.NewReader(data))
	default:
		img, _, err = image.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", mimeType, err)
	}
	return img, nil
}
