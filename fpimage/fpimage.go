/*Package fpimage implements the image representation and normalization component (C8): a single
greyscale image type plus the standardize and resize operations every driver's output passes
through before reaching a caller.
*/
package fpimage

import (
	"bytes"
	"fmt"

	"github.com/openfprint/gofprint/ferrors"
	"github.com/openfprint/gofprint/util"
)

// Image is an 8-bit greyscale, row-major, top-left-origin raster with a set of orientation flags
// that standardize consumes.
type Image struct {
	Width, Height int
	Pixels        []byte

	VFlipped       bool
	HFlipped       bool
	ColorsInverted bool
	Binarized      bool
	Partial        bool
}

// New allocates a zeroed Image of the given size.
func New(width, height int) *Image {
	return &Image{Width: width, Height: height, Pixels: make([]byte, width*height)}
}

// At returns the pixel at (x, y).
func (img *Image) At(x, y int) byte {
	return img.Pixels[y*img.Width+x]
}

// Set writes the pixel at (x, y).
func (img *Image) Set(x, y int, v byte) {
	img.Pixels[y*img.Width+x] = v
}

// Validate checks the invariant len(Pixels) == Width*Height.
func (img *Image) Validate() error {
	if len(img.Pixels) != img.Width*img.Height {
		return ferrors.Newf(ferrors.Invalid, "image %dx%d has %d pixels, want %d", img.Width, img.Height, len(img.Pixels), img.Width*img.Height)
	}
	return nil
}

// Standardize applies, in order, v-flip, h-flip, and color inversion according to the image's
// flags, clearing each flag as it is applied. Calling Standardize twice in a row is a no-op the
// second time, since the first call always clears every flag it acts on.
func (img *Image) Standardize() {
	if img.VFlipped {
		img.vflip()
		img.VFlipped = false
	}
	if img.HFlipped {
		img.hflip()
		img.HFlipped = false
	}
	if img.ColorsInverted {
		img.invert()
		img.ColorsInverted = false
	}
}

func (img *Image) vflip() {
	w, h := img.Width, img.Height
	row := make([]byte, w)
	for i := 0; i < h/2; i++ {
		j := h - 1 - i
		copy(row, img.Pixels[i*w:(i+1)*w])
		copy(img.Pixels[i*w:(i+1)*w], img.Pixels[j*w:(j+1)*w])
		copy(img.Pixels[j*w:(j+1)*w], row)
	}
}

func (img *Image) hflip() {
	w, h := img.Width, img.Height
	for y := 0; y < h; y++ {
		row := img.Pixels[y*w : (y+1)*w]
		for i, j := 0, w-1; i < j; i, j = i+1, j-1 {
			row[i], row[j] = row[j], row[i]
		}
	}
}

func (img *Image) invert() {
	for i, p := range img.Pixels {
		img.Pixels[i] = 255 - p
	}
}

// Resize magnifies img by the given positive integer factors, applying a box-averaging smoothing
// filter over the source neighborhood each output pixel expands from. Non-integer matching of a
// reference bilinear/bicubic filter is not required; only that match quality is not degraded.
func Resize(img *Image, wf, hf int) (*Image, error) {
	if wf < 1 || hf < 1 {
		return nil, ferrors.Newf(ferrors.Invalid, "resize factors must be >= 1, got %dx%d", wf, hf)
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	out := New(img.Width*wf, img.Height*hf)
	out.Binarized = img.Binarized
	out.Partial = img.Partial
	for oy := 0; oy < out.Height; oy++ {
		sy := oy / hf
		for ox := 0; ox < out.Width; ox++ {
			sx := ox / wf
			out.Set(ox, oy, smoothSample(img, sx, sy))
		}
	}
	return out, nil
}

// smoothSample averages the source pixel with its immediate neighbors, approximating the
// smoothing a bilinear magnification filter applies at a fraction of the cost.
func smoothSample(img *Image, x, y int) byte {
	sum := 0
	n := 0
	for dy := -1; dy <= 1; dy++ {
		ny := y + dy
		if ny < 0 || ny >= img.Height {
			continue
		}
		for dx := -1; dx <= 1; dx++ {
			nx := x + dx
			if nx < 0 || nx >= img.Width {
				continue
			}
			sum += int(img.At(nx, ny))
			n++
		}
	}
	return util.ClampByte(sum / n)
}

// EncodePGM renders img as a PGM P5 greyscale raster: "P5 <w> <h>\n255\n<raw bytes>".
func EncodePGM(img *Image) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "P5 %d %d\n255\n", img.Width, img.Height)
	buf.Write(img.Pixels)
	return buf.Bytes()
}
