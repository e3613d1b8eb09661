/*Package assembly implements the frame-assembly engine (C7): turning a sequence of stripes
captured by a swipe sensor into one tall image, via one of two named strategies selected per
driver.

Strategy A (AssembleOverlap) suits older sensors that report no motion data of their own: it
searches for the vertical displacement between adjacent stripes that best explains their overlap.
Strategy B (AssembleMotion) suits newer sensors that report (or let the driver estimate) per-stripe
motion directly.
*/
package assembly

import (
	"log"

	"github.com/openfprint/gofprint/ferrors"
	"github.com/openfprint/gofprint/fpimage"
	"github.com/openfprint/gofprint/mathx"
)

// Stripe is one raw frame captured during a swipe, with optional motion-estimation hints that
// AssembleMotion consumes. Pixel access goes through PixelAt so a driver can apply rotation or
// sub-sampling in situ rather than materializing a second copy of the frame.
type Stripe struct {
	DeltaX, DeltaY int
	PixelAt        func(x, y int) byte
}

// Policy bundles the driver-configured knobs AssembleOverlap and AssembleMotion both honor.
type Policy struct {
	FrameWidth, FrameHeight int

	// DropLastN discards the last N stripes before assembling; frames captured as the finger
	// lifts off are unreliable. Typically 1.
	DropLastN int

	// MinFrames is the fewest stripes required to attempt assembly.
	MinFrames int

	// MaxFrames caps accumulation; once reached, capture stops and assembly proceeds with what
	// was gathered.
	MaxFrames int

	// ImageWidth is the output width for AssembleMotion, wider than FrameWidth to absorb
	// horizontal drift. Unused by AssembleOverlap.
	ImageWidth int
}

func (p Policy) prepare(stripes []Stripe) ([]Stripe, error) {
	if p.DropLastN > 0 && len(stripes) > p.DropLastN {
		stripes = stripes[:len(stripes)-p.DropLastN]
	} else if p.DropLastN > 0 {
		stripes = nil
	}
	if len(stripes) < p.MinFrames {
		return nil, ferrors.NewRetry(ferrors.RetryTooShort)
	}
	if p.MaxFrames > 0 && len(stripes) > p.MaxFrames {
		stripes = stripes[:p.MaxFrames]
	}
	return stripes, nil
}

// overlapError computes the normalized overlap-error metric between the bottom `overlapRows` of a
// and the top `overlapRows` of b: the summed absolute pixel difference over the overlap, scaled by
// 15/n_pixels and rounded to an integer, i.e. 15 times the mean absolute difference. Because the
// sum is divided by the overlap size, a uniformly-disjoint pair of stripes produces an identical
// score at every candidate displacement; bestOverlap resolves such ties toward the larger
// (least-overlapping) candidate.
func overlapError(a, b Stripe, width, overlapRows int) int {
	if overlapRows == 0 {
		return 0
	}
	sum := 0
	for y := 0; y < overlapRows; y++ {
		// bottom overlapRows rows of a start at (frameHeight - overlapRows); the caller passes
		// a's row accessor already offset so row 0 here means that boundary.
		for x := 0; x < width; x++ {
			av := int(a.PixelAt(x, y))
			bv := int(b.PixelAt(x, y))
			d := av - bv
			if d < 0 {
				d = -d
			}
			sum += d
		}
	}
	n := width * overlapRows
	return int(mathx.Round(float64(sum)*15/float64(n), 1))
}

// bestOverlap searches dy in [0, frameHeight) for the displacement between a and b with minimum
// overlapError, returning that dy as the "not overlapped height" contributed by b.
func bestOverlap(a, b Stripe, width, frameHeight int) int {
	bestDy := 0
	bestErr := -1
	for dy := 0; dy < frameHeight; dy++ {
		overlapRows := frameHeight - dy
		aOffset := frameHeight - overlapRows // == dy
		err := overlapError(
			offsetStripe(a, 0, aOffset),
			offsetStripe(b, 0, 0),
			width, overlapRows)
		if bestErr == -1 || err <= bestErr {
			bestErr = err
			bestDy = dy
		}
	}
	return bestDy
}

func offsetStripe(s Stripe, dx, dy int) Stripe {
	return Stripe{PixelAt: func(x, y int) byte { return s.PixelAt(x+dx, y+dy) }}
}

// totalErrorForOrder computes the sum of each adjacent pair's winning overlap error when stripes
// are assembled in the given order, used to pick the lower-error of the forward/reverse pass.
func totalErrorForOrder(stripes []Stripe, width, frameHeight int) (int, []int) {
	total := 0
	notOverlapped := make([]int, len(stripes))
	for i := 1; i < len(stripes); i++ {
		dy := bestOverlap(stripes[i-1], stripes[i], width, frameHeight)
		notOverlapped[i] = dy
		overlapRows := frameHeight - dy
		total += overlapError(
			offsetStripe(stripes[i-1], 0, frameHeight-overlapRows),
			offsetStripe(stripes[i], 0, 0),
			width, overlapRows)
	}
	return total, notOverlapped
}

func reversed(stripes []Stripe) []Stripe {
	out := make([]Stripe, len(stripes))
	for i, s := range stripes {
		out[len(stripes)-1-i] = s
	}
	return out
}

// AssembleOverlap runs Strategy A: overlap-error minimization, as used by older Authentec-style
// swipe sensors that report no motion data of their own.
func AssembleOverlap(stripes []Stripe, p Policy) (*fpimage.Image, error) {
	stripes, err := p.prepare(stripes)
	if err != nil {
		return nil, err
	}

	width, frameHeight := p.FrameWidth, p.FrameHeight
	forwardErr, forwardNO := totalErrorForOrder(stripes, width, frameHeight)

	flip := false
	chosen, chosenNO := stripes, forwardNO
	if len(stripes) > 1 {
		rev := reversed(stripes)
		reverseErr, reverseNO := totalErrorForOrder(rev, width, frameHeight)
		if reverseErr < forwardErr {
			chosen, chosenNO = rev, reverseNO
			flip = true
			log.Printf("assembly: overlap error %d favors reversed stripe order over forward %d, flipping", reverseErr, forwardErr)
		}
	}

	height := frameHeight
	for _, no := range chosenNO[1:] {
		height += no
	}

	out := fpimage.New(width, height)
	cursor := 0
	for i, s := range chosen {
		no := 0
		if i > 0 {
			no = chosenNO[i]
		}
		cursor += no
		for y := 0; y < frameHeight; y++ {
			for x := 0; x < width; x++ {
				out.Set(x, cursor+y, s.PixelAt(x, y))
			}
		}
	}
	out.VFlipped = flip
	out.HFlipped = flip
	return out, nil
}

// AssembleMotion runs Strategy B: motion-estimation plus weighted stitching, as used by newer
// sensors that report (or let the driver estimate) per-stripe (delta_x, delta_y).
func AssembleMotion(stripes []Stripe, p Policy) (*fpimage.Image, error) {
	stripes, err := p.prepare(stripes)
	if err != nil {
		return nil, err
	}

	width := p.ImageWidth
	if width < p.FrameWidth {
		width = p.FrameWidth
	}
	frameHeight := p.FrameHeight

	maxY := 0
	cursorX, cursorY := 0, 0
	positions := make([][2]int, len(stripes))
	for i, s := range stripes {
		if i > 0 {
			cursorX += s.DeltaX
			cursorY += s.DeltaY
		}
		positions[i] = [2]int{cursorX, cursorY}
		if cursorY+frameHeight > maxY {
			maxY = cursorY + frameHeight
		}
	}

	out := fpimage.New(width, maxY)
	counts := make([]int, width*maxY)
	sums := make([]int, width*maxY)

	for i, s := range stripes {
		ox, oy := positions[i][0], positions[i][1]
		for y := 0; y < frameHeight; y++ {
			oyy := oy + y
			if oyy < 0 || oyy >= maxY {
				continue
			}
			for x := 0; x < p.FrameWidth; x++ {
				oxx := ox + x
				if oxx < 0 || oxx >= width {
					continue
				}
				idx := oyy*width + oxx
				sums[idx] += int(s.PixelAt(x, y))
				counts[idx]++
			}
		}
	}

	for i := range out.Pixels {
		if counts[i] > 0 {
			out.Pixels[i] = byte(sums[i] / counts[i])
		}
	}
	return out, nil
}
