package assembly_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/openfprint/gofprint/assembly"
	"github.com/openfprint/gofprint/ferrors"
)

func gridStripe(rows [][]byte) assembly.Stripe {
	return assembly.Stripe{PixelAt: func(x, y int) byte { return rows[y][x] }}
}

func uniformStripe(w, h int, v byte) assembly.Stripe {
	return assembly.Stripe{PixelAt: func(x, y int) byte { return v }}
}

func TestAssembleOverlapIdenticalStripes(t *testing.T) {
	rows := [][]byte{
		{1, 2, 3, 4},
		{5, 6, 7, 8},
		{9, 10, 11, 12},
		{13, 14, 15, 16},
	}
	stripes := []assembly.Stripe{gridStripe(rows), gridStripe(rows)}
	policy := assembly.Policy{FrameWidth: 4, FrameHeight: 4, MinFrames: 2}

	img, err := assembly.AssembleOverlap(stripes, policy)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if img.Height != 4 {
		t.Errorf("expected final image height 4 for fully-overlapping identical stripes, got %d", img.Height)
	}
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	if diff := cmp.Diff(want, img.Pixels); diff != "" {
		t.Errorf("fully-overlapping stripes should reproduce the source exactly (-want +got):\n%s", diff)
	}
}

func TestAssembleOverlapDisjointStripes(t *testing.T) {
	stripes := []assembly.Stripe{
		uniformStripe(4, 4, 0x00),
		uniformStripe(4, 4, 0xFF),
	}
	policy := assembly.Policy{FrameWidth: 4, FrameHeight: 4, MinFrames: 2}

	img, err := assembly.AssembleOverlap(stripes, policy)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if img.Height != 7 {
		t.Errorf("expected final image height 7 (frame_height + dy=3) for disjoint stripes, got %d", img.Height)
	}
}

func TestAssembleOverlapTooFewStripesIsRetryTooShort(t *testing.T) {
	stripes := []assembly.Stripe{uniformStripe(4, 4, 1)}
	policy := assembly.Policy{FrameWidth: 4, FrameHeight: 4, MinFrames: 2}

	_, err := assembly.AssembleOverlap(stripes, policy)
	if err == nil {
		t.Fatal("expected too-few-stripes to fail")
	}
	fe, ok := err.(*ferrors.Error)
	if !ok {
		t.Fatalf("expected a *ferrors.Error, got %T", err)
	}
	if fe.Kind != ferrors.RetryScan || fe.Hint != ferrors.RetryTooShort {
		t.Errorf("expected RetryScan/RetryTooShort, got %v/%v", fe.Kind, fe.Hint)
	}
}

func TestAssembleOverlapDropsLastN(t *testing.T) {
	good := uniformStripe(4, 4, 10)
	bad := uniformStripe(4, 4, 250) // simulates a lifting-finger artifact stripe
	stripes := []assembly.Stripe{good, good, good, bad}
	policy := assembly.Policy{FrameWidth: 4, FrameHeight: 4, MinFrames: 2, DropLastN: 1}

	img, err := assembly.AssembleOverlap(stripes, policy)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	for _, p := range img.Pixels {
		if p == 250 {
			t.Fatal("expected the dropped trailing stripe to never appear in the assembled image")
		}
	}
}

func TestAssembleMotionBasicStitch(t *testing.T) {
	s1 := assembly.Stripe{DeltaX: 0, DeltaY: 0, PixelAt: func(x, y int) byte { return 1 }}
	s2 := assembly.Stripe{DeltaX: 0, DeltaY: 2, PixelAt: func(x, y int) byte { return 2 }}
	policy := assembly.Policy{FrameWidth: 4, FrameHeight: 4, ImageWidth: 4, MinFrames: 2}

	img, err := assembly.AssembleMotion([]assembly.Stripe{s1, s2}, policy)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if img.Height != 6 {
		t.Fatalf("expected stitched height 6 (4 + deltaY 2), got %d", img.Height)
	}
	if img.At(0, 0) != 1 {
		t.Errorf("expected row 0 to come purely from stripe 1, got %d", img.At(0, 0))
	}
	if img.At(0, 5) != 2 {
		t.Errorf("expected row 5 to come purely from stripe 2, got %d", img.At(0, 5))
	}
}

func TestAssembleMotionTooManyFramesStopsAtMax(t *testing.T) {
	var stripes []assembly.Stripe
	for i := 0; i < 10; i++ {
		stripes = append(stripes, assembly.Stripe{DeltaY: 1, PixelAt: func(x, y int) byte { return 5 }})
	}
	policy := assembly.Policy{FrameWidth: 2, FrameHeight: 2, ImageWidth: 2, MinFrames: 1, MaxFrames: 3}
	img, err := assembly.AssembleMotion(stripes, policy)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	// with MaxFrames=3 honored, only 2 of the 10 unit deltaY steps apply (stripe 0 contributes
	// none), so the stitched height is FrameHeight + 2, not FrameHeight + 9.
	if img.Height != 4 {
		t.Errorf("expected MaxFrames=3 to cap stitched height at 4, got %d (cap was not honored)", img.Height)
	}
}
