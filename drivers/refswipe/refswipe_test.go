package refswipe_test

import (
	"testing"
	"time"

	"github.com/openfprint/gofprint/device"
	"github.com/openfprint/gofprint/drivers/refswipe"
	"github.com/openfprint/gofprint/eventloop"
	"github.com/openfprint/gofprint/fpimage"
)

func openDevice(t *testing.T, loop *eventloop.Loop) *device.Open {
	t.Helper()
	drv := refswipe.New(1)
	desc := device.Descriptor{DriverID: drv.ID(), DevType: 1}
	claim := func(device.Descriptor) (func() error, error) {
		return func() error { return nil }, nil
	}

	var opened *device.Open
	var openErr error
	done := make(chan struct{})
	device.OpenDevice(desc, drv, loop, nil, 0, claim, func(o *device.Open, err error) {
		opened, openErr = o, err
		close(done)
	})

	deadline := time.Now().Add(2 * time.Second)
	for {
		select {
		case <-done:
			if openErr != nil {
				t.Fatalf("open: %v", openErr)
			}
			return opened
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("device never finished opening")
		}
		loop.RunOnce(time.Now().Add(20 * time.Millisecond))
	}
}

func TestEnrollCapturesOneImagePerScan(t *testing.T) {
	loop := eventloop.New()
	dev := openDevice(t, loop)

	var images []*fpimage.Image
	var aborts int
	if err := dev.StartEnroll(
		func(img *fpimage.Image) { images = append(images, img) },
		func(device.RetryHint) { aborts++ },
		func(error) {},
	); err != nil {
		t.Fatalf("start enroll: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(images) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no image captured before deadline")
		}
		loop.RunOnce(time.Now().Add(20 * time.Millisecond))
	}

	if len(images) != 1 {
		t.Fatalf("expected exactly one image captured, got %d", len(images))
	}
	if aborts != 0 {
		t.Fatalf("expected no aborted scans, got %d", aborts)
	}
	img := images[0]
	if img.Width == 0 || img.Height == 0 {
		t.Fatalf("expected a non-empty assembled image, got %dx%d", img.Width, img.Height)
	}
}

func TestStopOperationEndsTheSession(t *testing.T) {
	loop := eventloop.New()
	dev := openDevice(t, loop)

	done := make(chan struct{})
	var finalErr error
	if err := dev.StartVerify(nil, nil, func(err error) {
		finalErr = err
		close(done)
	}); err != nil {
		t.Fatalf("start verify: %v", err)
	}

	// Let at least one finger cycle begin before requesting a stop.
	loop.RunOnce(time.Now().Add(50 * time.Millisecond))

	if err := dev.StopOperation(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		select {
		case <-done:
			if finalErr != nil {
				t.Fatalf("expected a clean stop, got %v", finalErr)
			}
			if dev.State() != device.Initialized {
				t.Fatalf("expected state Initialized after stop, got %v", dev.State())
			}
			return
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("operation never completed")
		}
		loop.RunOnce(time.Now().Add(20 * time.Millisecond))
	}
}
