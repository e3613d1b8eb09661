package usbxfer_test

import (
	"testing"
	"time"

	"github.com/openfprint/gofprint/eventloop"
	"github.com/openfprint/gofprint/usbxfer"
)

func TestSubmitReadDeliversCompleted(t *testing.T) {
	loop := eventloop.New()
	fake := &usbxfer.FakeEndpoint{Responses: []usbxfer.FakeResponse{
		{Data: []byte("hello")},
	}}
	adapter := usbxfer.New(loop, fake, fake)

	buf := make([]byte, 5)
	done := make(chan usbxfer.Completion, 1)
	adapter.SubmitRead(buf, time.Second, func(c usbxfer.Completion) {
		done <- c
	})

	loop.RunOnce(time.Now().Add(time.Second))
	select {
	case c := <-done:
		if c.Status != usbxfer.Completed {
			t.Fatalf("expected Completed, got %v (err=%v)", c.Status, c.Err)
		}
		if c.ActualLength != 5 {
			t.Errorf("expected actual length 5, got %d", c.ActualLength)
		}
	case <-time.After(time.Second):
		t.Fatal("completion never delivered")
	}
}

func TestSubmitReadShortTransferIsProtocolError(t *testing.T) {
	loop := eventloop.New()
	fake := &usbxfer.FakeEndpoint{Responses: []usbxfer.FakeResponse{
		{Data: []byte("ab")},
	}}
	adapter := usbxfer.New(loop, fake, fake)

	buf := make([]byte, 10)
	done := make(chan usbxfer.Completion, 1)
	adapter.SubmitRead(buf, time.Second, func(c usbxfer.Completion) { done <- c })

	loop.RunOnce(time.Now().Add(time.Second))
	c := <-done
	if c.Status != usbxfer.Stall {
		t.Fatalf("expected Stall for short transfer, got %v", c.Status)
	}
	if c.Err == nil {
		t.Error("expected a non-nil error on short transfer")
	}
}

func TestSubmitReadTimeout(t *testing.T) {
	loop := eventloop.New()
	fake := &usbxfer.FakeEndpoint{Responses: []usbxfer.FakeResponse{
		{Err: usbxfer.ErrTimedOut},
	}}
	adapter := usbxfer.New(loop, fake, fake)

	buf := make([]byte, 4)
	done := make(chan usbxfer.Completion, 1)
	adapter.SubmitRead(buf, time.Second, func(c usbxfer.Completion) { done <- c })

	loop.RunOnce(time.Now().Add(time.Second))
	c := <-done
	if c.Status != usbxfer.TimedOut {
		t.Fatalf("expected TimedOut, got %v", c.Status)
	}
}

func TestCancelDeliversSyntheticCancelled(t *testing.T) {
	loop := eventloop.New()
	fake := &usbxfer.FakeEndpoint{Responses: []usbxfer.FakeResponse{
		{Data: []byte("late"), Delay: 100 * time.Millisecond},
	}}
	adapter := usbxfer.New(loop, fake, fake)

	buf := make([]byte, 4)
	var completions []usbxfer.Completion
	xfer := adapter.SubmitRead(buf, time.Second, func(c usbxfer.Completion) {
		completions = append(completions, c)
	})

	adapter.Cancel(xfer, func(c usbxfer.Completion) {
		completions = append(completions, c)
	})

	loop.RunOnce(time.Now().Add(50 * time.Millisecond))

	if len(completions) != 1 {
		t.Fatalf("expected exactly one completion (the synthetic Cancelled), got %d: %v", len(completions), completions)
	}
	if completions[0].Status != usbxfer.CancelledStatus {
		t.Errorf("expected Cancelled, got %v", completions[0].Status)
	}

	// let the background read finish and confirm its real result never arrives.
	time.Sleep(120 * time.Millisecond)
	loop.RunOnce(time.Now().Add(50 * time.Millisecond))
	if len(completions) != 1 {
		t.Errorf("expected the discarded real result not to deliver a second completion, got %d", len(completions))
	}
}
