package engine

import (
	"context"
	"testing"
)

func TestControlStopFreesAttachedSession(t *testing.T) {
	fb := newFakeBackend(nil)
	s := openTestSession(t, fb)
	ctl := NewControl(context.Background())
	defer ctl.Release()
	ctl.Attach(s)
	ctl.Stop(StopUser)
	assertAllFreed(t, fb)
	if ctl.Context().Err() == nil {
		t.Fatalf("control context should be cancelled")
	}
	if !IsInterrupted(ctl.Err()) {
		t.Fatalf("expected Interrupted, got %v", ctl.Err())
	}
}

func TestControlAttachAfterStop(t *testing.T) {
	fb := newFakeBackend(nil)
	ctl := NewControl(context.Background())
	ctl.Stop(StopUser)
	s := openTestSession(t, fb)
	ctl.Attach(s)
	if !s.Stopped() {
		t.Fatalf("session attached after stop should be stopped")
	}
	assertAllFreed(t, fb)
}

func TestControlFirstReasonWins(t *testing.T) {
	ctl := NewControl(context.Background())
	if ctl.Err() != nil || ctl.Reason() != StopNone {
		t.Fatalf("fresh control should not be stopped")
	}
	ctl.Stop(StopMemoryPressure)
	ctl.Stop(StopUser)
	if ctl.Reason() != StopMemoryPressure {
		t.Fatalf("reason=%d", ctl.Reason())
	}
	if !IsOutOfMemory(ctl.Err()) {
		t.Fatalf("expected OutOfMemory, got %v", ctl.Err())
	}
	if ctl.ID == "" {
		t.Fatalf("control should carry an id")
	}
}

func TestControlDetach(t *testing.T) {
	fb := newFakeBackend(nil)
	s := openTestSession(t, fb)
	ctl := NewControl(context.Background())
	ctl.Attach(s)
	ctl.Detach(s)
	ctl.Stop(StopUser)
	if s.Stopped() {
		t.Fatalf("detached session should not be stopped")
	}
	s.Close()
}
