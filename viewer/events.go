package viewer

import (
	"image"

	"github.com/adwski/preview-relay/model"
)

// Event is anything dispatched into a session's single entry point: network
// receipt, user input, and internal completions all flow through it.
type Event interface {
	isEvent()
}

type Button int

const (
	ButtonPrimary Button = iota
	ButtonSecondary
)

// FrameEvent carries one received frame message. Frames for other channels
// are ignored by the session.
type FrameEvent struct {
	Msg model.FrameMessage
}

// CaptureEvent copies the current slot into the reference slot.
type CaptureEvent struct{}

// ClearReferenceEvent empties the reference slot.
type ClearReferenceEvent struct{}

// SetModeEvent switches the comparison mode and resets the viewport.
type SetModeEvent struct {
	Mode CompareMode
}

// ToggleEvent flips which slot is visible in toggle mode.
type ToggleEvent struct{}

// PointerDownEvent begins a gesture. Modifier+primary or secondary starts a
// pan; otherwise, in split mode with a ready reference, a split-ratio drag.
type PointerDownEvent struct {
	P        Point
	Button   Button
	Modifier bool
}

type PointerMoveEvent struct {
	P Point
}

type PointerUpEvent struct{}

// WheelEvent zooms centered on the cursor.
type WheelEvent struct {
	P      Point
	Factor float64
}

// ResetViewEvent restores scale 1 and zero pan (double-activation gesture).
type ResetViewEvent struct{}

// ResizeEvent updates the viewport box.
type ResizeEvent struct {
	Box Size
}

// StatusEvent reports subscriber connectivity. Advisory only: it never
// blocks interaction or rendering.
type StatusEvent struct {
	Status model.Status
}

// decodeDoneEvent is posted by the decode goroutine back into the loop.
type decodeDoneEvent struct {
	kind    SlotKind
	gen     uint64
	payload []byte
	img     image.Image
	err     error
}

// referenceLoadedEvent carries a persisted reference payload found at
// session start.
type referenceLoadedEvent struct {
	payload []byte
}

// queryEvent serves Snapshot without exposing loop-owned state to other
// goroutines.
type queryEvent struct {
	resp chan<- Snapshot
}

func (FrameEvent) isEvent()           {}
func (CaptureEvent) isEvent()         {}
func (ClearReferenceEvent) isEvent()  {}
func (SetModeEvent) isEvent()         {}
func (ToggleEvent) isEvent()          {}
func (PointerDownEvent) isEvent()     {}
func (PointerMoveEvent) isEvent()     {}
func (PointerUpEvent) isEvent()       {}
func (WheelEvent) isEvent()           {}
func (ResetViewEvent) isEvent()       {}
func (ResizeEvent) isEvent()          {}
func (StatusEvent) isEvent()          {}
func (decodeDoneEvent) isEvent()      {}
func (referenceLoadedEvent) isEvent() {}
func (queryEvent) isEvent()           {}
