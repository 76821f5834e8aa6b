package viewer

import (
	"image"

	"github.com/adwski/preview-relay/model"
)

const sideBySideGutter = 8.0

// DrawOp places one slot's bitmap into the viewport box. Dst and Clip are in
// box coordinates; the embedding applies Scene.View over the whole
// composited frame after layout.
type DrawOp struct {
	Slot  SlotKind
	Image image.Image
	Dst   Rect
	Clip  *Rect
}

// Scene is one composited frame handed to the embedding's renderer.
type Scene struct {
	Box    Size
	View   Transform
	Mode   CompareMode
	Status model.Status
	Ops    []DrawOp

	// SplitX is the split line position in box coordinates, valid when
	// HasSplitLine is set.
	SplitX       float64
	HasSplitLine bool
}

func (s *Session) composeScene() Scene {
	scene := Scene{
		Box:    s.box,
		View:   s.view,
		Mode:   s.mode,
		Status: s.status,
	}
	box := Rect{W: s.box.W, H: s.box.H}

	switch s.mode {
	case ModeSideBySide:
		colW := (box.W - sideBySideGutter) / 2
		left := Rect{X: 0, Y: 0, W: colW, H: box.H}
		right := Rect{X: colW + sideBySideGutter, Y: 0, W: colW, H: box.H}
		if s.current.hasData() {
			scene.Ops = append(scene.Ops, drawFit(SlotCurrent, s.current, left, nil))
		}
		if s.reference.hasData() {
			scene.Ops = append(scene.Ops, drawFit(SlotReference, s.reference, right, nil))
		}

	case ModeToggle:
		kind := s.effectiveToggle()
		if sl := s.slotFor(kind); sl.hasData() {
			scene.Ops = append(scene.Ops, drawFit(kind, *sl, box, nil))
		}

	default: // ModeSplit
		switch {
		case s.current.hasData() && s.reference.hasData():
			splitX := s.splitRatio * box.W
			clip := Rect{X: 0, Y: 0, W: splitX, H: box.H}
			scene.Ops = append(scene.Ops,
				drawFit(SlotReference, s.reference, box, nil),
				drawFit(SlotCurrent, s.current, box, &clip),
			)
			scene.SplitX = splitX
			scene.HasSplitLine = true
		case s.current.hasData():
			scene.Ops = append(scene.Ops, drawFit(SlotCurrent, s.current, box, nil))
		case s.reference.hasData():
			scene.Ops = append(scene.Ops, drawFit(SlotReference, s.reference, box, nil))
		}
	}
	return scene
}

func drawFit(kind SlotKind, sl slot, box Rect, clip *Rect) DrawOp {
	return DrawOp{
		Slot:  kind,
		Image: sl.bitmap,
		Dst:   FitToBox(box, float64(sl.w), float64(sl.h)),
		Clip:  clip,
	}
}

// effectiveToggle falls back to the populated slot when the selected one has
// no data.
func (s *Session) effectiveToggle() SlotKind {
	if s.slotFor(s.activeToggle).hasData() {
		return s.activeToggle
	}
	other := otherSlot(s.activeToggle)
	if s.slotFor(other).hasData() {
		return other
	}
	return s.activeToggle
}

func otherSlot(kind SlotKind) SlotKind {
	if kind == SlotCurrent {
		return SlotReference
	}
	return SlotCurrent
}
