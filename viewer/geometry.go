package viewer

import "math"

type Point struct {
	X, Y float64
}

type Size struct {
	W, H float64
}

type Rect struct {
	X, Y, W, H float64
}

// Transform is the viewport affine: screen = world*Scale + Pan. Pan is in
// screen units, so a 1:1 pointer drag translates the view by the raw screen
// delta at any zoom level.
type Transform struct {
	Scale float64
	Pan   Point
}

func IdentityTransform() Transform {
	return Transform{Scale: 1}
}

// Apply maps a world point to screen coordinates.
func (t Transform) Apply(p Point) Point {
	return Point{
		X: p.X*t.Scale + t.Pan.X,
		Y: p.Y*t.Scale + t.Pan.Y,
	}
}

// Invert maps a screen point back to world coordinates.
func (t Transform) Invert(p Point) Point {
	if t.Scale == 0 {
		return Point{}
	}
	return Point{
		X: (p.X - t.Pan.X) / t.Scale,
		Y: (p.Y - t.Pan.Y) / t.Scale,
	}
}

// ZoomAt scales the transform by factor keeping the world point under the
// screen point p fixed: newPan = p - (p - oldPan) * (newScale/oldScale).
// The resulting scale is clamped to [minScale, maxScale].
func ZoomAt(t Transform, p Point, factor, minScale, maxScale float64) Transform {
	if t.Scale == 0 {
		t.Scale = 1
	}
	newScale := clamp(t.Scale*factor, minScale, maxScale)
	ratio := newScale / t.Scale
	return Transform{
		Scale: newScale,
		Pan: Point{
			X: p.X - (p.X-t.Pan.X)*ratio,
			Y: p.Y - (p.Y-t.Pan.Y)*ratio,
		},
	}
}

// FitToBox returns the largest aspect-preserving placement of a imgW×imgH
// image fully contained and centered in box. The image is never cropped and
// never scaled beyond what the box allows.
func FitToBox(box Rect, imgW, imgH float64) Rect {
	if imgW <= 0 || imgH <= 0 || box.W <= 0 || box.H <= 0 {
		return Rect{X: box.X, Y: box.Y}
	}
	scale := math.Min(box.W/imgW, box.H/imgH)
	w := imgW * scale
	h := imgH * scale
	return Rect{
		X: box.X + (box.W-w)/2,
		Y: box.Y + (box.H-h)/2,
		W: w,
		H: h,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}
