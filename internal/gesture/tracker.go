package gesture

import (
	"math"

	"fyne.io/fyne/v2"
)

// tapSlop is how far a lone pointer may wander and still count as a tap
// on an element whose drag recognizer did not start.
const tapSlop = 10

type pointer struct {
	start fyne.Position
	last  fyne.Position
}

// Tracker converts raw pointer streams on one element into reconciler
// calls: one pointer pans, a second pointer adds pinch and rotate, and a
// short single-pointer touch that never started a drag is a tap. Pointers
// beyond the first two are ignored. Events must be delivered serially.
type Tracker struct {
	r *Reconciler

	pointers map[int]*pointer
	order    []int

	panning bool
	// Translation carried over from before the last pointer-count change,
	// and the centroid the current segment is measured from.
	carried    fyne.Delta
	segmentRef fyne.Position

	pinching    bool
	initialDist float64
	lastAngle   float64
	turned      float64

	maxPointers int
	travelled   float32
}

// NewTracker returns a tracker feeding r.
func NewTracker(r *Reconciler) *Tracker {
	return &Tracker{r: r, pointers: make(map[int]*pointer)}
}

func (t *Tracker) centroid() fyne.Position {
	var x, y float32
	n := 0
	for _, id := range t.order {
		p := t.pointers[id]
		x += p.last.X
		y += p.last.Y
		n++
	}
	if n == 0 {
		return fyne.Position{}
	}
	return fyne.NewPos(x/float32(n), y/float32(n))
}

func (t *Tracker) pair() (dist, angle float64) {
	a := t.pointers[t.order[0]].last
	b := t.pointers[t.order[1]].last
	dx := float64(b.X - a.X)
	dy := float64(b.Y - a.Y)
	return math.Hypot(dx, dy), math.Atan2(dy, dx)
}

func (t *Tracker) translation() fyne.Delta {
	c := t.centroid()
	return fyne.NewDelta(t.carried.DX+c.X-t.segmentRef.X, t.carried.DY+c.Y-t.segmentRef.Y)
}

// rebase folds the current segment into carried before the pointer set changes.
func (t *Tracker) rebase() {
	if len(t.order) > 0 {
		t.carried = t.translation()
	}
}

// WrapAngle maps a raw angle difference into (-π, π], so a turn across
// the atan2 branch cut counts as the short way round.
func WrapAngle(d float64) float64 {
	d = math.Mod(d, 2*math.Pi)
	switch {
	case d > math.Pi:
		d -= 2 * math.Pi
	case d <= -math.Pi:
		d += 2 * math.Pi
	}
	return d
}

// Down registers a new pointer at pos.
func (t *Tracker) Down(id int, pos fyne.Position) {
	if _, dup := t.pointers[id]; dup || len(t.order) >= 2 {
		return
	}
	t.rebase()
	t.pointers[id] = &pointer{start: pos, last: pos}
	t.order = append(t.order, id)
	t.segmentRef = t.centroid()
	t.maxPointers = max(t.maxPointers, len(t.order))

	switch len(t.order) {
	case 1:
		t.carried = fyne.Delta{}
		t.travelled = 0
		t.panning = t.r.PanStart()
	case 2:
		t.initialDist, t.lastAngle = t.pair()
		t.turned = 0
		pinch := t.r.PinchStart()
		rotate := t.r.RotateStart()
		t.pinching = pinch || rotate
	}
}

// Move updates a pointer's position.
func (t *Tracker) Move(id int, pos fyne.Position) {
	p, ok := t.pointers[id]
	if !ok {
		return
	}
	p.last = pos
	if len(t.order) == 1 {
		d := fyne.NewDelta(pos.X-p.start.X, pos.Y-p.start.Y)
		t.travelled = max(t.travelled, length(d))
	}

	if t.panning {
		t.r.PanMove(t.translation())
	}
	if t.pinching && len(t.order) == 2 {
		dist, angle := t.pair()
		if t.initialDist > 0 {
			t.r.PinchMove(float32(dist / t.initialDist))
		}
		t.turned += WrapAngle(angle - t.lastAngle)
		t.lastAngle = angle
		t.r.RotateMove(float32(t.turned))
	}
}

// Up releases a pointer and returns the outcome of any gesture it ended.
func (t *Tracker) Up(id int) Outcome {
	if _, ok := t.pointers[id]; !ok {
		return Ignored
	}
	t.rebase()
	delete(t.pointers, id)
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	t.segmentRef = t.centroid()

	out := Ignored
	if t.pinching && len(t.order) < 2 {
		t.pinching = false
		if o := t.r.PinchEnd(); o != Ignored {
			out = o
		}
		if o := t.r.RotateEnd(); o != Ignored {
			out = o
		}
	}

	if len(t.order) == 0 {
		switch {
		case t.panning:
			out = t.r.PanEnd()
		case t.maxPointers == 1 && t.travelled <= tapSlop:
			out = t.r.Tap()
		}
		t.reset()
	}
	return out
}

// Cancel abandons every pointer without committing.
func (t *Tracker) Cancel() {
	t.r.Cancel()
	t.pointers = make(map[int]*pointer)
	t.order = nil
	t.reset()
}

func (t *Tracker) reset() {
	t.panning = false
	t.pinching = false
	t.carried = fyne.Delta{}
	t.maxPointers = 0
	t.travelled = 0
}
