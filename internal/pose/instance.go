package pose

import "math"

// Point is a 2D landmark location in absolute image pixel-centre
// coordinates. Missing landmarks are represented as NaN on both axes.
type Point struct {
	X float64
	Y float64
}

// MissingPoint returns the canonical missing-landmark value.
func MissingPoint() Point { return Point{X: math.NaN(), Y: math.NaN()} }

// Visible reports whether the point carries a real location.
func (p Point) Visible() bool { return !math.IsNaN(p.X) && !math.IsNaN(p.Y) }

// Dist returns the Euclidean distance to q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Peak is a single detected landmark decoded from a confidence map:
// location, confidence score, source channel (skeleton node index) and
// source sample index within a batch.
type Peak struct {
	Sample  int
	Channel int
	X       float64
	Y       float64
	Score   float64
}

// Point returns the peak location as a Point.
func (pk Peak) Point() Point { return Point{X: pk.X, Y: pk.Y} }

// Instance is an assembled set of landmarks for one animal: one point per
// skeleton node (missing nodes are NaN), per-node confidence scores, and an
// aggregate instance score.
//
// Centered instances come from the topdown flow (one animal per crop);
// grouped instances come from bottom-up part-affinity grouping.
type Instance struct {
	Skeleton *Skeleton
	Points   []Point
	Scores   []float64
	Score    float64

	// Grouped is true for instances assembled by PAF grouping, false for
	// centered (topdown) and single-instance construction.
	Grouped bool

	// Track identity, assigned by the tracker after frame assembly.
	Track         *Track
	TrackingScore float64
}

// NewInstance allocates an instance with all points missing.
func NewInstance(skeleton *Skeleton) *Instance {
	n := skeleton.Len()
	inst := &Instance{
		Skeleton: skeleton,
		Points:   make([]Point, n),
		Scores:   make([]float64, n),
	}
	for i := range inst.Points {
		inst.Points[i] = MissingPoint()
		inst.Scores[i] = math.NaN()
	}
	return inst
}

// NumVisible returns the number of non-missing points.
func (inst *Instance) NumVisible() int {
	n := 0
	for _, p := range inst.Points {
		if p.Visible() {
			n++
		}
	}
	return n
}

// Centroid returns the representative point used to centre a crop: the
// anchor node's point when anchor >= 0 and visible, otherwise the mean of
// all visible points. Returns a missing point for an empty instance.
func (inst *Instance) Centroid(anchor int) Point {
	if anchor >= 0 && anchor < len(inst.Points) && inst.Points[anchor].Visible() {
		return inst.Points[anchor]
	}
	var sx, sy float64
	n := 0
	for _, p := range inst.Points {
		if p.Visible() {
			sx += p.X
			sy += p.Y
			n++
		}
	}
	if n == 0 {
		return MissingPoint()
	}
	return Point{X: sx / float64(n), Y: sy / float64(n)}
}

// BBox returns the tight bounding box over visible points. The second
// return is false when the instance has no visible points.
func (inst *Instance) BBox() (BBox, bool) {
	first := true
	var b BBox
	for _, p := range inst.Points {
		if !p.Visible() {
			continue
		}
		if first {
			b = BBox{Y1: p.Y, X1: p.X, Y2: p.Y, X2: p.X}
			first = false
			continue
		}
		b.Y1 = math.Min(b.Y1, p.Y)
		b.X1 = math.Min(b.X1, p.X)
		b.Y2 = math.Max(b.Y2, p.Y)
		b.X2 = math.Max(b.X2, p.X)
	}
	return b, !first
}

// SumScores returns the sum of finite per-node scores.
func (inst *Instance) SumScores() float64 {
	var s float64
	for _, v := range inst.Scores {
		if !math.IsNaN(v) {
			s += v
		}
	}
	return s
}

// MeanScore returns the mean of finite per-node scores, or 0 when none.
func (inst *Instance) MeanScore() float64 {
	var s float64
	n := 0
	for _, v := range inst.Scores {
		if !math.IsNaN(v) {
			s += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return s / float64(n)
}

// Shift translates all visible points by (dx, dy). Used to map crop-local
// predictions back to full-image coordinates.
func (inst *Instance) Shift(dx, dy float64) {
	for i, p := range inst.Points {
		if p.Visible() {
			inst.Points[i] = Point{X: p.X + dx, Y: p.Y + dy}
		}
	}
}

// Rescale multiplies all visible points by f. Used to undo an input scale
// factor applied earlier in a pipeline.
func (inst *Instance) Rescale(f float64) {
	for i, p := range inst.Points {
		if p.Visible() {
			inst.Points[i] = Point{X: p.X * f, Y: p.Y * f}
		}
	}
}

// LabeledFrame is the per-frame output unit: a video reference, a frame
// index and the ordered instances found in that frame. Frames are built
// once all instances for the frame are available and are immutable after
// construction except for track assignment.
type LabeledFrame struct {
	VideoIndex int
	FrameIndex int
	Instances  []*Instance
}
