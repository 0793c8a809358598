package pose

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
)

// TrackerSimilarity selects the instance-to-track similarity measure.
type TrackerSimilarity string

const (
	// SimilarityDistance scores by mean Euclidean distance between
	// corresponding visible points (lower is better).
	SimilarityDistance TrackerSimilarity = "distance"
	// SimilarityIOU scores by bounding-box intersection-over-union,
	// converted to a cost as 1-IOU.
	SimilarityIOU TrackerSimilarity = "iou"
)

// TrackerConfig holds configuration parameters for the identity tracker.
type TrackerConfig struct {
	Similarity  TrackerSimilarity
	Greedy      bool    // Greedy matching instead of Hungarian
	MaxDistance float64 // Gating distance in pixels (distance similarity)
	MinIOU      float64 // Gating IOU (IOU similarity)
	MaxMisses   int     // Consecutive missed frames before retirement
	MinTrackLen int     // Final pass culls tracks shorter than this
	MaxTracks   int     // Cap on concurrently active tracks; 0 = unlimited
}

// DefaultTrackerConfig returns default tracker configuration.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		Similarity:  SimilarityDistance,
		MaxDistance: 64,
		MinIOU:      0.1,
		MaxMisses:   10,
		MinTrackLen: 2,
	}
}

// Track is a temporal identity: the same animal followed across frames.
type Track struct {
	ID   string // UUID
	Name string // Human-readable, e.g. "track_3"

	FirstFrame int
	LastFrame  int
	Len        int // Number of instances assigned
}

// trackState is the tracker's mutable per-track bookkeeping.
type trackState struct {
	track    *Track
	last     *Instance
	velocity []Point // Per-node displacement between the last two frames
	misses   int
}

// Tracker assigns temporal identity to instances across frames. It is
// strictly sequential: frames must be presented in order, because identity
// assignment depends on causal history. All state is mutated only by the
// tracker itself, once per processed frame.
type Tracker struct {
	Config TrackerConfig

	active    []*trackState
	all       []*Track
	nextID    int
	lastFrame int
}

// NewTracker creates a tracker with the specified configuration.
func NewTracker(cfg TrackerConfig) *Tracker {
	if cfg.Similarity == "" {
		cfg.Similarity = SimilarityDistance
	}
	return &Tracker{Config: cfg, lastFrame: -1}
}

// NeedsImages reports whether the tracker requires pixel data for the
// frames it processes. The kinematic tracker matches on geometry alone; the
// hook exists so predictors know whether to pass frame images through.
func (t *Tracker) NeedsImages() bool { return false }

// Tracks returns every track ever spawned, in creation order.
func (t *Tracker) Tracks() []*Track { return t.all }

// Track associates the frame's untracked instances with active tracks and
// annotates them in place with track identity. img may be nil unless
// NeedsImages is true. Returns the same instances for chaining.
func (t *Tracker) Track(instances []*Instance, img *Image, frameIdx int) []*Instance {
	if frameIdx <= t.lastFrame {
		Diagf("[Tracker] Out-of-order frame %d after %d; identity quality degrades", frameIdx, t.lastFrame)
	}
	t.lastFrame = frameIdx

	if len(instances) == 0 {
		t.advanceMisses()
		return instances
	}

	// Step 1: Build the gated cost matrix instance x track.
	cost := make([][]float64, len(instances))
	for i, inst := range instances {
		cost[i] = make([]float64, len(t.active))
		for j, ts := range t.active {
			cost[i][j] = t.matchCost(inst, ts)
		}
	}

	// Step 2: Solve the assignment.
	var assign []int
	if len(t.active) == 0 {
		assign = make([]int, len(instances))
		for i := range assign {
			assign[i] = -1
		}
	} else if t.Config.Greedy {
		assign = AssignGreedy(cost)
	} else {
		assign = AssignHungarian(cost)
	}

	// Step 3: Update matched tracks, spawn tracks for the rest.
	matched := make([]bool, len(t.active))
	for i, inst := range instances {
		j := assign[i]
		if j >= 0 {
			ts := t.active[j]
			matched[j] = true
			t.updateTrack(ts, inst, frameIdx)
			inst.Track = ts.track
			inst.TrackingScore = costToScore(cost[i][j])
			continue
		}
		if t.Config.MaxTracks > 0 && len(t.active) >= t.Config.MaxTracks {
			Diagf("[Tracker] Track cap %d reached, instance left untracked in frame %d", t.Config.MaxTracks, frameIdx)
			continue
		}
		ts := t.spawnTrack(inst, frameIdx)
		// New appendees must not join this frame's matching; they were
		// appended after the cost matrix was built, which is exactly the
		// behaviour we want.
		inst.Track = ts.track
		inst.TrackingScore = 1
	}

	// Step 4: Age out unmatched tracks.
	survivors := t.active[:0]
	for j, ts := range t.active {
		if j < len(matched) && matched[j] {
			ts.misses = 0
			survivors = append(survivors, ts)
			continue
		}
		if ts.last != nil && ts.track.LastFrame == frameIdx {
			// Spawned this frame.
			survivors = append(survivors, ts)
			continue
		}
		ts.misses++
		if ts.misses <= t.Config.MaxMisses {
			survivors = append(survivors, ts)
		}
	}
	t.active = survivors

	return instances
}

// advanceMisses ages every active track by one missed frame.
func (t *Tracker) advanceMisses() {
	survivors := t.active[:0]
	for _, ts := range t.active {
		ts.misses++
		if ts.misses <= t.Config.MaxMisses {
			survivors = append(survivors, ts)
		}
	}
	t.active = survivors
}

// matchCost computes the gated association cost between an instance and a
// track's predicted state. Forbidden pairs return ForbiddenCost.
func (t *Tracker) matchCost(inst *Instance, ts *trackState) float64 {
	predicted := ts.predictedPoints()
	switch t.Config.Similarity {
	case SimilarityIOU:
		iou := bboxIOU(inst, predicted)
		if iou < t.Config.MinIOU {
			return ForbiddenCost
		}
		return 1 - iou
	default:
		d := meanPointDistance(inst.Points, predicted)
		if math.IsNaN(d) || d > t.Config.MaxDistance {
			return ForbiddenCost
		}
		return d
	}
}

// predictedPoints extrapolates the track's last instance one frame forward
// under a constant-velocity model.
func (ts *trackState) predictedPoints() []Point {
	pts := make([]Point, len(ts.last.Points))
	for i, p := range ts.last.Points {
		if !p.Visible() {
			pts[i] = p
			continue
		}
		if ts.velocity != nil && i < len(ts.velocity) && ts.velocity[i].Visible() {
			pts[i] = Point{X: p.X + ts.velocity[i].X, Y: p.Y + ts.velocity[i].Y}
		} else {
			pts[i] = p
		}
	}
	return pts
}

func (t *Tracker) updateTrack(ts *trackState, inst *Instance, frameIdx int) {
	// Refresh per-node velocity from consecutive visible observations.
	vel := make([]Point, len(inst.Points))
	for i := range vel {
		vel[i] = MissingPoint()
		if i < len(ts.last.Points) && ts.last.Points[i].Visible() && inst.Points[i].Visible() {
			vel[i] = Point{X: inst.Points[i].X - ts.last.Points[i].X, Y: inst.Points[i].Y - ts.last.Points[i].Y}
		}
	}
	ts.velocity = vel
	ts.last = inst
	ts.misses = 0
	ts.track.LastFrame = frameIdx
	ts.track.Len++
}

func (t *Tracker) spawnTrack(inst *Instance, frameIdx int) *trackState {
	tr := &Track{
		ID:         uuid.NewString(),
		Name:       fmt.Sprintf("track_%d", t.nextID),
		FirstFrame: frameIdx,
		LastFrame:  frameIdx,
		Len:        1,
	}
	t.nextID++
	t.all = append(t.all, tr)
	ts := &trackState{track: tr, last: inst}
	t.active = append(t.active, ts)
	return ts
}

// FinalPass runs the cross-frame reconciliation after all frames are
// processed: unambiguous single-track breaks are reconnected, then tracks
// shorter than MinTrackLen are culled and their instances left untracked.
// Runs in place over the accumulated frames.
func (t *Tracker) FinalPass(frames []*LabeledFrame) {
	t.connectBreaks(frames)
	if t.Config.MinTrackLen <= 1 {
		return
	}
	short := make(map[string]bool)
	for _, tr := range t.all {
		if tr.Len < t.Config.MinTrackLen {
			short[tr.ID] = true
		}
	}
	if len(short) == 0 {
		return
	}
	cleared := 0
	for _, lf := range frames {
		for _, inst := range lf.Instances {
			if inst.Track != nil && short[inst.Track.ID] {
				inst.Track = nil
				inst.TrackingScore = 0
				cleared++
			}
		}
	}
	kept := t.all[:0]
	for _, tr := range t.all {
		if !short[tr.ID] {
			kept = append(kept, tr)
		}
	}
	t.all = kept
	Diagf("[Tracker] Final pass culled %d short tracks (%d instances untracked)", len(short), cleared)
}

// connectBreaks merges a track that begins after another ended when the
// linkage is unambiguous: at the later track's first frame, exactly one
// earlier track has ended without a successor. Retirement after MaxMisses
// followed by a respawn of the same animal produces exactly this shape; two
// or more dangling predecessors leave the break unresolved.
func (t *Tracker) connectBreaks(frames []*LabeledFrame) {
	if len(t.all) < 2 {
		return
	}
	order := make([]*Track, len(t.all))
	copy(order, t.all)
	sort.SliceStable(order, func(i, j int) bool { return order[i].FirstFrame < order[j].FirstFrame })

	merged := make(map[string]*Track) // Absorbed track ID -> surviving track
	resolve := func(tr *Track) *Track {
		for merged[tr.ID] != nil {
			tr = merged[tr.ID]
		}
		return tr
	}

	for _, b := range order {
		if merged[b.ID] != nil {
			continue
		}
		var into *Track
		ambiguous := false
		for _, a := range order {
			if a == b || merged[a.ID] != nil || a.LastFrame >= b.FirstFrame {
				continue
			}
			if into != nil {
				ambiguous = true
				break
			}
			into = a
		}
		if into == nil || ambiguous {
			continue
		}
		merged[b.ID] = into
		into.LastFrame = b.LastFrame
		into.Len += b.Len
	}
	if len(merged) == 0 {
		return
	}

	relinked := 0
	for _, lf := range frames {
		for _, inst := range lf.Instances {
			if inst.Track == nil {
				continue
			}
			if tr := resolve(inst.Track); tr != inst.Track {
				inst.Track = tr
				relinked++
			}
		}
	}
	kept := t.all[:0]
	for _, tr := range t.all {
		if merged[tr.ID] == nil {
			kept = append(kept, tr)
		}
	}
	t.all = kept
	Diagf("[Tracker] Final pass reconnected %d track breaks (%d instances relinked)", len(merged), relinked)
}

// meanPointDistance returns the mean distance over node pairs visible in
// both point sets, or NaN when no pair is comparable.
func meanPointDistance(a, b []Point) float64 {
	var sum float64
	n := 0
	for i := range a {
		if i >= len(b) || !a[i].Visible() || !b[i].Visible() {
			continue
		}
		sum += a[i].Dist(b[i])
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// bboxIOU computes intersection-over-union between an instance's bbox and
// the bbox of a predicted point set.
func bboxIOU(inst *Instance, predicted []Point) float64 {
	a, ok := inst.BBox()
	if !ok {
		return 0
	}
	tmp := Instance{Points: predicted}
	b, ok := tmp.BBox()
	if !ok {
		return 0
	}
	ix := math.Min(a.X2, b.X2) - math.Max(a.X1, b.X1) + 1
	iy := math.Min(a.Y2, b.Y2) - math.Max(a.Y1, b.Y1) + 1
	if ix <= 0 || iy <= 0 {
		return 0
	}
	inter := ix * iy
	uni := a.Width()*a.Height() + b.Width()*b.Height() - inter
	if uni <= 0 {
		return 0
	}
	return inter / uni
}

// costToScore maps an association cost into a [0, 1] tracking confidence.
func costToScore(cost float64) float64 {
	if cost >= ForbiddenCost {
		return 0
	}
	return 1 / (1 + cost)
}
