package pipeline

import (
	"io"
	"math"

	"github.com/wildtrace/posekit/internal/pose"
)

// GroundTruthCentroids derives one centroid per ground-truth instance from
// a configured anchor node (falling back to the mean of visible nodes when
// the anchor is missing). This substitutes for an absent centroid model in
// the topdown flow and backs the diagnostic ground-truth mode.
type GroundTruthCentroids struct {
	// Anchor is the skeleton node index used as the crop centre; -1 means
	// mean of visible nodes.
	Anchor int
}

func (g *GroundTruthCentroids) Name() string         { return "GroundTruthCentroids" }
func (g *GroundTruthCentroids) InputKeys() []string  { return []string{KeyInstances} }
func (g *GroundTruthCentroids) OutputKeys() []string { return []string{KeyCentroids} }

func (g *GroundTruthCentroids) Transform(seq Sequence) Sequence {
	return mapSequence(seq, func(e Example) (Example, error) {
		insts := e.Instances(KeyInstances)
		centroids := make([]pose.Point, 0, len(insts))
		kept := make([]*pose.Instance, 0, len(insts))
		for _, inst := range insts {
			c := inst.Centroid(g.Anchor)
			if c.Visible() {
				centroids = append(centroids, c)
				kept = append(kept, inst)
			}
		}
		out := e.Clone()
		out[KeyCentroids] = centroids
		// Keep the instance list aligned 1:1 with centroids so the crop
		// fan-out can pair each crop with its source instance.
		out[KeyInstances] = kept
		return out, nil
	})
}

// fanOutCrops is the shared fan-out implementation for the croppers: one
// input frame record becomes N per-instance records, one per centroid. All
// frame-level keys are replicated unchanged onto every derived record; the
// frame image is replaced by the crop.
type fanOutCrops struct {
	stageName     string
	cropH, cropW  int
	withInstances bool // Pair KeyInstance with the nearest centroid
}

func (c *fanOutCrops) Name() string { return c.stageName }
func (c *fanOutCrops) InputKeys() []string {
	in := []string{KeyImage, KeyCentroids}
	if c.withInstances {
		in = append(in, KeyInstances)
	}
	return in
}
func (c *fanOutCrops) OutputKeys() []string {
	out := []string{KeyCentroid, KeyBBox}
	if c.withInstances {
		out = append(out, KeyInstance)
	}
	return out
}

func (c *fanOutCrops) Transform(seq Sequence) Sequence {
	var pending []Example
	return SequenceFunc(func() (Example, error) {
		for {
			if len(pending) > 0 {
				e := pending[0]
				pending = pending[1:]
				return e, nil
			}
			frame, err := seq.Next()
			if err != nil {
				return nil, err
			}
			expanded, err := c.expand(frame)
			if err != nil {
				return nil, err
			}
			if len(expanded) == 0 {
				// Frames with zero centroids fan out to nothing; pull the
				// next frame rather than terminating.
				continue
			}
			pending = expanded
		}
	})
}

func (c *fanOutCrops) expand(frame Example) ([]Example, error) {
	img := frame.Image(KeyImage)
	centroids := frame.Points(KeyCentroids)
	if len(centroids) == 0 {
		return nil, nil
	}
	boxes := pose.MakeCenteredBBoxes(centroids, c.cropH, c.cropW)
	crops, err := pose.CropBBoxes(img, boxes)
	if err != nil {
		return nil, err
	}
	var insts []*pose.Instance
	var paired []int
	if c.withInstances {
		insts = frame.Instances(KeyInstances)
		paired = pairNearestInstances(centroids, insts)
	}
	out := make([]Example, 0, len(crops))
	for i := range crops {
		if c.withInstances && paired[i] < 0 {
			// More centroids than instances: a crop with no source instance
			// would decode into an empty zero-score instance, drop it.
			continue
		}
		e := frame.Clone()
		e[KeyImage] = crops[i]
		e[KeyCentroid] = centroids[i]
		e[KeyBBox] = boxes[i]
		delete(e, KeyCentroids)
		if c.withInstances {
			e[KeyInstance] = insts[paired[i]]
		}
		out = append(out, e)
	}
	return out, nil
}

// pairNearestInstances matches centroids to instances one to one, greedily
// by smallest centroid distance first. Centroid and instance lists may
// disagree in count and order; unpairable centroids get -1.
func pairNearestInstances(centroids []pose.Point, insts []*pose.Instance) []int {
	pairs := make([]int, len(centroids))
	for i := range pairs {
		pairs[i] = -1
	}
	centers := make([]pose.Point, len(insts))
	for j, inst := range insts {
		centers[j] = inst.Centroid(-1)
	}
	usedC := make([]bool, len(centroids))
	usedI := make([]bool, len(insts))
	for {
		best := math.Inf(1)
		bi, bj := -1, -1
		for i, c := range centroids {
			if usedC[i] {
				continue
			}
			for j, ic := range centers {
				if usedI[j] || !ic.Visible() {
					continue
				}
				if d := c.Dist(ic); d < best {
					best = d
					bi, bj = i, j
				}
			}
		}
		if bi < 0 {
			return pairs
		}
		pairs[bi] = bj
		usedC[bi] = true
		usedI[bj] = true
	}
}

// MutateKeys drops the frame-level centroid list: derived records carry the
// single KeyCentroid instead.
func (c *fanOutCrops) MutateKeys(available map[string]bool) {
	delete(available, KeyCentroids)
}

// InstanceCropper fans a frame record out into one record per ground-truth
// instance, cropping a fixed-size box around each instance centroid. The
// source instance rides along under KeyInstance for mock prediction stages.
type InstanceCropper struct {
	fanOutCrops
}

func NewInstanceCropper(cropH, cropW int) *InstanceCropper {
	return &InstanceCropper{fanOutCrops{
		stageName:     "InstanceCropper",
		cropH:         cropH,
		cropW:         cropW,
		withInstances: true,
	}}
}

// PredictedInstanceCropper fans a frame record out into one record per
// predicted centroid. Identical to InstanceCropper except no ground-truth
// instance accompanies the crop.
type PredictedInstanceCropper struct {
	fanOutCrops
}

func NewPredictedInstanceCropper(cropH, cropW int) *PredictedInstanceCropper {
	return &PredictedInstanceCropper{fanOutCrops{
		stageName: "PredictedInstanceCropper",
		cropH:     cropH,
		cropW:     cropW,
	}}
}

// CenterInstanceNormalizer reconciles per-crop predictions into absolute
// instance coordinates: crop-local peak locations are shifted by the crop's
// bounding-box origin and assembled into a single predicted instance.
type CenterInstanceNormalizer struct {
	Skeleton  *pose.Skeleton
	ScoreMean bool
}

func (n *CenterInstanceNormalizer) Name() string { return "CenterInstanceNormalizer" }
func (n *CenterInstanceNormalizer) InputKeys() []string {
	return []string{KeyPeaks, KeyBBox}
}
func (n *CenterInstanceNormalizer) OutputKeys() []string {
	return []string{KeyPredictedInstances}
}

func (n *CenterInstanceNormalizer) Transform(seq Sequence) Sequence {
	return mapSequence(seq, func(e Example) (Example, error) {
		peaks := e.Peaks(KeyPeaks)
		bbox, _ := e[KeyBBox].(pose.BBox)
		inst := pose.NewInstance(n.Skeleton)
		for _, pk := range peaks {
			if pk.Channel < 0 || pk.Channel >= n.Skeleton.Len() {
				continue
			}
			p := pk.Point()
			if !p.Visible() {
				continue
			}
			inst.Points[pk.Channel] = pose.Point{X: p.X + bbox.X1, Y: p.Y + bbox.Y1}
			inst.Scores[pk.Channel] = pk.Score
		}
		if n.ScoreMean {
			inst.Score = inst.MeanScore()
		} else {
			inst.Score = inst.SumScores()
		}
		out := e.Clone()
		out[KeyPredictedInstances] = []*pose.Instance{inst}
		return out, nil
	})
}

// drainSequence is a test hook: it confirms fan-out termination behaves
// (io.EOF after the last pending record) without collecting.
func drainSequence(seq Sequence) (int, error) {
	n := 0
	for {
		_, err := seq.Next()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}
