package pipeline

import (
	"fmt"

	"github.com/wildtrace/posekit/internal/pose"
)

// InferFunc is the opaque network inference function: image tensor in,
// named map tensors out (e.g. KeyConfmaps, KeyPAFs). From the pipeline's
// perspective it is a potentially expensive but synchronous call; there is
// no cancellation mid-call.
type InferFunc func(img *pose.Image) (map[string]interface{}, error)

// ModelStage applies a network inference function to the record's image and
// attaches the named output tensors.
type ModelStage struct {
	ModelName string
	ImageKey  string
	Outputs   []string
	Infer     InferFunc
}

func (m *ModelStage) Name() string {
	if m.ModelName != "" {
		return "ModelStage(" + m.ModelName + ")"
	}
	return "ModelStage"
}

func (m *ModelStage) InputKeys() []string {
	k := m.ImageKey
	if k == "" {
		k = KeyImage
	}
	return []string{k}
}

func (m *ModelStage) OutputKeys() []string { return m.Outputs }

func (m *ModelStage) Transform(seq Sequence) Sequence {
	imageKey := m.ImageKey
	if imageKey == "" {
		imageKey = KeyImage
	}
	return mapSequence(seq, func(e Example) (Example, error) {
		outputs, err := m.Infer(e.Image(imageKey))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m.Name(), err)
		}
		out := e.Clone()
		for _, k := range m.Outputs {
			v, ok := outputs[k]
			if !ok {
				return nil, fmt.Errorf("%s: network produced no %q output", m.Name(), k)
			}
			out[k] = v
		}
		return out, nil
	})
}

// LocalPeakFinderStage decodes a confidence-map stack into all local-maxima
// peaks. Zero peaks is an empty result, not an error; a downstream
// LambdaFilter removes empty frames where the flow requires it.
type LocalPeakFinderStage struct {
	MapsKey   string
	OutputKey string
	Config    pose.PeakFinderConfig
}

func (s *LocalPeakFinderStage) Name() string         { return "LocalPeakFinder" }
func (s *LocalPeakFinderStage) InputKeys() []string  { return []string{s.MapsKey} }
func (s *LocalPeakFinderStage) OutputKeys() []string { return []string{s.OutputKey} }

func (s *LocalPeakFinderStage) Transform(seq Sequence) Sequence {
	return mapSequence(seq, func(e Example) (Example, error) {
		peaks := pose.FindLocalPeaks(e.Maps(s.MapsKey), s.Config)
		out := e.Clone()
		out[s.OutputKey] = peaks
		return out, nil
	})
}

// GlobalPeakFinderStage decodes a single-instance confidence-map stack into
// exactly one peak per channel (missing when below threshold). Used on
// topdown crops and single-instance frames.
type GlobalPeakFinderStage struct {
	MapsKey   string
	OutputKey string
	Config    pose.PeakFinderConfig
}

func (s *GlobalPeakFinderStage) Name() string         { return "GlobalPeakFinder" }
func (s *GlobalPeakFinderStage) InputKeys() []string  { return []string{s.MapsKey} }
func (s *GlobalPeakFinderStage) OutputKeys() []string { return []string{s.OutputKey} }

func (s *GlobalPeakFinderStage) Transform(seq Sequence) Sequence {
	return mapSequence(seq, func(e Example) (Example, error) {
		peaks := pose.FindGlobalPeaks(e.Maps(s.MapsKey), s.Config)
		out := e.Clone()
		out[s.OutputKey] = peaks
		return out, nil
	})
}

// CentroidsFromPeaks converts detected centroid peaks into the frame-level
// centroid list consumed by the predicted-instance cropper.
type CentroidsFromPeaks struct {
	PeaksKey string
}

func (s *CentroidsFromPeaks) Name() string         { return "CentroidsFromPeaks" }
func (s *CentroidsFromPeaks) InputKeys() []string  { return []string{s.PeaksKey} }
func (s *CentroidsFromPeaks) OutputKeys() []string { return []string{KeyCentroids} }

func (s *CentroidsFromPeaks) Transform(seq Sequence) Sequence {
	return mapSequence(seq, func(e Example) (Example, error) {
		peaks := e.Peaks(s.PeaksKey)
		centroids := make([]pose.Point, 0, len(peaks))
		for _, pk := range peaks {
			p := pk.Point()
			if p.Visible() {
				centroids = append(centroids, p)
			}
		}
		out := e.Clone()
		out[KeyCentroids] = centroids
		return out, nil
	})
}

// GroundTruthCropPeaks bypasses the centered-instance network for one crop:
// the ground-truth instance riding on the record becomes crop-local peaks
// with unit confidence. Backs pipeline tests and the ground-truth
// diagnostic mode in the topdown flow.
type GroundTruthCropPeaks struct{}

func (s *GroundTruthCropPeaks) Name() string { return "GroundTruthCropPeaks" }
func (s *GroundTruthCropPeaks) InputKeys() []string {
	return []string{KeyInstance, KeyBBox}
}
func (s *GroundTruthCropPeaks) OutputKeys() []string { return []string{KeyPeaks} }

func (s *GroundTruthCropPeaks) Transform(seq Sequence) Sequence {
	return mapSequence(seq, func(e Example) (Example, error) {
		inst, _ := e[KeyInstance].(*pose.Instance)
		bbox, _ := e[KeyBBox].(pose.BBox)
		var peaks []pose.Peak
		if inst != nil {
			peaks = pose.GroundTruthPeaks(inst)
			for i := range peaks {
				peaks[i].X -= bbox.X1
				peaks[i].Y -= bbox.Y1
			}
		}
		out := e.Clone()
		out[KeyPeaks] = peaks
		return out, nil
	})
}

// GroundTruthFramePeaks bypasses the network for a whole frame: every
// ground-truth instance's points become peaks with unit confidence, tagged
// by node channel. Used by the bottom-up ground-truth mode.
type GroundTruthFramePeaks struct{}

func (s *GroundTruthFramePeaks) Name() string         { return "GroundTruthFramePeaks" }
func (s *GroundTruthFramePeaks) InputKeys() []string  { return []string{KeyInstances} }
func (s *GroundTruthFramePeaks) OutputKeys() []string { return []string{KeyPeaks} }

func (s *GroundTruthFramePeaks) Transform(seq Sequence) Sequence {
	return mapSequence(seq, func(e Example) (Example, error) {
		var peaks []pose.Peak
		for _, inst := range e.Instances(KeyInstances) {
			peaks = append(peaks, pose.GroundTruthPeaks(inst)...)
		}
		out := e.Clone()
		out[KeyPeaks] = peaks
		return out, nil
	})
}

// PAFGrouperStage assembles bottom-up instances from a frame's peaks and
// part-affinity fields.
type PAFGrouperStage struct {
	Grouper *pose.PAFGrouper
	PAFsKey string
}

func (s *PAFGrouperStage) Name() string { return "PAFInstanceGrouper" }
func (s *PAFGrouperStage) InputKeys() []string {
	return []string{KeyPeaks, s.PAFsKey}
}
func (s *PAFGrouperStage) OutputKeys() []string { return []string{KeyPredictedInstances} }

func (s *PAFGrouperStage) Transform(seq Sequence) Sequence {
	return mapSequence(seq, func(e Example) (Example, error) {
		pafs := e.Maps(s.PAFsKey)
		want := 2 * s.Grouper.Skeleton.NumEdges()
		if len(pafs) != want {
			return nil, fmt.Errorf("%s: %d part-affinity planes for %d edges (want %d)",
				s.Name(), len(pafs), s.Grouper.Skeleton.NumEdges(), want)
		}
		instances := s.Grouper.Group(e.Peaks(KeyPeaks), pafs)
		out := e.Clone()
		out[KeyPredictedInstances] = instances
		return out, nil
	})
}

// InstancesFromGlobalPeaks converts a frame's global peaks (one per node)
// into a single predicted instance; the single-instance flow's assembly
// step.
type InstancesFromGlobalPeaks struct {
	Skeleton  *pose.Skeleton
	ScoreMean bool
}

func (s *InstancesFromGlobalPeaks) Name() string         { return "InstancesFromGlobalPeaks" }
func (s *InstancesFromGlobalPeaks) InputKeys() []string  { return []string{KeyPeaks} }
func (s *InstancesFromGlobalPeaks) OutputKeys() []string { return []string{KeyPredictedInstances} }

func (s *InstancesFromGlobalPeaks) Transform(seq Sequence) Sequence {
	return mapSequence(seq, func(e Example) (Example, error) {
		inst := pose.NewInstance(s.Skeleton)
		for _, pk := range e.Peaks(KeyPeaks) {
			p := pk.Point()
			if pk.Channel < 0 || pk.Channel >= s.Skeleton.Len() || !p.Visible() {
				continue
			}
			inst.Points[pk.Channel] = p
			inst.Scores[pk.Channel] = pk.Score
		}
		if s.ScoreMean {
			inst.Score = inst.MeanScore()
		} else {
			inst.Score = inst.SumScores()
		}
		out := e.Clone()
		out[KeyPredictedInstances] = []*pose.Instance{inst}
		return out, nil
	})
}
