package predictor

import (
	"fmt"

	"github.com/wildtrace/posekit/internal/pose"
	"github.com/wildtrace/posekit/internal/pose/pipeline"
)

// SingleInstancePredictor runs the single-animal flow: normalise → resize →
// predict whole-frame confidence maps → global peak per node → rescale →
// one instance per frame.
//
// With a nil network the predictor substitutes ground-truth mock stages,
// enabling pipeline diagnostics without a trained model.
type SingleInstancePredictor struct {
	Skeleton *pose.Skeleton
	Model    *Model  // Nil in ground-truth mode
	Network  Network // Nil in ground-truth mode
	Config   RunConfig

	pipe *pipeline.Pipeline
}

// NewSingleInstancePredictor builds the predictor from a loaded model and
// an opened network.
func NewSingleInstancePredictor(m *Model, net Network, cfg RunConfig) (*SingleInstancePredictor, error) {
	if m.Head() != HeadSingleInstance {
		return nil, fmt.Errorf("single instance predictor: model head is %s", m.Head())
	}
	if m.Skeleton() == nil {
		return nil, fmt.Errorf("single instance predictor: model %s declares no skeleton", m.Dir)
	}
	return &SingleInstancePredictor{Skeleton: m.Skeleton(), Model: m, Network: net, Config: cfg}, nil
}

// NewGroundTruthSingleInstancePredictor builds the diagnostic variant that
// echoes ground-truth annotations as predictions.
func NewGroundTruthSingleInstancePredictor(skeleton *pose.Skeleton, cfg RunConfig) *SingleInstancePredictor {
	return &SingleInstancePredictor{Skeleton: skeleton, Config: cfg}
}

func (p *SingleInstancePredictor) Name() string { return "SingleInstancePredictor" }

// buildPipeline assembles the stage chain once; later Predict calls rebind
// the provider on the same chain.
func (p *SingleInstancePredictor) buildPipeline() *pipeline.Pipeline {
	if p.pipe != nil {
		return p.pipe
	}
	pipe := pipeline.New(nil)
	pipe.Append(pipeline.NewNormalizer())

	if p.Network == nil {
		// Ground-truth mode: annotated points become unit-confidence peaks.
		pipe.Append(&pipeline.GroundTruthFramePeaks{})
	} else {
		scale := p.Model.Config.InputScale
		if scale != 1 {
			pipe.Append(pipeline.NewResizer(scale))
		}
		pipe.Append(&pipeline.ModelStage{
			ModelName: "single_instance",
			Outputs:   HeadSingleInstance.OutputKeys(),
			Infer:     p.Network.Predict,
		})
		pipe.Append(&pipeline.GlobalPeakFinderStage{
			MapsKey:   pipeline.KeyConfmaps,
			OutputKey: pipeline.KeyPeaks,
			Config:    p.Model.PeakConfig(p.Config.PeakThreshold, p.Config.Refine),
		})
		if scale != 1 {
			pipe.Append(&pipeline.PointsRescaler{PeaksKeys: []string{pipeline.KeyPeaks}})
		}
	}

	pipe.Append(&pipeline.InstancesFromGlobalPeaks{
		Skeleton:  p.Skeleton,
		ScoreMean: p.Config.ScoreMean,
	})
	maybePrefetch(pipe, p.Config)
	p.pipe = pipe
	return pipe
}

// Predict implements Predictor.
func (p *SingleInstancePredictor) Predict(provider pipeline.Provider) ([]*pose.LabeledFrame, error) {
	return runPipeline(p.buildPipeline(), provider, p.Config)
}
