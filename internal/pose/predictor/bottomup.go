package predictor

import (
	"fmt"

	"github.com/wildtrace/posekit/internal/pose"
	"github.com/wildtrace/posekit/internal/pose/pipeline"
)

// BottomupConfig extends RunConfig with grouping parameters.
type BottomupConfig struct {
	RunConfig
	Grouper pose.PAFGrouperConfig
}

// BottomupPredictor runs the detect-all-peaks-then-group flow: predict
// whole-frame confidence maps and part-affinity fields, decode all local
// peaks, then assemble multi-animal instances by part-affinity grouping.
type BottomupPredictor struct {
	Skeleton *pose.Skeleton
	Model    *Model
	Network  Network
	Config   BottomupConfig

	pipe *pipeline.Pipeline
}

// NewBottomupPredictor validates the model and configuration.
func NewBottomupPredictor(m *Model, net Network, cfg BottomupConfig) (*BottomupPredictor, error) {
	if m.Head() != HeadMultiInstance {
		return nil, fmt.Errorf("bottomup predictor: model head is %s", m.Head())
	}
	if m.Skeleton() == nil {
		return nil, fmt.Errorf("bottomup predictor: model %s declares no skeleton", m.Dir)
	}
	if m.Skeleton().NumEdges() == 0 && m.Skeleton().Len() > 1 {
		return nil, fmt.Errorf("bottomup predictor: skeleton %q has no edges to group on", m.Skeleton().Name())
	}
	return &BottomupPredictor{Skeleton: m.Skeleton(), Model: m, Network: net, Config: cfg}, nil
}

func (p *BottomupPredictor) Name() string { return "BottomupPredictor" }

func (p *BottomupPredictor) buildPipeline() *pipeline.Pipeline {
	if p.pipe != nil {
		return p.pipe
	}
	grouperCfg := p.Config.Grouper
	if grouperCfg.NPoints == 0 {
		grouperCfg = pose.DefaultPAFGrouperConfig()
	}
	// Peaks are decoded to full resolution, so the grouper samples the
	// field with the model's map stride.
	grouperCfg.PAFStride = p.Model.Config.OutputStride
	grouperCfg.ScoreMean = p.Config.ScoreMean

	pipe := pipeline.New(nil)
	pipe.Append(pipeline.NewNormalizer())
	scale := p.Model.Config.InputScale
	if scale != 1 {
		pipe.Append(pipeline.NewResizer(scale))
	}
	pipe.Append(&pipeline.ModelStage{
		ModelName: "multi_instance",
		Outputs:   HeadMultiInstance.OutputKeys(),
		Infer:     p.Network.Predict,
	})
	pipe.Append(&pipeline.LocalPeakFinderStage{
		MapsKey:   pipeline.KeyConfmaps,
		OutputKey: pipeline.KeyPeaks,
		Config:    p.Model.PeakConfig(p.Config.PeakThreshold, p.Config.Refine),
	})
	pipe.Append(&pipeline.PAFGrouperStage{
		Grouper: pose.NewPAFGrouper(p.Skeleton, grouperCfg),
		PAFsKey: pipeline.KeyPAFs,
	})
	if scale != 1 {
		pipe.Append(&pipeline.PointsRescaler{
			InstancesKeys: []string{pipeline.KeyPredictedInstances},
		})
	}
	maybePrefetch(pipe, p.Config.RunConfig)
	p.pipe = pipe
	return pipe
}

// Predict implements Predictor. Frames where grouping finds nothing still
// appear in the output with an empty instance list: zero instances is not
// an error.
func (p *BottomupPredictor) Predict(provider pipeline.Provider) ([]*pose.LabeledFrame, error) {
	return runPipeline(p.buildPipeline(), provider, p.Config.RunConfig)
}
