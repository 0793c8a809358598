package predictor

import (
	"fmt"

	"github.com/wildtrace/posekit/internal/pose"
	"github.com/wildtrace/posekit/internal/pose/pipeline"
)

// VisualPredictor runs the raw-output flow: normalise → resize → predict,
// with no peak decoding and no instance assembly. Each returned example
// carries the head-specific network outputs (confidence maps, centroid maps,
// part-affinity fields) alongside the frame metadata, so the network's
// actual responses can be inspected or rendered.
type VisualPredictor struct {
	Model   *Model
	Network Network
	Config  RunConfig

	pipe *pipeline.Pipeline
}

// NewVisualPredictor accepts a model of any head; the output keys on the
// produced examples follow the model's head declaration. A trained network
// is required since there is nothing to mock raw outputs from.
func NewVisualPredictor(m *Model, net Network, cfg RunConfig) (*VisualPredictor, error) {
	if net == nil {
		return nil, fmt.Errorf("visual predictor: a trained network is required")
	}
	return &VisualPredictor{Model: m, Network: net, Config: cfg}, nil
}

func (p *VisualPredictor) Name() string { return "VisualPredictor" }

func (p *VisualPredictor) buildPipeline() *pipeline.Pipeline {
	if p.pipe != nil {
		return p.pipe
	}
	pipe := pipeline.New(nil)
	pipe.Append(pipeline.NewNormalizer())
	if scale := p.Model.Config.InputScale; scale != 1 {
		pipe.Append(pipeline.NewResizer(scale))
	}
	pipe.Append(&pipeline.ModelStage{
		ModelName: p.Model.Head().String(),
		Outputs:   p.Model.Head().OutputKeys(),
		Infer:     p.Network.Predict,
	})
	maybePrefetch(pipe, p.Config)
	p.pipe = pipe
	return pipe
}

// PredictRaw consumes the provider once and returns the raw per-frame
// examples in provider order. Records that fail inference are skipped with
// fault isolation, same as the decoding predictors.
func (p *VisualPredictor) PredictRaw(provider pipeline.Provider) ([]pipeline.Example, error) {
	examples, skipped, err := p.buildPipeline().Run(provider, p.Config.Progress)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		pose.Opsf("[Predictor] %d records skipped due to errors", skipped)
	}
	return examples, nil
}
