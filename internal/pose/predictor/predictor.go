package predictor

import (
	"context"

	"github.com/wildtrace/posekit/internal/pose"
	"github.com/wildtrace/posekit/internal/pose/pipeline"
)

// Predictor runs a provider's examples through a head-specific inference
// pipeline and assembles labeled frames.
//
// Lifecycle: a predictor is constructed unbound; the first Predict builds
// the stage chain lazily and binds the provider. Predicting again with a
// new provider rebinds the provider on the same chain — stages hold no
// provider state.
type Predictor interface {
	// Name identifies the predictor variant in logs.
	Name() string
	// Predict consumes the provider once and returns labeled frames in
	// provider order.
	Predict(provider pipeline.Provider) ([]*pose.LabeledFrame, error)
}

// RunConfig holds options shared by all predictor variants.
type RunConfig struct {
	// PeakThreshold is the minimum confidence for a detection.
	PeakThreshold float64
	// Refine enables integral sub-pixel peak refinement.
	Refine bool
	// ScoreMean aggregates instance scores as mean instead of sum.
	ScoreMean bool
	// Tracker, when non-nil, assigns identity across frames.
	Tracker *pose.Tracker
	// Prefetch, when > 0, inserts a bounded-lookahead prefetch stage.
	Prefetch int
	// Ctx bounds background work (prefetching). Nil means Background.
	Ctx context.Context
	// Progress, when non-nil, is called with the running record index.
	Progress func(i int)
}

// DefaultRunConfig returns production-default predictor options.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		PeakThreshold: 0.2,
		Refine:        true,
	}
}

func (c RunConfig) ctx() context.Context {
	if c.Ctx != nil {
		return c.Ctx
	}
	return context.Background()
}

// runPipeline drains the pipeline with fault isolation and converts the
// collected per-record predictions into labeled frames, invoking the
// tracking hook per frame and the tracker's final pass at the end.
func runPipeline(p *pipeline.Pipeline, provider pipeline.Provider, cfg RunConfig) ([]*pose.LabeledFrame, error) {
	examples, skipped, err := p.Run(provider, cfg.Progress)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		pose.Opsf("[Predictor] %d records skipped due to errors", skipped)
	}
	frames := assembleFrames(examples, cfg.Tracker)
	if cfg.Tracker != nil {
		cfg.Tracker.FinalPass(frames)
	}
	return frames, nil
}

// assembleFrames groups raw prediction records into labeled frames by
// contiguous run of (video_ind, frame_ind). The sequence is assumed already
// ordered by frame — a provider invariant; out-of-order input degrades to
// split frames rather than being repaired by a global sort.
func assembleFrames(examples []pipeline.Example, tracker *pose.Tracker) []*pose.LabeledFrame {
	var frames []*pose.LabeledFrame
	var cur *pose.LabeledFrame
	var curImg *pose.Image

	flush := func() {
		if cur == nil {
			return
		}
		if tracker != nil {
			var img *pose.Image
			if tracker.NeedsImages() {
				img = curImg
			}
			tracker.Track(cur.Instances, img, cur.FrameIndex)
		}
		frames = append(frames, cur)
		cur = nil
		curImg = nil
	}

	for _, e := range examples {
		vi := e.Int(pipeline.KeyVideoIndex)
		fi := e.Int(pipeline.KeyFrameIndex)
		if cur == nil || cur.VideoIndex != vi || cur.FrameIndex != fi {
			flush()
			cur = &pose.LabeledFrame{VideoIndex: vi, FrameIndex: fi}
		}
		cur.Instances = append(cur.Instances, e.Instances(pipeline.KeyPredictedInstances)...)
		if img := e.Image(pipeline.KeyFullImage); img != nil {
			curImg = img
		} else if img := e.Image(pipeline.KeyImage); img != nil && curImg == nil {
			curImg = img
		}
	}
	flush()
	return frames
}

// maybePrefetch appends a prefetch stage when configured.
func maybePrefetch(p *pipeline.Pipeline, cfg RunConfig) {
	if cfg.Prefetch > 0 {
		p.Append(pipeline.NewPrefetcher(cfg.ctx(), cfg.Prefetch))
	}
}
