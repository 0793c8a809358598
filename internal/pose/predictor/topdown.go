package predictor

import (
	"fmt"

	"github.com/wildtrace/posekit/internal/pose"
	"github.com/wildtrace/posekit/internal/pose/pipeline"
)

// TopdownConfig extends RunConfig with topdown-specific parameters.
type TopdownConfig struct {
	RunConfig

	// CropSize is the per-instance crop side length in pixels. It must
	// resolve to a positive value at construction time, either set
	// explicitly or precomputed from a label set via
	// pose.FindInstanceCropSize.
	CropSize int

	// Anchor is the skeleton node index used to centre ground-truth
	// crops; -1 means mean of visible nodes. Ignored when a centroid
	// model provides predicted centroids.
	Anchor int
}

// TopdownPredictor runs the detect-centroid-then-per-instance-pose flow:
// find instance centroids on the full frame, fan out one fixed-size crop
// per centroid, predict per-crop confidence maps, take the global peak per
// node, and shift crop-local points back to absolute coordinates.
//
// Either model may be individually absent: a nil centroid network falls
// back to ground-truth centroids and a nil confmap network falls back to
// ground-truth crop peaks, so partially trained model sets remain usable
// for diagnostics.
type TopdownPredictor struct {
	Skeleton *pose.Skeleton
	Config   TopdownConfig

	CentroidModel   *Model
	CentroidNetwork Network
	ConfmapModel    *Model
	ConfmapNetwork  Network

	pipe *pipeline.Pipeline
}

// NewTopdownPredictor validates the model combination and configuration.
// skeleton may be nil when the confmap model declares one.
func NewTopdownPredictor(skeleton *pose.Skeleton, centroid *Model, centroidNet Network, confmap *Model, confmapNet Network, cfg TopdownConfig) (*TopdownPredictor, error) {
	if centroid != nil && centroid.Head() != HeadCentroid {
		return nil, fmt.Errorf("topdown predictor: centroid model head is %s", centroid.Head())
	}
	if confmap != nil {
		if confmap.Head() != HeadCenteredInstance {
			return nil, fmt.Errorf("topdown predictor: confmap model head is %s", confmap.Head())
		}
		if skeleton == nil {
			skeleton = confmap.Skeleton()
		}
	}
	if skeleton == nil {
		return nil, fmt.Errorf("topdown predictor: no skeleton available (confmap model absent and none supplied)")
	}
	if cfg.CropSize <= 0 {
		return nil, fmt.Errorf("topdown predictor: no crop size resolvable; set CropSize or precompute one from the label set")
	}
	if confmap != nil && cfg.Anchor < 0 && confmap.Config.AnchorPart != "" {
		cfg.Anchor = skeleton.NodeIndex(confmap.Config.AnchorPart)
	}
	return &TopdownPredictor{
		Skeleton:        skeleton,
		Config:          cfg,
		CentroidModel:   centroid,
		CentroidNetwork: centroidNet,
		ConfmapModel:    confmap,
		ConfmapNetwork:  confmapNet,
	}, nil
}

// NewGroundTruthTopdownPredictor builds the fully mocked variant: ground
// truth centroids and ground truth crop peaks.
func NewGroundTruthTopdownPredictor(skeleton *pose.Skeleton, cfg TopdownConfig) (*TopdownPredictor, error) {
	return NewTopdownPredictor(skeleton, nil, nil, nil, nil, cfg)
}

func (p *TopdownPredictor) Name() string { return "TopdownPredictor" }

func (p *TopdownPredictor) buildPipeline() *pipeline.Pipeline {
	if p.pipe != nil {
		return p.pipe
	}
	pipe := pipeline.New(nil)
	pipe.Append(pipeline.NewNormalizer())

	// Stage 1: Centroids.
	if p.CentroidNetwork == nil {
		pipe.Append(&pipeline.GroundTruthCentroids{Anchor: p.Config.Anchor})
	} else {
		scale := p.CentroidModel.Config.InputScale
		if scale != 1 {
			pipe.Append(&pipeline.Resizer{ImageKey: pipeline.KeyImage, Scale: scale, KeepFullImage: true})
		}
		pipe.Append(&pipeline.ModelStage{
			ModelName: "centroid",
			Outputs:   HeadCentroid.OutputKeys(),
			Infer:     p.CentroidNetwork.Predict,
		})
		pipe.Append(&pipeline.LocalPeakFinderStage{
			MapsKey:   pipeline.KeyCentroidConfmaps,
			OutputKey: pipeline.KeyPeaks,
			Config:    p.CentroidModel.PeakConfig(p.Config.PeakThreshold, p.Config.Refine),
		})
		if scale != 1 {
			// Peaks and any ground-truth instances go back to full
			// resolution, and the retained full image replaces the resized
			// one before cropping.
			pipe.Append(&pipeline.PointsRescaler{
				PeaksKeys:     []string{pipeline.KeyPeaks},
				InstancesKeys: []string{pipeline.KeyInstances},
			})
			pipe.Append(&pipeline.KeyRenamer{Mapping: [][2]string{{pipeline.KeyFullImage, pipeline.KeyImage}}})
		}
		pipe.Append(&pipeline.CentroidsFromPeaks{PeaksKey: pipeline.KeyPeaks})
	}

	// Frames with no detected animals fan out to nothing; drop them here
	// explicitly rather than letting degenerate records flow downstream.
	pipe.Append(&pipeline.LambdaFilter{
		FilterName: "HasCentroids",
		Required:   []string{pipeline.KeyCentroids},
		Predicate: func(e pipeline.Example) bool {
			return len(e.Points(pipeline.KeyCentroids)) > 0
		},
	})

	// Stage 2: Fan out one crop per centroid.
	if p.ConfmapNetwork == nil {
		pipe.Append(pipeline.NewInstanceCropper(p.Config.CropSize, p.Config.CropSize))
		pipe.Append(&pipeline.GroundTruthCropPeaks{})
	} else {
		pipe.Append(pipeline.NewPredictedInstanceCropper(p.Config.CropSize, p.Config.CropSize))
		scale := p.ConfmapModel.Config.InputScale
		if scale != 1 {
			pipe.Append(pipeline.NewResizer(scale))
		}
		pipe.Append(&pipeline.ModelStage{
			ModelName: "centered_instance",
			Outputs:   HeadCenteredInstance.OutputKeys(),
			Infer:     p.ConfmapNetwork.Predict,
		})
		pipe.Append(&pipeline.GlobalPeakFinderStage{
			MapsKey:   pipeline.KeyConfmaps,
			OutputKey: pipeline.KeyPeaks,
			Config:    p.ConfmapModel.PeakConfig(p.Config.PeakThreshold, p.Config.Refine),
		})
		if scale != 1 {
			// Crop-local peaks back to full resolution; the bbox origin is
			// never scaled, so normalisation stays in frame coordinates.
			pipe.Append(&pipeline.PointsRescaler{PeaksKeys: []string{pipeline.KeyPeaks}})
		}
	}

	// Stage 3: Crop-local predictions back to absolute coordinates.
	pipe.Append(&pipeline.CenterInstanceNormalizer{
		Skeleton:  p.Skeleton,
		ScoreMean: p.Config.ScoreMean,
	})
	maybePrefetch(pipe, p.Config.RunConfig)
	p.pipe = pipe
	return pipe
}

// Predict implements Predictor. Per-instance records stream out of the
// crop fan-out and are regrouped into frames by contiguous (video, frame)
// runs, which the fan-out preserves by replicating frame metadata onto
// every crop record.
func (p *TopdownPredictor) Predict(provider pipeline.Provider) ([]*pose.LabeledFrame, error) {
	return runPipeline(p.buildPipeline(), provider, p.Config.RunConfig)
}
