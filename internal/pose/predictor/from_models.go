package predictor

import (
	"fmt"

	"github.com/wildtrace/posekit/internal/pose"
)

// FromModelsConfig carries everything needed to assemble a predictor from
// loaded model directories.
type FromModelsConfig struct {
	Run     RunConfig
	Topdown TopdownConfig
	Grouper pose.PAFGrouperConfig
	Backend string
	Device  string

	// Skeleton supplies node/edge structure when no model declares one
	// (centroid-only topdown running against ground-truth crop peaks).
	Skeleton *pose.Skeleton
}

// FromTrainedModels selects and constructs the predictor variant matching
// the heads of the given models:
//
//	single_instance              -> SingleInstancePredictor
//	multi_instance               -> BottomupPredictor
//	centroid + centered_instance -> TopdownPredictor
//	centroid only                -> Topdown with ground-truth crop peaks
//	centered_instance only       -> Topdown with ground-truth centroids
//
// No head matching a supported variant is fatal.
func FromTrainedModels(models []*Model, cfg FromModelsConfig) (Predictor, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("predictor: no models given")
	}

	byHead := make(map[HeadType]*Model)
	for _, m := range models {
		if prev, dup := byHead[m.Head()]; dup {
			return nil, fmt.Errorf("predictor: both %s and %s declare head %s", prev.Dir, m.Dir, m.Head())
		}
		byHead[m.Head()] = m
	}

	opts := BackendOptions{Device: cfg.Device}
	open := func(m *Model) (Network, error) {
		if m == nil {
			return nil, nil
		}
		return OpenNetwork(m, cfg.Backend, opts)
	}

	switch {
	case byHead[HeadSingleInstance] != nil:
		m := byHead[HeadSingleInstance]
		net, err := open(m)
		if err != nil {
			return nil, err
		}
		run := cfg.Run
		return NewSingleInstancePredictor(m, net, run)

	case byHead[HeadMultiInstance] != nil:
		m := byHead[HeadMultiInstance]
		net, err := open(m)
		if err != nil {
			return nil, err
		}
		return NewBottomupPredictor(m, net, BottomupConfig{RunConfig: cfg.Run, Grouper: cfg.Grouper})

	case byHead[HeadCentroid] != nil || byHead[HeadCenteredInstance] != nil:
		centroid := byHead[HeadCentroid]
		confmap := byHead[HeadCenteredInstance]
		centroidNet, err := open(centroid)
		if err != nil {
			return nil, err
		}
		confmapNet, err := open(confmap)
		if err != nil {
			return nil, err
		}
		td := cfg.Topdown
		td.RunConfig = cfg.Run
		return NewTopdownPredictor(cfg.Skeleton, centroid, centroidNet, confmap, confmapNet, td)
	}

	heads := make([]string, 0, len(models))
	for _, m := range models {
		heads = append(heads, m.Head().String())
	}
	return nil, fmt.Errorf("predictor: no supported head combination in %v", heads)
}
