package predictor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/wildtrace/posekit/internal/pose"
	"github.com/wildtrace/posekit/internal/pose/pipeline"
)

// HeadType identifies which prediction head a trained network produces.
// Every head-specific decision (output key names, pipeline shape) matches
// exhaustively over this closed set.
type HeadType int

const (
	// HeadSingleInstance: whole-frame confidence maps, one animal per frame.
	HeadSingleInstance HeadType = iota
	// HeadCentroid: whole-frame centroid confidence maps (topdown stage 1).
	HeadCentroid
	// HeadCenteredInstance: per-crop confidence maps (topdown stage 2).
	HeadCenteredInstance
	// HeadMultiInstance: whole-frame confidence maps plus part-affinity
	// fields (bottom-up).
	HeadMultiInstance
)

var headNames = map[HeadType]string{
	HeadSingleInstance:   "single_instance",
	HeadCentroid:         "centroid",
	HeadCenteredInstance: "centered_instance",
	HeadMultiInstance:    "multi_instance",
}

func (h HeadType) String() string {
	if n, ok := headNames[h]; ok {
		return n
	}
	return fmt.Sprintf("HeadType(%d)", int(h))
}

// ParseHeadType maps a training-config head name to its HeadType.
func ParseHeadType(name string) (HeadType, error) {
	for h, n := range headNames {
		if n == name {
			return h, nil
		}
	}
	return 0, fmt.Errorf("unknown model head %q", name)
}

// OutputKeys returns the example keys this head's network attaches.
func (h HeadType) OutputKeys() []string {
	switch h {
	case HeadSingleInstance, HeadCenteredInstance:
		return []string{pipeline.KeyConfmaps}
	case HeadCentroid:
		return []string{pipeline.KeyCentroidConfmaps}
	case HeadMultiInstance:
		return []string{pipeline.KeyConfmaps, pipeline.KeyPAFs}
	}
	return nil
}

// TrainingConfig is the training-job configuration descriptor stored in a
// trained-model directory. It declares the prediction head, the network's
// output stride, the input scale applied during training, and the skeleton
// the model was trained against.
type TrainingConfig struct {
	Head         string  `json:"head"`
	OutputStride int     `json:"output_stride"`
	InputScale   float64 `json:"input_scale,omitempty"`
	AnchorPart   string  `json:"anchor_part,omitempty"`
	WeightsFile  string  `json:"weights_file,omitempty"`

	Skeleton struct {
		Name  string      `json:"name"`
		Nodes []string    `json:"nodes"`
		Edges [][2]string `json:"edges"`
	} `json:"skeleton"`
}

// TrainingConfigName is the descriptor filename inside a model directory.
const TrainingConfigName = "training_config.json"

// DefaultWeightsName is the weights artifact filename used when the
// descriptor does not name one.
const DefaultWeightsName = "best_model.weights"

// Model is a loaded trained-model directory: descriptor plus the path to
// the serialized weights artifact. The weights themselves are opaque; a
// registered backend turns a Model into a Network.
type Model struct {
	Dir         string
	Config      TrainingConfig
	WeightsPath string

	head     HeadType
	skeleton *pose.Skeleton
}

// LoadModel reads a trained-model directory. Missing descriptor or weights
// files are resource errors, surfaced immediately and never retried.
func LoadModel(dir string) (*Model, error) {
	raw, err := os.ReadFile(filepath.Join(dir, TrainingConfigName))
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", dir, err)
	}
	var cfg TrainingConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("load model %s: parse %s: %w", dir, TrainingConfigName, err)
	}
	head, err := ParseHeadType(cfg.Head)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", dir, err)
	}
	if cfg.OutputStride <= 0 {
		cfg.OutputStride = 1
	}
	if cfg.InputScale <= 0 {
		cfg.InputScale = 1
	}

	weights := cfg.WeightsFile
	if weights == "" {
		weights = DefaultWeightsName
	}
	weightsPath := filepath.Join(dir, weights)
	if _, err := os.Stat(weightsPath); err != nil {
		return nil, fmt.Errorf("load model %s: weights artifact: %w", dir, err)
	}

	var skel *pose.Skeleton
	if len(cfg.Skeleton.Nodes) > 0 {
		skel, err = pose.NewSkeleton(cfg.Skeleton.Name, cfg.Skeleton.Nodes, cfg.Skeleton.Edges)
		if err != nil {
			return nil, fmt.Errorf("load model %s: %w", dir, err)
		}
	}

	return &Model{
		Dir:         dir,
		Config:      cfg,
		WeightsPath: weightsPath,
		head:        head,
		skeleton:    skel,
	}, nil
}

// Head returns the model's prediction head type.
func (m *Model) Head() HeadType { return m.head }

// Skeleton returns the skeleton the model was trained against, or nil when
// the descriptor carries none (centroid models).
func (m *Model) Skeleton() *pose.Skeleton { return m.skeleton }

// PeakConfig derives peak-decoding parameters from the model descriptor.
func (m *Model) PeakConfig(threshold float64, refine bool) pose.PeakFinderConfig {
	cfg := pose.DefaultPeakFinderConfig()
	cfg.Threshold = threshold
	cfg.OutputStride = m.Config.OutputStride
	if !refine {
		cfg.Refinement = pose.RefineNone
	}
	return cfg
}

// Network is the opaque trained network: image tensor in, named map
// tensors out. Calls are synchronous and possibly expensive; dispatch to an
// accelerator device is internal to the backend.
type Network interface {
	Predict(img *pose.Image) (map[string]interface{}, error)
}

// BackendOptions carries device selection through to backend factories.
// Device follows the CLI surface: "cpu", "gpu", "last-gpu" or "gpuN".
type BackendOptions struct {
	Device string
}

// BackendFactory opens a Network from a loaded model.
type BackendFactory func(m *Model, opts BackendOptions) (Network, error)

var (
	backendMu sync.RWMutex
	backends  = map[string]BackendFactory{}
)

// RegisterBackend installs a network backend under a name. Backends are
// external collaborators (ONNX runtimes, accelerator SDKs); the core ships
// none and fails loudly when asked to open a network without one.
func RegisterBackend(name string, f BackendFactory) {
	backendMu.Lock()
	defer backendMu.Unlock()
	backends[name] = f
}

// OpenNetwork opens the model's network with the named backend.
func OpenNetwork(m *Model, backend string, opts BackendOptions) (Network, error) {
	backendMu.RLock()
	f, ok := backends[backend]
	backendMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("open network for %s: no backend registered as %q", m.Dir, backend)
	}
	n, err := f(m, opts)
	if err != nil {
		return nil, fmt.Errorf("open network for %s: %w", m.Dir, err)
	}
	return n, nil
}
