// Package config loads and saves inference tuning parameters. The schema
// uses pointer-typed optional fields so a tuning file can override any
// subset of values, and getter methods supply defaults for absent fields.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// InferenceConfig is the root tuning configuration for an inference run.
// The same JSON document drives the CLI and tests; absent fields fall back
// to defaults via the getters.
type InferenceConfig struct {
	// Peak decoding
	PeakThreshold     *float64 `json:"peak_threshold,omitempty"`
	IntegralRefine    *bool    `json:"integral_refine,omitempty"`
	IntegralPatchSize *int     `json:"integral_patch_size,omitempty"`

	// Topdown cropping
	CropSize    *int    `json:"crop_size,omitempty"`
	CropPadding *int    `json:"crop_padding,omitempty"`
	CropStride  *int    `json:"crop_stride,omitempty"`
	AnchorPart  *string `json:"anchor_part,omitempty"`

	// Bottom-up grouping
	PAFLinePoints    *int     `json:"paf_line_points,omitempty"`
	MinEdgeScore     *float64 `json:"min_edge_score,omitempty"`
	MaxEdgeLength    *float64 `json:"max_edge_length,omitempty"`
	MinInstancePeaks *int     `json:"min_instance_peaks,omitempty"`
	ScoreMean        *bool    `json:"score_mean,omitempty"`

	// Tracking
	TrackerSimilarity *string  `json:"tracker_similarity,omitempty"`
	TrackerGreedy     *bool    `json:"tracker_greedy,omitempty"`
	MaxTrackDistance  *float64 `json:"max_track_distance,omitempty"`
	MaxMisses         *int     `json:"max_misses,omitempty"`
	MinTrackLen       *int     `json:"min_track_len,omitempty"`

	// Throughput
	PrefetchDepth *int `json:"prefetch_depth,omitempty"`
}

// Pointer constructors for building configs in code.
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }

// DefaultInferenceConfig returns the canonical defaults with every field
// populated.
func DefaultInferenceConfig() *InferenceConfig {
	return &InferenceConfig{
		PeakThreshold:     ptrFloat64(0.2),
		IntegralRefine:    ptrBool(true),
		IntegralPatchSize: ptrInt(1),
		CropSize:          ptrInt(0), // 0 = derive from label set
		CropPadding:       ptrInt(16),
		CropStride:        ptrInt(16),
		AnchorPart:        ptrString(""),
		PAFLinePoints:     ptrInt(10),
		MinEdgeScore:      ptrFloat64(0.05),
		MaxEdgeLength:     ptrFloat64(0),
		MinInstancePeaks:  ptrInt(2),
		ScoreMean:         ptrBool(false),
		TrackerSimilarity: ptrString("distance"),
		TrackerGreedy:     ptrBool(false),
		MaxTrackDistance:  ptrFloat64(64),
		MaxMisses:         ptrInt(10),
		MinTrackLen:       ptrInt(2),
		PrefetchDepth:     ptrInt(0),
	}
}

// Getter methods with defaults for absent fields.

func (c *InferenceConfig) GetPeakThreshold() float64 {
	if c != nil && c.PeakThreshold != nil {
		return *c.PeakThreshold
	}
	return 0.2
}

func (c *InferenceConfig) GetIntegralRefine() bool {
	if c != nil && c.IntegralRefine != nil {
		return *c.IntegralRefine
	}
	return true
}

func (c *InferenceConfig) GetIntegralPatchSize() int {
	if c != nil && c.IntegralPatchSize != nil {
		return *c.IntegralPatchSize
	}
	return 1
}

func (c *InferenceConfig) GetCropSize() int {
	if c != nil && c.CropSize != nil {
		return *c.CropSize
	}
	return 0
}

func (c *InferenceConfig) GetCropPadding() int {
	if c != nil && c.CropPadding != nil {
		return *c.CropPadding
	}
	return 16
}

func (c *InferenceConfig) GetCropStride() int {
	if c != nil && c.CropStride != nil {
		return *c.CropStride
	}
	return 16
}

func (c *InferenceConfig) GetAnchorPart() string {
	if c != nil && c.AnchorPart != nil {
		return *c.AnchorPart
	}
	return ""
}

func (c *InferenceConfig) GetPAFLinePoints() int {
	if c != nil && c.PAFLinePoints != nil {
		return *c.PAFLinePoints
	}
	return 10
}

func (c *InferenceConfig) GetMinEdgeScore() float64 {
	if c != nil && c.MinEdgeScore != nil {
		return *c.MinEdgeScore
	}
	return 0.05
}

func (c *InferenceConfig) GetMaxEdgeLength() float64 {
	if c != nil && c.MaxEdgeLength != nil {
		return *c.MaxEdgeLength
	}
	return 0
}

func (c *InferenceConfig) GetMinInstancePeaks() int {
	if c != nil && c.MinInstancePeaks != nil {
		return *c.MinInstancePeaks
	}
	return 2
}

func (c *InferenceConfig) GetScoreMean() bool {
	if c != nil && c.ScoreMean != nil {
		return *c.ScoreMean
	}
	return false
}

func (c *InferenceConfig) GetTrackerSimilarity() string {
	if c != nil && c.TrackerSimilarity != nil {
		return *c.TrackerSimilarity
	}
	return "distance"
}

func (c *InferenceConfig) GetTrackerGreedy() bool {
	if c != nil && c.TrackerGreedy != nil {
		return *c.TrackerGreedy
	}
	return false
}

func (c *InferenceConfig) GetMaxTrackDistance() float64 {
	if c != nil && c.MaxTrackDistance != nil {
		return *c.MaxTrackDistance
	}
	return 64
}

func (c *InferenceConfig) GetMaxMisses() int {
	if c != nil && c.MaxMisses != nil {
		return *c.MaxMisses
	}
	return 10
}

func (c *InferenceConfig) GetMinTrackLen() int {
	if c != nil && c.MinTrackLen != nil {
		return *c.MinTrackLen
	}
	return 2
}

func (c *InferenceConfig) GetPrefetchDepth() int {
	if c != nil && c.PrefetchDepth != nil {
		return *c.PrefetchDepth
	}
	return 0
}

// LoadInferenceConfig reads a tuning file. Only fields present in the file
// are set; everything else stays nil and falls back to getter defaults.
func LoadInferenceConfig(path string) (*InferenceConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load inference config: %w", err)
	}
	var cfg InferenceConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("load inference config %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes the config as indented JSON, creating parent directories.
func (c *InferenceConfig) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("save inference config: %w", err)
		}
	}
	raw, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("save inference config: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("save inference config: %w", err)
	}
	return nil
}

// Merge overlays non-nil fields of other onto a copy of c.
func (c *InferenceConfig) Merge(other *InferenceConfig) *InferenceConfig {
	out := *c
	if other == nil {
		return &out
	}
	if other.PeakThreshold != nil {
		out.PeakThreshold = other.PeakThreshold
	}
	if other.IntegralRefine != nil {
		out.IntegralRefine = other.IntegralRefine
	}
	if other.IntegralPatchSize != nil {
		out.IntegralPatchSize = other.IntegralPatchSize
	}
	if other.CropSize != nil {
		out.CropSize = other.CropSize
	}
	if other.CropPadding != nil {
		out.CropPadding = other.CropPadding
	}
	if other.CropStride != nil {
		out.CropStride = other.CropStride
	}
	if other.AnchorPart != nil {
		out.AnchorPart = other.AnchorPart
	}
	if other.PAFLinePoints != nil {
		out.PAFLinePoints = other.PAFLinePoints
	}
	if other.MinEdgeScore != nil {
		out.MinEdgeScore = other.MinEdgeScore
	}
	if other.MaxEdgeLength != nil {
		out.MaxEdgeLength = other.MaxEdgeLength
	}
	if other.MinInstancePeaks != nil {
		out.MinInstancePeaks = other.MinInstancePeaks
	}
	if other.ScoreMean != nil {
		out.ScoreMean = other.ScoreMean
	}
	if other.TrackerSimilarity != nil {
		out.TrackerSimilarity = other.TrackerSimilarity
	}
	if other.TrackerGreedy != nil {
		out.TrackerGreedy = other.TrackerGreedy
	}
	if other.MaxTrackDistance != nil {
		out.MaxTrackDistance = other.MaxTrackDistance
	}
	if other.MaxMisses != nil {
		out.MaxMisses = other.MaxMisses
	}
	if other.MinTrackLen != nil {
		out.MinTrackLen = other.MinTrackLen
	}
	if other.PrefetchDepth != nil {
		out.PrefetchDepth = other.PrefetchDepth
	}
	return &out
}
