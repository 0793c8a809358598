package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultInferenceConfig(t *testing.T) {
	cfg := DefaultInferenceConfig()

	// Defaults are set via pointers
	if cfg.PeakThreshold == nil || *cfg.PeakThreshold != 0.2 {
		t.Errorf("Expected PeakThreshold 0.2, got %v", cfg.PeakThreshold)
	}
	if cfg.IntegralRefine == nil || *cfg.IntegralRefine != true {
		t.Errorf("Expected IntegralRefine true, got %v", cfg.IntegralRefine)
	}
	if cfg.CropPadding == nil || *cfg.CropPadding != 16 {
		t.Errorf("Expected CropPadding 16, got %v", cfg.CropPadding)
	}
	if cfg.MinInstancePeaks == nil || *cfg.MinInstancePeaks != 2 {
		t.Errorf("Expected MinInstancePeaks 2, got %v", cfg.MinInstancePeaks)
	}
	if cfg.TrackerSimilarity == nil || *cfg.TrackerSimilarity != "distance" {
		t.Errorf("Expected TrackerSimilarity 'distance', got %v", cfg.TrackerSimilarity)
	}
	if cfg.MaxTrackDistance == nil || *cfg.MaxTrackDistance != 64 {
		t.Errorf("Expected MaxTrackDistance 64, got %v", cfg.MaxTrackDistance)
	}

	// Getter methods
	if cfg.GetPeakThreshold() != 0.2 {
		t.Errorf("GetPeakThreshold() = %f, want 0.2", cfg.GetPeakThreshold())
	}
	if cfg.GetPAFLinePoints() != 10 {
		t.Errorf("GetPAFLinePoints() = %d, want 10", cfg.GetPAFLinePoints())
	}
	if cfg.GetMaxMisses() != 10 {
		t.Errorf("GetMaxMisses() = %d, want 10", cfg.GetMaxMisses())
	}
	if cfg.GetScoreMean() != false {
		t.Errorf("GetScoreMean() = %v, want false", cfg.GetScoreMean())
	}
}

func TestGetterDefaults(t *testing.T) {
	// Getters on an empty config fall back to defaults
	cfg := &InferenceConfig{}

	if cfg.GetPeakThreshold() != 0.2 {
		t.Errorf("GetPeakThreshold() = %f, want 0.2", cfg.GetPeakThreshold())
	}
	if cfg.GetIntegralRefine() != true {
		t.Errorf("GetIntegralRefine() = %v, want true", cfg.GetIntegralRefine())
	}
	if cfg.GetIntegralPatchSize() != 1 {
		t.Errorf("GetIntegralPatchSize() = %d, want 1", cfg.GetIntegralPatchSize())
	}
	if cfg.GetCropSize() != 0 {
		t.Errorf("GetCropSize() = %d, want 0", cfg.GetCropSize())
	}
	if cfg.GetCropStride() != 16 {
		t.Errorf("GetCropStride() = %d, want 16", cfg.GetCropStride())
	}
	if cfg.GetAnchorPart() != "" {
		t.Errorf("GetAnchorPart() = %q, want empty", cfg.GetAnchorPart())
	}
	if cfg.GetMinEdgeScore() != 0.05 {
		t.Errorf("GetMinEdgeScore() = %f, want 0.05", cfg.GetMinEdgeScore())
	}
	if cfg.GetMaxEdgeLength() != 0 {
		t.Errorf("GetMaxEdgeLength() = %f, want 0", cfg.GetMaxEdgeLength())
	}
	if cfg.GetTrackerGreedy() != false {
		t.Errorf("GetTrackerGreedy() = %v, want false", cfg.GetTrackerGreedy())
	}
	if cfg.GetMinTrackLen() != 2 {
		t.Errorf("GetMinTrackLen() = %d, want 2", cfg.GetMinTrackLen())
	}
	if cfg.GetPrefetchDepth() != 0 {
		t.Errorf("GetPrefetchDepth() = %d, want 0", cfg.GetPrefetchDepth())
	}

	// Nil receiver is valid for getters
	var nilCfg *InferenceConfig
	if nilCfg.GetPeakThreshold() != 0.2 {
		t.Errorf("nil GetPeakThreshold() = %f, want 0.2", nilCfg.GetPeakThreshold())
	}
}

func TestLoadInferenceConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "inference.json")

	testJSON := `{
  "peak_threshold": 0.35,
  "integral_refine": false,
  "crop_size": 128,
  "anchor_part": "thorax",
  "min_edge_score": 0.1,
  "tracker_similarity": "iou",
  "tracker_greedy": true,
  "max_misses": 5,
  "prefetch_depth": 32
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadInferenceConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.PeakThreshold == nil || *cfg.PeakThreshold != 0.35 {
		t.Errorf("PeakThreshold = %v, want 0.35", cfg.PeakThreshold)
	}
	if cfg.IntegralRefine == nil || *cfg.IntegralRefine != false {
		t.Errorf("IntegralRefine = %v, want false", cfg.IntegralRefine)
	}
	if cfg.CropSize == nil || *cfg.CropSize != 128 {
		t.Errorf("CropSize = %v, want 128", cfg.CropSize)
	}
	if cfg.AnchorPart == nil || *cfg.AnchorPart != "thorax" {
		t.Errorf("AnchorPart = %v, want 'thorax'", cfg.AnchorPart)
	}
	if cfg.TrackerSimilarity == nil || *cfg.TrackerSimilarity != "iou" {
		t.Errorf("TrackerSimilarity = %v, want 'iou'", cfg.TrackerSimilarity)
	}
	if cfg.MaxMisses == nil || *cfg.MaxMisses != 5 {
		t.Errorf("MaxMisses = %v, want 5", cfg.MaxMisses)
	}
	if cfg.PrefetchDepth == nil || *cfg.PrefetchDepth != 32 {
		t.Errorf("PrefetchDepth = %v, want 32", cfg.PrefetchDepth)
	}
}

func TestLoadInferenceConfigPartial(t *testing.T) {
	// Partial config: only override the threshold; everything else keeps
	// defaults through the getters.
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "partial.json")

	partialJSON := `{
  "peak_threshold": 0.5
}`
	if err := os.WriteFile(configPath, []byte(partialJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadInferenceConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load partial config: %v", err)
	}

	if cfg.GetPeakThreshold() != 0.5 {
		t.Errorf("Expected overridden PeakThreshold 0.5, got %f", cfg.GetPeakThreshold())
	}
	if cfg.CropPadding != nil {
		t.Errorf("Expected absent CropPadding to stay nil, got %v", cfg.CropPadding)
	}
	if cfg.GetCropPadding() != 16 {
		t.Errorf("Expected default CropPadding 16, got %d", cfg.GetCropPadding())
	}
	if cfg.GetTrackerSimilarity() != "distance" {
		t.Errorf("Expected default TrackerSimilarity 'distance', got %q", cfg.GetTrackerSimilarity())
	}
}

func TestLoadInferenceConfigMissing(t *testing.T) {
	_, err := LoadInferenceConfig("/nonexistent/path/to/inference.json")
	if err == nil {
		t.Error("Expected error when loading missing file, got nil")
	}
}

func TestLoadInferenceConfigInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.json")

	invalidJSON := `{
  "peak_threshold": "high"
`
	if err := os.WriteFile(configPath, []byte(invalidJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadInferenceConfig(configPath)
	if err == nil {
		t.Error("Expected error when loading invalid JSON, got nil")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "dir", "inference.json")

	cfg := &InferenceConfig{
		PeakThreshold: ptrFloat64(0.3),
		CropSize:      ptrInt(96),
		ScoreMean:     ptrBool(true),
		AnchorPart:    ptrString("head"),
	}
	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	got, err := LoadInferenceConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to reload config: %v", err)
	}
	if got.GetPeakThreshold() != 0.3 {
		t.Errorf("PeakThreshold = %f, want 0.3", got.GetPeakThreshold())
	}
	if got.GetCropSize() != 96 {
		t.Errorf("CropSize = %d, want 96", got.GetCropSize())
	}
	if got.GetScoreMean() != true {
		t.Errorf("ScoreMean = %v, want true", got.GetScoreMean())
	}
	if got.GetAnchorPart() != "head" {
		t.Errorf("AnchorPart = %q, want 'head'", got.GetAnchorPart())
	}
	// omitempty keeps absent fields absent
	if got.TrackerGreedy != nil {
		t.Errorf("TrackerGreedy = %v, want nil", got.TrackerGreedy)
	}
}

func TestMerge(t *testing.T) {
	base := DefaultInferenceConfig()
	override := &InferenceConfig{
		PeakThreshold: ptrFloat64(0.4),
		MaxMisses:     ptrInt(3),
	}

	merged := base.Merge(override)
	if merged.GetPeakThreshold() != 0.4 {
		t.Errorf("merged PeakThreshold = %f, want 0.4", merged.GetPeakThreshold())
	}
	if merged.GetMaxMisses() != 3 {
		t.Errorf("merged MaxMisses = %d, want 3", merged.GetMaxMisses())
	}
	// Untouched fields keep base values
	if merged.GetCropPadding() != 16 {
		t.Errorf("merged CropPadding = %d, want base 16", merged.GetCropPadding())
	}
	// Base is not mutated
	if base.GetPeakThreshold() != 0.2 {
		t.Errorf("base PeakThreshold = %f, want 0.2", base.GetPeakThreshold())
	}
}

func TestMergeNil(t *testing.T) {
	base := DefaultInferenceConfig()
	merged := base.Merge(nil)
	if merged.GetPeakThreshold() != 0.2 {
		t.Errorf("Merge(nil) PeakThreshold = %f, want 0.2", merged.GetPeakThreshold())
	}
}
