package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/wildtrace/posekit/internal/config"
	"github.com/wildtrace/posekit/internal/pose"
	"github.com/wildtrace/posekit/internal/pose/labels"
	"github.com/wildtrace/posekit/internal/pose/predictor"
	"github.com/wildtrace/posekit/internal/posedb"
)

// stringList collects repeated flag values.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

var (
	dataPath    = flag.String("data", "", "Path to the label set JSON to run inference on (required)")
	modelDirs   stringList
	framesRange = flag.String("frames", "", "Frame range to process as first-last (e.g. 0-99; default all)")
	outputPath  = flag.String("output", "", "Output predictions database (default <data>.predictions.db)")
	configPath  = flag.String("config", "", "Optional inference tuning JSON")
	backend     = flag.String("backend", "", "Registered network backend name")
	device      = flag.String("device", "cpu", "Inference device: cpu, gpu or gpuN")
	groundTruth = flag.Bool("ground-truth", false, "Run with ground-truth mock inference instead of trained models")
	withTracker = flag.Bool("track", false, "Assign track identities across frames")
	prefetch    = flag.Int("prefetch", 0, "Prefetch depth (records of lookahead; 0 disables)")
	logDiag     = flag.Bool("log-diag", false, "Enable the diagnostic log stream")
	logTrace    = flag.Bool("log-trace", false, "Enable the per-record trace log stream")
)

// parseFrameRange parses "first-last"; last may be omitted ("10-") for
// open-ended ranges.
func parseFrameRange(s string) (first, last int, err error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("frame range %q: want first-last", s)
	}
	first, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("frame range %q: %v", s, err)
	}
	if parts[1] == "" {
		return first, -1, nil
	}
	last, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("frame range %q: %v", s, err)
	}
	if last < first {
		return 0, 0, fmt.Errorf("frame range %q: last before first", s)
	}
	return first, last, nil
}

func buildTracker(cfg *config.InferenceConfig) (*pose.Tracker, error) {
	tc := pose.DefaultTrackerConfig()
	switch sim := cfg.GetTrackerSimilarity(); sim {
	case "distance":
		tc.Similarity = pose.SimilarityDistance
	case "iou":
		tc.Similarity = pose.SimilarityIOU
	default:
		return nil, fmt.Errorf("unknown tracker similarity %q", sim)
	}
	tc.Greedy = cfg.GetTrackerGreedy()
	tc.MaxDistance = cfg.GetMaxTrackDistance()
	tc.MaxMisses = cfg.GetMaxMisses()
	tc.MinTrackLen = cfg.GetMinTrackLen()
	return pose.NewTracker(tc), nil
}

func run(ctx context.Context) error {
	start := time.Now()

	if *dataPath == "" {
		return fmt.Errorf("-data is required")
	}
	if !*groundTruth && len(modelDirs) == 0 {
		return fmt.Errorf("at least one -model is required unless -ground-truth is set")
	}

	cfg := config.DefaultInferenceConfig()
	if *configPath != "" {
		overlay, err := config.LoadInferenceConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = cfg.Merge(overlay)
	}

	ls, err := labels.Load(*dataPath)
	if err != nil {
		return err
	}
	if *framesRange != "" {
		first, last, err := parseFrameRange(*framesRange)
		if err != nil {
			return err
		}
		ls = ls.SelectFrames(first, last)
	}
	pose.Opsf("[Main] Loaded %d frames from %s", len(ls.Frames), *dataPath)

	var tracker *pose.Tracker
	if *withTracker {
		if tracker, err = buildTracker(cfg); err != nil {
			return err
		}
	}

	runCfg := predictor.RunConfig{
		PeakThreshold: cfg.GetPeakThreshold(),
		Refine:        cfg.GetIntegralRefine(),
		ScoreMean:     cfg.GetScoreMean(),
		Tracker:       tracker,
		Prefetch:      *prefetch,
		Ctx:           ctx,
	}
	if *prefetch == 0 {
		runCfg.Prefetch = cfg.GetPrefetchDepth()
	}
	nFrames := len(ls.Frames)
	runCfg.Progress = func(i int) {
		if i > 0 && i%100 == 0 {
			pose.Opsf("[Main] Processed %d/%d records", i, nFrames)
		}
	}

	cropSize := cfg.GetCropSize()
	if cropSize <= 0 {
		// Derive from the label set; topdown variants ignore failure when
		// they never crop.
		if sz, err := ls.CropSize(cfg.GetCropPadding(), cfg.GetCropStride(), 0); err == nil {
			cropSize = sz
		}
	}
	anchor := -1
	if part := cfg.GetAnchorPart(); part != "" {
		anchor = ls.Skeleton.NodeIndex(part)
		if anchor < 0 {
			return fmt.Errorf("anchor part %q not in skeleton %s", part, ls.Skeleton.Name())
		}
	}
	topdownCfg := predictor.TopdownConfig{
		RunConfig: runCfg,
		CropSize:  cropSize,
		Anchor:    anchor,
	}

	grouper := pose.DefaultPAFGrouperConfig()
	grouper.NPoints = cfg.GetPAFLinePoints()
	grouper.MinEdgeScore = cfg.GetMinEdgeScore()
	grouper.MaxEdgeLength = cfg.GetMaxEdgeLength()
	grouper.MinInstancePeaks = cfg.GetMinInstancePeaks()
	grouper.ScoreMean = cfg.GetScoreMean()

	var pred predictor.Predictor
	if *groundTruth {
		if len(ls.AllInstances()) > 0 && cropSize > 0 {
			pred, err = predictor.NewGroundTruthTopdownPredictor(ls.Skeleton, topdownCfg)
		} else {
			pred = predictor.NewGroundTruthSingleInstancePredictor(ls.Skeleton, runCfg)
		}
		if err != nil {
			return err
		}
	} else {
		models := make([]*predictor.Model, 0, len(modelDirs))
		for _, dir := range modelDirs {
			m, err := predictor.LoadModel(dir)
			if err != nil {
				return err
			}
			pose.Opsf("[Main] Loaded %s model from %s", m.Head(), dir)
			models = append(models, m)
		}
		pred, err = predictor.FromTrainedModels(models, predictor.FromModelsConfig{
			Run:      runCfg,
			Topdown:  topdownCfg,
			Grouper:  grouper,
			Backend:  *backend,
			Device:   *device,
			Skeleton: ls.Skeleton,
		})
		if err != nil {
			return err
		}
	}
	pose.Opsf("[Main] Using %s", pred.Name())

	provider := labels.NewProvider(ls, nil)
	frames, err := pred.Predict(provider)
	if err != nil {
		return err
	}
	nInstances := 0
	for _, f := range frames {
		nInstances += len(f.Instances)
	}
	pose.Opsf("[Main] Predicted %d instances across %d frames", nInstances, len(frames))

	out := *outputPath
	if out == "" {
		out = *dataPath + ".predictions.db"
	}
	db, err := posedb.Open(out)
	if err != nil {
		return err
	}
	defer db.Close()

	videos := make([]posedb.VideoRef, len(ls.Videos))
	for i, v := range ls.Videos {
		videos[i] = posedb.VideoRef{Path: v.Path, Height: v.Height, Width: v.Width, Channels: v.Channels}
	}
	var tracks []*pose.Track
	if tracker != nil {
		tracks = tracker.Tracks()
	}
	if err := db.SavePredictions(ls.Skeleton, videos, tracks, frames); err != nil {
		return err
	}
	pose.Opsf("[Main] Wrote predictions to %s in %s", out, time.Since(start).Round(time.Millisecond))
	return nil
}

func main() {
	flag.Var(&modelDirs, "model", "Trained model directory (repeatable)")
	flag.Parse()

	writers := pose.LogWriters{Ops: os.Stderr}
	if *logDiag {
		writers.Diag = os.Stderr
	}
	if *logTrace {
		writers.Trace = os.Stderr
	}
	pose.SetLogWriters(writers)
	log.SetOutput(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("posekit: %v", err)
	}
}
