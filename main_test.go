package main

import (
	"testing"

	"github.com/wildtrace/posekit/internal/config"
	"github.com/wildtrace/posekit/internal/pose"
)

func TestParseFrameRange(t *testing.T) {
	tests := []struct {
		in          string
		first, last int
		wantErr     bool
	}{
		{"0-99", 0, 99, false},
		{"10-10", 10, 10, false},
		{"10-", 10, -1, false}, // open-ended
		{"5", 0, 0, true},
		{"a-b", 0, 0, true},
		{"9-3", 0, 0, true}, // last before first
		{"", 0, 0, true},
	}
	for _, tt := range tests {
		first, last, err := parseFrameRange(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseFrameRange(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err != nil {
			continue
		}
		if first != tt.first || last != tt.last {
			t.Errorf("parseFrameRange(%q) = (%d, %d), want (%d, %d)", tt.in, first, last, tt.first, tt.last)
		}
	}
}

func TestBuildTracker(t *testing.T) {
	cfg := config.DefaultInferenceConfig()
	tracker, err := buildTracker(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if tracker == nil {
		t.Fatal("expected a tracker")
	}

	iou := "iou"
	cfg.TrackerSimilarity = &iou
	if _, err := buildTracker(cfg); err != nil {
		t.Errorf("iou similarity rejected: %v", err)
	}

	bogus := "appearance"
	cfg.TrackerSimilarity = &bogus
	if _, err := buildTracker(cfg); err == nil {
		t.Error("expected error for unknown similarity")
	}
}

func TestBuildTracker_AppliesConfig(t *testing.T) {
	cfg := config.DefaultInferenceConfig()
	greedy := true
	dist := 32.0
	cfg.TrackerGreedy = &greedy
	cfg.MaxTrackDistance = &dist

	tracker, err := buildTracker(cfg)
	if err != nil {
		t.Fatal(err)
	}
	// Exercise the gate: a jump past MaxDistance must spawn a new track.
	s := pose.MustSkeleton("dot", []string{"a"}, nil)
	near := pose.NewInstance(s)
	near.Points[0] = pose.Point{X: 0, Y: 0}
	far := pose.NewInstance(s)
	far.Points[0] = pose.Point{X: 100, Y: 100}

	tracker.Track([]*pose.Instance{near}, nil, 0)
	tracker.Track([]*pose.Instance{far}, nil, 1)
	if got := len(tracker.Tracks()); got != 2 {
		t.Errorf("tracks = %d, want 2 (gated at 32px)", got)
	}
}
