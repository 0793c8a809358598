package posedb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wildtrace/posekit/internal/pose"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "predictions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func wormSkeleton(t *testing.T) *pose.Skeleton {
	t.Helper()
	return pose.MustSkeleton("worm", []string{"head", "tail"}, [][2]string{{"head", "tail"}})
}

func wormAt(s *pose.Skeleton, x, y float64) *pose.Instance {
	inst := pose.NewInstance(s)
	inst.Points[0] = pose.Point{X: x, Y: y}
	inst.Points[1] = pose.Point{X: x + 2, Y: y}
	inst.Scores[0] = 0.9
	inst.Scores[1] = 0.8
	inst.Score = 1.7
	return inst
}

func TestOpenMigrates(t *testing.T) {
	db := openTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(1), version)

	// Opening an already-migrated database is a no-op.
	require.NoError(t, db.MigrateUp())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	db := openTestDB(t)
	s := wormSkeleton(t)

	track := &pose.Track{ID: "7e6c-0001", Name: "track_0", FirstFrame: 0, LastFrame: 1, Len: 2}
	a := wormAt(s, 4, 4)
	a.Track = track
	a.TrackingScore = 0.95
	b := wormAt(s, 5, 4)
	b.Track = track
	b.TrackingScore = 0.93
	partial := pose.NewInstance(s) // tail undetected
	partial.Points[0] = pose.Point{X: 20, Y: 20}
	partial.Scores[0] = 0.4
	partial.Score = 0.4
	partial.Grouped = true

	videos := []VideoRef{{Path: "colony.mp4", Height: 32, Width: 48, Channels: 1}}
	frames := []*pose.LabeledFrame{
		{VideoIndex: 0, FrameIndex: 0, Instances: []*pose.Instance{a, partial}},
		{VideoIndex: 0, FrameIndex: 1, Instances: []*pose.Instance{b}},
	}
	require.NoError(t, db.SavePredictions(s, videos, []*pose.Track{track}, frames))

	skel, err := db.LoadSkeleton()
	require.NoError(t, err)
	assert.Equal(t, []string{"head", "tail"}, skel.Nodes())
	require.Equal(t, 1, skel.NumEdges())

	got, err := db.LoadPredictions()
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Len(t, got[0].Instances, 2)
	require.Len(t, got[1].Instances, 1)

	inst := got[0].Instances[0]
	assert.Equal(t, 4.0, inst.Points[0].X)
	assert.Equal(t, 6.0, inst.Points[1].X)
	assert.Equal(t, 0.9, inst.Scores[0])
	assert.Equal(t, 1.7, inst.Score)
	assert.Equal(t, 0.95, inst.TrackingScore)

	// Instances in both frames share the re-linked track identity.
	require.NotNil(t, inst.Track)
	assert.Equal(t, "track_0", inst.Track.Name)
	assert.Same(t, inst.Track, got[1].Instances[0].Track)

	// The undetected node stays missing; the ungrouped flag survives.
	p := got[0].Instances[1]
	assert.False(t, p.Points[1].Visible())
	assert.True(t, p.Grouped)
	assert.Nil(t, p.Track)
}

func TestSaveDuplicateFrameKeys(t *testing.T) {
	db := openTestDB(t)
	s := wormSkeleton(t)

	// Two entries hit frame 0/0; the second must attach its instance to
	// the existing frame row, not to whichever row was inserted last.
	frames := []*pose.LabeledFrame{
		{VideoIndex: 0, FrameIndex: 0, Instances: []*pose.Instance{wormAt(s, 1, 1)}},
		{VideoIndex: 0, FrameIndex: 1, Instances: []*pose.Instance{wormAt(s, 5, 5)}},
		{VideoIndex: 0, FrameIndex: 0, Instances: []*pose.Instance{wormAt(s, 9, 9)}},
	}
	require.NoError(t, db.SavePredictions(s, nil, nil, frames))

	got, err := db.LoadPredictions()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].FrameIndex)
	require.Len(t, got[0].Instances, 2)
	require.Len(t, got[1].Instances, 1)
	assert.Equal(t, 5.0, got[1].Instances[0].Points[0].X)
}

func TestFrameInstanceCounts(t *testing.T) {
	db := openTestDB(t)
	s := wormSkeleton(t)

	frames := []*pose.LabeledFrame{
		{FrameIndex: 0, Instances: []*pose.Instance{wormAt(s, 1, 1), wormAt(s, 9, 9)}},
		{FrameIndex: 1, Instances: []*pose.Instance{wormAt(s, 2, 2)}},
		{FrameIndex: 2},
	}
	require.NoError(t, db.SavePredictions(s, nil, nil, frames))

	frameInds, counts, err := db.FrameInstanceCounts()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, frameInds)
	assert.Equal(t, []int{2, 1, 0}, counts)
}

func TestInstanceScores(t *testing.T) {
	db := openTestDB(t)
	s := wormSkeleton(t)

	a := wormAt(s, 1, 1)
	a.Score = 0.5
	b := wormAt(s, 2, 2)
	b.Score = 1.5
	frames := []*pose.LabeledFrame{{Instances: []*pose.Instance{a, b}}}
	require.NoError(t, db.SavePredictions(s, nil, nil, frames))

	scores, err := db.InstanceScores()
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 1.5}, scores)
}

func TestNodeDetectionRates(t *testing.T) {
	db := openTestDB(t)
	s := wormSkeleton(t)

	full := wormAt(s, 4, 4)
	headOnly := pose.NewInstance(s)
	headOnly.Points[0] = pose.Point{X: 8, Y: 8}
	frames := []*pose.LabeledFrame{{Instances: []*pose.Instance{full, headOnly}}}
	require.NoError(t, db.SavePredictions(s, nil, nil, frames))

	names, rates, err := db.NodeDetectionRates()
	require.NoError(t, err)
	assert.Equal(t, []string{"head", "tail"}, names)
	require.Len(t, rates, 2)
	assert.Equal(t, 1.0, rates[0])
	assert.Equal(t, 0.5, rates[1])
}

func TestTrackTrajectories(t *testing.T) {
	db := openTestDB(t)
	s := wormSkeleton(t)

	track := &pose.Track{ID: "7e6c-0002", Name: "track_1", FirstFrame: 0, LastFrame: 1, Len: 2}
	a := wormAt(s, 4, 4)
	a.Track = track
	b := wormAt(s, 6, 4)
	b.Track = track
	loose := wormAt(s, 30, 30) // untracked, excluded

	frames := []*pose.LabeledFrame{
		{FrameIndex: 0, Instances: []*pose.Instance{a, loose}},
		{FrameIndex: 1, Instances: []*pose.Instance{b}},
	}
	require.NoError(t, db.SavePredictions(s, nil, []*pose.Track{track}, frames))

	trajectories, err := db.TrackTrajectories()
	require.NoError(t, err)
	require.Len(t, trajectories, 1)

	tt := trajectories[0]
	assert.Equal(t, "track_1", tt.Name)
	assert.Equal(t, []int{0, 1}, tt.Frames)
	// Mean of the visible points: worm at (x, y) spans x..x+2.
	assert.Equal(t, []float64{5, 7}, tt.X)
	assert.Equal(t, []float64{4, 4}, tt.Y)
}
