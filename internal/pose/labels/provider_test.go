package labels

import (
	"errors"
	"testing"

	"github.com/wildtrace/posekit/internal/pose"
	"github.com/wildtrace/posekit/internal/pose/pipeline"
)

func TestProvider_Keys(t *testing.T) {
	p := NewProvider(&Labels{}, nil)
	keys := p.Keys()
	want := []string{
		pipeline.KeyImage,
		pipeline.KeyVideoIndex,
		pipeline.KeyFrameIndex,
		pipeline.KeyScale,
		pipeline.KeyInstances,
	}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v", keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}

func TestProvider_BlankFrames(t *testing.T) {
	s := wormSkeleton(t)
	ls := &Labels{
		Skeleton: s,
		Videos:   []Video{{Path: "v.mp4", Height: 24, Width: 32, Channels: 1}},
		Frames: []*pose.LabeledFrame{
			{FrameIndex: 2, Instances: []*pose.Instance{wormAt(s, 4, 4)}},
		},
	}

	p := NewProvider(ls, nil)
	if p.Len() != 1 {
		t.Fatalf("Len = %d", p.Len())
	}
	out, err := pipeline.Collect(p.Sequence())
	if err != nil {
		t.Fatal(err)
	}
	e := out[0]
	img := e.Image(pipeline.KeyImage)
	if img.Rows() != 24 || img.Cols() != 32 {
		t.Errorf("blank frame = %dx%d, want video's 24x32", img.Rows(), img.Cols())
	}
	if e.Int(pipeline.KeyFrameIndex) != 2 {
		t.Errorf("frame_ind = %d", e.Int(pipeline.KeyFrameIndex))
	}
	if e.Float(pipeline.KeyScale, 0) != 1 {
		t.Errorf("scale = %v, want 1", e.Float(pipeline.KeyScale, 0))
	}
	if got := e.Instances(pipeline.KeyInstances); len(got) != 1 {
		t.Errorf("instances = %v", got)
	}
}

func TestProvider_ZeroSizeVideoFloorsToOnePixel(t *testing.T) {
	ls := &Labels{
		Videos: []Video{{Path: "v.mp4"}},
		Frames: []*pose.LabeledFrame{{}},
	}
	out, err := pipeline.Collect(NewProvider(ls, nil).Sequence())
	if err != nil {
		t.Fatal(err)
	}
	img := out[0].Image(pipeline.KeyImage)
	if img.Rows() != 1 || img.Cols() != 1 || img.Channels() != 1 {
		t.Errorf("degenerate video frame = %dx%dx%d, want 1x1x1", img.Rows(), img.Cols(), img.Channels())
	}
}

// stubSource returns a fixed image, or an error for frames past a limit.
type stubSource struct {
	img   *pose.Image
	limit int
}

func (s *stubSource) Frame(videoIndex, frameIndex int) (*pose.Image, error) {
	if frameIndex >= s.limit {
		return nil, errors.New("frame out of range")
	}
	return s.img, nil
}

func TestProvider_Source(t *testing.T) {
	img := pose.NewImage(8, 8, 1)
	ls := &Labels{
		Videos: []Video{{Path: "v.mp4"}},
		Frames: []*pose.LabeledFrame{{FrameIndex: 0}},
	}

	out, err := pipeline.Collect(NewProvider(ls, &stubSource{img: img, limit: 10}).Sequence())
	if err != nil {
		t.Fatal(err)
	}
	if out[0].Image(pipeline.KeyImage) != img {
		t.Error("provider must pass the source image through untouched")
	}
}

func TestProvider_SourceErrorPropagates(t *testing.T) {
	ls := &Labels{
		Videos: []Video{{Path: "v.mp4"}},
		Frames: []*pose.LabeledFrame{{FrameIndex: 99}},
	}

	seq := NewProvider(ls, &stubSource{limit: 10}).Sequence()
	if _, err := seq.Next(); err == nil {
		t.Error("expected source error to surface")
	}
}
