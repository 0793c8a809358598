package labels

import (
	"fmt"
	"io"

	"github.com/wildtrace/posekit/internal/pose"
	"github.com/wildtrace/posekit/internal/pose/pipeline"
)

// FrameSource supplies pixel data for (video, frame) pairs. Video file
// readers are external collaborators implementing this interface; when nil,
// the provider synthesises blank frames of the video's declared size, which
// is sufficient for ground-truth diagnostic runs that never touch pixels.
type FrameSource interface {
	Frame(videoIndex, frameIndex int) (*pose.Image, error)
}

// Provider adapts a label set to the pipeline provider contract: an
// enumerable, ordered sequence of frame examples carrying an image tensor,
// (video_ind, frame_ind), and the ground-truth instances.
type Provider struct {
	Labels *Labels
	Source FrameSource
}

// NewProvider wraps a label set. source may be nil (blank frames).
func NewProvider(ls *Labels, source FrameSource) *Provider {
	return &Provider{Labels: ls, Source: source}
}

// Len implements pipeline.Provider.
func (p *Provider) Len() int { return len(p.Labels.Frames) }

// Keys implements pipeline.Provider.
func (p *Provider) Keys() []string {
	return []string{
		pipeline.KeyImage,
		pipeline.KeyVideoIndex,
		pipeline.KeyFrameIndex,
		pipeline.KeyScale,
		pipeline.KeyInstances,
	}
}

// Sequence implements pipeline.Provider. Frames are produced in label-set
// order; the (video_ind, frame_ind) ordering invariant is the caller's
// responsibility when constructing the label set.
func (p *Provider) Sequence() pipeline.Sequence {
	i := 0
	return pipeline.SequenceFunc(func() (pipeline.Example, error) {
		if i >= len(p.Labels.Frames) {
			return nil, io.EOF
		}
		frame := p.Labels.Frames[i]
		i++

		img, err := p.frameImage(frame.VideoIndex, frame.FrameIndex)
		if err != nil {
			return nil, err
		}
		return pipeline.Example{
			pipeline.KeyImage:      img,
			pipeline.KeyVideoIndex: frame.VideoIndex,
			pipeline.KeyFrameIndex: frame.FrameIndex,
			pipeline.KeyScale:      1.0,
			pipeline.KeyInstances:  frame.Instances,
		}, nil
	})
}

func (p *Provider) frameImage(videoIndex, frameIndex int) (*pose.Image, error) {
	if p.Source != nil {
		img, err := p.Source.Frame(videoIndex, frameIndex)
		if err != nil {
			return nil, fmt.Errorf("frame %d/%d: %w", videoIndex, frameIndex, err)
		}
		return img, nil
	}
	v := p.Labels.Videos[videoIndex]
	h, w, c := v.Height, v.Width, v.Channels
	if h <= 0 {
		h = 1
	}
	if w <= 0 {
		w = 1
	}
	if c <= 0 {
		c = 1
	}
	return pose.NewImage(h, w, c), nil
}
