// Package labels models ground-truth label sets and adapts them to the
// pipeline provider contract. Heavyweight dataset formats (HDF5, MP4,
// imgstore) are external collaborators; this package reads the toolkit's
// own JSON interchange form and accepts any FrameSource for pixel data.
package labels

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/wildtrace/posekit/internal/pose"
)

// Video describes one video referenced by a label set.
type Video struct {
	Path     string `json:"path"`
	Height   int    `json:"height"`
	Width    int    `json:"width"`
	Channels int    `json:"channels"`
	Frames   int    `json:"frames,omitempty"`
}

// point is the JSON form of a landmark; NaN does not survive JSON, so
// visibility is explicit.
type point struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Visible bool    `json:"visible"`
}

// labeledInstance is the JSON form of one annotated animal.
type labeledInstance struct {
	Points []point `json:"points"`
	Track  string  `json:"track,omitempty"`
}

// labeledFrame is the JSON form of one annotated frame.
type labeledFrame struct {
	VideoIndex int               `json:"video_ind"`
	FrameIndex int               `json:"frame_ind"`
	Instances  []labeledInstance `json:"instances"`
}

// fileFormat is the on-disk JSON document.
type fileFormat struct {
	Skeleton struct {
		Name  string      `json:"name"`
		Nodes []string    `json:"nodes"`
		Edges [][2]string `json:"edges"`
	} `json:"skeleton"`
	Videos []Video        `json:"videos"`
	Frames []labeledFrame `json:"frames"`
}

// Labels is an in-memory label set: a skeleton, video references, and
// annotated frames in (video, frame) order.
type Labels struct {
	Skeleton *pose.Skeleton
	Videos   []Video
	Frames   []*pose.LabeledFrame
}

// Load reads a label set from a JSON file. A missing file is a resource
// error, surfaced immediately and not retried.
func Load(path string) (*Labels, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load labels: %w", err)
	}
	var doc fileFormat
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("load labels %s: %w", path, err)
	}
	skel, err := pose.NewSkeleton(doc.Skeleton.Name, doc.Skeleton.Nodes, doc.Skeleton.Edges)
	if err != nil {
		return nil, fmt.Errorf("load labels %s: %w", path, err)
	}

	ls := &Labels{Skeleton: skel, Videos: doc.Videos}
	for _, lf := range doc.Frames {
		if lf.VideoIndex < 0 || lf.VideoIndex >= len(doc.Videos) {
			return nil, fmt.Errorf("load labels %s: frame references video %d of %d", path, lf.VideoIndex, len(doc.Videos))
		}
		frame := &pose.LabeledFrame{VideoIndex: lf.VideoIndex, FrameIndex: lf.FrameIndex}
		for _, li := range lf.Instances {
			if len(li.Points) != skel.Len() {
				return nil, fmt.Errorf("load labels %s: instance has %d points, skeleton %q has %d nodes",
					path, len(li.Points), skel.Name(), skel.Len())
			}
			inst := pose.NewInstance(skel)
			for i, p := range li.Points {
				if p.Visible {
					inst.Points[i] = pose.Point{X: p.X, Y: p.Y}
					inst.Scores[i] = 1
				}
			}
			frame.Instances = append(frame.Instances, inst)
		}
		ls.Frames = append(ls.Frames, frame)
	}
	return ls, nil
}

// Save writes the label set (or a prediction result) to JSON.
func Save(path string, ls *Labels) error {
	var doc fileFormat
	doc.Skeleton.Name = ls.Skeleton.Name()
	doc.Skeleton.Nodes = ls.Skeleton.Nodes()
	doc.Skeleton.Edges = ls.Skeleton.EdgeNames()
	doc.Videos = ls.Videos
	for _, frame := range ls.Frames {
		lf := labeledFrame{VideoIndex: frame.VideoIndex, FrameIndex: frame.FrameIndex}
		for _, inst := range frame.Instances {
			li := labeledInstance{Points: make([]point, len(inst.Points))}
			if inst.Track != nil {
				li.Track = inst.Track.Name
			}
			for i, p := range inst.Points {
				if p.Visible() {
					li.Points[i] = point{X: p.X, Y: p.Y, Visible: true}
				}
			}
			lf.Instances = append(lf.Instances, li)
		}
		doc.Frames = append(doc.Frames, lf)
	}
	raw, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return fmt.Errorf("save labels: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("save labels: %w", err)
	}
	return nil
}

// AllInstances returns every instance across all frames; the input to
// crop-size precomputation.
func (ls *Labels) AllInstances() []*pose.Instance {
	var out []*pose.Instance
	for _, f := range ls.Frames {
		out = append(out, f.Instances...)
	}
	return out
}

// CropSize precomputes the topdown crop size for this label set.
func (ls *Labels) CropSize(padding, stride, minSize int) (int, error) {
	return pose.FindInstanceCropSize(ls.AllInstances(), padding, stride, minSize)
}

// SelectFrames returns a copy restricted to frames with
// first <= frame_ind <= last. A negative last means unbounded.
func (ls *Labels) SelectFrames(first, last int) *Labels {
	out := &Labels{Skeleton: ls.Skeleton, Videos: ls.Videos}
	for _, f := range ls.Frames {
		if f.FrameIndex < first {
			continue
		}
		if last >= 0 && f.FrameIndex > last {
			continue
		}
		out.Frames = append(out.Frames, f)
	}
	return out
}
