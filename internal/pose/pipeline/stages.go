package pipeline

import (
	"context"
	"io"

	"github.com/wildtrace/posekit/internal/pose"
)

// mapSequence applies fn to each upstream record. fn errors are per-record
// and flow to the consumer (SafeSequence isolates them at the top level).
func mapSequence(seq Sequence, fn func(Example) (Example, error)) Sequence {
	return SequenceFunc(func() (Example, error) {
		e, err := seq.Next()
		if err != nil {
			return nil, err
		}
		return fn(e)
	})
}

// Normalizer scales pixel values into the unit range and applies optional
// channel conversion. It is typically the first stage of every predictor
// pipeline so downstream stages can assume unit-range input.
type Normalizer struct {
	ImageKey        string
	EnsureFloat     bool // Divide by MaxValue so values land in [0, 1]
	EnsureGrayscale bool
	EnsureRGB       bool
}

// NewNormalizer returns a Normalizer with the standard image key and
// unit-range scaling enabled.
func NewNormalizer() *Normalizer {
	return &Normalizer{ImageKey: KeyImage, EnsureFloat: true}
}

func (n *Normalizer) Name() string        { return "Normalizer" }
func (n *Normalizer) InputKeys() []string { return []string{n.ImageKey} }
func (n *Normalizer) OutputKeys() []string {
	return []string{n.ImageKey}
}

func (n *Normalizer) Transform(seq Sequence) Sequence {
	return mapSequence(seq, func(e Example) (Example, error) {
		img := e.Image(n.ImageKey)
		if n.EnsureGrayscale {
			img = img.Grayscale()
		} else if n.EnsureRGB {
			img = img.RGB()
		}
		if n.EnsureFloat && img.MaxValue != 0 && img.MaxValue != 1 {
			img = img.ScaleValues(1 / img.MaxValue)
			img.MaxValue = 1
		}
		out := e.Clone()
		out[n.ImageKey] = img
		return out, nil
	})
}

// Resizer scales the image by a fixed factor and co-scales all point
// coordinates so annotations stay aligned. With KeepFullImage set, the
// unscaled frame is retained under KeyFullImage for stages that need
// original pixels (e.g. instance cropping at full resolution).
type Resizer struct {
	ImageKey      string
	Scale         float64
	KeepFullImage bool
}

func NewResizer(scale float64) *Resizer {
	return &Resizer{ImageKey: KeyImage, Scale: scale}
}

func (r *Resizer) Name() string        { return "Resizer" }
func (r *Resizer) InputKeys() []string { return []string{r.ImageKey} }
func (r *Resizer) OutputKeys() []string {
	out := []string{r.ImageKey, KeyScale}
	if r.KeepFullImage {
		out = append(out, KeyFullImage)
	}
	return out
}

func (r *Resizer) Transform(seq Sequence) Sequence {
	return mapSequence(seq, func(e Example) (Example, error) {
		out := e.Clone()
		img := e.Image(r.ImageKey)
		if r.KeepFullImage {
			out[KeyFullImage] = img
		}
		if r.Scale != 1 {
			out[r.ImageKey] = img.Resize(r.Scale)
			if insts := e.Instances(KeyInstances); insts != nil {
				scaled := make([]*pose.Instance, len(insts))
				for i, inst := range insts {
					c := *inst
					c.Points = append([]pose.Point(nil), inst.Points...)
					cc := &c
					cc.Rescale(r.Scale)
					scaled[i] = cc
				}
				out[KeyInstances] = scaled
			}
			if pts := e.Points(KeyCentroids); pts != nil {
				scaled := make([]pose.Point, len(pts))
				for i, p := range pts {
					scaled[i] = pose.Point{X: p.X * r.Scale, Y: p.Y * r.Scale}
				}
				out[KeyCentroids] = scaled
			}
		}
		out[KeyScale] = e.Float(KeyScale, 1) * r.Scale
		return out, nil
	})
}

// KeyFilter projects each record down to a key subset, dropping everything
// else.
type KeyFilter struct {
	Keep []string
}

func (f *KeyFilter) Name() string         { return "KeyFilter" }
func (f *KeyFilter) InputKeys() []string  { return f.Keep }
func (f *KeyFilter) OutputKeys() []string { return nil }

// MutateKeys drops all available keys not in the keep set.
func (f *KeyFilter) MutateKeys(available map[string]bool) {
	keep := make(map[string]bool, len(f.Keep))
	for _, k := range f.Keep {
		keep[k] = true
	}
	for _, k := range sortedKeys(available) {
		if !keep[k] {
			delete(available, k)
		}
	}
}

func (f *KeyFilter) Transform(seq Sequence) Sequence {
	return mapSequence(seq, func(e Example) (Example, error) {
		out := make(Example, len(f.Keep))
		for _, k := range f.Keep {
			if v, ok := e[k]; ok {
				out[k] = v
			}
		}
		return out, nil
	})
}

// KeyRenamer renames keys, optionally retaining the originals.
type KeyRenamer struct {
	// Mapping is an ordered list of (from, to) pairs.
	Mapping       [][2]string
	KeepOriginals bool
}

func (r *KeyRenamer) Name() string { return "KeyRenamer" }
func (r *KeyRenamer) InputKeys() []string {
	in := make([]string, len(r.Mapping))
	for i, m := range r.Mapping {
		in[i] = m[0]
	}
	return in
}
func (r *KeyRenamer) OutputKeys() []string {
	out := make([]string, len(r.Mapping))
	for i, m := range r.Mapping {
		out[i] = m[1]
	}
	return out
}

// MutateKeys removes the original keys unless they are retained.
func (r *KeyRenamer) MutateKeys(available map[string]bool) {
	if r.KeepOriginals {
		return
	}
	for _, m := range r.Mapping {
		delete(available, m[0])
	}
}

func (r *KeyRenamer) Transform(seq Sequence) Sequence {
	return mapSequence(seq, func(e Example) (Example, error) {
		out := e.Clone()
		for _, m := range r.Mapping {
			out[m[1]] = e[m[0]]
			if !r.KeepOriginals {
				delete(out, m[0])
			}
		}
		return out, nil
	})
}

// LambdaFilter drops records failing a predicate, e.g. "frame has at least
// one detected peak". Dropping is not an error: the record simply never
// reaches downstream stages.
type LambdaFilter struct {
	FilterName string
	Required   []string
	Predicate  func(Example) bool
}

func (f *LambdaFilter) Name() string {
	if f.FilterName != "" {
		return f.FilterName
	}
	return "LambdaFilter"
}
func (f *LambdaFilter) InputKeys() []string  { return f.Required }
func (f *LambdaFilter) OutputKeys() []string { return nil }

func (f *LambdaFilter) Transform(seq Sequence) Sequence {
	return SequenceFunc(func() (Example, error) {
		for {
			e, err := seq.Next()
			if err != nil {
				return nil, err
			}
			if f.Predicate(e) {
				return e, nil
			}
		}
	})
}

// PointsRescaler undoes a scale factor applied earlier in the pipeline,
// mapping predicted coordinates back to full-resolution space. It divides
// by the record's cumulative KeyScale.
type PointsRescaler struct {
	// PeaksKeys and InstancesKeys name the coordinate-bearing values to
	// rescale; absent keys are skipped.
	PeaksKeys     []string
	InstancesKeys []string
}

func (r *PointsRescaler) Name() string         { return "PointsRescaler" }
func (r *PointsRescaler) InputKeys() []string  { return []string{KeyScale} }
func (r *PointsRescaler) OutputKeys() []string { return nil }

func (r *PointsRescaler) Transform(seq Sequence) Sequence {
	return mapSequence(seq, func(e Example) (Example, error) {
		scale := e.Float(KeyScale, 1)
		if scale == 1 || scale == 0 {
			return e, nil
		}
		inv := 1 / scale
		out := e.Clone()
		for _, k := range r.PeaksKeys {
			peaks := e.Peaks(k)
			if peaks == nil {
				continue
			}
			rescaled := make([]pose.Peak, len(peaks))
			for i, pk := range peaks {
				pk.X *= inv
				pk.Y *= inv
				rescaled[i] = pk
			}
			out[k] = rescaled
		}
		for _, k := range r.InstancesKeys {
			insts := e.Instances(k)
			if insts == nil {
				continue
			}
			for _, inst := range insts {
				inst.Rescale(inv)
			}
		}
		out[KeyScale] = 1.0
		return out, nil
	})
}

// Prefetcher pipelines upstream production ahead of consumption with a
// bounded lookahead buffer, trading memory for throughput. It is the sole
// concurrency point in a pipeline and is optional: correctness never
// depends on it. The context cancels the background producer on early
// shutdown.
type Prefetcher struct {
	Buffer int
	Ctx    context.Context
}

func NewPrefetcher(ctx context.Context, buffer int) *Prefetcher {
	if buffer <= 0 {
		buffer = 16
	}
	return &Prefetcher{Buffer: buffer, Ctx: ctx}
}

func (p *Prefetcher) Name() string         { return "Prefetcher" }
func (p *Prefetcher) InputKeys() []string  { return nil }
func (p *Prefetcher) OutputKeys() []string { return nil }

type prefetchItem struct {
	example Example
	err     error
}

func (p *Prefetcher) Transform(seq Sequence) Sequence {
	ctx := p.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	ch := make(chan prefetchItem, p.Buffer)
	go func() {
		defer close(ch)
		for {
			e, err := seq.Next()
			select {
			case ch <- prefetchItem{example: e, err: err}:
			case <-ctx.Done():
				return
			}
			if err == io.EOF {
				return
			}
		}
	}()
	return SequenceFunc(func() (Example, error) {
		item, ok := <-ch
		if !ok {
			return nil, io.EOF
		}
		return item.example, item.err
	})
}
