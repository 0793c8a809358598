package pose

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Image is a channel-planar image tensor: one H x W matrix per channel.
// Values are float64 throughout; MaxValue records the nominal full-scale
// value of the source data (e.g. 255 for 8-bit video) so that resampling
// operations can preserve the caller's value range.
type Image struct {
	Planes   []*mat.Dense
	MaxValue float64
}

// NewImage allocates a zeroed image with the given dimensions.
func NewImage(h, w, channels int) *Image {
	if h <= 0 || w <= 0 || channels <= 0 {
		panic(fmt.Sprintf("pose: invalid image dims %dx%dx%d", h, w, channels))
	}
	planes := make([]*mat.Dense, channels)
	for c := range planes {
		planes[c] = mat.NewDense(h, w, nil)
	}
	return &Image{Planes: planes, MaxValue: 1}
}

// Rows returns the image height.
func (im *Image) Rows() int {
	r, _ := im.Planes[0].Dims()
	return r
}

// Cols returns the image width.
func (im *Image) Cols() int {
	_, c := im.Planes[0].Dims()
	return c
}

// Channels returns the number of channel planes.
func (im *Image) Channels() int { return len(im.Planes) }

// At returns the value at integer pixel (y, x) in channel ch.
func (im *Image) At(y, x, ch int) float64 { return im.Planes[ch].At(y, x) }

// Set writes the value at integer pixel (y, x) in channel ch.
func (im *Image) Set(y, x, ch int, v float64) { im.Planes[ch].Set(y, x, v) }

// Clone returns a deep copy.
func (im *Image) Clone() *Image {
	out := &Image{Planes: make([]*mat.Dense, len(im.Planes)), MaxValue: im.MaxValue}
	for c, p := range im.Planes {
		out.Planes[c] = mat.DenseCopyOf(p)
	}
	return out
}

// SampleBilinear returns the bilinearly interpolated value at continuous
// pixel-centre coordinates (y, x) in channel ch. Coordinates outside the
// image are clamped to the border, matching edge-padded resampling.
func (im *Image) SampleBilinear(y, x float64, ch int) float64 {
	h, w := im.Planes[ch].Dims()
	return bilinear(im.Planes[ch], h, w, y, x)
}

func bilinear(m *mat.Dense, h, w int, y, x float64) float64 {
	x0 := int(x)
	y0 := int(y)
	if x < 0 {
		x0 = -1
	}
	if y < 0 {
		y0 = -1
	}
	fx := x - float64(x0)
	fy := y - float64(y0)

	clampAt := func(yy, xx int) float64 {
		if yy < 0 {
			yy = 0
		} else if yy >= h {
			yy = h - 1
		}
		if xx < 0 {
			xx = 0
		} else if xx >= w {
			xx = w - 1
		}
		return m.At(yy, xx)
	}

	v00 := clampAt(y0, x0)
	v01 := clampAt(y0, x0+1)
	v10 := clampAt(y0+1, x0)
	v11 := clampAt(y0+1, x0+1)

	top := v00*(1-fx) + v01*fx
	bot := v10*(1-fx) + v11*fx
	return top*(1-fy) + bot*fy
}

// Grayscale reduces the image to one channel using ITU-R BT.601 luma
// weights for 3-channel input; single-channel images are returned as-is.
func (im *Image) Grayscale() *Image {
	if len(im.Planes) == 1 {
		return im
	}
	h, w := im.Planes[0].Dims()
	out := NewImage(h, w, 1)
	out.MaxValue = im.MaxValue
	if len(im.Planes) == 3 {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				v := 0.299*im.Planes[0].At(y, x) + 0.587*im.Planes[1].At(y, x) + 0.114*im.Planes[2].At(y, x)
				out.Planes[0].Set(y, x, v)
			}
		}
		return out
	}
	// Uncommon channel counts reduce by mean.
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum float64
			for _, p := range im.Planes {
				sum += p.At(y, x)
			}
			out.Planes[0].Set(y, x, sum/float64(len(im.Planes)))
		}
	}
	return out
}

// RGB expands a single-channel image to three identical planes; 3-channel
// images are returned as-is.
func (im *Image) RGB() *Image {
	if len(im.Planes) == 3 {
		return im
	}
	gray := im
	if len(im.Planes) != 1 {
		gray = im.Grayscale()
	}
	out := &Image{
		Planes:   []*mat.Dense{gray.Planes[0], mat.DenseCopyOf(gray.Planes[0]), mat.DenseCopyOf(gray.Planes[0])},
		MaxValue: im.MaxValue,
	}
	return out
}

// ScaleValues multiplies every pixel by f and adjusts MaxValue to match.
func (im *Image) ScaleValues(f float64) *Image {
	out := im.Clone()
	for _, p := range out.Planes {
		p.Scale(f, p)
	}
	out.MaxValue = im.MaxValue * f
	return out
}

// Resize bilinearly resamples the image by the given scale factor per axis.
// A scale of 1 returns the receiver unchanged.
func (im *Image) Resize(scale float64) *Image {
	if scale == 1 {
		return im
	}
	if scale <= 0 {
		panic(fmt.Sprintf("pose: invalid resize scale %v", scale))
	}
	h, w := im.Planes[0].Dims()
	oh := int(float64(h)*scale + 0.5)
	ow := int(float64(w)*scale + 0.5)
	if oh < 1 {
		oh = 1
	}
	if ow < 1 {
		ow = 1
	}
	out := NewImage(oh, ow, len(im.Planes))
	out.MaxValue = im.MaxValue
	for c, p := range im.Planes {
		for y := 0; y < oh; y++ {
			sy := float64(y) / scale
			for x := 0; x < ow; x++ {
				sx := float64(x) / scale
				out.Planes[c].Set(y, x, bilinear(p, h, w, sy, sx))
			}
		}
	}
	return out
}
