package pose

import (
	"fmt"
	"math"
)

// BBox is an axis-aligned bounding box in absolute image pixel-centre
// coordinates. Width and height are inclusive of both endpoints:
// width = X2-X1+1, height = Y2-Y1+1, so a box from pixel 0 to pixel 2
// covers three pixels.
type BBox struct {
	Y1 float64
	X1 float64
	Y2 float64
	X2 float64
}

// Width returns the inclusive box width in pixels.
func (b BBox) Width() float64 { return b.X2 - b.X1 + 1 }

// Height returns the inclusive box height in pixels.
func (b BBox) Height() float64 { return b.Y2 - b.Y1 + 1 }

// NormalizeBBoxes maps absolute pixel-centre boxes into the [0, 1] range
// using divisor (dimension - 1) per axis, so that pixel 0 maps to 0.0 and
// the last pixel maps to 1.0 exactly. Inverse of UnnormalizeBBoxes.
func NormalizeBBoxes(boxes []BBox, imageHeight, imageWidth int) []BBox {
	hy := float64(imageHeight - 1)
	wx := float64(imageWidth - 1)
	out := make([]BBox, len(boxes))
	for i, b := range boxes {
		out[i] = BBox{
			Y1: b.Y1 / hy,
			X1: b.X1 / wx,
			Y2: b.Y2 / hy,
			X2: b.X2 / wx,
		}
	}
	return out
}

// UnnormalizeBBoxes maps [0, 1] boxes back to absolute pixel-centre
// coordinates. Exact inverse of NormalizeBBoxes within float tolerance.
func UnnormalizeBBoxes(boxes []BBox, imageHeight, imageWidth int) []BBox {
	hy := float64(imageHeight - 1)
	wx := float64(imageWidth - 1)
	out := make([]BBox, len(boxes))
	for i, b := range boxes {
		out[i] = BBox{
			Y1: b.Y1 * hy,
			X1: b.X1 * wx,
			Y2: b.Y2 * hy,
			X2: b.X2 * wx,
		}
	}
	return out
}

// MakeCenteredBBoxes builds one boxHeight x boxWidth box centred on each
// centroid. For odd sizes the centroid lands on a pixel centre; for even
// sizes a half-integer centroid (e.g. x=1.5, width=2) yields a box spanning
// whole pixel indices ([1, 2]). This half-pixel convention determines the
// sub-pixel alignment between crops and full-image coordinates and must not
// be altered.
func MakeCenteredBBoxes(centroids []Point, boxHeight, boxWidth int) []BBox {
	dy := float64(boxHeight-1) / 2
	dx := float64(boxWidth-1) / 2
	out := make([]BBox, len(centroids))
	for i, c := range centroids {
		out[i] = BBox{
			Y1: c.Y - dy,
			X1: c.X - dx,
			Y2: c.Y + dy,
			X2: c.X + dx,
		}
	}
	return out
}

// CropBBoxes extracts one crop per box by bilinear resampling over the box
// span. The crop size is inferred from the first box; all boxes in a batch
// must share that size. Mixed-size batches are a contract violation and
// return an error rather than being silently handled. Output values stay in
// the input image's value range.
func CropBBoxes(img *Image, boxes []BBox) ([]*Image, error) {
	if len(boxes) == 0 {
		return nil, nil
	}
	ch := boxes[0].Height()
	cw := boxes[0].Width()
	cropH := int(math.Round(ch))
	cropW := int(math.Round(cw))
	if cropH < 1 || cropW < 1 {
		return nil, fmt.Errorf("crop bboxes: non-positive crop size %dx%d", cropH, cropW)
	}

	crops := make([]*Image, len(boxes))
	for i, b := range boxes {
		if math.Round(b.Height()) != float64(cropH) || math.Round(b.Width()) != float64(cropW) {
			return nil, fmt.Errorf("crop bboxes: box %d is %.0fx%.0f, batch crop size is %dx%d",
				i, b.Height(), b.Width(), cropH, cropW)
		}
		crop := NewImage(cropH, cropW, img.Channels())
		crop.MaxValue = img.MaxValue
		for c := 0; c < img.Channels(); c++ {
			for y := 0; y < cropH; y++ {
				sy := b.Y1 + float64(y)
				for x := 0; x < cropW; x++ {
					sx := b.X1 + float64(x)
					crop.Planes[c].Set(y, x, img.SampleBilinear(sy, sx, c))
				}
			}
		}
		crops[i] = crop
	}
	return crops, nil
}

// FindInstanceCropSize computes the minimal square crop size that covers
// the bounding extent of the largest instance across a whole label set,
// plus padding, rounded up to the nearest multiple of stride. minCropSize,
// when positive, sets a floor on the result. Intended as a one-time
// precomputation outside the lazy pipeline.
func FindInstanceCropSize(instances []*Instance, padding, stride, minCropSize int) (int, error) {
	if stride <= 0 {
		stride = 1
	}
	maxExtent := 0.0
	for _, inst := range instances {
		b, ok := inst.BBox()
		if !ok {
			continue
		}
		maxExtent = math.Max(maxExtent, math.Max(b.Height(), b.Width()))
	}
	if maxExtent == 0 && minCropSize <= 0 {
		return 0, fmt.Errorf("find instance crop size: no visible instances and no minimum configured")
	}
	size := int(math.Ceil(maxExtent)) + padding
	if size < minCropSize {
		size = minCropSize
	}
	if rem := size % stride; rem != 0 {
		size += stride - rem
	}
	if size < stride {
		size = stride
	}
	return size, nil
}
