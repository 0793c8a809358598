package pose

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// PeakRefinement selects the sub-pixel refinement applied to decoded peaks.
type PeakRefinement string

const (
	// RefineNone keeps integer grid coordinates.
	RefineNone PeakRefinement = ""
	// RefineIntegral adjusts each peak by the weighted centroid of the
	// confidence values in a small window around the grid maximum.
	RefineIntegral PeakRefinement = "integral"
)

// PeakFinderConfig controls confidence-map peak decoding.
type PeakFinderConfig struct {
	// Threshold is the minimum confidence value for a detection.
	Threshold float64
	// OutputStride is the downsampling factor between the input image and
	// the confidence map; decoded coordinates are multiplied by it to map
	// back to full-resolution space.
	OutputStride int
	// Refinement selects sub-pixel refinement. Refinement happens in map
	// space, before stride rescaling.
	Refinement PeakRefinement
	// IntegralPatchSize is the half-width of the refinement window.
	// Zero means 1 (a 3x3 window).
	IntegralPatchSize int
}

// DefaultPeakFinderConfig returns production-default peak decoding
// parameters.
func DefaultPeakFinderConfig() PeakFinderConfig {
	return PeakFinderConfig{
		Threshold:         0.2,
		OutputStride:      1,
		Refinement:        RefineIntegral,
		IntegralPatchSize: 1,
	}
}

func (cfg PeakFinderConfig) stride() float64 {
	if cfg.OutputStride <= 0 {
		return 1
	}
	return float64(cfg.OutputStride)
}

// FindLocalPeaks decodes a stack of per-channel confidence maps into sparse
// peaks via non-maximum local-maxima detection: a pixel is a peak if it is
// the strict maximum of its 8-neighbourhood (ties to earlier neighbours
// lose, keeping results deterministic) and exceeds the threshold.
//
// maps holds one matrix per skeleton node channel. Returned peaks carry
// full-resolution coordinates (stride applied) and Sample 0; callers
// batching multiple samples re-tag Sample themselves. Zero detections yield
// an empty slice, not an error.
func FindLocalPeaks(maps []*mat.Dense, cfg PeakFinderConfig) []Peak {
	var peaks []Peak
	stride := cfg.stride()
	for ch, m := range maps {
		h, w := m.Dims()
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				v := m.At(y, x)
				if v <= cfg.Threshold || !isLocalMax(m, h, w, y, x, v) {
					continue
				}
				px, py := refinePeak(m, h, w, x, y, cfg)
				peaks = append(peaks, Peak{
					Sample:  0,
					Channel: ch,
					X:       px * stride,
					Y:       py * stride,
					Score:   v,
				})
			}
		}
	}
	return peaks
}

// isLocalMax reports whether (y, x) holds the maximum of its immediate
// neighbourhood. Equal-valued neighbours at earlier scan positions win, so
// plateaus produce exactly one peak.
func isLocalMax(m *mat.Dense, h, w, y, x int, v float64) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dy == 0 && dx == 0 {
				continue
			}
			ny, nx := y+dy, x+dx
			if ny < 0 || ny >= h || nx < 0 || nx >= w {
				continue
			}
			nv := m.At(ny, nx)
			if nv > v {
				return false
			}
			if nv == v && (ny < y || (ny == y && nx < x)) {
				return false
			}
		}
	}
	return true
}

// refinePeak applies the configured sub-pixel refinement in map space.
func refinePeak(m *mat.Dense, h, w, x, y int, cfg PeakFinderConfig) (px, py float64) {
	px, py = float64(x), float64(y)
	if cfg.Refinement != RefineIntegral {
		return px, py
	}
	r := cfg.IntegralPatchSize
	if r <= 0 {
		r = 1
	}
	var wsum, xsum, ysum float64
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			ny, nx := y+dy, x+dx
			if ny < 0 || ny >= h || nx < 0 || nx >= w {
				continue
			}
			v := m.At(ny, nx)
			if v < 0 {
				v = 0
			}
			wsum += v
			xsum += v * float64(nx)
			ysum += v * float64(ny)
		}
	}
	if wsum > 0 {
		px = xsum / wsum
		py = ysum / wsum
	}
	return px, py
}

// FindGlobalPeaks takes the single global maximum per channel instead of
// all local maxima, guaranteeing exactly one peak per node. Channels whose
// maximum falls below the threshold produce a missing peak (NaN location,
// NaN score), preserving positional indexing by node.
func FindGlobalPeaks(maps []*mat.Dense, cfg PeakFinderConfig) []Peak {
	peaks := make([]Peak, len(maps))
	stride := cfg.stride()
	for ch, m := range maps {
		h, w := m.Dims()
		best := math.Inf(-1)
		by, bx := 0, 0
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				if v := m.At(y, x); v > best {
					best = v
					by, bx = y, x
				}
			}
		}
		if best <= cfg.Threshold {
			peaks[ch] = Peak{Sample: 0, Channel: ch, X: math.NaN(), Y: math.NaN(), Score: math.NaN()}
			continue
		}
		px, py := refinePeak(m, h, w, bx, by, cfg)
		peaks[ch] = Peak{Sample: 0, Channel: ch, X: px * stride, Y: py * stride, Score: best}
	}
	return peaks
}

// GroundTruthPeaks converts an instance's annotated points into peaks with
// unit confidence, bypassing the network entirely. This backs the
// "inference from ground truth" diagnostic mode and pipeline tests that run
// without a trained model.
func GroundTruthPeaks(inst *Instance) []Peak {
	var peaks []Peak
	for ch, p := range inst.Points {
		if !p.Visible() {
			continue
		}
		peaks = append(peaks, Peak{Sample: 0, Channel: ch, X: p.X, Y: p.Y, Score: 1})
	}
	return peaks
}
