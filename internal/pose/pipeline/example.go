package pipeline

import (
	"gonum.org/v1/gonum/mat"

	"github.com/wildtrace/posekit/internal/pose"
)

// Well-known example keys. Stages declare their key contracts in terms of
// these; providers and stages may add further ad-hoc keys, which fan-out
// stages replicate unchanged onto every derived record.
const (
	// KeyImage is the frame (or crop) image tensor (*pose.Image).
	KeyImage = "image"
	// KeyFullImage is the retained unscaled frame image after a Resizer
	// configured to keep it (*pose.Image).
	KeyFullImage = "full_image"
	// KeyVideoIndex and KeyFrameIndex identify the source frame (int).
	KeyVideoIndex = "video_ind"
	KeyFrameIndex = "frame_ind"
	// KeyScale is the cumulative scale factor applied to the image and
	// point coordinates (float64).
	KeyScale = "scale"
	// KeyInstances holds ground-truth instances ([]*pose.Instance).
	KeyInstances = "instances"
	// KeyCentroids holds per-frame instance centroids ([]pose.Point).
	KeyCentroids = "centroids"
	// KeyCentroid and KeyBBox appear on fanned-out per-instance records
	// (pose.Point, pose.BBox).
	KeyCentroid = "centroid"
	KeyBBox     = "bbox"
	// KeyInstance holds the source ground-truth instance on a fanned-out
	// record (*pose.Instance).
	KeyInstance = "instance"
	// Model output keys, named by head type.
	KeyConfmaps         = "predicted_confidence_maps"
	KeyCentroidConfmaps = "predicted_centroid_confidence_maps"
	KeyPAFs             = "predicted_part_affinity_fields"
	// Decoded prediction keys.
	KeyPeaks              = "predicted_peaks"
	KeyPredictedInstances = "predicted_instances"
)

// Example is one unit of data flowing through a pipeline: a whole frame or
// a single cropped instance, as an associative record from key to value.
// Stages add and remove keys; the pipeline validates at build time that
// every key a stage consumes was produced earlier.
type Example map[string]interface{}

// Clone returns a shallow copy. Values are shared; stages treat upstream
// values as read-only and replace rather than mutate.
func (e Example) Clone() Example {
	out := make(Example, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Has reports whether the key is present.
func (e Example) Has(key string) bool {
	_, ok := e[key]
	return ok
}

// Image returns the image value under key, or nil if absent or mistyped.
func (e Example) Image(key string) *pose.Image {
	v, _ := e[key].(*pose.Image)
	return v
}

// Int returns the int value under key.
func (e Example) Int(key string) int {
	v, _ := e[key].(int)
	return v
}

// Float returns the float64 value under key, defaulting to def when absent.
func (e Example) Float(key string, def float64) float64 {
	if v, ok := e[key].(float64); ok {
		return v
	}
	return def
}

// Maps returns the matrix stack under key ([]*mat.Dense).
func (e Example) Maps(key string) []*mat.Dense {
	v, _ := e[key].([]*mat.Dense)
	return v
}

// Peaks returns the peak slice under key.
func (e Example) Peaks(key string) []pose.Peak {
	v, _ := e[key].([]pose.Peak)
	return v
}

// Points returns the point slice under key.
func (e Example) Points(key string) []pose.Point {
	v, _ := e[key].([]pose.Point)
	return v
}

// Instances returns the instance slice under key.
func (e Example) Instances(key string) []*pose.Instance {
	v, _ := e[key].([]*pose.Instance)
	return v
}
