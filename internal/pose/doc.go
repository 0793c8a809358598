// Package pose provides the core domain model for animal pose estimation:
// skeletons, peaks, instances, labeled frames, geometric primitives for
// centroid cropping, confidence-map peak decoding, part-affinity-field
// instance grouping, and cross-frame identity tracking.
//
// The package is dependency-light by design: the pipeline and predictor
// packages compose these primitives into streaming inference flows, and
// storage adapters live outside the domain layer (internal/posedb).
package pose
