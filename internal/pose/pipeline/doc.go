// Package pipeline provides the streaming inference pipeline: associative
// example records, lazy pull-based sequences, composable transform stages
// with declared key contracts, build-time composition validation, bounded
// prefetching, and fault-isolated iteration.
//
// This package is the composition layer: it imports the pose domain package
// but pose never imports pipeline. Predictors (internal/pose/predictor)
// assemble provider-specific pipelines from these stages.
package pipeline
