// Package predictor assembles provider-specific inference pipelines for the
// supported model-head combinations (single-instance, topdown
// centroid+centered-instance, bottom-up multi-instance), loads trained-model
// directories, converts raw per-instance predictions into labeled frames,
// and drives the optional identity tracker.
package predictor
