// Package nwbexport mediates access to the nwb-export CLI used when packaging
// a processed recording as a Neurodata Without Borders file.
//
// It exposes a Client interface and a CLI implementation driven by a JSON
// manifest that points at staged .npy datasets. Tests can swap in fakes to
// avoid executing the real packager while still exercising stage behaviour.
package nwbexport
