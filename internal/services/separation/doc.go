// Package separation mediates access to the fissa-sep CLI used during signal
// extraction.
//
// It exposes a Client interface and a CLI implementation that hands the
// separator a frame stack and ROI masks as .npy files and collects the
// decontaminated traces it writes back. Tests can swap in fakes to avoid
// executing the real separator while still exercising stage behaviour.
package separation
