// Package inference mediates access to the oasis-infer CLI used during spike
// inference.
//
// It exposes a Client interface and a CLI implementation that hands the
// deconvolver a ΔF/F₀ trace matrix as .npy and collects the event matrix it
// writes back. Tests can swap in fakes to avoid executing the real
// deconvolver while still exercising stage behaviour.
package inference
