// Package registration mediates access to the sima-mc CLI used during motion
// correction.
//
// It exposes a Client interface and a CLI implementation that exchanges frame
// stacks with the registrar as .npy files and observes structured progress
// updates on stdout. Tests can swap in fakes to avoid executing the real
// registrar while still exercising stage behaviour.
package registration
