// Package services defines the error taxonomy shared by every pipeline stage and
// the context annotations used to tag log lines with recording, stage, and run
// identifiers. Subpackages hold the exec-backed clients for the external science
// tools the pipeline delegates to.
package services
