// Package container stores one recording's datasets and attributes in a single
// SQLite file. Datasets are n-dimensional arrays addressed by slash-separated
// paths whose first element names the owning group; attributes are JSON values
// attached to dataset or group paths.
//
// The container is append-only: a dataset path is written once, and acquisition
// data can never be replaced. Stages write through WriteStage, which wraps the
// whole stage output in one transaction so an interrupted stage leaves no
// partial group behind. Writable handles hold an exclusive advisory lock.
package container
