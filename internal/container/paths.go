package container

import (
	"fmt"
	"strings"
)

// Ext is the container file extension.
const Ext = ".twop"

// RootGroup addresses recording-level attributes.
const RootGroup = "/"

// Group names. The first path element of a dataset names its owning group.
const (
	GroupAcquisition = "acquisition"
	GroupSessions    = "sessions"
	GroupMotion      = "motion"
	GroupROIs        = "rois"
	GroupSignals     = "signals"
	GroupDeltaF      = "deltaf"
	GroupSpikes      = "spikes"
	GroupQC          = "qc"
)

// Canonical dataset paths.
const (
	DatasetImaging        = "acquisition/imaging"
	DatasetTimestamps     = "acquisition/timestamps"
	DatasetTrials         = "sessions/trials"
	DatasetMotionImaging  = "motion/imaging"
	DatasetDisplacements  = "motion/displacements"
	DatasetROIMasks       = "rois/masks"
	DatasetTraces         = "signals/traces"
	DatasetDeltaF         = "deltaf/traces"
	DatasetSpikes         = "spikes/events"
	DatasetNeuropil       = "qc/neuropil"
	DatasetMeanProjection = "qc/mean_projection"
)

// Recording-level attribute keys, attached to RootGroup.
const (
	AttrRecordingID = "recording.uuid"
	AttrSource      = "recording.source"
	AttrCreatedAt   = "recording.created_at"
	AttrFrameRate   = "frame.rate_hz"
)

// Motion attribute keys, attached to the motion group. Names follow the
// conventions of the upstream registration tooling.
const (
	AttrStrategy        = "STRATEGY"
	AttrMaxDisplacement = "MAX_DISPLACEMENT"
	AttrProcessingTime  = "PROCESSING_TIME"
)

// Stage provenance attribute keys, attached to each stage's group.
const (
	AttrTool      = "tool"
	AttrRunID     = "run_id"
	AttrWrittenAt = "written_at"
)

// Session attribute keys. Labels and source sit on the trials dataset;
// stitch sources is a root attribute of stitched containers.
const (
	AttrTrialLabels   = "labels"
	AttrTrialSource   = "source"
	AttrStitchSources = "stitch.sources"
)

// AttrROINames is an optional attribute on rois/masks carrying one name per
// mask, written by whatever tool imported the ROIs.
const AttrROINames = "names"

// AttrTrialCount on signals/traces records how many trials were extracted
// and concatenated.
const AttrTrialCount = "trial_count"

// DeltaF attribute keys, attached to the deltaf group.
const (
	AttrMethod     = "method"
	AttrPercentile = "percentile"
	AttrWindow     = "window"
	AttrWindowMode = "window_mode"
)

// Trace source names accepted by stages that read either trace matrix.
const (
	SourceDeltaF  = "deltaf"
	SourceSignals = "signals"
)

// TraceSource maps a user-facing trace source name to its dataset path.
func TraceSource(name string) (string, error) {
	switch name {
	case SourceDeltaF:
		return DatasetDeltaF, nil
	case SourceSignals:
		return DatasetTraces, nil
	default:
		return "", fmt.Errorf("unknown trace source %q (want %s or %s)", name, SourceDeltaF, SourceSignals)
	}
}

// GroupOf returns the first element of a dataset path.
func GroupOf(path string) string {
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}
