package deps

import (
	"twop/internal/config"
)

// CheckTools evaluates every external tool the config names, in pipeline
// order.
func CheckTools(cfg *config.Config) []Status {
	return CheckBinaries([]Requirement{
		{Name: "registration", Command: cfg.Tools.Registration, Description: "motion correction"},
		{Name: "separation", Command: cfg.Tools.Separation, Description: "signal extraction"},
		{Name: "inference", Command: cfg.Tools.Inference, Description: "spike inference"},
		{Name: "nwb-export", Command: cfg.Tools.NWBExport, Description: "NWB export"},
	})
}
