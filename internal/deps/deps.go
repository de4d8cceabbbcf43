// Package deps reports the availability of the external tools the pipeline
// shells out to. Stages fail on their own when a binary is missing; these
// checks exist so status can say so before any stage runs.
package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement names one external tool a stage depends on.
type Requirement struct {
	Name        string
	Command     string
	Description string
}

// Status reports the availability of one requirement.
type Status struct {
	Name        string
	Command     string
	Description string
	Configured  bool
	Available   bool
	Detail      string
}

// CheckBinaries resolves each requirement's command on PATH. Commands
// containing a path separator are checked directly.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		command := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     command,
			Description: strings.TrimSpace(req.Description),
			Configured:  command != "",
		}
		if !status.Configured {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if resolved, err := exec.LookPath(command); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", command)
		} else {
			status.Available = true
			status.Command = resolved
		}
		results = append(results, status)
	}
	return results
}
