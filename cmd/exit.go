package cmd

import (
	"errors"

	"github.com/signalnine/sfmbench/internal/config"
	"github.com/signalnine/sfmbench/internal/evaluation"
	"github.com/signalnine/sfmbench/internal/pipeline"
)

// Process exit statuses other than a failing stage's own status.
const (
	ExitFailure = 1
	ExitConfig  = 2
	ExitParse   = 3
)

// ExitCode maps a command error to the process exit status. A failed stage
// propagates its exit status when it fits in one.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ce *config.Error
	if errors.As(err, &ce) {
		return ExitConfig
	}
	var se *pipeline.StageError
	if errors.As(err, &se) {
		if se.ExitCode > 0 && se.ExitCode < 256 {
			return se.ExitCode
		}
		return ExitFailure
	}
	var pe *evaluation.ParseError
	if errors.As(err, &pe) {
		return ExitParse
	}
	return ExitFailure
}
