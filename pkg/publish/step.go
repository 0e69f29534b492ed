package publish

import "fmt"

// Step identifies one stage of the publish pipeline.
type Step string

const (
	StepBuild  Step = "build"
	StepChdir  Step = "chdir"
	StepAdd    Step = "add"
	StepCommit Step = "commit"
	StepPush   Step = "push"
)

// Steps lists the pipeline order. It never changes.
var Steps = []Step{StepBuild, StepChdir, StepAdd, StepCommit, StepPush}

// StepError reports the first step that failed. Later steps were not run.
type StepError struct {
	Step Step
	// ExitCode is the child's status, 128+signal for a killed child, or 1.
	ExitCode int
	Err      error
}

func newStepError(step Step, err error) *StepError {
	return &StepError{Step: step, ExitCode: ExitCode(err), Err: err}
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s step failed (exit %d): %v", e.Step, e.ExitCode, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
