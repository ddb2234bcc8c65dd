package appctx

// StartupRecorder observes the named steps of a refresh.
type StartupRecorder interface {
	Start(name string) StartupStep
}

// StartupStep is one timed refresh step. End is called exactly once with the
// step's outcome.
type StartupStep interface {
	End(err error)
}

type noopRecorder struct{}

func (noopRecorder) Start(string) StartupStep { return noopStep{} }

type noopStep struct{}

func (noopStep) End(error) {}
