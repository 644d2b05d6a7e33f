package lifecycle

import "context"

// Stage orders shutdown hooks. Lower stages run first; hooks within a stage
// run concurrently.
type Stage int

const (
	// StageIntake stops accepting new work: bot polling, scheduler, HTTP.
	StageIntake Stage = iota
	// StageWorkers drains in-flight work such as a running poll cycle.
	StageWorkers
	// StageResources closes connections the earlier stages depended on.
	StageResources
)

// Hook describes a named shutdown hook.
type Hook struct {
	Name  string
	Stage Stage
	Fn    func(ctx context.Context) error
}
