package executor

import "github.com/exampleorg/boardrunner/internal/label"

// apiStages is the set of stages bounded enough to run through a single
// API call rather than an open-ended CLI coding session.
var apiStages = map[label.Stage]bool{
	label.StageValidate: true,
	label.StageEdit:     true,
}

// PrefersAPI reports whether stage should run through APIExecutor by
// default. The routing is fixed per stage; STAGE_MODELS only supplies the
// model name carried in StageRequest.
func PrefersAPI(stage label.Stage) bool {
	return apiStages[stage]
}

// Select returns the Executor configured for stage, given both
// executors are available.
func Select(stage label.Stage, cli *CLIExecutor, api *APIExecutor) Executor {
	if api != nil && PrefersAPI(stage) {
		return api
	}
	return cli
}
