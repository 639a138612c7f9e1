// Package label holds the canonical label vocabulary the daemon reads and
// writes on ticket items, and the pure lookups that map a stage or a
// status to the labels that govern it.
package label

// Stage is one named unit of work the daemon can dispatch.
type Stage string

const (
	StageResearch  Stage = "research"
	StagePlan      Stage = "plan"
	StagePrepare   Stage = "prepare"
	StageImplement Stage = "implement"
	StageValidate  Stage = "validate"
	StageEdit      Stage = "edit"
)

// Running labels. At most one may be present on an item at any time.
const (
	Preparing    = "preparing"
	Researching  = "researching"
	Planning     = "planning"
	Implementing = "implementing"
	Reviewing    = "reviewing"
	Editing      = "editing"
)

// Ready labels. Set when a stage has produced output awaiting advancement.
const (
	ResearchReady = "research_ready"
	PlanReady     = "plan_ready"
)

// Control labels. User-driven signals, never written by the daemon except
// to remove them once handled.
const (
	Yolo  = "yolo"
	Reset = "reset"
)

// Failure labels.
const (
	YoloFailed           = "yolo_failed"
	ImplementationFailed = "implementation_failed"
	ResearchFailed       = "research_failed"
)

// CleanedUp marks an item the daemon has released resources for.
const CleanedUp = "cleaned_up"

// RunningLabels is the full set of labels that indicate a workflow in
// progress, keyed by stage.
var RunningLabels = map[Stage]string{
	StagePrepare:   Preparing,
	StageResearch:  Researching,
	StagePlan:      Planning,
	StageImplement: Implementing,
	StageValidate:  Reviewing,
	StageEdit:      Editing,
}

// ReadyLabels maps a stage to the label set when it finishes successfully.
// Only Research and Plan have a ready label; Prepare, Implement,
// Validate and Edit have none — their completion is observed through
// other means (a merged PR, the comment cursor, a fresh review).
var ReadyLabels = map[Stage]string{
	StageResearch: ResearchReady,
	StagePlan:     PlanReady,
}

// FailureLabels maps a stage to the label applied on workflow failure.
// Only Research and Implement have a dedicated failure label in the
// canonical set; Plan and the others fail silently from the label model's
// point of view (the running label still comes off either way).
var FailureLabels = map[Stage]string{
	StageResearch:  ResearchFailed,
	StageImplement: ImplementationFailed,
}

// AllRunning is the set of every running label, used to detect
// coexistence violations and to sweep during Reset.
var AllRunning = []string{Preparing, Researching, Planning, Implementing, Reviewing, Editing}

// AllKilnAuthored is every kiln-owned label: running, ready, control and
// failure labels plus the cleaned_up marker. ResetController strips all of them.
var AllKilnAuthored = func() []string {
	all := append([]string{}, AllRunning...)
	all = append(all, ResearchReady, PlanReady, Yolo, Reset, YoloFailed, ImplementationFailed, ResearchFailed, CleanedUp)
	return all
}()

// RunningLabel returns the running label for a stage, and whether one exists.
func RunningLabel(stage Stage) (string, bool) {
	l, ok := RunningLabels[stage]
	return l, ok
}

// ReadyLabel returns the ready label for a stage, and whether one exists.
func ReadyLabel(stage Stage) (string, bool) {
	l, ok := ReadyLabels[stage]
	return l, ok
}

// FailureLabel returns the failure label for a stage, and whether one exists.
func FailureLabel(stage Stage) (string, bool) {
	l, ok := FailureLabels[stage]
	return l, ok
}

// IsRunning reports whether label is one of the running labels.
func IsRunning(lbl string) bool {
	for _, r := range AllRunning {
		if r == lbl {
			return true
		}
	}
	return false
}

// RunningAmong returns the subset of labels that are running labels, in
// the fixed order of AllRunning, so callers see a deterministic result
// even if the ticket system returns labels in arbitrary order.
func RunningAmong(labels []string) []string {
	present := make(map[string]bool, len(labels))
	for _, l := range labels {
		present[l] = true
	}
	var found []string
	for _, r := range AllRunning {
		if present[r] {
			found = append(found, r)
		}
	}
	return found
}

// StageForRunningLabel returns the stage that owns a running label.
func StageForRunningLabel(lbl string) (Stage, bool) {
	for stage, l := range RunningLabels {
		if l == lbl {
			return stage, true
		}
	}
	return "", false
}

// Has reports whether labels contains name.
func Has(labels []string, name string) bool {
	for _, l := range labels {
		if l == name {
			return true
		}
	}
	return false
}
