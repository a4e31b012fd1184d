package model

// Resource status constants.
const (
	StatusPendingCreate   = "PENDING_CREATE"
	StatusActive          = "ACTIVE"
	StatusPendingUpdate   = "PENDING_UPDATE"
	StatusPendingDelete   = "PENDING_DELETE"
	StatusPendingScaleIn  = "PENDING_SCALE_IN"
	StatusPendingScaleOut = "PENDING_SCALE_OUT"
	StatusError           = "ERROR"
	StatusDead            = "DEAD"
	StatusDown            = "DOWN"
	StatusInactive        = "INACTIVE"
)

// Guard sets for status transitions. A transition only succeeds when the
// current status is in the guard set for that transition; the update is a
// single compare-and-set statement so concurrent callers cannot both win.
var (
	// CreateStates are the statuses from which a create post-step may
	// resolve the final status. DEAD is included so a respawned instance
	// can come back through the create path.
	CreateStates = []string{StatusPendingCreate, StatusDead}

	// ActiveUpdateStates guard the update pre-step. Observing
	// PENDING_UPDATE means another update is in flight.
	ActiveUpdateStates = []string{StatusActive, StatusPendingUpdate}

	// DeletableStates guard the delete pre-step.
	DeletableStates = []string{
		StatusPendingCreate, StatusActive, StatusPendingUpdate,
		StatusError, StatusDead,
	}

	// ScalableStates guard the scale pre-step.
	ScalableStates = []string{StatusActive}

	// MarkDeadExclude lists statuses which a monitor-driven mark-dead
	// must not override.
	MarkDeadExclude = []string{
		StatusDown, StatusPendingCreate, StatusPendingUpdate,
		StatusPendingDelete, StatusInactive, StatusError,
	}

	// MarkErrorExclude lists statuses which mark-error must not override.
	MarkErrorExclude = []string{StatusDead}
)

// Event types recorded in the event log.
const (
	EventCreate  = "CREATE"
	EventUpdate  = "UPDATE"
	EventDelete  = "DELETE"
	EventMonitor = "MONITOR"
	EventScale   = "SCALE"
)

// Resource states used for template rows, which have no lifecycle status.
const (
	StateOnboarded = "ONBOARDED"
	StateNotAvail  = "N/A"
)

// Resource type names used in the event log.
const (
	ResTypeMEAD  = "mead"
	ResTypeMEA   = "mea"
	ResTypeMESD  = "mesd"
	ResTypeMES   = "mes"
	ResTypeMECAD = "mecad"
	ResTypeMECA  = "meca"
	ResTypeVIM   = "vim"
)

// Template sources.
const (
	TemplateSourceOnboarded = "onboarded"
	TemplateSourceInline    = "inline"
)

// Scale directions.
const (
	ScaleTypeIn  = "in"
	ScaleTypeOut = "out"
)
