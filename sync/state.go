package sync

// Phase is the controller's position in the session lifecycle
type Phase int

const (
	// PhaseIdle holds no handle and no save listener
	PhaseIdle Phase = iota
	// PhaseResolving has a lookup in flight
	PhaseResolving
	// PhaseProvisioning has a create in flight after a lookup found nothing
	PhaseProvisioning
	// PhaseReady has a cached handle and an attached save listener
	PhaseReady
	// PhaseUnbound follows sign-out; the next activation starts from Idle
	PhaseUnbound
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseResolving:
		return "Resolving"
	case PhaseProvisioning:
		return "Provisioning"
	case PhaseReady:
		return "Ready"
	case PhaseUnbound:
		return "Unbound"
	default:
		return "Unknown"
	}
}

// State is a snapshot of the controller
type State struct {
	Phase   Phase
	Handle  Handle // empty unless Phase is PhaseReady
	Session uint64 // generation, incremented on every activation
	Active  bool
	Pending int // queued plus in-flight writes
}
