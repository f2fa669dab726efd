package domain

// adminTransitions maps each status to the targets an admin may request.
var adminTransitions = map[Status][]Status{
	StatusNew:        {StatusAssigned},
	StatusAssigned:   {StatusInProgress, StatusNew},
	StatusInProgress: {StatusSubmitted, StatusNeedsFixes},
	StatusSubmitted:  {StatusReviewed, StatusNeedsFixes, StatusInProgress},
	StatusNeedsFixes: {StatusSubmitted, StatusInProgress},
	StatusReviewed:   {StatusPublished, StatusNeedsFixes},
	StatusPublished:  {StatusArchived, StatusReviewed},
	StatusArchived:   {StatusPublished},
}

// creatorTransitions maps each status to the targets the current assignee may
// request. Non-assignee creators get no action surface at all.
var creatorTransitions = map[Status][]Status{
	StatusNew:        {},
	StatusAssigned:   {StatusInProgress},
	StatusInProgress: {StatusSubmitted},
	StatusSubmitted:  {StatusInProgress},
	StatusNeedsFixes: {StatusSubmitted, StatusInProgress},
	StatusReviewed:   {},
	StatusPublished:  {},
	StatusArchived:   {},
}

// AllowedTransitions returns the legal target states for a role acting on the
// given current state. The function is total and deterministic: every
// enumerated state yields a defined, possibly empty, result. An empty result
// means no action surface is presented.
func AllowedTransitions(role Role, from Status, isAssignee bool) []Status {
	from = NormalizeStatus(from)
	switch NormalizeRole(role) {
	case RoleAdmin:
		return slicesCopy(adminTransitions[from])
	case RoleCreator:
		if !isAssignee {
			return nil
		}
		return slicesCopy(creatorTransitions[from])
	default:
		return nil
	}
}

// CanTransition reports whether the requested transition is in the allowed set.
func CanTransition(role Role, from, to Status, isAssignee bool) bool {
	to = NormalizeStatus(to)
	for _, allowed := range AllowedTransitions(role, from, isAssignee) {
		if allowed == to {
			return true
		}
	}
	return false
}

// slicesCopy keeps the shared tables immutable from the caller's side.
func slicesCopy(in []Status) []Status {
	if len(in) == 0 {
		return nil
	}
	out := make([]Status, len(in))
	copy(out, in)
	return out
}
