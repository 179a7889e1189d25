package payrun

// transitions is the complete table of allowed status changes.
var transitions = map[Status][]Status{
	StatusDraft:     {StatusProcessed, StatusCancelled},
	StatusProcessed: {StatusProcessed, StatusInReview, StatusCancelled},
	StatusInReview:  {StatusApproved, StatusCancelled},
	StatusApproved:  {StatusPaid},
	StatusPaid:      {},
	StatusCancelled: {},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s Status) bool {
	return len(transitions[s]) == 0
}

func checkTransition(run *PayRun, to Status) error {
	if run.Locked {
		return ErrRunLocked
	}
	if !CanTransition(run.Status, to) {
		return &TransitionError{RunID: run.ID, From: run.Status, To: to}
	}
	return nil
}

// pinnedStatuses are the statuses whose recorded ledger dues must still be
// current when the run is paid.
var pinnedStatuses = []Status{StatusInReview, StatusApproved}

func pinsDues(s Status) bool {
	for _, p := range pinnedStatuses {
		if p == s {
			return true
		}
	}
	return false
}
