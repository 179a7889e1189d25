package payrun

// LiveRunLocks reports how many runs have a live lock entry.
func LiveRunLocks(o *Orchestrator) int {
	return o.runLocks.size()
}
