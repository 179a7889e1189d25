package deduction

// LiveLocks reports how many accounts have a live lock entry.
func LiveLocks(l *Ledger) int {
	return l.locks.size()
}
