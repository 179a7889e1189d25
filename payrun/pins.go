package payrun

import (
	"context"

	"github.com/warp/payroll-engine/generic"
)

// DuePins tells the deduction ledger which accounts have dues recorded on a
// run that is in review or approved. Such an account must not change until
// the run is paid or cancelled, or the payment could never commit.
type DuePins struct {
	runs Repository
}

func NewDuePins(runs Repository) *DuePins {
	return &DuePins{runs: runs}
}

// PinnedBy returns the id of the run holding the account's dues, or "".
func (p *DuePins) PinnedBy(ctx context.Context, id generic.AccountID) (string, error) {
	runs, err := p.runs.RunsWithStatus(ctx, pinnedStatuses...)
	if err != nil {
		return "", err
	}
	for _, run := range runs {
		lines, err := p.runs.Lines(ctx, run.ID)
		if err != nil {
			return "", err
		}
		for _, line := range lines {
			for _, due := range line.LedgerDues {
				if due.AccountID == id && !due.Amount.IsZero() {
					return run.ID, nil
				}
			}
		}
	}
	return "", nil
}
