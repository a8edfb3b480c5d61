package state

type TransferStatus string

const (
	TransferStatusAwaitingPayment TransferStatus = "AwaitingPayment"
	TransferStatusBridging        TransferStatus = "Bridging"
	TransferStatusCompleted       TransferStatus = "Completed"
	TransferStatusFailed          TransferStatus = "Failed"
)

// position in the forward-only lifecycle; Failed is terminal and ranks with
// Completed so that neither overrides the other
var statusRank = map[TransferStatus]int{
	TransferStatusAwaitingPayment: 0,
	TransferStatusBridging:        1,
	TransferStatusCompleted:       2,
	TransferStatusFailed:          2,
}

func (s TransferStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

func (s TransferStatus) IsTerminal() bool {
	return s == TransferStatusCompleted || s == TransferStatusFailed
}

// CanTransition reports whether a transfer in status from may move to status
// to. Transitions never go backwards, never repeat and never leave a
// terminal status.
func CanTransition(from, to TransferStatus) bool {
	if !from.Valid() || !to.Valid() || from.IsTerminal() {
		return false
	}
	return statusRank[to] > statusRank[from]
}

// mergeStatus folds a newly observed target into the one already staged in a
// batch. The empty status means nothing is staged.
func mergeStatus(staged, next TransferStatus) TransferStatus {
	if staged == "" {
		return next
	}
	if CanTransition(staged, next) {
		return next
	}
	return staged
}
