package txnset

// Status is the error-kind every exported operation returns. It satisfies
// the error interface so callers can return it directly, and is comparable
// with errors.Is against the named sentinels below.
//
// Grounded on original_source/status.hpp's consistent_set_errc_t, carried
// here with the same member set rather than the handful the distilled spec
// calls out by name. The teacher's own sentinel-error idiom
// (api.ErrorKeyMissing, api.ErrorInvalidCAS) is a plain errors.New() per
// kind; Status additionally needs to be checked by kind (e.g. a caller
// retrying a transaction only on StatusConsistency), so it is an integer
// type instead.
type Status int

// String implements fmt.Stringer.
func (s Status) String() string {
	if int(s) < 0 || int(s) >= len(statusNames) || statusNames[s] == "" {
		return "unknown"
	}
	return statusNames[s]
}

// Error implements the error interface. StatusSuccess.Error() is defined
// but should never be surfaced: every operation returns a nil error on
// success, never StatusSuccess itself.
func (s Status) Error() string { return "txnset: " + s.String() }

const (
	// StatusSuccess indicates the operation completed normally. Operations
	// never return this as an error value; it is nil instead.
	StatusSuccess Status = iota
	StatusUnknown

	// StatusConsistency means a transaction's stage() found that a watched
	// identifier changed generation or presence since it was watched.
	StatusConsistency
	StatusTransactionNotRecoverable
	StatusSequenceNumberOverflow

	StatusOutOfMemoryHeap
	StatusOutOfMemoryArena
	StatusOutOfMemoryDisk

	StatusInvalidArgument
	StatusOperationInProgress
	StatusOperationNotPermitted
	StatusOperationNotSupported
	// StatusOperationWouldBlock is part of the status set, but no operation
	// in this module returns it: Locked blocks on its mutex, and the sharded
	// wrapper retries TryLock until every lock it needs is held.
	StatusOperationWouldBlock
	StatusOperationCanceled

	StatusConnectionBroken
	StatusConnectionAborted
	StatusConnectionAlreadyInProgress
	StatusConnectionRefused
	StatusConnectionReset
)

var statusNames = [...]string{
	StatusSuccess:                     "success",
	StatusUnknown:                     "unknown",
	StatusConsistency:                 "consistency violation",
	StatusTransactionNotRecoverable:   "transaction not recoverable",
	StatusSequenceNumberOverflow:      "sequence number overflow",
	StatusOutOfMemoryHeap:             "out of memory (heap)",
	StatusOutOfMemoryArena:            "out of memory (arena)",
	StatusOutOfMemoryDisk:             "out of memory (disk)",
	StatusInvalidArgument:             "invalid argument",
	StatusOperationInProgress:         "operation in progress",
	StatusOperationNotPermitted:       "operation not permitted",
	StatusOperationNotSupported:       "operation not supported",
	StatusOperationWouldBlock:         "operation would block",
	StatusOperationCanceled:           "operation canceled",
	StatusConnectionBroken:            "connection broken",
	StatusConnectionAborted:           "connection aborted",
	StatusConnectionAlreadyInProgress: "connection already in progress",
	StatusConnectionRefused:           "connection refused",
	StatusConnectionReset:             "connection reset",
}
