package recomp

import "errors"

// Sentinel errors for runtime and hydration operations.
var (
	// ErrDeserialization indicates a malformed or incomplete hydration
	// context. Recoverable by a full client-side composition pass for the
	// whole root.
	ErrDeserialization = errors.New("recomp: hydration context deserialization failed")

	// ErrTreeIncompatible indicates a server/client type mismatch at a
	// node. Recoverable at subtree granularity.
	ErrTreeIncompatible = errors.New("recomp: server and client trees are incompatible")

	// ErrSchedulingOverflow indicates a render scope re-invalidated itself
	// beyond the bounded retry ceiling within one flush. Fatal for that
	// scope; the rest of the tree continues.
	ErrSchedulingOverflow = errors.New("recomp: scope re-invalidated beyond scheduling ceiling")

	// ErrDuplicateMarker indicates two hydration markers share an id within
	// one context. A server-side contract violation: serialization fails
	// rather than emitting ambiguous markers.
	ErrDuplicateMarker = errors.New("recomp: duplicate hydration marker id")

	// ErrScopeFailed indicates a render function panicked or otherwise
	// failed during execution. Scoped to the failing scope.
	ErrScopeFailed = errors.New("recomp: render scope execution failed")

	// ErrRootClosed is returned by operations on a torn-down root.
	ErrRootClosed = errors.New("recomp: composition root is closed")

	// ErrInvalidProps indicates a component node carries prop values that
	// cannot survive a serialization round-trip.
	ErrInvalidProps = errors.New("recomp: props are not serializable")
)

// ErrorClass describes how far a failure propagates before the system
// recovers.
type ErrorClass int

const (
	// ClassRootRecoverable failures discard the whole hydration attempt and
	// fall back to a full client render.
	ClassRootRecoverable ErrorClass = iota
	// ClassSubtreeRecoverable failures discard one subtree from the
	// adoption plan; siblings stay adopted.
	ClassSubtreeRecoverable
	// ClassScopeFatal failures permanently fail one render scope; siblings
	// and ancestors continue.
	ClassScopeFatal
	// ClassContract failures are programming errors on the producing side
	// and fail the operation outright.
	ClassContract
	// ClassUnknown covers errors outside the runtime's taxonomy.
	ClassUnknown
)

// String returns the string representation of ErrorClass.
func (ec ErrorClass) String() string {
	switch ec {
	case ClassRootRecoverable:
		return "root-recoverable"
	case ClassSubtreeRecoverable:
		return "subtree-recoverable"
	case ClassScopeFatal:
		return "scope-fatal"
	case ClassContract:
		return "contract"
	default:
		return "unknown"
	}
}

// Classify maps an error to its recovery class.
func Classify(err error) ErrorClass {
	switch {
	case errors.Is(err, ErrDeserialization):
		return ClassRootRecoverable
	case errors.Is(err, ErrTreeIncompatible):
		return ClassSubtreeRecoverable
	case errors.Is(err, ErrSchedulingOverflow), errors.Is(err, ErrScopeFailed):
		return ClassScopeFatal
	case errors.Is(err, ErrDuplicateMarker), errors.Is(err, ErrInvalidProps):
		return ClassContract
	default:
		return ClassUnknown
	}
}

// IsDeserialization checks if err is a hydration deserialization failure.
func IsDeserialization(err error) bool {
	return errors.Is(err, ErrDeserialization)
}

// IsTreeIncompatible checks if err is a server/client tree mismatch.
func IsTreeIncompatible(err error) bool {
	return errors.Is(err, ErrTreeIncompatible)
}

// IsSchedulingOverflow checks if err is a scheduling overflow.
func IsSchedulingOverflow(err error) bool {
	return errors.Is(err, ErrSchedulingOverflow)
}
