package offline

import "errors"

var (
	// ErrUnknownType is returned for entry types outside the closed set.
	ErrUnknownType = errors.New("unknown type")
	// ErrInvalidPayload is returned for payloads that cannot be decoded or sent.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrMissingUser is returned when a session or record has no user id.
	ErrMissingUser = errors.New("missing user id")
	// ErrConflict marks an entry whose remote copy changed after it was created.
	ErrConflict = errors.New("conflict: remote newer")
	// ErrInterrupted marks an entry recovered from a pass that never finished.
	ErrInterrupted = errors.New("interrupted")
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string   { return e.err.Error() }
func (e *permanentError) Unwrap() error   { return e.err }
func (e *permanentError) Permanent() bool { return true }

// Permanent marks err as one that will never succeed on retry.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether any error in err's chain declares itself
// permanent through a Permanent() bool method.
func IsPermanent(err error) bool {
	var p interface{ Permanent() bool }
	if errors.As(err, &p) {
		return p.Permanent()
	}
	return false
}
