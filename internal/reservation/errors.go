package reservation

import "github.com/cockroachdb/errors"

var (
	ErrSelectionFrozen = errors.New("selection is frozen while rooms are held")
	ErrAcquireInFlight = errors.New("hold request already in flight")
	ErrSubmitInFlight  = errors.New("booking submission already in flight")
	ErrEmptySelection  = errors.New("no rooms selected")
	ErrNotIdle         = errors.New("attempt is not idle")
	ErrNotHolding      = errors.New("no rooms are held")
	ErrRoomUnavailable = errors.New("room is not available")
	ErrInvalidRoom     = errors.New("invalid room id")
	ErrAttemptFinished = errors.New("booking attempt already finished")
	ErrClosed          = errors.New("controller closed")
)
