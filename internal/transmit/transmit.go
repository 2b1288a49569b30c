package transmit

import (
	"context"
	"errors"
	"fmt"

	"github.com/gyaneshwarpardhi/sherox/internal/event"
)

// Transmitter delivers one emergency event to the outside world. A nil
// error means delivery was confirmed.
type Transmitter interface {
	// Name identifies the transmitter in config, logs and metrics.
	Name() string
	Send(ctx context.Context, ev event.EmergencyEvent) error
}

// sideChannel is implemented by transmitters whose success says nothing
// about the event reaching a person.
type sideChannel interface {
	SideChannel() bool
}

// Confirms reports whether a nil error from t proves delivery.
func Confirms(t Transmitter) bool {
	s, ok := t.(sideChannel)
	return !ok || !s.SideChannel()
}

// DeliveryError describes a send the remote side refused or never
// acknowledged.
type DeliveryError struct {
	Transmitter string
	StatusCode  int
	// Permanent marks failures that retrying the same request won't fix.
	Permanent bool
	Err       error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: delivery failed (status %d): %v", e.Transmitter, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: delivery failed: %v", e.Transmitter, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// IsPermanent reports whether err contains a permanent DeliveryError.
func IsPermanent(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Permanent
}
