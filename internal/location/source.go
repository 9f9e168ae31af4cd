// Package location provides the location sources that feed the screen:
// NMEA receivers on a serial port or replay file, MQTT fix streams and a simulator.
package location

import (
	"context"
	"errors"
	"sync"

	"github.com/UnknownOlympus/lookout/internal/models"
)

// ErrSensorUnavailable is returned by Start when the receiver cannot be reached:
// the device is missing, access is denied or the broker refuses the connection.
var ErrSensorUnavailable = errors.New("location sensor unavailable")

// Callback receives every sample a source produces. It is called from the
// source's own goroutine and must not block.
type Callback func(sample models.LocationSample)

// Source starts location updates.
type Source interface {
	Start(ctx context.Context, callback Callback) (Subscription, error)
}

// Subscription is a running stream of location updates.
// Stop is idempotent; once it returns the callback is not invoked again.
type Subscription interface {
	Stop() error
}

// subscription runs one reader goroutine and stops it by cancelling its
// context and releasing whatever the goroutine is blocked on.
type subscription struct {
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	release func() error

	once sync.Once
	err  error
}

func newSubscription(parent context.Context, release func() error) *subscription {
	ctx, cancel := context.WithCancel(parent)

	return &subscription{ctx: ctx, cancel: cancel, done: make(chan struct{}), release: release}
}

// run starts fn in a goroutine; fn must return once s.ctx is done.
func (s *subscription) run(fn func(ctx context.Context)) {
	go func() {
		defer close(s.done)
		fn(s.ctx)
	}()
}

// deliver invokes callback unless the subscription is being stopped.
func (s *subscription) deliver(callback Callback, sample models.LocationSample) {
	if s.ctx.Err() != nil {
		return
	}
	callback(sample)
}

func (s *subscription) Stop() error {
	s.once.Do(func() {
		s.cancel()
		if s.release != nil {
			s.err = s.release()
		}
		<-s.done
	})

	return s.err
}
