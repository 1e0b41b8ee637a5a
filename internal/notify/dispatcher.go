package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultDeliveryTimeout bounds a single background delivery.
	DefaultDeliveryTimeout = 15 * time.Second

	deliveryFailedMessageConstant    = "Notification delivery failed"
	deliveryCompletedMessageConstant = "Notification delivered"
	logFieldChannelConstant          = "channel"
)

// Dispatcher runs deliveries in the background. Failures are logged and otherwise ignored.
type Dispatcher struct {
	logger          *zap.Logger
	deliveryTimeout time.Duration
	waitGroup       sync.WaitGroup
}

// NewDispatcher constructs a Dispatcher. A non-positive timeout selects DefaultDeliveryTimeout.
func NewDispatcher(logger *zap.Logger, deliveryTimeout time.Duration) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deliveryTimeout <= 0 {
		deliveryTimeout = DefaultDeliveryTimeout
	}
	return &Dispatcher{logger: logger, deliveryTimeout: deliveryTimeout}
}

// Dispatch sends message through sender on its own goroutine with its own deadline, detached
// from any request context.
func (dispatcher *Dispatcher) Dispatch(channel Channel, sender Sender, message Message) {
	if sender == nil {
		return
	}
	dispatcher.waitGroup.Add(1)
	go func() {
		defer dispatcher.waitGroup.Done()
		deliveryContext, cancel := context.WithTimeout(context.Background(), dispatcher.deliveryTimeout)
		defer cancel()

		if sendError := sender.Send(deliveryContext, message); sendError != nil {
			dispatcher.logger.Warn(deliveryFailedMessageConstant, zap.String(logFieldChannelConstant, string(channel)), zap.Error(sendError))
			return
		}
		dispatcher.logger.Debug(deliveryCompletedMessageConstant, zap.String(logFieldChannelConstant, string(channel)))
	}()
}

// Wait blocks until every dispatched delivery has finished.
func (dispatcher *Dispatcher) Wait() {
	dispatcher.waitGroup.Wait()
}
