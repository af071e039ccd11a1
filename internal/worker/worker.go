package worker

import (
	"context"

	"casecommerce/internal/broker"
	"casecommerce/internal/models"
	"casecommerce/internal/util"

	"go.uber.org/zap"
)

// MessageSource is the consuming side of the broker.
type MessageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// PurchaseClearer removes ordered products from a cart.
type PurchaseClearer interface {
	ClearPurchased(ctx context.Context, event *models.OrderPlacedEvent) error
}

// CheckoutWorker reacts to ORDER_PLACED events by clearing the purchased
// products from the buyer's cart.
type CheckoutWorker struct {
	consumer     MessageSource
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewCheckoutWorker creates a new checkout worker
func NewCheckoutWorker(consumer MessageSource, carts PurchaseClearer) *CheckoutWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderPlaced(carts.ClearPurchased)

	return &CheckoutWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start blocks until ctx is cancelled
func (w *CheckoutWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting checkout worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *CheckoutWorker) Stop() error {
	w.logger.Info("Stopping checkout worker")
	return w.consumer.Close()
}
