package main

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

func waitPool(t *testing.T, ctx context.Context, deliveries <-chan amqp.Delivery) error {
	t.Helper()
	h := &eventHandler{hooks: fakeHooks{}, retry: &fakeRetry{}, maxAttempts: 3, baseDelay: time.Second}
	done := make(chan error, 1)
	go func() { done <- runPool(ctx, deliveries, 2, h) }()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("runPool did not return")
		return nil
	}
}

func TestRunPool_ReturnsWhenDeliveriesClose(t *testing.T) {
	deliveries := make(chan amqp.Delivery)
	close(deliveries)

	err := waitPool(t, context.Background(), deliveries)
	if !errors.Is(err, errDeliveriesClosed) {
		t.Fatalf("expected errDeliveriesClosed, got %v", err)
	}
}

func TestRunPool_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := waitPool(t, ctx, make(chan amqp.Delivery)); err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
}
