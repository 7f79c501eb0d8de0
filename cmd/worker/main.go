package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/kairos/internal/config"
	"github.com/suPer8Hu/kairos/internal/store/rabbitmq"
	"github.com/suPer8Hu/kairos/internal/webhook"
)

const maxConcurrency = 50

// errDeliveriesClosed means the broker dropped the channel; the process exits
// non-zero so its supervisor restarts it with a fresh connection.
var errDeliveriesClosed = errors.New("delivery channel closed")

func main() {
	if err := run(); err != nil {
		log.Printf("[worker] exiting: %v", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	if len(cfg.WebhookURLs) == 0 {
		log.Printf("[worker] no WEBHOOK_*_URL configured, events will be acked and dropped")
	}

	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		return fmt.Errorf("rabbit publisher: %w", err)
	}
	defer pub.Close()

	concurrency := min(cfg.WorkerConcurrency, maxConcurrency)
	conn, ch, deliveries, err := consume(cfg.RabbitURL, cfg.RabbitQueue, concurrency)
	if err != nil {
		return fmt.Errorf("consume %s: %w", cfg.RabbitQueue, err)
	}
	defer conn.Close()
	defer ch.Close()

	h := &eventHandler{
		hooks:       webhook.NewClient(cfg.WebhookURLs, cfg.WebhookToken),
		retry:       pub,
		maxAttempts: cfg.WorkerMaxAttempts,
		baseDelay:   cfg.WorkerRetryDelay,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("[worker] started queue=%s concurrency=%d max_attempts=%d retry_delay=%s",
		cfg.RabbitQueue, concurrency, h.maxAttempts, h.baseDelay)
	if err := runPool(ctx, deliveries, concurrency, h); err != nil {
		return err
	}
	log.Printf("[worker] stopped")
	return nil
}

// consume opens a dedicated channel, declares the queue topology and caps
// unacked deliveries at prefetch.
func consume(url, queue string, prefetch int) (*amqp.Connection, *amqp.Channel, <-chan amqp.Delivery, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, nil, err
	}
	fail := func(err error) (*amqp.Connection, *amqp.Channel, <-chan amqp.Delivery, error) {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, nil, err
	}
	if err := rabbitmq.DeclareTopology(ch, queue); err != nil {
		return fail(err)
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fail(err)
	}
	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fail(err)
	}
	return conn, ch, deliveries, nil
}

// runPool fans deliveries out to n workers until ctx is done or the broker
// closes deliveries, then drains the workers before returning.
func runPool(ctx context.Context, deliveries <-chan amqp.Delivery, n int, h *eventHandler) error {
	work := make(chan amqp.Delivery, n*2)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range work {
				settle(workerID, d, h.handle(ctx, workerID, d.Body, rabbitmq.Attempts(d)))
			}
		}(i)
	}

	defer func() {
		close(work)
		wg.Wait()
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errDeliveriesClosed
			}
			work <- d
		}
	}
}

func settle(workerID int, d amqp.Delivery, o outcome) {
	var err error
	switch o {
	case ack:
		err = d.Ack(false)
	case dead:
		err = d.Nack(false, false)
	}
	if err != nil {
		log.Printf("[worker] worker=%d settle tag=%d outcome=%d err=%v", workerID, d.DeliveryTag, o, err)
	}
}
