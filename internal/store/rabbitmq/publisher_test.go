package rabbitmq

import (
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestQueueNames(t *testing.T) {
	if RetryQueue("chat_actions") != "chat_actions.retry" || DeadQueue("chat_actions") != "chat_actions.dlq" {
		t.Fatalf("unexpected queue names")
	}
}

func TestAttempts(t *testing.T) {
	cases := []struct {
		headers amqp.Table
		want    int
	}{
		{nil, 0},
		{amqp.Table{AttemptsHeader: int32(2)}, 2},
		{amqp.Table{AttemptsHeader: int64(5)}, 5},
		{amqp.Table{AttemptsHeader: "3"}, 0},
	}
	for _, tc := range cases {
		if got := Attempts(amqp.Delivery{Headers: tc.headers}); got != tc.want {
			t.Fatalf("Attempts(%v) = %d, want %d", tc.headers, got, tc.want)
		}
	}
}

func TestFormatTTL(t *testing.T) {
	if got := formatTTL(1500 * time.Millisecond); got != "1500" {
		t.Fatalf("unexpected ttl %q", got)
	}
	if got := formatTTL(0); got != "1" {
		t.Fatalf("zero delay should clamp to 1ms, got %q", got)
	}
}
