package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels or NATS.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `toml:"type"`

	ChannelBufferSize int `toml:"channel_buffer_size"`

	NATSUrl           string `toml:"nats_url"`
	NATSToken         string `toml:"nats_token"`
	NATSMaxReconnects int    `toml:"nats_max_reconnects"`
	NATSReconnectWait int    `toml:"nats_reconnect_wait"` // seconds

	// NATSQueueGroup load-balances subscriptions across engine nodes.
	// Empty means every node receives every message.
	NATSQueueGroup string `toml:"nats_queue_group"`
}

// Topic names for the withdrawal pipeline.
const (
	// TopicWithdrawalsPending carries a JSON array of WithdrawalRequest to evaluate.
	TopicWithdrawalsPending = "harrier.withdrawals.pending"

	// TopicEvaluationStarted announces the withdrawal currently being checked.
	TopicEvaluationStarted = "harrier.evaluation.started"

	// TopicDecision carries every produced or replayed decision.
	TopicDecision = "harrier.decision"
)

// EvaluationEvent is the payload of TopicEvaluationStarted and TopicDecision.
type EvaluationEvent struct {
	WithdrawalID string        `json:"withdrawalId"`
	ClientID     string        `json:"clientId"`
	Decision     DecisionValue `json:"decision,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	FromCache    bool          `json:"fromCache,omitempty"`
	Timestamp    int64         `json:"timestamp"`
}
