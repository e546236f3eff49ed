package events

// Topic constants for payment outcomes reported by the gateway webhook.
const (
	TopicPaymentCompleted = "payment.completed"
	TopicPaymentFailed    = "payment.failed"
	TopicPaymentPending   = "payment.pending"
	TopicPaymentUnknown   = "payment.unknown"
)

// DefaultTopics returns every topic the webhook can emit.
func DefaultTopics() []string {
	return []string{
		TopicPaymentCompleted,
		TopicPaymentFailed,
		TopicPaymentPending,
		TopicPaymentUnknown,
	}
}
