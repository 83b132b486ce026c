package event

// TestQueueDestination is the queue the producer publishes greetings to.
const TestQueueDestination string = "testQueue"

// TestQueueConsumerLogger names the consumer group (NSQ channel, NATS queue group,
// Kafka group, Pub/Sub subscription, MQTT shared group) that logs testQueue messages.
const TestQueueConsumerLogger string = "testQueue_logger"

// GreetingBody is the payload sent on every timer tick.
const GreetingBody string = "Ohai!"

// Message headers. Only the body is part of the contract between producer and consumer.
const (
	HeaderCorrelationID string = "cID"
	HeaderMessageID     string = "msg_id"
	HeaderContentType   string = "content_type"
)

// ContentTypeText is the content type of GreetingBody.
const ContentTypeText string = "text/plain; charset=utf-8"
