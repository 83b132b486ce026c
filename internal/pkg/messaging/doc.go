// Package messaging provides a broker-agnostic API for publishing and
// consuming messages.
//
// Business code depends on the Publisher and Consumer interfaces only; the
// backend (NATS, NSQ, Kafka, Google Pub/Sub, AMQP, Redis, MQTT or the
// in-process queue) is picked at startup with NewFromDriver. Every backend
// implements fmt.Stringer with a description of its connection that never
// contains credentials.
//
// Consumers started with WithAutoAck(true) ack a message when the handler
// returns nil and nack it (where the broker supports it) otherwise.
package messaging
