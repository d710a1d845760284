// Package delivery defines the outbound announcement payload and the
// transports that publish it: HTTP webhook, MQTT, NATS and Redis pub/sub.
// Message-oriented transports can also listen on a side channel for the
// current event id, which is attached to every new message.
package delivery
