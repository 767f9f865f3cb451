package events

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// headerCarrier adapts amqp.Table to the OpenTelemetry TextMapCarrier so B3
// headers ride in message headers.
type headerCarrier amqp.Table

func (c headerCarrier) Get(key string) string {
	if v, ok := c[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	c[key] = value
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
