package ports

import "context"

type EventBus interface {
	Publish(topic string, payload []byte)
	Subscribe() (ch <-chan Event, cancel func())
}

type Event struct {
	Topic   string
	Payload []byte
}

// Reachability answers "can we talk to the server right now". Any probe
// error means offline.
type Reachability interface {
	Online(ctx context.Context) bool
}
