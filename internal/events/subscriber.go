package events

// Subscriber hands out raw payloads from a subject. The intake consumer is
// the only reader; it gets the kravgrunnlag feed byte-for-byte and does its
// own parsing.
type Subscriber interface {
	// Subscribe delivers raw payloads on the returned channel. Call the
	// returned cancel function to unsubscribe and close the channel.
	Subscribe(topic string) (<-chan []byte, func(), error)
	Close() error
}
