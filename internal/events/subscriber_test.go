package events

import (
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// startTestNATS starts an embedded NATS server and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

// The intake subject carries whatever bytes the settlement system's feed
// produces; the subscriber must hand them over untouched.
func TestNATSSubscriber_IntakeFeed(t *testing.T) {
	url := startTestNATS(t)

	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(TopicKravgrunnlagIntake)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer cancel()

	// The upstream feed publishes on a plain connection, no JSON envelope.
	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting feed: %v", err)
	}
	defer nc.Close()

	payload := `<?xml version="1.0"?><urn:detaljertKravgrunnlagMelding/>`
	if err := nc.Publish(TopicKravgrunnlagIntake, []byte(payload)); err != nil {
		t.Fatalf("publishing: %v", err)
	}
	nc.Flush()

	select {
	case msg := <-ch:
		if string(msg) != payload {
			t.Errorf("got %q, want %q", msg, payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for payload")
	}
}

func TestNATSSubscriber_Wildcard(t *testing.T) {
	url := startTestNATS(t)

	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe("sakd.>")
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer cancel()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting: %v", err)
	}
	defer nc.Close()

	for _, topic := range []string{TopicHendelseLagret, TopicBehandlingIverksatt, TopicBehandlingAvbrutt} {
		if err := nc.Publish(topic, []byte(`{}`)); err != nil {
			t.Fatalf("publishing to %s: %v", topic, err)
		}
	}
	nc.Flush()

	for i := 0; i < 3; i++ {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
}

func TestNATSSubscriber_CancelLukkerKanalen(t *testing.T) {
	url := startTestNATS(t)

	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe("sakd.>")
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}

	// Cancel is idempotent; a second call must not panic or re-close.
	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after cancel")
	}
}

func TestNATSSubscriber_CancelUnderTrafikk(t *testing.T) {
	url := startTestNATS(t)

	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe("sakd.>")
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting: %v", err)
	}
	defer nc.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			_ = nc.Publish(TopicHendelseLagret, []byte(`{}`))
		}
		nc.Flush()
	}()

	// Unsubscribe while messages are in flight; must not panic or deadlock.
	cancel()
	<-done

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after cancel")
	}
}

func TestNATSSubscriber_EkstraOpsjoner(t *testing.T) {
	url := startTestNATS(t)

	reconnected := make(chan struct{}, 1)
	sub, err := NewNATSSubscriber(url,
		nats.ReconnectHandler(func(_ *nats.Conn) {
			select {
			case reconnected <- struct{}{}:
			default:
			}
		}),
	)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	if !sub.conn.IsConnected() {
		t.Fatal("expected subscriber to be connected")
	}
}
