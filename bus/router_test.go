package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/manifoldbus/manifold/topic"
)

const testTimeout = 2 * time.Second

// fakeTransport records the calls a Router makes against it and lets tests
// drive readiness, inbound messages and failures by hand.
type fakeTransport struct {
	scheme       topic.Scheme
	manualReady  bool // when true, the test signals readiness itself
	loopback     bool // when true, publishes echo back as inbound messages
	subscribeErr error

	mu           sync.Mutex
	events       *Events
	subscribes   []string
	unsubscribes []string
	publishes    []fakePublish
	disconnects  int
}

type fakePublish struct {
	topic   string
	payload []byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{scheme: topic.Canonical}
}

func (f *fakeTransport) Scheme() topic.Scheme { return f.scheme }

func (f *fakeTransport) Connect(events *Events) error {
	f.mu.Lock()
	f.events = events
	f.mu.Unlock()
	if !f.manualReady {
		events.Ready()
	}
	return nil
}

func (f *fakeTransport) Subscribe(_ context.Context, pattern string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.subscribes = append(f.subscribes, pattern)
	return nil
}

func (f *fakeTransport) Unsubscribe(_ context.Context, pattern string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribes = append(f.unsubscribes, pattern)
	return nil
}

func (f *fakeTransport) Publish(_ context.Context, topicName string, payload []byte) error {
	f.mu.Lock()
	f.publishes = append(f.publishes, fakePublish{topic: topicName, payload: payload})
	events := f.events
	loopback := f.loopback
	f.mu.Unlock()

	if loopback && events != nil {
		events.Message(topicName, payload)
	}
	return nil
}

func (f *fakeTransport) Disconnect(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return nil
}

func (f *fakeTransport) ready() {
	f.mu.Lock()
	events := f.events
	f.mu.Unlock()
	events.Ready()
}

func (f *fakeTransport) deliver(topicName string, payload []byte) {
	f.mu.Lock()
	events := f.events
	f.mu.Unlock()
	events.Message(topicName, payload)
}

func (f *fakeTransport) fail(err error) {
	f.mu.Lock()
	events := f.events
	f.mu.Unlock()
	events.Error(err)
}

func (f *fakeTransport) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribes)
}

func (f *fakeTransport) unsubscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.unsubscribes)
}

func (f *fakeTransport) disconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

// waitMsg receives one message or fails the test.
func waitMsg(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

// expectNone asserts no message arrives within a short window.
func expectNone(t *testing.T, ch <-chan Message) {
	t.Helper()
	select {
	case msg := <-ch:
		t.Fatalf("unexpected message on %s: %s", msg.Topic, msg.Payload)
	case <-time.After(100 * time.Millisecond):
	}
}

func collector() (Handler, <-chan Message) {
	ch := make(chan Message, 16)
	return func(msg Message) { ch <- msg }, ch
}

func TestInProcessEndToEnd(t *testing.T) {
	ctx := context.Background()
	r, err := New(Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close(ctx)

	handler, received := collector()
	if _, err := r.Subscribe(ctx, "sensors/+/temp", handler); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := r.Publish(ctx, "sensors/kitchen/temp", []byte("21.5")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	msg := waitMsg(t, received)
	if msg.Topic != "sensors/kitchen/temp" {
		t.Errorf("topic = %q, want sensors/kitchen/temp", msg.Topic)
	}
	if string(msg.Payload) != "21.5" {
		t.Errorf("payload = %q, want 21.5", msg.Payload)
	}

	if err := r.Publish(ctx, "sensors/kitchen/humidity", []byte("60")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	expectNone(t, received)
}

func TestSamePatternDistinctSubscriptions(t *testing.T) {
	ctx := context.Background()
	r, err := New(Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close(ctx)

	h1, ch1 := collector()
	h2, ch2 := collector()
	if _, err := r.Subscribe(ctx, "hello", h1); err != nil {
		t.Fatalf("Subscribe h1: %v", err)
	}
	if _, err := r.Subscribe(ctx, "hello", h2); err != nil {
		t.Fatalf("Subscribe h2: %v", err)
	}

	if err := r.Publish(ctx, "hello", []byte("x")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	waitMsg(t, ch1)
	waitMsg(t, ch2)
	expectNone(t, ch1)
	expectNone(t, ch2)
}

func TestReferenceCountedTransportSubscribe(t *testing.T) {
	ctx := context.Background()
	tr := newFakeTransport()
	r, err := New(Options{Transport: tr})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close(ctx)

	h1, _ := collector()
	h2, _ := collector()

	sub1, err := r.Subscribe(ctx, "orders/+", h1)
	if err != nil {
		t.Fatalf("Subscribe 1: %v", err)
	}
	sub2, err := r.Subscribe(ctx, "orders/+", h2)
	if err != nil {
		t.Fatalf("Subscribe 2: %v", err)
	}

	if got := tr.subscribeCount(); got != 1 {
		t.Errorf("transport subscribes after two local subscribes = %d, want 1", got)
	}

	if err := sub1.Unsubscribe(ctx); err != nil {
		t.Fatalf("Unsubscribe 1: %v", err)
	}
	if got := tr.unsubscribeCount(); got != 0 {
		t.Errorf("transport unsubscribes after first local unsubscribe = %d, want 0", got)
	}

	if err := r.Unsubscribe(ctx, sub2); err != nil {
		t.Fatalf("Unsubscribe 2: %v", err)
	}
	if got := tr.unsubscribeCount(); got != 1 {
		t.Errorf("transport unsubscribes after last local unsubscribe = %d, want 1", got)
	}
}

func TestMalformedPatternRejected(t *testing.T) {
	ctx := context.Background()
	tr := newFakeTransport()
	r, err := New(Options{Transport: tr})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close(ctx)

	handler, _ := collector()

	tests := []struct {
		name    string
		pattern string
		wantErr error
	}{
		{name: "multi wildcard not last", pattern: "a/#/b", wantErr: topic.ErrMultiNotLast},
		{name: "empty pattern", pattern: "", wantErr: topic.ErrEmptyPattern},
		{name: "empty segment", pattern: "a//b", wantErr: topic.ErrEmptySegment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Subscribe(ctx, tt.pattern, handler); !errors.Is(err, tt.wantErr) {
				t.Errorf("Subscribe(%q) = %v, want %v", tt.pattern, err, tt.wantErr)
			}
		})
	}

	// A rejected pattern is never indexed, locally or at the transport.
	if got := tr.subscribeCount(); got != 0 {
		t.Errorf("transport subscribes after rejected patterns = %d, want 0", got)
	}
}

func TestNilHandlerRejected(t *testing.T) {
	r, err := New(Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close(context.Background())

	if _, err := r.Subscribe(context.Background(), "a/b", nil); !errors.Is(err, ErrNilHandler) {
		t.Errorf("Subscribe(nil handler) = %v, want ErrNilHandler", err)
	}
}

func TestClosedStateRejection(t *testing.T) {
	ctx := context.Background()
	r, err := New(Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	handler, _ := collector()
	sub, err := r.Subscribe(ctx, "a/b", handler)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := r.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := r.Subscribe(ctx, "a/b", handler); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe after close = %v, want ErrClosed", err)
	}
	if err := r.Publish(ctx, "a/b", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish after close = %v, want ErrClosed", err)
	}
	if err := r.Unsubscribe(ctx, sub); !errors.Is(err, ErrClosed) {
		t.Errorf("Unsubscribe after close = %v, want ErrClosed", err)
	}
	if got := r.State(); got != StateClosed {
		t.Errorf("State after close = %v, want %v", got, StateClosed)
	}
}

func TestIdempotentClose(t *testing.T) {
	ctx := context.Background()
	tr := newFakeTransport()
	r, err := New(Options{Transport: tr})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Several concurrent closers all join the one shutdown.
	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = r.Close(ctx)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("Close %d = %v, want nil", i, err)
		}
	}
	if got := tr.disconnectCount(); got != 1 {
		t.Errorf("transport disconnects = %d, want 1", got)
	}

	// A redundant close after the fact completes immediately.
	if err := r.Close(ctx); err != nil {
		t.Errorf("redundant Close = %v, want nil", err)
	}
	if got := tr.disconnectCount(); got != 1 {
		t.Errorf("transport disconnects after redundant close = %d, want 1", got)
	}
}

func TestPreReadyOperationsReplayedInOrder(t *testing.T) {
	ctx := context.Background()
	tr := newFakeTransport()
	tr.manualReady = true
	tr.loopback = true

	r, err := New(Options{Transport: tr})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close(ctx)

	if got := r.State(); got != StateConnecting {
		t.Fatalf("State before ready = %v, want %v", got, StateConnecting)
	}

	handlerA, chA := collector()
	handlerB, chB := collector()

	// Issue subscribe(A), subscribe(B), publish(X) against the
	// not-yet-ready router. Each call blocks until completion, so they
	// are issued from goroutines, strictly in order.
	var wg sync.WaitGroup
	issue := func(f func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
		}()
		time.Sleep(20 * time.Millisecond) // let the op reach the queue
	}

	var errA, errB, errX error
	issue(func() { _, errA = r.Subscribe(ctx, "greetings/a", handlerA) })
	issue(func() { _, errB = r.Subscribe(ctx, "greetings/+", handlerB) })
	issue(func() { errX = r.Publish(ctx, "greetings/a", []byte("x")) })

	tr.ready()
	wg.Wait()

	if errA != nil || errB != nil || errX != nil {
		t.Fatalf("replayed ops failed: %v %v %v", errA, errB, errX)
	}

	// Both subscriptions were active before the publish was forwarded,
	// so the loopback delivery reaches both.
	waitMsg(t, chA)
	waitMsg(t, chB)
}

func TestCloseWhileConnecting(t *testing.T) {
	ctx := context.Background()
	tr := newFakeTransport()
	tr.manualReady = true

	r, err := New(Options{Transport: tr})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// A subscribe queued behind readiness is rejected by the close, not
	// silently dropped.
	handler, _ := collector()
	subErr := make(chan error, 1)
	go func() {
		_, err := r.Subscribe(ctx, "a/b", handler)
		subErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	if err := r.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-subErr:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("queued Subscribe after close = %v, want ErrClosed", err)
		}
	case <-time.After(testTimeout):
		t.Fatal("queued Subscribe never completed")
	}
}

func TestInboundDispatchThroughTransport(t *testing.T) {
	ctx := context.Background()
	tr := newFakeTransport()
	r, err := New(Options{Transport: tr})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close(ctx)

	handler, received := collector()
	if _, err := r.Subscribe(ctx, "sensors/+/temp", handler); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	tr.deliver("sensors/kitchen/temp", []byte("21.5"))

	msg := waitMsg(t, received)
	if msg.Topic != "sensors/kitchen/temp" || string(msg.Payload) != "21.5" {
		t.Errorf("got %q = %q", msg.Topic, msg.Payload)
	}
	expectNone(t, received)
}

func TestHandlerPanicIsolation(t *testing.T) {
	ctx := context.Background()
	r, err := New(Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close(ctx)

	if _, err := r.Subscribe(ctx, "a/b", func(Message) { panic("boom") }); err != nil {
		t.Fatalf("Subscribe panicking handler: %v", err)
	}
	handler, received := collector()
	if _, err := r.Subscribe(ctx, "a/+", handler); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := r.Publish(ctx, "a/b", []byte("1")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	waitMsg(t, received)

	// The router survives the panic and keeps dispatching.
	if err := r.Publish(ctx, "a/b", []byte("2")); err != nil {
		t.Fatalf("Publish after panic: %v", err)
	}
	waitMsg(t, received)
}

func TestTransportErrorTerminates(t *testing.T) {
	ctx := context.Background()
	tr := newFakeTransport()

	var observed error
	var observedMu sync.Mutex
	r, err := New(Options{
		Transport: tr,
		OnError: func(err error) {
			observedMu.Lock()
			observed = err
			observedMu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cause := errors.New("broker vanished")
	tr.fail(cause)

	select {
	case <-r.Done():
	case <-time.After(testTimeout):
		t.Fatal("router did not terminate on transport error")
	}

	if got := r.State(); got != StateErrored {
		t.Errorf("State = %v, want %v", got, StateErrored)
	}
	if !errors.Is(r.Err(), cause) {
		t.Errorf("Err() = %v, want %v", r.Err(), cause)
	}
	observedMu.Lock()
	if !errors.Is(observed, cause) {
		t.Errorf("OnError observed %v, want %v", observed, cause)
	}
	observedMu.Unlock()

	if err := r.Publish(ctx, "a/b", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish after transport error = %v, want ErrClosed", err)
	}
	// Close joins the finished shutdown.
	if err := r.Close(ctx); err != nil {
		t.Errorf("Close after transport error = %v, want nil", err)
	}
}

func TestTransportSubscribeFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	tr := newFakeTransport()
	tr.subscribeErr = errors.New("broker said no")

	r, err := New(Options{Transport: tr})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close(ctx)

	handler, received := collector()
	if _, err := r.Subscribe(ctx, "a/b", handler); !errors.Is(err, ErrSubscribeFailed) {
		t.Fatalf("Subscribe = %v, want ErrSubscribeFailed", err)
	}

	// The failed subscription must not be left half-indexed.
	tr.deliver("a/b", []byte("x"))
	expectNone(t, received)
}

func TestUnsubscribeTwiceIsNoop(t *testing.T) {
	ctx := context.Background()
	tr := newFakeTransport()
	r, err := New(Options{Transport: tr})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close(ctx)

	handler, _ := collector()
	sub, err := r.Subscribe(ctx, "a/b", handler)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := sub.Unsubscribe(ctx); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if err := sub.Unsubscribe(ctx); err != nil {
		t.Errorf("second Unsubscribe = %v, want nil", err)
	}
	if got := tr.unsubscribeCount(); got != 1 {
		t.Errorf("transport unsubscribes = %d, want 1", got)
	}
}

func TestWaitReady(t *testing.T) {
	tr := newFakeTransport()
	tr.manualReady = true
	r, err := New(Options{Transport: tr})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := r.WaitReady(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitReady before ready = %v, want deadline exceeded", err)
	}

	tr.ready()
	if err := r.WaitReady(context.Background()); err != nil {
		t.Errorf("WaitReady after ready = %v, want nil", err)
	}
	if got := r.State(); got != StateReady {
		t.Errorf("State = %v, want %v", got, StateReady)
	}
}

func TestTranslationAtTransportBoundary(t *testing.T) {
	ctx := context.Background()
	tr := newFakeTransport()
	tr.scheme = topic.Scheme{Separator: ".", Single: "*", Multi: ">"}
	r, err := New(Options{Transport: tr})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close(ctx)

	handler, received := collector()
	if _, err := r.Subscribe(ctx, "orders/+/created", handler); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	tr.mu.Lock()
	gotPattern := tr.subscribes[0]
	tr.mu.Unlock()
	if gotPattern != "orders.*.created" {
		t.Errorf("transport saw pattern %q, want orders.*.created", gotPattern)
	}

	if err := r.Publish(ctx, "orders/eu/created", []byte("x")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	tr.mu.Lock()
	gotTopic := tr.publishes[0].topic
	tr.mu.Unlock()
	if gotTopic != "orders.eu.created" {
		t.Errorf("transport saw topic %q, want orders.eu.created", gotTopic)
	}

	// Inbound native topics are translated back to canonical form.
	tr.deliver("orders.us.created", []byte("y"))
	msg := waitMsg(t, received)
	if msg.Topic != "orders/us/created" {
		t.Errorf("dispatched topic = %q, want orders/us/created", msg.Topic)
	}
}
