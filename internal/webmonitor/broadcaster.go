package webmonitor

import (
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/internal/logger"
)

// SerializedEvent carries one event in both wire formats.
type SerializedEvent struct {
	JSONData     []byte // Pre-serialized JSON
	ProtobufData []byte // Pre-serialized Protobuf (base64 encoded for SSE)
}

// eventProducer returns the events to send this tick, oldest first.
type eventProducer func() []any

// Broadcaster polls a producer at a fixed interval and fans pre-serialized
// events out to SSE clients. Nothing is produced while no client is
// subscribed.
type Broadcaster struct {
	name     string
	mu       sync.Mutex
	clients  map[int]chan *SerializedEvent // Channel carries pre-serialized data
	nextID   int
	buffer   int
	produce  eventProducer
	interval time.Duration
	stop     chan struct{}
	stopped  bool
	log      *logger.Module
}

// newBroadcaster creates a broadcaster polling produce every interval. Each
// client channel holds up to buffer events.
func newBroadcaster(name string, interval time.Duration, buffer int, produce eventProducer) *Broadcaster {
	return &Broadcaster{
		name:     name,
		clients:  make(map[int]chan *SerializedEvent),
		buffer:   max(buffer, 1),
		produce:  produce,
		interval: interval,
		stop:     make(chan struct{}),
		log:      logger.For(name),
	}
}

// Subscribe adds a new client and returns a channel for receiving events.
func (b *Broadcaster) Subscribe() (int, <-chan *SerializedEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan *SerializedEvent, b.buffer)
	b.clients[id] = ch

	b.log.Debug("Client #%d subscribed (total clients: %d)", id, len(b.clients))
	return id, ch
}

// Unsubscribe removes a client.
func (b *Broadcaster) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.clients[id]; ok {
		close(ch)
		delete(b.clients, id)
		b.log.Debug("Client #%d unsubscribed (remaining clients: %d)", id, len(b.clients))
	}
}

// Clients returns the number of subscribed clients.
func (b *Broadcaster) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Start begins the event loop.
func (b *Broadcaster) Start() {
	go b.run()
}

// Stop halts the broadcaster and disconnects every client.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return
	}
	close(b.stop)
	b.stopped = true
	for id, ch := range b.clients {
		close(ch)
		delete(b.clients, id)
	}
}

func (b *Broadcaster) run() {
	b.log.Info("Starting broadcaster (interval=%v)", b.interval)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			// Check client count before producing
			if b.Clients() == 0 {
				continue
			}

			for _, payload := range b.produce() {
				if event := serializeEvent(b.log, payload); event != nil {
					b.broadcast(event)
				}
			}
		}
	}
}

func (b *Broadcaster) broadcast(event *SerializedEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.clients {
		select {
		case ch <- event:
		default:
			// Client too slow, skip this event for this client
		}
	}
}

// serializeEvent encodes payload as JSON and as a base64 protobuf Struct.
func serializeEvent(log *logger.Module, payload any) *SerializedEvent {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		log.Error("JSON marshal error: %v", err)
		return nil
	}

	pbValue, err := jsonToProto(jsonData)
	if err != nil {
		log.Error("Protobuf conversion error: %v", err)
		return nil
	}
	pbData, err := proto.Marshal(pbValue)
	if err != nil {
		log.Error("Protobuf marshal error: %v", err)
		return nil
	}

	// Base64 encode for SSE transport
	pbBase64 := []byte(base64.StdEncoding.EncodeToString(pbData))

	return &SerializedEvent{
		JSONData:     jsonData,
		ProtobufData: pbBase64,
	}
}

// jsonToProto re-expresses a JSON document as a structpb.Value.
func jsonToProto(data []byte) (*structpb.Value, error) {
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	return structpb.NewValue(generic)
}
