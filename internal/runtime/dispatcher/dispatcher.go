// Package dispatcher implements the dual-channel fan-out between session
// actors and subscribers: a lossless, bounded event channel with an
// overflow ring for SessionEvents, and a lossy, coalescing broadcast for
// StreamDeltas.
//
// Grounded on
// original_source/crates/steer-core/src/app/domain/runtime/dispatcher.rs.
// The event side is a native Go channel with select/default non-blocking
// sends — Go's direct analogue of the original's `mpsc::try_send`. The
// delta side is built on the teacher's watermill gochannel pub/sub
// (internal/event/bus.go), since broadcasting to an arbitrary number of
// subscribers is exactly what that infrastructure is for.
package dispatcher

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/opencode-ai/opencode/internal/domain/delta"
	"github.com/opencode-ai/opencode/internal/domain/event"
	"github.com/opencode-ai/opencode/pkg/domain"
)

const (
	eventChannelSize = 256
	eventOverflowMax = 64
	deltaChannelSize = 1024
	deltaCoalesceMax = 32

	deltaTopic = "deltas"
)

// SessionEventEnvelope pairs a durable event with the session it belongs
// to, the unit carried on the event channel.
type SessionEventEnvelope struct {
	Session domain.SessionID
	Event   event.SessionEvent
}

// ChannelMetrics are the Prometheus counters/gauges exposing dispatcher
// health, mirroring the original's atomic ChannelMetrics struct one for
// one.
type ChannelMetrics struct {
	eventsSent     prometheus.Counter
	eventsEvicted  prometheus.Counter
	eventsDropped  prometheus.Counter
	overflowUsed   prometheus.Gauge
	deltasBuffered prometheus.Counter
	deltasSent     prometheus.Counter
	deltasDropped  prometheus.Counter
}

// NewChannelMetrics registers dispatcher gauges/counters against reg. Pass
// prometheus.NewRegistry() in tests to avoid collisions with the default
// global registry.
func NewChannelMetrics(reg prometheus.Registerer) *ChannelMetrics {
	m := &ChannelMetrics{
		eventsSent:     prometheus.NewCounter(prometheus.CounterOpts{Name: "session_dispatcher_events_sent_total"}),
		eventsEvicted:  prometheus.NewCounter(prometheus.CounterOpts{Name: "session_dispatcher_events_evicted_total"}),
		eventsDropped:  prometheus.NewCounter(prometheus.CounterOpts{Name: "session_dispatcher_events_dropped_total"}),
		overflowUsed:   prometheus.NewGauge(prometheus.GaugeOpts{Name: "session_dispatcher_overflow_used"}),
		deltasBuffered: prometheus.NewCounter(prometheus.CounterOpts{Name: "session_dispatcher_deltas_buffered_total"}),
		deltasSent:     prometheus.NewCounter(prometheus.CounterOpts{Name: "session_dispatcher_deltas_sent_total"}),
		deltasDropped:  prometheus.NewCounter(prometheus.CounterOpts{Name: "session_dispatcher_deltas_dropped_total"}),
	}
	if reg != nil {
		reg.MustRegister(m.eventsSent, m.eventsEvicted, m.eventsDropped, m.overflowUsed, m.deltasBuffered, m.deltasSent, m.deltasDropped)
	}
	return m
}

// Snapshot is a point-in-time read of every counter, useful for tests and
// debug endpoints without touching the Prometheus machinery.
type Snapshot struct {
	EventsSent     uint64
	EventsEvicted  uint64
	EventsDropped  uint64
	OverflowUsed   uint64
	DeltasBuffered uint64
	DeltasSent     uint64
	DeltasDropped  uint64
}

// deltaCoalescer merges consecutive TextChunk deltas for the same
// (op, message) pair, bounded at deltaCoalesceMax keys with oldest-key
// eviction, exactly mirroring the original's DeltaCoalescer.
type deltaCoalescer struct {
	pending map[coalesceKey]string
	order   []coalesceKey
	max     int
}

type coalesceKey struct {
	op  domain.OpID
	msg domain.MessageID
}

func newDeltaCoalescer(max int) *deltaCoalescer {
	return &deltaCoalescer{pending: make(map[coalesceKey]string), max: max}
}

// push buffers d, combining it into any pending TextChunk for the same
// key; non-text deltas (thinking, tool-call chunks) are not buffered but
// returned for the caller to publish straight away, since only contiguous
// text output benefits from merging.
func (c *deltaCoalescer) push(d delta.StreamDelta) []delta.StreamDelta {
	chunk, ok := d.(delta.TextChunk)
	if !ok {
		return []delta.StreamDelta{d}
	}

	key := coalesceKey{chunk.Op, chunk.Msg}
	if existing, ok := c.pending[key]; ok {
		c.pending[key] = existing + chunk.Delta
		return nil
	}

	if len(c.pending) >= c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.pending, oldest)
	}
	c.pending[key] = chunk.Delta
	c.order = append(c.order, key)
	return nil
}

func (c *deltaCoalescer) drain() []delta.StreamDelta {
	out := make([]delta.StreamDelta, 0, len(c.order))
	for _, key := range c.order {
		if text, ok := c.pending[key]; ok {
			out = append(out, delta.TextChunk{Op: key.op, Msg: key.msg, Delta: text})
			delete(c.pending, key)
		}
	}
	c.order = nil
	return out
}

// DualChannelDispatcher is the single fan-out point every session actor
// publishes through.
type DualChannelDispatcher struct {
	mu sync.Mutex

	eventCh  chan SessionEventEnvelope
	overflow []SessionEventEnvelope

	deltaPubSub *gochannel.GoChannel
	coalescer   *deltaCoalescer

	metrics *ChannelMetrics
}

// New constructs a dispatcher and returns it alongside the receive-only
// event channel consumers should range over (typically the supervisor,
// forwarding into per-subscriber fan-out).
func New(metrics *ChannelMetrics) (*DualChannelDispatcher, <-chan SessionEventEnvelope) {
	eventCh := make(chan SessionEventEnvelope, eventChannelSize)

	d := &DualChannelDispatcher{
		eventCh: eventCh,
		deltaPubSub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: deltaChannelSize, Persistent: false},
			watermill.NopLogger{},
		),
		coalescer: newDeltaCoalescer(deltaCoalesceMax),
		metrics:   metrics,
	}

	return d, eventCh
}

// SubscribeDeltas returns a channel of decoded StreamDeltas for every
// session; callers filter by OpID/session as needed. Closing ctx
// unsubscribes.
func (d *DualChannelDispatcher) SubscribeDeltas(ctx context.Context) (<-chan delta.StreamDelta, error) {
	raw, err := d.deltaPubSub.Subscribe(ctx, deltaTopic)
	if err != nil {
		return nil, err
	}

	out := make(chan delta.StreamDelta, deltaChannelSize)
	go func() {
		defer close(out)
		for msg := range raw {
			sd, err := decodeDelta(msg.Payload)
			msg.Ack()
			if err != nil {
				continue
			}
			select {
			case out <- sd:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// DispatchEvent attempts a non-blocking send on the event channel,
// falling back to the bounded overflow ring when the channel is full.
func (d *DualChannelDispatcher) DispatchEvent(session domain.SessionID, evt event.SessionEvent) {
	envelope := SessionEventEnvelope{Session: session, Event: evt}

	select {
	case d.eventCh <- envelope:
		d.inc(d.metrics.eventsSent)
		d.drainOverflow()
	default:
		d.handleOverflow(envelope)
	}
}

func (d *DualChannelDispatcher) handleOverflow(envelope SessionEventEnvelope) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.overflow) >= eventOverflowMax {
		// Evict the oldest non-error entry first; only fall back to
		// evicting the oldest error if every entry is an error, so an
		// overflow storm never silently loses every failure signal.
		evictIndex := -1
		for i, e := range d.overflow {
			if !event.IsError(e.Event) {
				evictIndex = i
				break
			}
		}
		if evictIndex == -1 {
			evictIndex = 0
		}
		d.overflow = append(d.overflow[:evictIndex], d.overflow[evictIndex+1:]...)
		d.inc(d.metrics.eventsEvicted)
	}

	d.overflow = append(d.overflow, envelope)
	d.setGauge(d.metrics.overflowUsed, float64(len(d.overflow)))
}

func (d *DualChannelDispatcher) drainOverflow() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for len(d.overflow) > 0 {
		next := d.overflow[0]
		select {
		case d.eventCh <- next:
			d.overflow = d.overflow[1:]
			d.inc(d.metrics.eventsSent)
		default:
			d.setGauge(d.metrics.overflowUsed, float64(len(d.overflow)))
			return
		}
	}
	d.setGauge(d.metrics.overflowUsed, 0)
}

// OverflowLen reports the current overflow ring depth, mainly for tests.
func (d *DualChannelDispatcher) OverflowLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.overflow)
}

// DispatchDelta buffers a text delta for coalescing (call FlushDeltas to
// publish accumulated chunks); any other delta kind is published at once.
func (d *DualChannelDispatcher) DispatchDelta(dl delta.StreamDelta) {
	d.mu.Lock()
	passthrough := d.coalescer.push(dl)
	d.inc(d.metrics.deltasBuffered)
	d.mu.Unlock()

	for _, p := range passthrough {
		payload, err := encodeDelta(p)
		if err != nil {
			d.inc(d.metrics.deltasDropped)
			continue
		}
		if err := d.deltaPubSub.Publish(deltaTopic, message.NewMessage(watermill.NewUUID(), payload)); err != nil {
			d.inc(d.metrics.deltasDropped)
			continue
		}
		d.inc(d.metrics.deltasSent)
	}
}

// FlushDeltas publishes every buffered delta to subscribers in
// insertion order.
func (d *DualChannelDispatcher) FlushDeltas() {
	d.mu.Lock()
	pending := d.coalescer.drain()
	d.mu.Unlock()

	for _, dl := range pending {
		payload, err := encodeDelta(dl)
		if err != nil {
			d.inc(d.metrics.deltasDropped)
			continue
		}
		msg := message.NewMessage(watermill.NewUUID(), payload)
		if err := d.deltaPubSub.Publish(deltaTopic, msg); err != nil {
			d.inc(d.metrics.deltasDropped)
			continue
		}
		d.inc(d.metrics.deltasSent)
	}
}

// Close releases the delta pub/sub's resources.
func (d *DualChannelDispatcher) Close() error {
	return d.deltaPubSub.Close()
}

func (d *DualChannelDispatcher) inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

func (d *DualChannelDispatcher) setGauge(g prometheus.Gauge, v float64) {
	if g != nil {
		g.Set(v)
	}
}

type deltaWireKind string

const (
	wireText     deltaWireKind = "text"
	wireThinking deltaWireKind = "thinking"
	wireToolCall deltaWireKind = "tool_call"
)

type deltaWire struct {
	Kind       deltaWireKind       `json:"kind"`
	Op         domain.OpID         `json:"op"`
	Msg        domain.MessageID    `json:"msg"`
	ToolCallID domain.ToolCallID   `json:"tool_call_id,omitempty"`
	ToolKind   delta.ToolCallDeltaKind `json:"tool_kind,omitempty"`
	Delta      string              `json:"delta"`
}

func encodeDelta(d delta.StreamDelta) ([]byte, error) {
	var wire deltaWire
	switch v := d.(type) {
	case delta.TextChunk:
		wire = deltaWire{Kind: wireText, Op: v.Op, Msg: v.Msg, Delta: v.Delta}
	case delta.ThinkingChunk:
		wire = deltaWire{Kind: wireThinking, Op: v.Op, Msg: v.Msg, Delta: v.Delta}
	case delta.ToolCallChunk:
		wire = deltaWire{Kind: wireToolCall, Op: v.Op, Msg: v.Msg, ToolCallID: v.ToolCallID, ToolKind: v.Kind, Delta: v.Delta}
	}
	return json.Marshal(wire)
}

func decodeDelta(raw []byte) (delta.StreamDelta, error) {
	var wire deltaWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, err
	}
	switch wire.Kind {
	case wireThinking:
		return delta.ThinkingChunk{Op: wire.Op, Msg: wire.Msg, Delta: wire.Delta}, nil
	case wireToolCall:
		return delta.ToolCallChunk{Op: wire.Op, Msg: wire.Msg, ToolCallID: wire.ToolCallID, Kind: wire.ToolKind, Delta: wire.Delta}, nil
	default:
		return delta.TextChunk{Op: wire.Op, Msg: wire.Msg, Delta: wire.Delta}, nil
	}
}

// SnapshotMetrics is a convenience accessor for tests; real deployments
// scrape Prometheus directly.
func SnapshotMetrics(m *ChannelMetrics) Snapshot {
	return Snapshot{
		EventsSent:     uint64(readMetricValue(m.eventsSent)),
		EventsEvicted:  uint64(readMetricValue(m.eventsEvicted)),
		EventsDropped:  uint64(readMetricValue(m.eventsDropped)),
		OverflowUsed:   uint64(readMetricValue(m.overflowUsed)),
		DeltasBuffered: uint64(readMetricValue(m.deltasBuffered)),
		DeltasSent:     uint64(readMetricValue(m.deltasSent)),
		DeltasDropped:  uint64(readMetricValue(m.deltasDropped)),
	}
}

// readMetricValue reads a counter/gauge's current value without pulling
// in the prometheus/client_golang/testutil package as a production
// dependency just for this.
func readMetricValue(c prometheus.Metric) float64 {
	var pb dto.Metric
	if err := c.Write(&pb); err != nil {
		return 0
	}
	if pb.Counter != nil {
		return pb.Counter.GetValue()
	}
	if pb.Gauge != nil {
		return pb.Gauge.GetValue()
	}
	return 0
}
