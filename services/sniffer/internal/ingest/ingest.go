// Package ingest runs one received packet through decode, route and sink.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/internal/decoder"
	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/internal/observability"
	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/internal/telemetry"
	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/internal/window"
)

// Handler processes a single packet. A returned error rejects that packet only.
type Handler interface {
	Handle(ctx context.Context, pkt telemetry.Packet) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, pkt telemetry.Packet) error

func (f HandlerFunc) Handle(ctx context.Context, pkt telemetry.Packet) error {
	return f(ctx, pkt)
}

// Router resolves the destination table of a fix.
type Router interface {
	Route(fix telemetry.Fix) (string, error)
}

// Sink persists a fix into a table.
type Sink interface {
	Store(ctx context.Context, table string, fix telemetry.Fix) error
}

// Recorder remembers the latest fix of each device.
type Recorder interface {
	Record(ctx context.Context, fix telemetry.Fix, receivedAt time.Time) error
}

// Persistent routes decoded fixes into device tables.
type Persistent struct {
	decoder decoder.FixDecoder
	router  Router
	sink    Sink
	last    Recorder
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewPersistent wires the persistent pipeline. last may be nil.
func NewPersistent(dec decoder.FixDecoder, router Router, sink Sink, last Recorder, metrics *observability.Metrics, logger *slog.Logger) *Persistent {
	return &Persistent{
		decoder: dec,
		router:  router,
		sink:    sink,
		last:    last,
		metrics: metrics,
		logger:  logger.With("component", "ingest"),
	}
}

func (p *Persistent) Handle(ctx context.Context, pkt telemetry.Packet) error {
	fix, err := p.decoder.Decode(pkt.Payload)
	if err != nil {
		return err
	}
	table, err := p.router.Route(fix)
	if err != nil {
		return err
	}
	if err := p.sink.Store(ctx, table, fix); err != nil {
		return err
	}
	p.metrics.RecordsStored.WithLabelValues(table).Inc()

	if p.last != nil {
		// cache failures never reject a stored fix
		if err := p.last.Record(ctx, fix, pkt.ReceivedAt); err != nil {
			p.logger.Warn("last-seen update failed", "packet_id", pkt.ID, "device_id", fix.DeviceID, "error", err)
		}
	}

	p.logger.Debug("fix stored", "packet_id", pkt.ID, "device_id", fix.DeviceID, "table", table)
	return nil
}

// Windowed appends every decoded record to the in-memory window.
type Windowed struct {
	decoder decoder.ValueDecoder
	window  *window.Buffer
	metrics *observability.Metrics
}

func NewWindowed(dec decoder.ValueDecoder, buf *window.Buffer, metrics *observability.Metrics) *Windowed {
	return &Windowed{decoder: dec, window: buf, metrics: metrics}
}

func (w *Windowed) Handle(_ context.Context, pkt telemetry.Packet) error {
	v, err := w.decoder.DecodeValue(pkt.Payload)
	if err != nil {
		return err
	}
	w.window.Append(v)
	w.metrics.WindowAppends.Inc()
	w.metrics.WindowSize.Set(float64(w.window.Len()))
	return nil
}
