// Package listener owns the UDP socket and feeds every datagram to a handler.
package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/internal/ingest"
	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/internal/observability"
	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/internal/telemetry"
)

// DefaultMaxPayload is the read buffer size. Longer datagrams are truncated.
const DefaultMaxPayload = 1024

// Options configure a Listener.
type Options struct {
	Host       string
	Port       int
	MaxPayload int
	Logger     *slog.Logger
	Metrics    *observability.Metrics
}

// Listener reads datagrams one at a time and hands each to the handler.
// Failures of a single packet, panics included, never stop the loop.
type Listener struct {
	addr       string
	maxPayload int
	handler    ingest.Handler
	logger     *slog.Logger
	metrics    *observability.Metrics

	mu   sync.Mutex
	conn *net.UDPConn
}

func New(opts Options, handler ingest.Handler) *Listener {
	if opts.MaxPayload <= 0 {
		opts.MaxPayload = DefaultMaxPayload
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	return &Listener{
		addr:       net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		maxPayload: opts.MaxPayload,
		handler:    handler,
		logger:     logger.With("component", "listener"),
		metrics:    metrics,
	}
}

// Bind opens the socket. Failure is a *telemetry.BindError.
func (l *Listener) Bind() error {
	udpAddr, err := net.ResolveUDPAddr("udp", l.addr)
	if err != nil {
		return &telemetry.BindError{Addr: l.addr, Err: err}
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return &telemetry.BindError{Addr: l.addr, Err: err}
	}

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()

	l.logger.Info("udp listener bound", "addr", conn.LocalAddr().String())
	return nil
}

// LocalAddr returns the bound address, or nil before Bind.
func (l *Listener) LocalAddr() *net.UDPAddr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr().(*net.UDPAddr)
}

// Run receives until ctx is cancelled, then closes the socket and returns nil.
// It returns an error only if the socket is closed from elsewhere.
func (l *Listener) Run(ctx context.Context) error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return errors.New("listener is not bound")
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	buffer := make([]byte, l.maxPayload)
	for {
		n, sender, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info("udp listener stopped")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("udp socket closed: %w", err)
			}
			l.logger.Warn("udp read error", "error", err)
			continue
		}

		payload := make([]byte, n)
		copy(payload, buffer[:n])

		l.process(ctx, telemetry.Packet{
			ID:         uuid.New(),
			Payload:    payload,
			Sender:     sender,
			ReceivedAt: time.Now(),
		})
	}
}

func (l *Listener) process(ctx context.Context, pkt telemetry.Packet) {
	l.metrics.PacketsReceived.Inc()
	l.metrics.BytesReceived.Add(float64(len(pkt.Payload)))
	defer l.metrics.ObserveLatency(pkt.ReceivedAt)

	defer func() {
		if r := recover(); r != nil {
			l.metrics.PacketsFailed.WithLabelValues("panic").Inc()
			l.logger.Error("packet handler panicked",
				"packet_id", pkt.ID,
				"sender", senderString(pkt.Sender),
				"panic", fmt.Sprint(r),
				"payload", string(pkt.Payload),
			)
		}
	}()

	err := l.handler.Handle(ctx, pkt)
	if err == nil {
		return
	}

	class := telemetry.Classify(err)
	l.metrics.PacketsFailed.WithLabelValues(class).Inc()

	level := slog.LevelWarn
	var storeErr *telemetry.StoreError
	if errors.As(err, &storeErr) {
		level = slog.LevelError
	}
	l.logger.Log(ctx, level, "packet rejected",
		"packet_id", pkt.ID,
		"sender", senderString(pkt.Sender),
		"class", class,
		"error", err,
		"payload", string(pkt.Payload),
	)
}

func senderString(addr *net.UDPAddr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
