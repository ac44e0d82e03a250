package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dbehnke/pwn-beacon/pkg/logger"
)

// PrometheusConfig holds Prometheus server configuration
type PrometheusConfig struct {
	Enabled bool
	Port    int
	Path    string
}

// PrometheusHandler handles Prometheus metrics HTTP requests
type PrometheusHandler struct {
	collector *Collector
}

// NewPrometheusHandler creates a new Prometheus handler
func NewPrometheusHandler(collector *Collector) *PrometheusHandler {
	return &PrometheusHandler{
		collector: collector,
	}
}

// ServeHTTP handles HTTP requests for metrics
func (h *PrometheusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	var output strings.Builder

	encoded := h.collector.GetFramesEncodedByVersion()
	writeHeader(&output, "pwn_frames_encoded_total", "counter", "Payload frames encoded for advertising")
	for _, v := range sortedU8(encoded) {
		fmt.Fprintf(&output, "pwn_frames_encoded_total{version=\"%d\"} %d\n", v, encoded[v])
	}

	writeHeader(&output, "pwn_advertising_updates_total", "counter", "Completed advertising refreshes")
	fmt.Fprintf(&output, "pwn_advertising_updates_total %d\n", h.collector.GetAdvertisingUpdates())

	if last := h.collector.GetLastAdvertised(); !last.IsZero() {
		writeHeader(&output, "pwn_last_advertised_timestamp_seconds", "gauge", "Unix time of the last advertising refresh")
		fmt.Fprintf(&output, "pwn_last_advertised_timestamp_seconds %d\n", last.Unix())
	}

	radioErrors := h.collector.GetRadioErrorsByOp()
	writeHeader(&output, "pwn_radio_errors_total", "counter", "Failed radio operations")
	for _, op := range sortedStr(radioErrors) {
		fmt.Fprintf(&output, "pwn_radio_errors_total{op=%q} %d\n", op, radioErrors[op])
	}

	writeHeader(&output, "pwn_adverts_received_total", "counter", "Advertisements handled by the scanner")
	fmt.Fprintf(&output, "pwn_adverts_received_total %d\n", h.collector.GetAdvertsReceived())

	writeHeader(&output, "pwn_bytes_received_total", "counter", "Manufacturer payload bytes received")
	fmt.Fprintf(&output, "pwn_bytes_received_total %d\n", h.collector.GetBytesReceived())

	decoded := h.collector.GetFramesDecodedByLayout()
	writeHeader(&output, "pwn_frames_decoded_total", "counter", "Payloads decoded, by selected layout")
	for _, l := range sortedU8(decoded) {
		fmt.Fprintf(&output, "pwn_frames_decoded_total{layout=\"%d\"} %d\n", l, decoded[l])
	}

	ignored := h.collector.GetFramesIgnoredByReason()
	writeHeader(&output, "pwn_frames_ignored_total", "counter", "Advertisements that produced no reading")
	for _, reason := range sortedStr(ignored) {
		fmt.Fprintf(&output, "pwn_frames_ignored_total{reason=%q} %d\n", reason, ignored[reason])
	}

	writeHeader(&output, "pwn_devices_active", "gauge", "Devices seen within the stale window")
	fmt.Fprintf(&output, "pwn_devices_active %d\n", h.collector.GetActiveDevices())

	_, _ = io.WriteString(w, output.String())
}

func writeHeader(b *strings.Builder, name, kind, help string) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s %s\n", name, kind)
}

// PrometheusServer exposes a Collector over HTTP
type PrometheusServer struct {
	config    PrometheusConfig
	collector *Collector
	log       *logger.Logger

	mu     sync.Mutex
	server *http.Server
	addr   string
}

// NewPrometheusServer creates a metrics server; a nil log discards output
func NewPrometheusServer(config PrometheusConfig, collector *Collector, log *logger.Logger) *PrometheusServer {
	if log == nil {
		log = logger.Nop()
	}
	if config.Path == "" {
		config.Path = "/metrics"
	}
	return &PrometheusServer{
		config:    config,
		collector: collector,
		log:       log.WithComponent("metrics"),
	}
}

// Handler returns the mux serving the exposition at the configured path
func (s *PrometheusServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.config.Path, NewPrometheusHandler(s.collector))
	return mux
}

// Start serves metrics until ctx is cancelled. Port 0 picks a free port,
// readable through Addr once listening.
func (s *PrometheusServer) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.log.Info("Prometheus metrics server disabled")
		return nil
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("metrics listen on port %d: %w", s.config.Port, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	s.log.Info("Serving Prometheus metrics",
		logger.String("address", ln.Addr().String()),
		logger.String("path", s.config.Path))

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}
	return ctx.Err()
}

// Addr returns the listening address, empty before Start
func (s *PrometheusServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Stop shuts the server down outside of context cancellation
func (s *PrometheusServer) Stop() {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
