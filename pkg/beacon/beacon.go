// Package beacon periodically refreshes the controller's advertising data
// with the latest stats.
package beacon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dbehnke/pwn-beacon/pkg/logger"
	"github.com/dbehnke/pwn-beacon/pkg/metrics"
	"github.com/dbehnke/pwn-beacon/pkg/protocol"
	"github.com/dbehnke/pwn-beacon/pkg/radio"
	"github.com/dbehnke/pwn-beacon/pkg/stats"
	"github.com/google/uuid"
)

const (
	// DefaultInterval is the time between advertising refreshes
	DefaultInterval = 20 * time.Second

	// disableTimeout bounds the final disable issued on shutdown
	disableTimeout = 2 * time.Second
)

// Config holds beacon settings
type Config struct {
	Interval   time.Duration
	Version    uint8
	CompanyID  uint16
	Parameters radio.AdvertisingParameters
}

// Beacon encodes a stat snapshot, frames it and pushes it to the radio on
// every cycle
type Beacon struct {
	config  Config
	source  stats.Source
	radio   radio.Controller
	metrics *metrics.Collector
	log     *logger.Logger
	session string

	mu      sync.RWMutex
	last    protocol.Advertisement
	hasLast bool
}

// New creates a beacon. The payload version must have a layout.
func New(config Config, source stats.Source, ctrl radio.Controller, m *metrics.Collector, log *logger.Logger) (*Beacon, error) {
	if _, ok := protocol.LayoutFor(config.Version); !ok {
		return nil, fmt.Errorf("%w: %d", protocol.ErrUnsupportedVersion, config.Version)
	}
	if source == nil {
		return nil, fmt.Errorf("beacon requires a stat source")
	}
	if ctrl == nil {
		return nil, fmt.Errorf("beacon requires a radio controller")
	}
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.Parameters == (radio.AdvertisingParameters{}) {
		config.Parameters = radio.DefaultAdvertisingParameters()
	}
	if m == nil {
		m = metrics.NewCollector()
	}
	if log == nil {
		log = logger.Nop()
	}

	session := uuid.NewString()
	return &Beacon{
		config:  config,
		source:  source,
		radio:   ctrl,
		metrics: m,
		log:     log.WithComponent("beacon").With(logger.String("session", session)),
		session: session,
	}, nil
}

// Session identifies this beacon run in logs
func (b *Beacon) Session() string {
	return b.session
}

// Start advertises immediately and then once per interval until ctx is
// cancelled. Cycle failures are logged and retried on the next tick. On
// exit advertising is switched off on a best-effort basis.
func (b *Beacon) Start(ctx context.Context) error {
	b.log.Info("Starting beacon",
		logger.Duration("interval", b.config.Interval),
		logger.Int("version", int(b.config.Version)),
		logger.Uint("company_id", uint(b.config.CompanyID)))

	b.runCycle(ctx)

	ticker := time.NewTicker(b.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.shutdown()
			b.log.Info("Beacon stopped")
			return nil
		case <-ticker.C:
			b.runCycle(ctx)
		}
	}
}

func (b *Beacon) runCycle(ctx context.Context) {
	if err := b.Cycle(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		b.log.Warn("Advertising cycle failed", logger.Error(err))
	}
}

// Cycle performs one refresh: disable (errors ignored), set parameters,
// set data, enable.
func (b *Beacon) Cycle(ctx context.Context) error {
	rec := b.source.Snapshot(ctx)

	payload, err := protocol.Encode(b.config.Version, rec)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	b.metrics.FrameEncoded(b.config.Version)

	adv := protocol.Frame(payload, b.config.CompanyID)

	// advertising may already be off; the controller rejects a redundant disable
	if err := b.radio.SetAdvertisingEnabled(ctx, false); err != nil {
		b.log.Debug("Disable before update failed", logger.Error(err))
	}

	if err := b.radio.SetAdvertisingParameters(ctx, b.config.Parameters); err != nil {
		b.metrics.RadioError(radio.OpSetParameters)
		return fmt.Errorf("set advertising parameters: %w", err)
	}
	if err := b.radio.SetAdvertisingData(ctx, adv); err != nil {
		b.metrics.RadioError(radio.OpSetData)
		return fmt.Errorf("set advertising data: %w", err)
	}
	if err := b.radio.SetAdvertisingEnabled(ctx, true); err != nil {
		b.metrics.RadioError(radio.OpEnable)
		return fmt.Errorf("enable advertising: %w", err)
	}

	b.mu.Lock()
	b.last = adv
	b.hasLast = true
	b.mu.Unlock()

	b.metrics.AdvertisingUpdated(time.Now())
	b.log.Debug("Advertising updated",
		logger.Int("handshakes", rec.Handshakes),
		logger.Int("epochs", rec.Epochs),
		logger.Int("face_id", rec.FaceID),
		logger.String("adv", adv.String()))

	return nil
}

// Last returns the most recently advertised frame
func (b *Beacon) Last() (protocol.Advertisement, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.last, b.hasLast
}

// shutdown turns advertising off with its own deadline since the run
// context is already done
func (b *Beacon) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), disableTimeout)
	defer cancel()

	if err := b.radio.SetAdvertisingEnabled(ctx, false); err != nil {
		b.metrics.RadioError(radio.OpDisable)
		b.log.Debug("Final disable failed", logger.Error(err))
	}
}
