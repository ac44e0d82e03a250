// Package scanner turns received advertisements into decoded sightings and
// fans them out to storage and live subscribers.
package scanner

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dbehnke/pwn-beacon/pkg/logger"
	"github.com/dbehnke/pwn-beacon/pkg/metrics"
	"github.com/dbehnke/pwn-beacon/pkg/protocol"
)

// Reasons an advertisement produced no sighting, used as metric labels
const (
	IgnoredNoManufacturerData = "no_manufacturer_data"
	IgnoredUndecodable        = "undecodable"
)

// Advertisement is one received advertising report
type Advertisement struct {
	Address          string
	Name             string
	RSSI             int
	ManufacturerData map[uint16][]byte
	Timestamp        time.Time
}

// Sighting is a successfully decoded advertisement
type Sighting struct {
	Address string           `json:"address"`
	Name    string           `json:"name,omitempty"`
	RSSI    int              `json:"rssi"`
	Payload []byte           `json:"-"`
	Reading protocol.Reading `json:"reading"`
	SeenAt  time.Time        `json:"seen_at"`
}

// Sink receives every sighting the processor accepts
type Sink interface {
	HandleSighting(s Sighting) error
}

// Config holds processor settings
type Config struct {
	CompanyID  uint16
	StaleAfter time.Duration // devices silent longer drop out of the active gauge
}

// Processor decodes advertisements and keeps the latest state per device
type Processor struct {
	config  Config
	metrics *metrics.Collector
	log     *logger.Logger

	mu      sync.RWMutex
	devices map[string]Sighting
	sinks   []Sink
}

// NewProcessor creates a processor
func NewProcessor(config Config, m *metrics.Collector, log *logger.Logger) *Processor {
	if m == nil {
		m = metrics.NewCollector()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Processor{
		config:  config,
		metrics: m,
		log:     log.WithComponent("scanner"),
		devices: make(map[string]Sighting),
	}
}

// AddSink registers a sink. Sinks are called in registration order.
func (p *Processor) AddSink(s Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sinks = append(p.sinks, s)
}

// Handle decodes adv. It reports false when the advertisement carries no
// payload for the configured company id or the payload matches no layout;
// neither case is an error.
func (p *Processor) Handle(adv Advertisement) (Sighting, bool) {
	payload, ok := adv.ManufacturerData[p.config.CompanyID]
	p.metrics.AdvertReceived(len(payload))
	if !ok {
		p.metrics.FrameIgnored(IgnoredNoManufacturerData)
		return Sighting{}, false
	}

	reading := protocol.Decode(payload)
	if reading.Empty() {
		p.metrics.FrameIgnored(IgnoredUndecodable)
		p.log.Debug("Ignoring undecodable payload",
			logger.String("address", adv.Address),
			logger.Hex("payload", payload))
		return Sighting{}, false
	}

	seenAt := adv.Timestamp
	if seenAt.IsZero() {
		seenAt = time.Now()
	}

	s := Sighting{
		Address: NormalizeAddress(adv.Address),
		Name:    adv.Name,
		RSSI:    adv.RSSI,
		Payload: append([]byte(nil), payload...),
		Reading: reading,
		SeenAt:  seenAt,
	}

	p.mu.Lock()
	// reports can arrive out of order; keep the newest
	if prev, exists := p.devices[s.Address]; !exists || !s.SeenAt.Before(prev.SeenAt) {
		p.devices[s.Address] = s
	}
	sinks := make([]Sink, len(p.sinks))
	copy(sinks, p.sinks)
	p.mu.Unlock()

	p.metrics.FrameDecoded(reading.Layout)
	p.metrics.DeviceSeen(s.Address, s.SeenAt)
	if p.config.StaleAfter > 0 {
		p.metrics.PruneDevices(s.SeenAt.Add(-p.config.StaleAfter))
	}

	for _, sink := range sinks {
		if err := sink.HandleSighting(s); err != nil {
			p.log.Warn("Sink failed",
				logger.String("address", s.Address),
				logger.Error(err))
		}
	}

	return s, true
}

// Devices returns the latest sighting of every device, ordered by address
func (p *Processor) Devices() []Sighting {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Sighting, 0, len(p.devices))
	for _, s := range p.devices {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Device returns the latest sighting for address
func (p *Processor) Device(address string) (Sighting, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, ok := p.devices[NormalizeAddress(address)]
	return s, ok
}

// DeviceCount returns the number of devices seen
func (p *Processor) DeviceCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.devices)
}

// NormalizeAddress upper-cases a device address and trims whitespace
func NormalizeAddress(address string) string {
	return strings.ToUpper(strings.TrimSpace(address))
}
