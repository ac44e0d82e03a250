package metrics

import (
	"sort"
	"sync"
	"time"
)

// Collector collects beacon and scanner metrics
type Collector struct {
	mu sync.RWMutex

	// Beacon metrics
	framesEncoded      map[uint8]uint64 // key: payload version
	advertisingUpdates uint64
	radioErrors        map[string]uint64 // key: radio operation
	lastAdvertised     time.Time

	// Scanner metrics
	advertsReceived uint64
	bytesReceived   uint64
	framesDecoded   map[uint8]uint64  // key: selected layout
	framesIgnored   map[string]uint64 // key: reason

	activeDevices map[string]time.Time // key: device address
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		framesEncoded: make(map[uint8]uint64),
		radioErrors:   make(map[string]uint64),
		framesDecoded: make(map[uint8]uint64),
		framesIgnored: make(map[string]uint64),
		activeDevices: make(map[string]time.Time),
	}
}

// FrameEncoded records a payload encoded for advertising
func (c *Collector) FrameEncoded(version uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.framesEncoded[version]++
}

// AdvertisingUpdated records a completed advertising refresh
func (c *Collector) AdvertisingUpdated(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.advertisingUpdates++
	c.lastAdvertised = at
}

// RadioError records a failed radio operation
func (c *Collector) RadioError(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.radioErrors[op]++
}

// AdvertReceived records an incoming advertisement of n payload bytes
func (c *Collector) AdvertReceived(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.advertsReceived++
	if n > 0 {
		c.bytesReceived += uint64(n)
	}
}

// FrameDecoded records a payload decoded with layout
func (c *Collector) FrameDecoded(layout uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.framesDecoded[layout]++
}

// FrameIgnored records an advertisement that produced no reading
func (c *Collector) FrameIgnored(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.framesIgnored[reason]++
}

// DeviceSeen marks a device as active
func (c *Collector) DeviceSeen(address string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.activeDevices[address] = at
}

// PruneDevices forgets devices not seen since cutoff and returns how many
// were removed
func (c *Collector) PruneDevices(cutoff time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for addr, seen := range c.activeDevices {
		if seen.Before(cutoff) {
			delete(c.activeDevices, addr)
			removed++
		}
	}
	return removed
}

// Reset resets all gauges (useful for testing)
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.activeDevices = make(map[string]time.Time)
	// Counters are cumulative and survive a reset
}

// Getters for metrics

// GetFramesEncoded returns the total frames encoded across versions
func (c *Collector) GetFramesEncoded() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sumU8(c.framesEncoded)
}

// GetFramesEncodedByVersion returns a copy of the per-version counters
func (c *Collector) GetFramesEncodedByVersion() map[uint8]uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyU8(c.framesEncoded)
}

// GetAdvertisingUpdates returns completed advertising refreshes
func (c *Collector) GetAdvertisingUpdates() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.advertisingUpdates
}

// GetLastAdvertised returns the time of the last completed refresh
func (c *Collector) GetLastAdvertised() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastAdvertised
}

// GetRadioErrors returns the total failed radio operations
func (c *Collector) GetRadioErrors() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sumStr(c.radioErrors)
}

// GetRadioErrorsByOp returns a copy of the per-operation error counters
func (c *Collector) GetRadioErrorsByOp() map[string]uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyStr(c.radioErrors)
}

// GetAdvertsReceived returns total advertisements handled
func (c *Collector) GetAdvertsReceived() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.advertsReceived
}

// GetBytesReceived returns total payload bytes received
func (c *Collector) GetBytesReceived() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bytesReceived
}

// GetFramesDecoded returns total successful decodes
func (c *Collector) GetFramesDecoded() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sumU8(c.framesDecoded)
}

// GetFramesDecodedByLayout returns a copy of the per-layout counters
func (c *Collector) GetFramesDecodedByLayout() map[uint8]uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyU8(c.framesDecoded)
}

// GetFramesIgnored returns total advertisements that produced no reading
func (c *Collector) GetFramesIgnored() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sumStr(c.framesIgnored)
}

// GetFramesIgnoredByReason returns a copy of the per-reason counters
func (c *Collector) GetFramesIgnoredByReason() map[string]uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyStr(c.framesIgnored)
}

// GetActiveDevices returns the number of active devices
func (c *Collector) GetActiveDevices() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.activeDevices)
}

func sumU8(m map[uint8]uint64) uint64 {
	var total uint64
	for _, v := range m {
		total += v
	}
	return total
}

func sumStr(m map[string]uint64) uint64 {
	var total uint64
	for _, v := range m {
		total += v
	}
	return total
}

func copyU8(m map[uint8]uint64) map[uint8]uint64 {
	out := make(map[uint8]uint64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyStr(m map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortedU8(m map[uint8]uint64) []uint8 {
	keys := make([]uint8, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func sortedStr(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
