package testhelpers

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/dbehnke/pwn-beacon/pkg/protocol"
	"github.com/dbehnke/pwn-beacon/pkg/radio"
)

// RadioCall records one controller command
type RadioCall struct {
	Op      string
	Params  [radio.ParametersLen]byte
	Data    []byte
	Enabled bool
}

// MockRadio implements radio.Controller in memory. When attached to a
// MockAir it broadcasts its advertising data every time it is enabled.
type MockRadio struct {
	Address string

	mu      sync.RWMutex
	calls   []RadioCall
	enabled bool
	data    protocol.Advertisement
	hasData bool
	failOps map[string]error
	air     *MockAir
}

// NewMockRadio creates a mock controller with a device address
func NewMockRadio(address string) *MockRadio {
	return &MockRadio{
		Address: address,
		failOps: make(map[string]error),
	}
}

// Attach connects the radio to air
func (m *MockRadio) Attach(air *MockAir) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.air = air
}

// FailOn makes op return err until cleared with a nil err
func (m *MockRadio) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failOps, op)
		return
	}
	m.failOps[op] = err
}

// SetAdvertisingParameters implements radio.Controller
func (m *MockRadio) SetAdvertisingParameters(ctx context.Context, p radio.AdvertisingParameters) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, RadioCall{Op: radio.OpSetParameters, Params: p.Bytes()})
	return m.failure(ctx, radio.OpSetParameters)
}

// SetAdvertisingData implements radio.Controller
func (m *MockRadio) SetAdvertisingData(ctx context.Context, adv protocol.Advertisement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, RadioCall{Op: radio.OpSetData, Data: adv.Bytes()})
	if err := m.failure(ctx, radio.OpSetData); err != nil {
		return err
	}
	m.data = adv
	m.hasData = true
	return nil
}

// SetAdvertisingEnabled implements radio.Controller
func (m *MockRadio) SetAdvertisingEnabled(ctx context.Context, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	op := radio.OpDisable
	if enabled {
		op = radio.OpEnable
	}
	m.calls = append(m.calls, RadioCall{Op: op, Enabled: enabled})
	if err := m.failure(ctx, op); err != nil {
		return err
	}

	m.enabled = enabled
	if enabled && m.hasData && m.air != nil {
		m.air.Broadcast(m.Address, m.data.Bytes())
	}
	return nil
}

func (m *MockRadio) failure(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err, ok := m.failOps[op]; ok {
		return fmt.Errorf("mock %s: %w", op, err)
	}
	return nil
}

// Calls returns every recorded command
func (m *MockRadio) Calls() []RadioCall {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]RadioCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// Ops returns the recorded operation names in order
func (m *MockRadio) Ops() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ops := make([]string, len(m.calls))
	for i, c := range m.calls {
		ops[i] = c.Op
	}
	return ops
}

// Enabled reports whether advertising is currently on
func (m *MockRadio) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Data returns the last advertising data accepted
func (m *MockRadio) Data() (protocol.Advertisement, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data, m.hasData
}

// AirPacket is one advertisement seen on the simulated air
type AirPacket struct {
	Address string
	RSSI    int
	Data    []byte
}

// Line renders the packet in the scanner's text ingest format
func (p AirPacket) Line() string {
	return fmt.Sprintf("%s %d %s", p.Address, p.RSSI, hex.EncodeToString(p.Data))
}

// MockAir collects broadcasts from attached radios
type MockAir struct {
	RSSI int

	mu          sync.RWMutex
	packets     []AirPacket
	subscribers []chan AirPacket
	closed      bool
}

// NewMockAir creates an empty air with a fixed reported signal strength
func NewMockAir() *MockAir {
	return &MockAir{RSSI: -55}
}

// Broadcast records a packet and delivers it to subscribers
func (a *MockAir) Broadcast(address string, data []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}

	packet := AirPacket{
		Address: address,
		RSSI:    a.RSSI,
		Data:    make([]byte, len(data)),
	}
	copy(packet.Data, data)
	a.packets = append(a.packets, packet)

	for _, sub := range a.subscribers {
		select {
		case sub <- packet:
		default:
			// Buffer full, drop packet
		}
	}
}

// Subscribe returns a channel receiving future packets
func (a *MockAir) Subscribe(buffer int) <-chan AirPacket {
	a.mu.Lock()
	defer a.mu.Unlock()

	ch := make(chan AirPacket, buffer)
	a.subscribers = append(a.subscribers, ch)
	return ch
}

// Packets returns every packet broadcast so far
func (a *MockAir) Packets() []AirPacket {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]AirPacket, len(a.packets))
	copy(out, a.packets)
	return out
}

// Close closes all subscriber channels
func (a *MockAir) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}
	a.closed = true
	for _, sub := range a.subscribers {
		close(sub)
	}
}
