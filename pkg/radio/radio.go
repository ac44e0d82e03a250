// Package radio drives the local Bluetooth controller's legacy advertising.
package radio

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/dbehnke/pwn-beacon/pkg/protocol"
)

// Controller is the narrow set of advertising operations the beacon needs
type Controller interface {
	SetAdvertisingParameters(ctx context.Context, p AdvertisingParameters) error
	SetAdvertisingData(ctx context.Context, adv protocol.Advertisement) error
	SetAdvertisingEnabled(ctx context.Context, enabled bool) error
}

// Operation names, used in errors and metrics labels
const (
	OpSetParameters = "set_parameters"
	OpSetData       = "set_data"
	OpEnable        = "enable"
	OpDisable       = "disable"
)

// AdvertisingType is the PDU type used while advertising
type AdvertisingType uint8

const (
	AdvInd        AdvertisingType = 0x00 // connectable undirected
	AdvDirectInd  AdvertisingType = 0x01
	AdvScanInd    AdvertisingType = 0x02 // scannable undirected
	AdvNonconnInd AdvertisingType = 0x03 // non-connectable undirected
)

// Advertising channel map bits
const (
	Channel37   uint8 = 0x01
	Channel38   uint8 = 0x02
	Channel39   uint8 = 0x04
	AllChannels       = Channel37 | Channel38 | Channel39
)

// Interval limits in 0.625 ms slots
const (
	slot             = 625 * time.Microsecond
	minIntervalSlots = 0x0020
	maxIntervalSlots = 0x4000
)

// ParametersLen is the size of the LE Set Advertising Parameters block
const ParametersLen = 15

// AdvertisingParameters is the LE Set Advertising Parameters command block
type AdvertisingParameters struct {
	IntervalMin     time.Duration
	IntervalMax     time.Duration
	Type            AdvertisingType
	OwnAddressType  uint8
	PeerAddressType uint8
	PeerAddress     [6]byte
	ChannelMap      uint8
	FilterPolicy    uint8
}

// DefaultAdvertisingParameters advertises non-connectable every 100 ms on
// all three advertising channels
func DefaultAdvertisingParameters() AdvertisingParameters {
	return AdvertisingParameters{
		IntervalMin: 100 * time.Millisecond,
		IntervalMax: 100 * time.Millisecond,
		Type:        AdvNonconnInd,
		ChannelMap:  AllChannels,
	}
}

// WithInterval returns p advertising every d
func (p AdvertisingParameters) WithInterval(d time.Duration) AdvertisingParameters {
	p.IntervalMin = d
	p.IntervalMax = d
	return p
}

// Bytes encodes the parameters in controller order. Intervals are
// converted to slots and clamped to the range the controller accepts.
func (p AdvertisingParameters) Bytes() [ParametersLen]byte {
	var b [ParametersLen]byte
	binary.LittleEndian.PutUint16(b[0:2], intervalSlots(p.IntervalMin))
	binary.LittleEndian.PutUint16(b[2:4], intervalSlots(p.IntervalMax))
	b[4] = byte(p.Type)
	b[5] = p.OwnAddressType
	b[6] = p.PeerAddressType
	copy(b[7:13], p.PeerAddress[:])
	b[13] = p.ChannelMap
	b[14] = p.FilterPolicy
	return b
}

func intervalSlots(d time.Duration) uint16 {
	n := int64(d / slot)
	if n < minIntervalSlots {
		n = minIntervalSlots
	}
	if n > maxIntervalSlots {
		n = maxIntervalSlots
	}
	return uint16(n)
}
