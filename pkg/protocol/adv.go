package protocol

import (
	"encoding/binary"
	"encoding/hex"
)

// MaxAdvertisingDataLen is the legacy advertising PDU data limit
const MaxAdvertisingDataLen = 31

// AD structure types
const (
	ADTypeFlags            = 0x01
	ADTypeManufacturerData = 0xFF
)

// Advertising flags
const (
	FlagGeneralDiscoverable = 0x02 // LE General Discoverable Mode
	FlagLEOnly              = 0x04 // BR/EDR Not Supported
)

// DefaultCompanyID is the reserved "no company" identifier. It is not an
// assigned Bluetooth SIG id.
const DefaultCompanyID uint16 = 0xFFFF

// Frame layout sizes
const (
	flagsADLen         = 3 // length, type, flags
	manufacturerHdrLen = 4 // length, type, company id (2)

	// MaxManufacturerPayloadLen is the largest payload that fits after the
	// flags and manufacturer headers.
	MaxManufacturerPayloadLen = MaxAdvertisingDataLen - flagsADLen - manufacturerHdrLen
)

// Advertisement is a zero-padded 31 byte advertising data block
type Advertisement struct {
	data [MaxAdvertisingDataLen]byte
	n    int
}

// Frame wraps payload into a flags AD structure followed by a manufacturer
// specific data AD structure keyed by companyID. Payload bytes that do not
// fit are dropped; the flags and company id are always kept. The AD length
// byte describes the truncated structure, so an oversized payload yields a
// well-formed frame where the pwnagotchi plugin wrote the untruncated length.
func Frame(payload []byte, companyID uint16) Advertisement {
	if len(payload) > MaxManufacturerPayloadLen {
		payload = payload[:MaxManufacturerPayloadLen]
	}

	var a Advertisement
	buf := a.data[:0]
	buf = append(buf, 2, ADTypeFlags, FlagGeneralDiscoverable|FlagLEOnly)
	buf = append(buf, byte(len(payload)+3), ADTypeManufacturerData)
	buf = binary.LittleEndian.AppendUint16(buf, companyID)
	buf = append(buf, payload...)
	a.n = len(buf)

	return a
}

// Bytes returns all 31 bytes including padding
func (a Advertisement) Bytes() []byte {
	out := make([]byte, MaxAdvertisingDataLen)
	copy(out, a.data[:])
	return out
}

// Len is the number of significant (non-padding) bytes
func (a Advertisement) Len() int {
	return a.n
}

// CommandParams is the parameter block of an LE Set Advertising Data
// command: the significant length followed by the padded data.
func (a Advertisement) CommandParams() []byte {
	out := make([]byte, 0, MaxAdvertisingDataLen+1)
	out = append(out, byte(a.n))
	return append(out, a.data[:]...)
}

// String renders the significant bytes as hex
func (a Advertisement) String() string {
	return hex.EncodeToString(a.data[:a.n])
}

// ExtractManufacturerData walks the AD structures in adv and returns the
// payload that follows companyID. Truncated trailing structures yield
// whatever bytes are present; a zero length byte ends the walk.
func ExtractManufacturerData(adv []byte, companyID uint16) ([]byte, bool) {
	i := 0
	for i < len(adv) {
		l := int(adv[i])
		if l == 0 {
			break
		}
		start := i + 1
		end := start + l
		if end > len(adv) {
			end = len(adv)
		}

		if end-start >= 3 && adv[start] == ADTypeManufacturerData {
			if binary.LittleEndian.Uint16(adv[start+1:start+3]) == companyID {
				out := make([]byte, end-start-3)
				copy(out, adv[start+3:end])
				return out, true
			}
		}

		i = start + l
	}
	return nil, false
}
