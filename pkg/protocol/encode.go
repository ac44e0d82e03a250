package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dbehnke/pwn-beacon/pkg/titles"
)

// ErrUnsupportedVersion is returned when encoding to a version without a layout
var ErrUnsupportedVersion = errors.New("unsupported payload version")

// Encode packs rec using the layout of version. Every field is clamped to
// its wire width; fields the layout does not define are left out.
func Encode(version uint8, rec StatRecord) ([]byte, error) {
	layout, ok := LayoutFor(version)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	data := make([]byte, layout.FrameLen())
	data[0] = version
	body := data[VersionFieldSize:]

	for _, f := range layout.Fields {
		putField(body, f, rec.fieldValue(f.ID))
	}

	return data, nil
}

// MustEncode is Encode for callers that have already validated version
func MustEncode(version uint8, rec StatRecord) []byte {
	data, err := Encode(version, rec)
	if err != nil {
		panic(err)
	}
	return data
}

func (r StatRecord) fieldValue(id FieldID) int {
	switch id {
	case FieldHandshakes:
		return r.Handshakes
	case FieldPoints:
		return r.Points
	case FieldEpochs:
		return r.Epochs
	case FieldCPUTemp:
		return r.CPUTempHalfDegrees
	case FieldBattery:
		return r.BatteryPct
	case FieldFlags:
		if r.Charging {
			return FlagCharging
		}
		return 0
	case FieldAgeIndex:
		// computed from the clamped counter so decoders see a consistent pair
		return int(titles.AgeIndex(uint32(clamp(r.Epochs, 0, 0xFFFF))))
	case FieldStrengthIndex:
		return int(titles.StrengthIndex(uint32(clamp(r.TrainEpochs, 0, 0xFFFF))))
	case FieldTravelerXP:
		return r.TravelerXP
	case FieldTrainEpochs:
		return r.TrainEpochs
	case FieldFaceID:
		return r.FaceID
	case FieldFaceRevision:
		return r.FaceRevision
	default:
		return 0
	}
}

func putField(body []byte, f FieldSpec, v int) {
	switch f.Width {
	case 1:
		body[f.Offset] = byte(clamp(v, 0, 0xFF))
	case 2:
		binary.LittleEndian.PutUint16(body[f.Offset:f.Offset+2], uint16(clamp(v, 0, 0xFFFF)))
	}
}
