package protocol

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/dbehnke/pwn-beacon/pkg/face"
	"github.com/dbehnke/pwn-beacon/pkg/titles"
)

// Reading is the decoded content of one payload. A nil field was not
// reported by the frame, which is different from a reported zero.
type Reading struct {
	// Version is the declared version byte; Layout is the layout actually
	// used, which is older when the frame was too short.
	Version uint8 `json:"version"`
	Layout  uint8 `json:"layout"`

	Handshakes  *uint16  `json:"handshakes,omitempty"`
	Points      *uint16  `json:"points,omitempty"`
	Epochs      *uint16  `json:"epochs,omitempty"`
	TrainEpochs *uint16  `json:"train_epochs,omitempty"`
	TravelerXP  *uint16  `json:"traveler_xp,omitempty"`
	CPUTemp     *float64 `json:"cpu_temp,omitempty"`
	BatteryPct  *uint8   `json:"battery,omitempty"`
	Charging    *bool    `json:"charging,omitempty"`

	// Tier indices pre-computed by v1-v3 encoders
	WireAgeIndex      *uint8 `json:"wire_age_index,omitempty"`
	WireStrengthIndex *uint8 `json:"wire_strength_index,omitempty"`

	FaceID       *uint8  `json:"face_id,omitempty"`
	FaceRevision *uint8  `json:"face_rev,omitempty"`
	Face         *string `json:"face,omitempty"`
	Mood         *string `json:"mood,omitempty"`

	AgeIndex      *uint32 `json:"age_index,omitempty"`
	AgeTitle      *string `json:"age_title,omitempty"`
	StrengthIndex *uint32 `json:"strength_index,omitempty"`
	StrengthTitle *string `json:"strength_title,omitempty"`
	TravelerTitle *string `json:"traveler_title,omitempty"`
}

// Empty reports whether no layout could be applied
func (r Reading) Empty() bool {
	return r.Layout == 0
}

// Decode extracts whatever fields the frame carries. It never fails: empty
// input yields an empty Reading, and short frames fall back to the newest
// older layout they can satisfy.
func Decode(data []byte) Reading {
	var r Reading
	if len(data) < VersionFieldSize {
		return r
	}

	body := data[VersionFieldSize:]
	layout, ok := selectLayout(data[0], len(body))
	if !ok {
		return r
	}

	r.Version = data[0]
	r.Layout = layout.Version

	for _, f := range layout.Fields {
		v, ok := readField(body, f)
		if !ok {
			continue
		}
		r.set(f.ID, v)
	}

	r.derive()
	return r
}

// DecodeHex decodes a hex string, ignoring spaces and colons. Only malformed
// hex is an error.
func DecodeHex(s string) (Reading, error) {
	clean := strings.NewReplacer(" ", "", ":", "", "\t", "").Replace(strings.TrimSpace(s))
	data, err := hex.DecodeString(clean)
	if err != nil {
		return Reading{}, fmt.Errorf("invalid payload hex: %w", err)
	}
	return Decode(data), nil
}

func readField(body []byte, f FieldSpec) (uint16, bool) {
	if f.Offset < 0 || f.Offset+f.Width > len(body) {
		return 0, false
	}
	switch f.Width {
	case 1:
		return uint16(body[f.Offset]), true
	case 2:
		return binary.LittleEndian.Uint16(body[f.Offset : f.Offset+2]), true
	default:
		return 0, false
	}
}

func (r *Reading) set(id FieldID, v uint16) {
	switch id {
	case FieldHandshakes:
		r.Handshakes = &v
	case FieldPoints:
		r.Points = &v
	case FieldEpochs:
		r.Epochs = &v
	case FieldTrainEpochs:
		r.TrainEpochs = &v
	case FieldTravelerXP:
		r.TravelerXP = &v
	case FieldCPUTemp:
		c := float64(v) / 2.0
		r.CPUTemp = &c
	case FieldBattery:
		if v != BatteryUnknown {
			b := uint8(v)
			r.BatteryPct = &b
		}
	case FieldFlags:
		charging := v&FlagCharging != 0
		r.Charging = &charging
	case FieldAgeIndex:
		b := uint8(v)
		r.WireAgeIndex = &b
	case FieldStrengthIndex:
		b := uint8(v)
		r.WireStrengthIndex = &b
	case FieldFaceID:
		if v != 0 {
			id := uint8(v)
			glyph := face.Glyph(id)
			mood := face.Mood(id)
			r.FaceID = &id
			r.Face = &glyph
			r.Mood = &mood
		}
	case FieldFaceRevision:
		rev := uint8(v)
		r.FaceRevision = &rev
	}
}

// derive fills the title fields from the raw counters
func (r *Reading) derive() {
	if r.Epochs != nil {
		idx := titles.AgeIndex(uint32(*r.Epochs))
		title := titles.AgeTitle(uint32(*r.Epochs))
		r.AgeIndex = &idx
		r.AgeTitle = &title
	}

	switch {
	case r.TrainEpochs != nil:
		idx := titles.StrengthIndex(uint32(*r.TrainEpochs))
		title := titles.StrengthTitle(uint32(*r.TrainEpochs))
		r.StrengthIndex = &idx
		r.StrengthTitle = &title
	case r.WireStrengthIndex != nil:
		// v1/v2 carry only the tier index
		idx := uint32(*r.WireStrengthIndex)
		title := titles.Strength.LabelAt(idx)
		if idx == 0 {
			title = titles.Strength.Label(0)
		}
		r.StrengthIndex = &idx
		r.StrengthTitle = &title
	}

	if r.TravelerXP != nil {
		title := titles.TravelerTitle(uint32(*r.TravelerXP))
		r.TravelerTitle = &title
	}
}

// Map flattens the reading into sensor-style keys, omitting absent fields
func (r Reading) Map() map[string]any {
	m := make(map[string]any)
	if r.Empty() {
		return m
	}

	m["version"] = r.Version
	m["layout"] = r.Layout

	putU16 := func(key string, v *uint16) {
		if v != nil {
			m[key] = *v
		}
	}
	putStr := func(key string, v *string) {
		if v != nil {
			m[key] = *v
		}
	}

	putU16("handshakes", r.Handshakes)
	putU16("points", r.Points)
	putU16("epochs", r.Epochs)
	putU16("train_epochs", r.TrainEpochs)
	putU16("traveler_xp", r.TravelerXP)
	if r.CPUTemp != nil {
		m["cpu_temp"] = *r.CPUTemp
	}
	if r.BatteryPct != nil {
		m["battery"] = *r.BatteryPct
	}
	if r.Charging != nil {
		m["charging"] = *r.Charging
	}
	if r.AgeIndex != nil {
		m["age_index"] = *r.AgeIndex
	}
	putStr("age_title", r.AgeTitle)
	if r.StrengthIndex != nil {
		m["strength_index"] = *r.StrengthIndex
	}
	putStr("strength_title", r.StrengthTitle)
	putStr("traveler_title", r.TravelerTitle)
	if r.FaceID != nil {
		m["face_id"] = *r.FaceID
	}
	if r.FaceRevision != nil {
		m["face_rev"] = *r.FaceRevision
	}
	putStr("face", r.Face)
	putStr("mood", r.Mood)

	return m
}
