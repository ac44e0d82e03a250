package protocol

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

func sampleRecord() StatRecord {
	return StatRecord{
		Handshakes:         1234,
		Points:             5678,
		Epochs:             1050,
		TrainEpochs:        2100,
		TravelerXP:         700,
		CPUTempHalfDegrees: HalfDegrees(47.3),
		BatteryPct:         87,
		Charging:           true,
		FaceID:             9,
		FaceRevision:       1,
	}
}

func TestEncode_V6Bytes(t *testing.T) {
	rec := StatRecord{
		Handshakes:         1,
		Points:             2,
		Epochs:             3,
		CPUTempHalfDegrees: 4,
		TravelerXP:         5,
		TrainEpochs:        6,
		FaceID:             7,
		FaceRevision:       1,
	}

	data, err := Encode(Version6, rec)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	want := []byte{0x06, 0x01, 0x00, 0x02, 0x00, 0x03, 0x00, 0x04, 0x05, 0x00, 0x06, 0x00, 0x07, 0x01}
	if !bytes.Equal(data, want) {
		t.Errorf("Encoded bytes mismatch:\n got % x\nwant % x", data, want)
	}
}

func TestEncode_V3Bytes(t *testing.T) {
	data, err := Encode(Version3, sampleRecord())
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if len(data) != 16 {
		t.Fatalf("Expected 16 byte v3 frame, got %d", len(data))
	}

	want := []byte{
		0x03,
		0xD2, 0x04, // handshakes 1234
		0x2E, 0x16, // points 5678
		0x1A, 0x04, // epochs 1050
		95,         // cpu 47.5 °C
		87,         // battery
		0x01,       // charging
		6,          // age index for 1050
		8,          // strength index for 2100
		0xBC, 0x02, // traveler 700
		0x34, 0x08, // train 2100
	}
	if !bytes.Equal(data, want) {
		t.Errorf("Encoded bytes mismatch:\n got % x\nwant % x", data, want)
	}
}

func TestEncode_FrameLengths(t *testing.T) {
	tests := []struct {
		version uint8
		length  int
	}{
		{Version1, 12},
		{Version2, 12},
		{Version3, 16},
		{Version5, 12},
		{Version6, 14},
	}

	for _, tt := range tests {
		data, err := Encode(tt.version, StatRecord{})
		if err != nil {
			t.Fatalf("Encode(v%d) failed: %v", tt.version, err)
		}
		if len(data) != tt.length {
			t.Errorf("v%d: expected %d bytes, got %d", tt.version, tt.length, len(data))
		}
		if data[0] != tt.version {
			t.Errorf("v%d: version byte is %d", tt.version, data[0])
		}
	}
}

func TestEncode_UnsupportedVersion(t *testing.T) {
	for _, v := range []uint8{0, Version4, 7, 255} {
		_, err := Encode(v, StatRecord{})
		if !errors.Is(err, ErrUnsupportedVersion) {
			t.Errorf("Encode(v%d): expected ErrUnsupportedVersion, got %v", v, err)
		}
	}
}

func TestMustEncode_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected MustEncode to panic for version 4")
		}
	}()
	MustEncode(Version4, StatRecord{})
}

func TestEncode_Clamps(t *testing.T) {
	rec := StatRecord{
		Handshakes:         70000,
		Points:             -5,
		Epochs:             1 << 20,
		TravelerXP:         65536,
		TrainEpochs:        -1,
		CPUTempHalfDegrees: 300,
		FaceID:             300,
		FaceRevision:       -2,
	}

	r := Decode(MustEncode(Version6, rec))

	if *r.Handshakes != 65535 {
		t.Errorf("Expected handshakes clamped to 65535, got %d", *r.Handshakes)
	}
	if *r.Points != 0 {
		t.Errorf("Expected points clamped to 0, got %d", *r.Points)
	}
	if *r.Epochs != 65535 {
		t.Errorf("Expected epochs clamped to 65535, got %d", *r.Epochs)
	}
	if *r.TravelerXP != 65535 {
		t.Errorf("Expected traveler_xp clamped to 65535, got %d", *r.TravelerXP)
	}
	if *r.TrainEpochs != 0 {
		t.Errorf("Expected train_epochs clamped to 0, got %d", *r.TrainEpochs)
	}
	if *r.CPUTemp != 127.5 {
		t.Errorf("Expected cpu clamped to 127.5, got %v", *r.CPUTemp)
	}
	if *r.FaceID != 255 || *r.Face != "unknown" {
		t.Errorf("Expected face id 255 decoding to unknown, got %d %q", *r.FaceID, *r.Face)
	}
	if *r.FaceRevision != 0 {
		t.Errorf("Expected face revision clamped to 0, got %d", *r.FaceRevision)
	}
}

func TestHalfDegrees(t *testing.T) {
	tests := []struct {
		celsius float64
		want    int
	}{
		{-3, 0},
		{0, 0},
		{47.3, 95},
		{45.25, 90}, // ties go to even
		{45.75, 92},
		{127.5, 255},
		{200, 255},
		{math.NaN(), 0},
	}

	for _, tt := range tests {
		if got := HalfDegrees(tt.celsius); got != tt.want {
			t.Errorf("HalfDegrees(%v) = %d, want %d", tt.celsius, got, tt.want)
		}
	}
}

func TestRoundTrip_AllVersions(t *testing.T) {
	rec := sampleRecord()

	for _, v := range Versions() {
		layout, _ := LayoutFor(v)
		data := MustEncode(v, rec)
		r := Decode(data)

		if r.Version != v || r.Layout != v {
			t.Fatalf("v%d: decoded version/layout %d/%d", v, r.Version, r.Layout)
		}

		for _, f := range layout.Fields {
			switch f.ID {
			case FieldHandshakes:
				checkU16(t, v, f.ID, r.Handshakes, rec.Handshakes)
			case FieldPoints:
				checkU16(t, v, f.ID, r.Points, rec.Points)
			case FieldEpochs:
				checkU16(t, v, f.ID, r.Epochs, rec.Epochs)
			case FieldTravelerXP:
				checkU16(t, v, f.ID, r.TravelerXP, rec.TravelerXP)
			case FieldTrainEpochs:
				checkU16(t, v, f.ID, r.TrainEpochs, rec.TrainEpochs)
			case FieldCPUTemp:
				if r.CPUTemp == nil || math.Abs(*r.CPUTemp-47.3) > 0.5 {
					t.Errorf("v%d: cpu temp %v not within 0.5 of 47.3", v, r.CPUTemp)
				}
			case FieldBattery:
				if r.BatteryPct == nil || int(*r.BatteryPct) != rec.BatteryPct {
					t.Errorf("v%d: battery %v, want %d", v, r.BatteryPct, rec.BatteryPct)
				}
			case FieldFlags:
				if r.Charging == nil || *r.Charging != rec.Charging {
					t.Errorf("v%d: charging %v, want %v", v, r.Charging, rec.Charging)
				}
			case FieldAgeIndex:
				if r.WireAgeIndex == nil || *r.WireAgeIndex != 6 {
					t.Errorf("v%d: wire age index %v, want 6", v, r.WireAgeIndex)
				}
			case FieldStrengthIndex:
				if r.WireStrengthIndex == nil || *r.WireStrengthIndex != 8 {
					t.Errorf("v%d: wire strength index %v, want 8", v, r.WireStrengthIndex)
				}
			case FieldFaceID:
				if r.FaceID == nil || int(*r.FaceID) != rec.FaceID {
					t.Errorf("v%d: face id %v, want %d", v, r.FaceID, rec.FaceID)
				}
			case FieldFaceRevision:
				if r.FaceRevision == nil || int(*r.FaceRevision) != rec.FaceRevision {
					t.Errorf("v%d: face revision %v, want %d", v, r.FaceRevision, rec.FaceRevision)
				}
			}
		}

		// fields outside the layout stay absent
		if !layout.Has(FieldTravelerXP) && r.TravelerXP != nil {
			t.Errorf("v%d: traveler_xp should be absent", v)
		}
		if !layout.Has(FieldBattery) && r.BatteryPct != nil {
			t.Errorf("v%d: battery should be absent", v)
		}
		if !layout.Has(FieldFaceID) && (r.FaceID != nil || r.Face != nil) {
			t.Errorf("v%d: face should be absent", v)
		}
	}
}

func checkU16(t *testing.T, v uint8, id FieldID, got *uint16, want int) {
	t.Helper()
	if got == nil {
		t.Errorf("v%d: %s missing", v, id)
		return
	}
	if int(*got) != want {
		t.Errorf("v%d: %s = %d, want %d", v, id, *got, want)
	}
}

func TestDecode_Empty(t *testing.T) {
	for _, data := range [][]byte{nil, {}, {6}, {0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}} {
		r := Decode(data)
		if !r.Empty() {
			t.Errorf("Decode(% x): expected empty reading, got layout %d", data, r.Layout)
		}
		if len(r.Map()) != 0 {
			t.Errorf("Decode(% x): expected empty map", data)
		}
	}
}

func TestDecode_TruncatedV6FallsBackToV5(t *testing.T) {
	full := MustEncode(Version6, sampleRecord())
	short := full[:12]

	r := Decode(short)
	if r.Version != Version6 {
		t.Errorf("Expected declared version 6, got %d", r.Version)
	}
	if r.Layout != Version5 {
		t.Fatalf("Expected fallback to layout 5, got %d", r.Layout)
	}
	if r.Handshakes == nil || *r.Handshakes != 1234 {
		t.Errorf("Expected handshakes 1234, got %v", r.Handshakes)
	}
	if r.TrainEpochs == nil || *r.TrainEpochs != 2100 {
		t.Errorf("Expected train_epochs 2100, got %v", r.TrainEpochs)
	}
	if r.FaceID != nil || r.FaceRevision != nil || r.Face != nil {
		t.Error("Face fields must be absent when the frame is too short for v6")
	}
}

func TestDecode_TruncatedV3FallsBackToV2(t *testing.T) {
	full := MustEncode(Version3, sampleRecord())

	r := Decode(full[:12])
	if r.Layout != Version2 {
		t.Fatalf("Expected fallback to layout 2, got %d", r.Layout)
	}
	if r.TravelerXP != nil || r.TrainEpochs != nil {
		t.Error("Tail fields must be absent in the fallback layout")
	}
	if r.BatteryPct == nil || *r.BatteryPct != 87 {
		t.Errorf("Expected battery 87, got %v", r.BatteryPct)
	}
	if r.StrengthTitle == nil || *r.StrengthTitle != "Hash Hunter" {
		t.Errorf("Expected strength title from wire index, got %v", r.StrengthTitle)
	}
}

func TestDecode_TooShortForAnyLayout(t *testing.T) {
	data := MustEncode(Version5, sampleRecord())[:6]
	if r := Decode(data); !r.Empty() {
		t.Errorf("Expected empty reading for 5 byte body, got layout %d", r.Layout)
	}
}

func TestDecode_VersionFour(t *testing.T) {
	data := MustEncode(Version3, sampleRecord())
	data[0] = Version4

	r := Decode(data)
	if r.Version != Version4 || r.Layout != Version3 {
		t.Errorf("Expected v4 frame decoded with layout 3, got %d/%d", r.Version, r.Layout)
	}
}

func TestDecode_FutureVersionUsesNewestLayout(t *testing.T) {
	data := MustEncode(Version6, sampleRecord())
	data[0] = 9
	data = append(data, 0xAA, 0xBB)

	r := Decode(data)
	if r.Layout != Version6 {
		t.Fatalf("Expected layout 6, got %d", r.Layout)
	}
	if r.Face == nil || *r.Face != "(⌐■_■)" {
		t.Errorf("Expected cool face, got %v", r.Face)
	}
	if r.Mood == nil || *r.Mood != "cool" {
		t.Errorf("Expected mood cool, got %v", r.Mood)
	}
}

func TestDecode_BatteryUnknownIsAbsent(t *testing.T) {
	rec := sampleRecord()
	rec.BatteryPct = BatteryUnknown

	r := Decode(MustEncode(Version2, rec))
	if r.BatteryPct != nil {
		t.Errorf("Expected battery absent for wire value 255, got %d", *r.BatteryPct)
	}
	if _, ok := r.Map()["battery"]; ok {
		t.Error("Map must not contain battery when absent")
	}
}

func TestDecode_NoFaceBroadcast(t *testing.T) {
	rec := sampleRecord()
	rec.FaceID = 0

	r := Decode(MustEncode(Version6, rec))
	if r.FaceID != nil || r.Face != nil || r.Mood != nil {
		t.Error("Face fields must be absent when face id is 0")
	}
	if r.FaceRevision == nil || *r.FaceRevision != 1 {
		t.Errorf("Expected face revision 1, got %v", r.FaceRevision)
	}
}

func TestDecode_DerivedTitles(t *testing.T) {
	r := Decode(MustEncode(Version5, sampleRecord()))

	if r.AgeIndex == nil || *r.AgeIndex != 6 {
		t.Errorf("Expected age index 6 for 1050 epochs, got %v", r.AgeIndex)
	}
	if r.AgeTitle == nil || *r.AgeTitle != "Orbitling" {
		t.Errorf("Expected Orbitling, got %v", r.AgeTitle)
	}
	if r.StrengthTitle == nil || *r.StrengthTitle != "Hash Hunter" {
		t.Errorf("Expected Hash Hunter, got %v", r.StrengthTitle)
	}
	if r.TravelerTitle == nil || *r.TravelerTitle != "City Stroller" {
		t.Errorf("Expected City Stroller, got %v", r.TravelerTitle)
	}

	m := r.Map()
	for _, key := range []string{"handshakes", "points", "epochs", "train_epochs", "cpu_temp", "traveler_xp",
		"age_index", "age_title", "strength_title", "traveler_title"} {
		if _, ok := m[key]; !ok {
			t.Errorf("Map missing key %q", key)
		}
	}
	for _, key := range []string{"battery", "charging", "face", "mood"} {
		if _, ok := m[key]; ok {
			t.Errorf("Map should not contain %q for a v5 frame", key)
		}
	}
}

func TestDecode_ArbitraryInputNeverPanics(t *testing.T) {
	buf := make([]byte, 40)
	for i := range buf {
		buf[i] = byte(i*37 + 11)
	}

	for version := 0; version <= 10; version++ {
		buf[0] = byte(version)
		for n := 0; n <= len(buf); n++ {
			r := Decode(buf[:n])
			if !r.Empty() && r.Layout > uint8(version) {
				t.Errorf("Layout %d newer than declared version %d", r.Layout, version)
			}
		}
	}
}

func TestDecodeHex(t *testing.T) {
	r, err := DecodeHex("06 01:00 02:00 03:00 04 05:00 06:00 07 01")
	if err != nil {
		t.Fatalf("DecodeHex failed: %v", err)
	}
	if r.Layout != Version6 || *r.Handshakes != 1 || *r.FaceID != 7 {
		t.Errorf("Unexpected reading: %+v", r)
	}

	if _, err := DecodeHex("zz"); err == nil {
		t.Error("Expected error for invalid hex")
	}

	r, err = DecodeHex("")
	if err != nil || !r.Empty() {
		t.Errorf("Expected empty reading for empty hex, got %+v, %v", r, err)
	}
}

func TestVersions(t *testing.T) {
	want := []uint8{1, 2, 3, 5, 6}
	got := Versions()
	if !bytes.Equal(got, want) {
		t.Errorf("Versions() = %v, want %v", got, want)
	}
}
