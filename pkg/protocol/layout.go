package protocol

// Payload format versions
const (
	Version1 uint8 = 1
	Version2 uint8 = 2
	Version3 uint8 = 3
	Version4 uint8 = 4 // never shipped with its own layout; decodes as v3
	Version5 uint8 = 5
	Version6 uint8 = 6

	LatestVersion = Version6
)

// Body lengths (bytes after the version byte)
const (
	LegacyBodyLen   = 11 // v1, v2
	Version3BodyLen = 15
	CompactBodyLen  = 11 // v5
	FaceBodyLen     = 13 // v6

	VersionFieldSize = 1
)

// FieldID names a payload field
type FieldID uint8

const (
	FieldHandshakes FieldID = iota + 1
	FieldPoints
	FieldEpochs
	FieldCPUTemp
	FieldBattery
	FieldFlags
	FieldAgeIndex
	FieldStrengthIndex
	FieldTravelerXP
	FieldTrainEpochs
	FieldFaceID
	FieldFaceRevision
)

var fieldNames = map[FieldID]string{
	FieldHandshakes:    "handshakes",
	FieldPoints:        "points",
	FieldEpochs:        "epochs",
	FieldCPUTemp:       "cpu_temp",
	FieldBattery:       "battery",
	FieldFlags:         "flags",
	FieldAgeIndex:      "age_idx",
	FieldStrengthIndex: "str_idx",
	FieldTravelerXP:    "traveler_xp",
	FieldTrainEpochs:   "train_epochs",
	FieldFaceID:        "face_id",
	FieldFaceRevision:  "face_rev",
}

func (f FieldID) String() string {
	if n, ok := fieldNames[f]; ok {
		return n
	}
	return "unknown"
}

// FieldSpec places one field inside a payload body. Width is 1 or 2 bytes;
// two-byte fields are little-endian.
type FieldSpec struct {
	ID     FieldID
	Offset int
	Width  int
}

// Layout is the fixed schema of one payload version. Layouts are
// independent of each other; field order differs between generations.
type Layout struct {
	Version uint8
	BodyLen int
	Fields  []FieldSpec
}

// FrameLen is the encoded length including the version byte
func (l Layout) FrameLen() int {
	return VersionFieldSize + l.BodyLen
}

// Has reports whether the layout carries field id
func (l Layout) Has(id FieldID) bool {
	for _, f := range l.Fields {
		if f.ID == id {
			return true
		}
	}
	return false
}

// handshakes/points/epochs/cpu/battery/flags/age_idx/str_idx
func legacyFields() []FieldSpec {
	return []FieldSpec{
		{FieldHandshakes, 0, 2},
		{FieldPoints, 2, 2},
		{FieldEpochs, 4, 2},
		{FieldCPUTemp, 6, 1},
		{FieldBattery, 7, 1},
		{FieldFlags, 8, 1},
		{FieldAgeIndex, 9, 1},
		{FieldStrengthIndex, 10, 1},
	}
}

// handshakes/points/epochs/cpu/traveler_xp/train_epochs
func compactFields() []FieldSpec {
	return []FieldSpec{
		{FieldHandshakes, 0, 2},
		{FieldPoints, 2, 2},
		{FieldEpochs, 4, 2},
		{FieldCPUTemp, 6, 1},
		{FieldTravelerXP, 7, 2},
		{FieldTrainEpochs, 9, 2},
	}
}

// layouts is ordered newest first; decode takes the first usable entry
var layouts = []Layout{
	{
		Version: Version6,
		BodyLen: FaceBodyLen,
		Fields: append(compactFields(),
			FieldSpec{FieldFaceID, 11, 1},
			FieldSpec{FieldFaceRevision, 12, 1},
		),
	},
	{
		Version: Version5,
		BodyLen: CompactBodyLen,
		Fields:  compactFields(),
	},
	{
		Version: Version3,
		BodyLen: Version3BodyLen,
		Fields: append(legacyFields(),
			FieldSpec{FieldTravelerXP, 11, 2},
			FieldSpec{FieldTrainEpochs, 13, 2},
		),
	},
	{
		Version: Version2,
		BodyLen: LegacyBodyLen,
		Fields:  legacyFields(),
	},
	{
		Version: Version1,
		BodyLen: LegacyBodyLen,
		Fields:  legacyFields(),
	},
}

// LayoutFor returns the layout defined for exactly version
func LayoutFor(version uint8) (Layout, bool) {
	for _, l := range layouts {
		if l.Version == version {
			return l, true
		}
	}
	return Layout{}, false
}

// Versions lists the versions that have a layout, oldest first
func Versions() []uint8 {
	out := make([]uint8, 0, len(layouts))
	for i := len(layouts) - 1; i >= 0; i-- {
		out = append(out, layouts[i].Version)
	}
	return out
}

// selectLayout picks the newest layout not newer than declared whose body
// fits in bodyLen. Short frames fall back to older, shorter layouts.
func selectLayout(declared uint8, bodyLen int) (Layout, bool) {
	if declared == 0 {
		return Layout{}, false
	}
	for _, l := range layouts {
		if l.Version <= declared && l.BodyLen <= bodyLen {
			return l, true
		}
	}
	return Layout{}, false
}
