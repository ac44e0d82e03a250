package protocol

import "math"

// BatteryUnknown is the wire value for "battery level not reported"
const BatteryUnknown = 255

// Charging flag bit carried by the legacy (v1-v3) flags byte
const FlagCharging = 0x01

// Maximum representable CPU temperature in °C (255 half-degrees)
const MaxCPUTempC = 127.5

// StatRecord is the encoder input. Fields are plain ints so that
// out-of-range inputs can be clamped to their wire width instead of
// wrapping into neighbouring bytes.
type StatRecord struct {
	Handshakes  int
	Points      int
	Epochs      int
	TrainEpochs int
	TravelerXP  int

	// CPU temperature in half degrees Celsius (°C * 2)
	CPUTempHalfDegrees int

	// 0-100, or BatteryUnknown
	BatteryPct int
	Charging   bool

	// 0 when no face is broadcast
	FaceID       int
	FaceRevision int
}

// HalfDegrees converts a temperature in °C to the wire unit, clamped to
// [0, MaxCPUTempC] and rounded half to even.
func HalfDegrees(celsius float64) int {
	if math.IsNaN(celsius) || celsius < 0 {
		return 0
	}
	if celsius > MaxCPUTempC {
		celsius = MaxCPUTempC
	}
	return int(math.RoundToEven(celsius * 2))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
