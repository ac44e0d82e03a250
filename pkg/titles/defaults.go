package titles

// Age tiers, keyed on epochs lived
var Age = MustNew(
	Entry{100, "Hatchling"},
	Entry{200, "Pingling"},
	Entry{300, "Bootsprout"},
	Entry{500, "Fledgling"},
	Entry{700, "Bitling"},
	Entry{1_000, "Orbitling"},
	Entry{1_500, "Qubitling"},
	Entry{2_500, "Pingpunk"},
	Entry{3_000, "Telemetry Tween"},
	Entry{3_500, "Cipher Teen"},
	Entry{4_250, "Beacon Teen"},
	Entry{5_000, "Protocol Teen"},
	Entry{6_000, "Emergent Adult"},
	Entry{7_000, "Young Adult"},
	Entry{8_000, "Mature"},
	Entry{9_000, "Seasoned"},
	Entry{10_000, "Elder"},
	Entry{12_000, "Encrypted Sage"},
	Entry{15_000, "Ancient"},
	Entry{20_000, "Celestial Ancestor"},
	Entry{30_000, "Eon Ancestor"},
	Entry{40_000, "Binary Venerable"},
	Entry{62_000, "Quantum Elder"},
	Entry{75_000, "Primordial"},
	Entry{100_000, "Galactic Root"},
	Entry{111_111, "Singularity"},
)

// Strength tiers, keyed on training epochs
var Strength = MustNew(
	Entry{100, "Neophyte"},
	Entry{250, "Cyber Trainee"},
	Entry{400, "Bitbreaker"},
	Entry{600, "Packet Slinger"},
	Entry{900, "Kernel Keeper"},
	Entry{1_200, "Deauth Cadet"},
	Entry{1_600, "Packeteer"},
	Entry{2_000, "Hash Hunter"},
	Entry{2_500, "Signalist"},
	Entry{3_200, "Ethernaut"},
	Entry{4_500, "WiFi Marauder"},
	Entry{6_000, "Neural Saboteur"},
	Entry{8_000, "Astral Admiral"},
	Entry{12_000, "Signal Master"},
	Entry{18_000, "Quantum Brawler"},
	Entry{30_000, "Rootwave Titan"},
	Entry{55_555, "Void Breaker"},
	Entry{111_111, "Omega Cipherlord"},
)

// Traveler tiers, keyed on travel XP
var Traveler = MustNew(
	Entry{0, "Homebody"},
	Entry{200, "Wanderling"},
	Entry{600, "City Stroller"},
	Entry{1_200, "Road Warrior"},
	Entry{2_400, "Jetsetter"},
	Entry{4_800, "Globetrotter"},
)

// AgeIndex ranks an epoch count in the Age table
func AgeIndex(epochs uint32) uint32 { return Age.Index(epochs) }

// AgeTitle names the age tier for an epoch count
func AgeTitle(epochs uint32) string { return Age.Label(epochs) }

// StrengthIndex ranks a training epoch count in the Strength table
func StrengthIndex(trainEpochs uint32) uint32 { return Strength.Index(trainEpochs) }

// StrengthTitle names the strength tier for a training epoch count
func StrengthTitle(trainEpochs uint32) string { return Strength.Label(trainEpochs) }

// TravelerTitle names the traveler tier for travel XP
func TravelerTitle(xp uint32) string { return Traveler.Label(xp) }
