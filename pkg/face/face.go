// Package face maps pwnagotchi face glyphs to the compact codes carried in
// v6 beacon frames. Code 0 means no face was broadcast.
package face

import "strings"

// Unknown is reported for code 0 and codes outside the table
const Unknown = "unknown"

// Revision identifies the current code assignment. Bump it whenever an
// existing code changes meaning.
const Revision uint8 = 1

// MaxCode is the highest assigned code
const MaxCode uint8 = 21

// Entry is one row of the face table
type Entry struct {
	Code  uint8
	Glyph string
	Mood  string
}

var table = [...]Entry{
	{1, "(⇀‿‿↼)", "sleeping"},
	{2, "(≖‿‿≖)", "awakening"},
	{3, "(◕‿‿◕)", "normal"},
	{4, "( ⚆⚆)", "observing_neutral"},
	{5, "(☉☉ )", "observing_neutral"},
	{6, "( ◕‿◕)", "observing_happy"},
	{7, "(◕‿◕ )", "observing_happy"},
	{8, "(°▃▃°)", "intense"},
	{9, "(⌐■_■)", "cool"},
	{10, "(•‿‿•)", "happy"},
	{11, "(^‿‿^)", "grateful"},
	{12, "(ᵔ◡◡ᵔ)", "excited"},
	{13, "(✜‿‿✜)", "smart"},
	{14, "(♥‿‿♥)", "friendly"},
	{15, "(☼‿‿☼)", "motivated"},
	{16, "(≖__≖)", "demotivated"},
	{17, "(-__-)", "bored"},
	{18, "(╥☁╥ )", "sad"},
	{19, "(ب__ب)", "lonely"},
	{20, "(☓‿‿☓)", "broken"},
	{21, "(#__#)", "debugging"},
}

var byGlyph = func() map[string]uint8 {
	m := make(map[string]uint8, len(table))
	for _, e := range table {
		m[e.Glyph] = e.Code
	}
	return m
}()

// Code returns the code for a glyph, or 0 if the glyph is not in the table.
// Glyphs carry meaningful inner spaces, so only the ends are trimmed.
func Code(glyph string) uint8 {
	return byGlyph[strings.TrimSpace(glyph)]
}

// Known reports whether code names a table entry
func Known(code uint8) bool {
	return code >= 1 && code <= MaxCode
}

// Glyph returns the glyph for code, or Unknown
func Glyph(code uint8) string {
	if !Known(code) {
		return Unknown
	}
	return table[code-1].Glyph
}

// Mood returns the mood grouping for code, or Unknown
func Mood(code uint8) string {
	if !Known(code) {
		return Unknown
	}
	return table[code-1].Mood
}

// Entries returns a copy of the table in code order
func Entries() []Entry {
	out := make([]Entry, len(table))
	copy(out, table[:])
	return out
}
