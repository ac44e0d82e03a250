package face

import "sync/atomic"

// Tracker remembers the most recently observed face. It is written from
// whatever notices face changes and read when the next frame is assembled.
type Tracker struct {
	code atomic.Uint32
}

// SetGlyph records glyph and returns its code. Unrecognised glyphs reset the
// tracker to 0 so a stale face is never broadcast.
func (t *Tracker) SetGlyph(glyph string) uint8 {
	c := Code(glyph)
	t.code.Store(uint32(c))
	return c
}

// SetCode records a code directly; unknown codes are stored as 0
func (t *Tracker) SetCode(code uint8) {
	if !Known(code) {
		code = 0
	}
	t.code.Store(uint32(code))
}

// Code returns the current face code
func (t *Tracker) Code() uint8 {
	return uint8(t.code.Load())
}
