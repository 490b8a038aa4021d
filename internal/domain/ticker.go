package domain

import (
	"bytes"
	"fmt"
)

// TickerSize is the fixed width of a vault ticker label.
const TickerSize = 16

// Ticker is a fixed-width, zero-padded vault label used as an address seed.
type Ticker [TickerSize]byte

// String returns the label without trailing zero padding.
func (t Ticker) String() string {
	return string(bytes.TrimRight(t[:], "\x00"))
}

// IsZero reports whether no label bytes are set.
func (t Ticker) IsZero() bool {
	return t == Ticker{}
}

// MarshalText implements encoding.TextMarshaler.
func (t Ticker) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It only checks width;
// registry.ValidateTicker applies the full label rules.
func (t *Ticker) UnmarshalText(text []byte) error {
	if len(text) > TickerSize {
		return fmt.Errorf("ticker %q exceeds %d bytes", text, TickerSize)
	}
	*t = Ticker{}
	copy(t[:], text)
	return nil
}
