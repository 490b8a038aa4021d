package registry

import (
	"errors"
	"fmt"

	"share-vault/internal/domain"
)

// ErrInvalidTicker is returned for labels that cannot be used as a vault seed.
var ErrInvalidTicker = errors.New("invalid ticker")

// DefaultTicker keys the single-vault deployment when no ticker is supplied.
var DefaultTicker = mustTicker("DEFAULT")

// ParseTicker converts a label into a zero-padded Ticker. Empty labels resolve
// to DefaultTicker; labels wider than domain.TickerSize are rejected.
func ParseTicker(s string) (domain.Ticker, error) {
	var t domain.Ticker
	if s == "" {
		return DefaultTicker, nil
	}
	if len(s) > domain.TickerSize {
		return t, fmt.Errorf("%w: %q is %d bytes, max %d", ErrInvalidTicker, s, len(s), domain.TickerSize)
	}
	copy(t[:], s)
	if err := ValidateTicker(t); err != nil {
		return domain.Ticker{}, err
	}
	return t, nil
}

// ValidateTicker checks that t is a non-empty run of printable ASCII followed
// only by zero padding.
func ValidateTicker(t domain.Ticker) error {
	if t.IsZero() {
		return fmt.Errorf("%w: empty", ErrInvalidTicker)
	}
	padding := false
	for i, b := range t {
		if b == 0 {
			padding = true
			continue
		}
		if padding {
			return fmt.Errorf("%w: byte %d follows padding", ErrInvalidTicker, i)
		}
		if b < 0x21 || b > 0x7e {
			return fmt.Errorf("%w: byte %d is not printable", ErrInvalidTicker, i)
		}
	}
	return nil
}

func mustTicker(s string) domain.Ticker {
	var t domain.Ticker
	copy(t[:], s)
	return t
}
