package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Volume is a meter reading in cubic metres with fixed 4-decimal precision,
// stored as an integer count of ten-thousandths. All arithmetic and
// comparisons on readings happen on this type so two values captured on
// different devices compare exactly.
type Volume int64

// MaxMeterVolume is the register wrap bound of the deployed meter models and
// the default capture bound when none is configured.
const MaxMeterVolume Volume = 999999999 // 99999.9999 m³

// ParseVolume parses a decimal string like "1234.5678" into a Volume.
// Up to four fractional digits are accepted; fewer are padded with zeros.
func ParseVolume(s string) (Volume, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty volume")
	}

	neg := false
	if s[0] == '+' || s[0] == '-' {
		neg = s[0] == '-'
		s = s[1:]
	}

	intPart, fracPart := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i+1:]
	}
	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) > 4 {
		return 0, fmt.Errorf("volume %q exceeds 4 decimal places", s)
	}
	fracPart += strings.Repeat("0", 4-len(fracPart))

	whole, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid volume %q: %w", s, err)
	}
	frac, err := strconv.ParseInt(fracPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid volume %q: %w", s, err)
	}

	v := Volume(whole*10000 + frac)
	if neg {
		v = -v
	}
	return v, nil
}

// String renders the volume with exactly four decimal places, matching the
// NUMERIC(9,4) representation used by the billing server.
func (v Volume) String() string {
	sign := ""
	n := int64(v)
	if n < 0 {
		sign = "-"
		n = -n
	}
	return fmt.Sprintf("%s%d.%04d", sign, n/10000, n%10000)
}

// MarshalJSON emits the value as a plain JSON number, e.g. 1234.5678.
func (v Volume) MarshalJSON() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalJSON accepts either a JSON number or a quoted decimal string;
// the server emits numbers, but older app builds submitted strings.
func (v *Volume) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" {
		return nil
	}
	parsed, err := ParseVolume(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
