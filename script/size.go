package script

import (
	"math"
	"strconv"
	"strings"

	herrors "github.com/horizon-installer/hscript/errors"
	"github.com/horizon-installer/hscript/system"
)

var sizeUnits = map[byte]uint64{
	'K': system.KiB,
	'M': system.MiB,
	'G': system.GiB,
	'T': system.TiB,
}

// ParseSize parses a size: a decimal number of bytes, optionally suffixed
// with K, M, G or T (binary multiples) or % of the containing device, or
// the literal "fill" for all remaining space.
func ParseSize(s string) (system.Size, error) {
	if s == "fill" {
		return system.Size{Kind: system.SizeFill}, nil
	}
	if s == "" {
		return system.Size{}, herrors.New(herrors.CodeInvalidInput, "empty size")
	}

	digits, suffix := s, byte(0)
	if last := s[len(s)-1]; last < '0' || last > '9' {
		digits, suffix = s[:len(s)-1], last
	}
	if digits == "" || strings.IndexFunc(digits, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return system.Size{}, herrors.Newf(herrors.CodeInvalidInput, "invalid size %q", s)
	}

	n, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return system.Size{}, herrors.Newf(herrors.CodeInvalidInput, "size %q is too large", s)
	}

	switch suffix {
	case 0:
		return system.Size{Kind: system.SizeBytes, Bytes: n}, nil
	case '%':
		if n == 0 || n > 100 {
			return system.Size{}, herrors.Newf(herrors.CodeInvalidInput, "percentage %q must be between 1 and 100", s)
		}
		return system.Size{Kind: system.SizePercent, Percent: n}, nil
	}

	unit, ok := sizeUnits[suffix]
	if !ok {
		return system.Size{}, herrors.Newf(herrors.CodeInvalidInput, "unknown size suffix %q in %q", string(suffix), s)
	}
	if n > math.MaxUint64/unit {
		return system.Size{}, herrors.Newf(herrors.CodeInvalidInput, "size %q is too large", s)
	}
	return system.Size{Kind: system.SizeBytes, Bytes: n * unit}, nil
}
