package system

import "fmt"

const (
	// KiB is one kibibyte.
	KiB uint64 = 1 << 10
	// MiB is one mebibyte.
	MiB uint64 = 1 << 20
	// GiB is one gibibyte.
	GiB uint64 = 1 << 30
	// TiB is one tebibyte.
	TiB uint64 = 1 << 40
)

// SizeKind selects how a Size is interpreted.
type SizeKind int

const (
	// SizeBytes is an absolute size.
	SizeBytes SizeKind = iota
	// SizePercent is a percentage of the containing device or group.
	SizePercent
	// SizeFill consumes all remaining space.
	SizeFill
)

// Size is a partition or logical volume size.
type Size struct {
	Kind    SizeKind
	Bytes   uint64
	Percent uint64
}

// String renders the size in script syntax.
func (s Size) String() string {
	switch s.Kind {
	case SizePercent:
		return fmt.Sprintf("%d%%", s.Percent)
	case SizeFill:
		return "fill"
	}
	for _, u := range []struct {
		suffix string
		mult   uint64
	}{{"T", TiB}, {"G", GiB}, {"M", MiB}, {"K", KiB}} {
		if s.Bytes >= u.mult && s.Bytes%u.mult == 0 {
			return fmt.Sprintf("%d%s", s.Bytes/u.mult, u.suffix)
		}
	}
	return fmt.Sprintf("%d", s.Bytes)
}
