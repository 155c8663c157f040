package diag

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time {
	return time.Date(2024, 3, 9, 14, 5, 7, 123_000_000, time.UTC)
}

func TestReporterStreamFormat(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, WithClock(fixedClock))

	r.StepStart("disk")
	r.Error(Loc(Location{Name: "install.hs", Line: 4}), "partition: invalid size", "12Q")
	r.Warn(nil, "no repositories specified", "")
	r.StepEnd("disk")

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)

	assert.Equal(t, "2024-03-09T14:05:07.123Z\tstep-start\tdisk", lines[0])
	assert.Equal(t, "2024-03-09T14:05:07.123Z\tlog\terror: install.hs:4: partition: invalid size: 12Q", lines[1])
	assert.Equal(t, "2024-03-09T14:05:07.123Z\tlog\twarning: no repositories specified", lines[2])
	assert.Equal(t, "2024-03-09T14:05:07.123Z\tstep-end\tdisk", lines[3])
}

func TestReporterCounts(t *testing.T) {
	r := NewReporter(nil)

	r.Error(nil, "one", "")
	r.Error(nil, "two", "")
	r.Warn(nil, "three", "")
	r.Info(nil, "four", "")

	assert.Equal(t, 2, r.Errors())
	assert.Equal(t, 1, r.Warnings())
	require.Len(t, r.Diagnostics(), 4)
	assert.Equal(t, SeverityInfo, r.Diagnostics()[3].Severity)
}

func TestReporterNewlinesFlattened(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, WithClock(fixedClock))

	r.Error(nil, "command failed", "line one\nline two")

	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
	assert.Contains(t, buf.String(), "line one line two")
}

func TestReporterColor(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, WithClock(fixedClock), WithColor(true))

	r.Warn(Loc(Location{Name: "a", Line: 1}), "careful [here]", "")

	out := buf.String()
	assert.Contains(t, out, "\x1b[")
	assert.Contains(t, out, ": a:1: careful [here]")
}

func TestLocationString(t *testing.T) {
	assert.Equal(t, "base.hs:12", Location{Name: "base.hs", Line: 12, Inherited: true}.String())
}
