//go:build linux

package system

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestMountOptions(t *testing.T) {
	tests := []struct {
		in    string
		flags uintptr
		data  string
	}{
		{"defaults", 0, ""},
		{"", 0, ""},
		{"ro,noatime", unix.MS_RDONLY | unix.MS_NOATIME, ""},
		{"nosuid,nodev,compress=zstd", unix.MS_NOSUID | unix.MS_NODEV, "compress=zstd"},
		{"rw,subvol=@home,relatime", unix.MS_RELATIME, "subvol=@home"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			flags, data := MountOptions(tt.in)
			assert.Equal(t, tt.flags, flags)
			assert.Equal(t, tt.data, data)
		})
	}
}
