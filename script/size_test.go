package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/horizon-installer/hscript/system"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    system.Size
		wantErr bool
	}{
		{name: "bytes", input: "4096", want: system.Size{Kind: system.SizeBytes, Bytes: 4096}},
		{name: "kibibytes", input: "8K", want: system.Size{Kind: system.SizeBytes, Bytes: 8 * system.KiB}},
		{name: "mebibytes", input: "512M", want: system.Size{Kind: system.SizeBytes, Bytes: 512 * system.MiB}},
		{name: "gibibytes", input: "20G", want: system.Size{Kind: system.SizeBytes, Bytes: 20 * system.GiB}},
		{name: "tebibytes", input: "2T", want: system.Size{Kind: system.SizeBytes, Bytes: 2 * system.TiB}},
		{name: "percent", input: "50%", want: system.Size{Kind: system.SizePercent, Percent: 50}},
		{name: "whole disk percent", input: "100%", want: system.Size{Kind: system.SizePercent, Percent: 100}},
		{name: "fill", input: "fill", want: system.Size{Kind: system.SizeFill}},
		{name: "zero percent", input: "0%", wantErr: true},
		{name: "over one hundred percent", input: "101%", wantErr: true},
		{name: "lowercase suffix", input: "5m", wantErr: true},
		{name: "unknown suffix", input: "5P", wantErr: true},
		{name: "suffix only", input: "G", wantErr: true},
		{name: "negative", input: "-5G", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "overflows unit", input: "17179869184G", wantErr: true},
		{name: "overflows uint64", input: "18446744073709551616", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
