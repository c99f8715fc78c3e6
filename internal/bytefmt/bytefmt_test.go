package bytefmt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name  string
		bytes uint64
		want  string
	}{
		{name: "bytes", bytes: 512, want: "512B"},
		{name: "kibibytes", bytes: 1536, want: "1.5K"},
		{name: "mebibytes", bytes: 8 << 20, want: "8.0M"},
		{name: "gibibytes", bytes: 100 << 30, want: "100.0G"},
		{name: "tebibytes", bytes: 4 << 40, want: "4.0T"},
		{name: "rounds up within unit", bytes: (1 << 30) - 1, want: "1024.0M"},
		{name: "zero", bytes: 0, want: "0B"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.bytes))
		})
	}
}
