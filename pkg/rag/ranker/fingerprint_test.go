package ranker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint(t *testing.T) {
	long := strings.Repeat("prefix words ", 10) + "middle one" + strings.Repeat(" suffix words", 10)
	sameEdges := strings.Repeat("prefix words ", 10) + "middle two" + strings.Repeat(" suffix words", 10)

	tests := []struct {
		name  string
		a, b  string
		equal bool
	}{
		{"case and whitespace", "Hello   World", " hello world ", true},
		{"different text", "hello world", "hello there", false},
		{"same edges same length collide", long, sameEdges, true},
		{"same edges different length", long, long + " x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fa := Fingerprint(tt.a, 50, 16)
			fb := Fingerprint(tt.b, 50, 16)
			if tt.equal {
				assert.Equal(t, fa, fb)
			} else {
				assert.NotEqual(t, fa, fb)
			}
		})
	}
}

func TestFingerprint_Length(t *testing.T) {
	assert.Len(t, Fingerprint("some text", 50, 8), 8)
	assert.Len(t, Fingerprint("some text", 50, 16), 16)
	assert.Len(t, Fingerprint("some text", 50, 0), 16)
	assert.Len(t, Fingerprint("", 50, 8), 8)
}
