package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"éééé", 1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Estimate(tt.text), "text %q", tt.text)
	}
}

func TestCounter_Empty(t *testing.T) {
	assert.Zero(t, New("").Count(""))
}

func TestCounter_FallsBackForUnknownEncoding(t *testing.T) {
	c := New("no-such-encoding")
	assert.Equal(t, Estimate("hello world"), c.Count("hello world"))
}

func TestNew_DefaultEncoding(t *testing.T) {
	assert.Equal(t, DefaultEncoding, New("").encoding)
}
