package util

import (
	"testing"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
)

func TestPadRight(t *testing.T) {
	tests := []struct {
		name     string
		str      string
		width    int
		expected string
	}{
		{"Empty string", "", 5, "     "},
		{"Short string", "abc", 10, "abc       "},
		{"Exact width", "hello", 5, "hello"},
		{"String too long", "this is a very long string", 10, "this is..."},
		{"Width 4", "hello", 4, "h..."},
		{"Wide characters", "你好", 8, "你好    "},
		{"Mixed characters", "hello世界", 12, "hello世界   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, PadRight(tt.str, tt.width))
		})
	}
}

func TestCenter(t *testing.T) {
	tests := []struct {
		name     string
		str      string
		width    int
		expected string
	}{
		{"Even split", "ab", 6, "  ab  "},
		{"Odd remainder goes right", "ab", 5, " ab  "},
		{"Exact width", "left", 4, "left"},
		{"Too wide", "right arrow", 8, "right..."},
		{"Wide glyph", "⚽", 6, "  ⚽  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Center(tt.str, tt.width)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, tt.width, runewidth.StringWidth(got))
		})
	}
}
