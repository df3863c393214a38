package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRowString(t *testing.T) {
	r := Row{
		"a": "  Acme  ",
		"b": "nan",
		"c": 640610.0,
		"d": nil,
		"e": 42,
		"f": "None",
	}
	assert.Equal(t, "Acme", r.String("a"))
	assert.Equal(t, "", r.String("b"))
	assert.Equal(t, "640610", r.String("c"))
	assert.Equal(t, "", r.String("d"))
	assert.Equal(t, "42", r.String("e"))
	assert.Equal(t, "", r.String("f"))
	assert.Equal(t, "", r.String("missing"))
}

func TestRowFloat(t *testing.T) {
	r := Row{
		"num":   1.5,
		"int":   3,
		"str":   " 8.50 ",
		"comma": "1,200.25",
		"bad":   "n/a",
		"nan":   math.NaN(),
		"inf":   math.Inf(1),
		"infs":  "Infinity",
		"ninf":  "-inf",
		"empty": "",
	}

	tests := []struct {
		key    string
		want   float64
		wantOK bool
	}{
		{"num", 1.5, true},
		{"int", 3, true},
		{"str", 8.5, true},
		{"comma", 1200.25, true},
		{"bad", 0, false},
		{"nan", 0, false},
		{"inf", 0, false},
		{"infs", 0, false},
		{"ninf", 0, false},
		{"empty", 0, false},
		{"missing", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := r.Float(tt.key)
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestRowEmpty(t *testing.T) {
	assert.True(t, Row{"a": "", "b": "nan"}.Empty())
	assert.False(t, Row{"a": "", "b": "x"}.Empty())
}
