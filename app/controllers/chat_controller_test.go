package controllers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildSystemPrompt(t *testing.T) {
	tests := []struct {
		name            string
		instruction     string
		userInstruction string
		want            string
	}{
		{"both empty", "", "", ""},
		{"whitespace only", "  \n", "\t", ""},
		{"persona only", "You are Nova.", "", "You are Nova."},
		{"user addition only", "", "Call me Lena.", "Call me Lena."},
		{"both set", "You are Nova.", "Call me Lena.", "You are Nova.\n\nCall me Lena."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildSystemPrompt(tt.instruction, tt.userInstruction))
		})
	}
}
