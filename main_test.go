package main

import (
	"testing"

	"github.com/giantswarm/1mcp/cmd"
)

func TestVersionVariable(t *testing.T) {
	tests := []struct {
		name     string
		setValue string
		expected string
	}{
		{name: "default version", setValue: "", expected: "dev"},
		{name: "custom version", setValue: "1.0.0", expected: "1.0.0"},
		{name: "semantic version", setValue: "2.3.4-beta.1", expected: "2.3.4-beta.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := version
			defer func() { version = original }()

			if tt.setValue != "" {
				version = tt.setValue
			}
			if version != tt.expected {
				t.Errorf("version = %q, want %q", version, tt.expected)
			}
		})
	}
}

func TestSetVersionDoesNotPanic(t *testing.T) {
	for _, v := range []string{"dev", "1.0.0", "v2.0.0-rc1"} {
		cmd.SetVersion(v)
	}
}
