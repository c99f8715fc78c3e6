package config

import (
	_ "embed"
)

//go:embed labops.example.yml
var sampleConfig []byte

// SampleConfig returns the embedded, commented starter config written by
// `labops init`.
func SampleConfig() []byte {
	return sampleConfig
}
