package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"go.yaml.in/yaml/v3"
)

// PolicyParams is a desired-state document as written by a user. Every field
// is optional here so that command-line flags can fill in or override what
// the file leaves out. JSON documents are accepted as well.
type PolicyParams struct {
	SiteName    *string `yaml:"site_name"`
	Type        *string `yaml:"type"`
	Domain      *string `yaml:"domain"`
	IPv4Address *string `yaml:"ipv4_address"`
	TTLSeconds  *int    `yaml:"ttl_seconds"`
	Enabled     *bool   `yaml:"enabled"`
	State       *string `yaml:"state"`
}

// LoadPolicyParams reads a desired-state document. Unknown keys are rejected.
func LoadPolicyParams(path string) (*PolicyParams, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var p PolicyParams
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing policy file: %w", err)
	}
	return &p, nil
}
