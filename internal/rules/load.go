package rules

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/t77yq/rpm-engine/internal/model"
)

// Load reads a YAML rule file and validates it. An empty path yields the
// built-in defaults.
func Load(path string) (model.RuleSet, error) {
	if path == "" {
		set := Default()
		if err := Validate(set); err != nil {
			return model.RuleSet{}, err
		}
		return set, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return model.RuleSet{}, fmt.Errorf("failed to read rule file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML rule definitions and validates them
func Parse(data []byte) (model.RuleSet, error) {
	var set model.RuleSet
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&set); err != nil {
		return model.RuleSet{}, fmt.Errorf("%w: failed to parse rule file: %v", ErrInvalidRule, err)
	}
	if err := Validate(set); err != nil {
		return model.RuleSet{}, err
	}
	return set, nil
}

// Marshal encodes a rule set in the format accepted by Parse
func Marshal(set model.RuleSet) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(set); err != nil {
		return nil, fmt.Errorf("failed to encode rules: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode rules: %w", err)
	}
	return buf.Bytes(), nil
}
