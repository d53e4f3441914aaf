package scu

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadHashTable reads a YAML map of md5 hex digests to captcha codes.
func LoadHashTable(path string) (HashSolver, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("op=scu.LoadHashTable: %w", err)
	}
	var m map[string]string
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("op=scu.LoadHashTable: %w", err)
	}
	return HashSolver(m), nil
}
