// Package stack loads a stack file and resolves it against one of its
// variants into the deployment the sequencer runs.
package stack

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ezenkico/deploy-commander/sequencer/models"
)

// LoadStack reads, decodes and validates the stack file at path.
func LoadStack(path string) (*models.Stack, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stack file %q: %w", path, err)
	}

	s, err := ParseStack(b)
	if err != nil {
		return nil, fmt.Errorf("stack file %q: %w", path, err)
	}
	return s, nil
}

// ParseStack decodes a stack document. Unknown keys are rejected.
func ParseStack(b []byte) (*models.Stack, error) {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	var s models.Stack
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty stack document")
		}
		return nil, fmt.Errorf("decode: %w", err)
	}

	if err := Validate(&s); err != nil {
		return nil, err
	}
	return &s, nil
}
