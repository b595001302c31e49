// Package packet loads work packets from YAML or JSON files.
package packet

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/horizon/internal/engine/types"
	"github.com/Iron-Ham/horizon/internal/errors"
)

// Load reads and validates the packet at path. JSON files are accepted as
// YAML documents.
func Load(path string) (types.WorkPacket, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.WorkPacket{}, fmt.Errorf("read packet: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return types.WorkPacket{}, fmt.Errorf("packet %s: %w", path, err)
	}
	return p, nil
}

// Parse decodes and validates a packet. Unknown fields are rejected.
func Parse(data []byte) (types.WorkPacket, error) {
	var p types.WorkPacket
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		if err == io.EOF {
			return types.WorkPacket{}, errors.NewValidationError("packet is empty")
		}
		return types.WorkPacket{}, fmt.Errorf("decode packet: %w", err)
	}

	p = normalize(p)
	if err := Validate(p); err != nil {
		return types.WorkPacket{}, err
	}
	return p, nil
}

// Validate reports every problem with p, joined.
func Validate(p types.WorkPacket) error {
	var errs []error
	if strings.TrimSpace(p.Title) == "" {
		errs = append(errs, errors.NewValidationError("title is required").WithField("title"))
	}
	if strings.TrimSpace(p.Description) == "" && len(p.Tasks) == 0 {
		errs = append(errs, errors.NewValidationError("a description or at least one task is required").WithField("description"))
	}
	for i, task := range p.Tasks {
		if strings.TrimSpace(task) == "" {
			errs = append(errs, errors.NewValidationError("task must not be empty").WithField(fmt.Sprintf("tasks[%d]", i)))
		}
	}
	for i, c := range p.AcceptanceCriteria {
		if strings.TrimSpace(c) == "" {
			errs = append(errs, errors.NewValidationError("criterion must not be empty").WithField(fmt.Sprintf("acceptance_criteria[%d]", i)))
		}
	}
	return errors.Join(errs...)
}

// Marshal renders p as YAML.
func Marshal(p types.WorkPacket) ([]byte, error) {
	return yaml.Marshal(p)
}

func normalize(p types.WorkPacket) types.WorkPacket {
	p.Title = strings.TrimSpace(p.Title)
	p.Description = strings.TrimSpace(p.Description)
	return p
}
