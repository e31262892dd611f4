package tts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/book-expert/podcast-service/internal/core"
)

// ErrEmptyScript is returned when a script file holds no sections.
var ErrEmptyScript = errors.New("script has no sections")

// parseJSON parses JSON data into the target interface.
func parseJSON(data []byte, target any) error {
	err := json.Unmarshal(data, target)
	if err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	return nil
}

// LoadScript reads a JSON-encoded Script from path.
func LoadScript(path string) (*core.Script, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is supplied by the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read script file '%s': %w", path, err)
	}

	var script core.Script

	err = parseJSON(data, &script)
	if err != nil {
		return nil, fmt.Errorf("failed to parse script file '%s': %w", path, err)
	}

	if len(script.Sections) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyScript, path)
	}

	return &script, nil
}
