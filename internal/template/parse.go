// Package template parses and validates agent definition files.
// Files arrive as raw text in either JSON or YAML; a single syntactic
// sniff (leading brace) picks the decoder. Validation accumulates
// every violation instead of failing on the first.
package template

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentmint/agentmint/pkg/models"
	"gopkg.in/yaml.v3"
)

// Formats a template file can be written in.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ParseError reports template text that is neither valid JSON nor
// valid YAML for the expected document shape.
type ParseError struct {
	Format string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse template as %s: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse decodes raw template text into a Template. It returns the
// canonical text (the input as received) and the detected format.
func Parse(raw string) (*models.Template, string, string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, "", "", &ParseError{Format: "template", Err: fmt.Errorf("empty input")}
	}

	var t models.Template
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal([]byte(trimmed), &t); err != nil {
			return nil, "", "", &ParseError{Format: FormatJSON, Err: err}
		}
		return &t, raw, FormatJSON, nil
	}

	if err := yaml.Unmarshal([]byte(raw), &t); err != nil {
		return nil, "", "", &ParseError{Format: FormatYAML, Err: err}
	}
	return &t, raw, FormatYAML, nil
}

// Checksum returns the hex SHA-256 of the canonical template text.
func Checksum(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
