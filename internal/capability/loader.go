package capability

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

//go:embed defaults/*.json
var defaultDocs embed.FS

const (
	defaultCapabilitiesFile = "defaults/capabilities.json"
	defaultRulesFile        = "defaults/validation-rules.json"
)

// Loader produces the capability set used by a processor.
type Loader interface {
	Load(ctx context.Context) (*Set, error)
}

// FileLoader reads the two documents from disk. An empty path selects the
// built-in document.
type FileLoader struct {
	CapabilitiesPath string
	RulesPath        string
}

// NewFileLoader returns a loader for the given paths.
func NewFileLoader(capabilitiesPath, rulesPath string) *FileLoader {
	return &FileLoader{CapabilitiesPath: capabilitiesPath, RulesPath: rulesPath}
}

// Load reads, decodes and validates both documents.
func (l *FileLoader) Load(ctx context.Context) (*Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var set Set
	if err := readDoc(l.CapabilitiesPath, defaultCapabilitiesFile, &set.Capabilities); err != nil {
		return nil, fmt.Errorf("load capabilities: %w", err)
	}
	if err := readDoc(l.RulesPath, defaultRulesFile, &set.Rules); err != nil {
		return nil, fmt.Errorf("load validation rules: %w", err)
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}

	log.Info().
		Str("engine", set.Capabilities.Engine).
		Int("columns", len(set.Capabilities.Schema.Columns)).
		Int("impossible_patterns", len(set.Rules.ImpossiblePatterns)).
		Int("clarification_triggers", len(set.Rules.ClarificationTriggers)).
		Msg("capability config loaded")

	return &set, nil
}

type staticLoader struct{ set *Set }

func (l staticLoader) Load(ctx context.Context) (*Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.set, nil
}

// Static returns a loader that always yields set. Used when the set is
// loaded once and shared with components built before the processor.
func Static(set *Set) Loader {
	return staticLoader{set: set}
}

// Default returns the built-in capability set.
func Default() (*Set, error) {
	return NewFileLoader("", "").Load(context.Background())
}

func readDoc(path, fallback string, into any) error {
	var (
		data []byte
		err  error
		name = path
	)
	if path == "" {
		name = fallback
		data, err = defaultDocs.ReadFile(fallback)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return err
	}
	return decode(name, data, into)
}

func decode(name string, data []byte, into any) error {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, into); err != nil {
			return fmt.Errorf("decode %s: %w", name, err)
		}
	default:
		dec := json.NewDecoder(strings.NewReader(string(data)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(into); err != nil {
			return fmt.Errorf("decode %s: %w", name, err)
		}
	}
	return nil
}
