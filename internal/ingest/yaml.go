package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hurttlocker/rescuelog/internal/record"
)

// YAMLImporter handles .yaml and .yml exports.
type YAMLImporter struct{}

// CanHandle returns true for YAML file extensions.
func (y *YAMLImporter) CanHandle(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Import parses a YAML export shaped like the JSON one: a list of event
// mappings, or a mapping with a "messages" list.
func (y *YAMLImporter) Import(ctx context.Context, path string) ([]record.MessageEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, unavailable(path, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}

	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, malformed(path, err)
	}

	var elems []interface{}
	switch v := doc.(type) {
	case []interface{}:
		elems = v
	case map[string]interface{}:
		msgs, ok := v["messages"].([]interface{})
		if !ok {
			return nil, malformed(path, fmt.Errorf("mapping has no \"messages\" list"))
		}
		elems = msgs
	default:
		return nil, malformed(path, fmt.Errorf("expected list or mapping, got %T", doc))
	}
	return eventsFromElements(ctx, path, elems)
}
