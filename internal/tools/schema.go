package tools

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"openworker/internal/models"
)

// schemaCache compiles advertised parameter schemas on first use.
type schemaCache struct {
	mu       sync.Mutex
	resolved map[string]*jsonschema.Resolved
	logger   *slog.Logger
}

func newSchemaCache(logger *slog.Logger) *schemaCache {
	return &schemaCache{resolved: map[string]*jsonschema.Resolved{}, logger: logger}
}

func (c *schemaCache) reset() {
	c.mu.Lock()
	c.resolved = map[string]*jsonschema.Resolved{}
	c.mu.Unlock()
}

// validate checks args against def's schema. A schema that cannot be
// compiled is skipped, never held against the call.
func (c *schemaCache) validate(def models.ToolDefinition, args map[string]any) error {
	rs := c.get(def)
	if rs == nil {
		return nil
	}
	return rs.Validate(args)
}

func (c *schemaCache) get(def models.ToolDefinition) *jsonschema.Resolved {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rs, ok := c.resolved[def.Name]; ok {
		return rs
	}

	rs, err := compile(def)
	if err != nil {
		c.logger.Warn("tool.schema_unusable", "tool", def.Name, "error", err)
	}
	c.resolved[def.Name] = rs
	return rs
}

func compile(def models.ToolDefinition) (*jsonschema.Resolved, error) {
	raw, err := def.ParametersJSON()
	if err != nil {
		return nil, err
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	// Providers advertise assorted drafts; validation only needs the keywords.
	s.Schema = ""
	return s.Resolve(nil)
}
