package capability

import (
	"context"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Capability describes a single action exposed by a module.
// The ID has the two-part form "<module>.<action>" and is unique
// across the whole registry.
type Capability struct {
	ID          string                 `json:"id"`
	Description string                 `json:"description"`
	Dangerous   bool                   `json:"dangerous"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`

	schema *gojsonschema.Schema
}

// Result is the normalized outcome of a module execution.
type Result struct {
	Message        string                 `json:"message"`
	Data           map[string]interface{} `json:"data,omitempty"`
	ScreenshotPath string                 `json:"screenshot_path,omitempty"`
}

// Module is a provider owning one or more capabilities. Modules are the
// only components permitted to perform OS-level or remote side effects.
type Module interface {
	// Name returns the module identifier (the prefix of its capability IDs).
	Name() string

	// Description returns a human-readable summary for the catalog.
	Description() string

	// Capabilities returns the actions this module exposes.
	Capabilities() []Capability

	// Execute runs one action with validated parameters.
	Execute(ctx context.Context, action string, params map[string]interface{}) (Result, error)

	// State returns a snapshot of module-specific status information.
	State(ctx context.Context) map[string]interface{}
}

// SplitID splits a capability ID into its module and action parts.
// It rejects anything that does not match the exact two-part shape.
func SplitID(id string) (module, action string, err error) {
	parts := strings.Split(id, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("capability id %q does not match module.action shape", id)
	}
	return parts[0], parts[1], nil
}

// CompileSchema builds the JSON schema used to validate parameters for
// this capability. Capabilities without declared parameters accept any
// object. The compiled schema is cached on the capability.
func (c *Capability) CompileSchema() error {
	doc := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": true,
	}
	if len(c.Parameters) > 0 {
		props := make(map[string]interface{}, len(c.Parameters))
		var required []string
		for name, spec := range c.Parameters {
			switch s := spec.(type) {
			case map[string]interface{}:
				prop := make(map[string]interface{}, len(s))
				for k, v := range s {
					if k == "required" {
						if req, ok := v.(bool); ok && req {
							required = append(required, name)
						}
						continue
					}
					prop[k] = v
				}
				props[name] = prop
			case string:
				// Shorthand: description only, optional string parameter.
				props[name] = map[string]interface{}{
					"description": s,
				}
			default:
				props[name] = map[string]interface{}{}
			}
		}
		doc["properties"] = props
		if len(required) > 0 {
			doc["required"] = required
		}
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("failed to compile schema for %s: %w", c.ID, err)
	}
	c.schema = schema
	return nil
}

// ValidateParams checks a parameter mapping against the capability's
// declared schema. Returns a descriptive error on the first violation.
func (c *Capability) ValidateParams(params map[string]interface{}) error {
	if c.schema == nil {
		if err := c.CompileSchema(); err != nil {
			return err
		}
	}
	if params == nil {
		params = map[string]interface{}{}
	}

	result, err := c.schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", c.ID, err)
	}
	if !result.Valid() {
		var reasons []string
		for _, desc := range result.Errors() {
			reasons = append(reasons, desc.String())
		}
		return fmt.Errorf("invalid parameters for %s: %s", c.ID, strings.Join(reasons, "; "))
	}
	return nil
}

// Param builds a typed parameter spec for capability declarations.
func Param(typ, description string, required bool) map[string]interface{} {
	spec := map[string]interface{}{
		"type":        typ,
		"description": description,
	}
	if required {
		spec["required"] = true
	}
	return spec
}
