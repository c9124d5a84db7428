package tool

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// ParamType is the declared type of a tool parameter.
type ParamType string

// Parameter types.
const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
	TypeAny     ParamType = "any"
)

// IsValid returns true for a known parameter type.
func (t ParamType) IsValid() bool {
	switch t {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeArray, TypeObject, TypeAny:
		return true
	}
	return false
}

// Accepts reports whether a decoded JSON value is compatible with the type.
// Integers arrive as float64 from encoding/json and must be integral.
func (t ParamType) Accepts(v any) bool {
	switch t {
	case TypeAny:
		return true
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeNumber:
		switch v.(type) {
		case float64, float32, int, int64, int32, json.Number:
			return true
		}
		return false
	case TypeInteger:
		switch n := v.(type) {
		case int, int64, int32:
			return true
		case float64:
			return n == math.Trunc(n) && !math.IsInf(n, 0)
		case json.Number:
			_, err := n.Int64()
			return err == nil
		}
		return false
	case TypeArray:
		switch v.(type) {
		case []any, []string:
			return true
		}
		return false
	case TypeObject:
		_, ok := v.(map[string]any)
		return ok
	}
	return false
}

// Param describes one parameter of a tool.
type Param struct {
	Type        ParamType `json:"type"`
	Required    bool      `json:"required"`
	Description string    `json:"description,omitempty"`
}

// RequiredParam returns a required parameter of the given type.
func RequiredParam(t ParamType, desc string) Param {
	return Param{Type: t, Required: true, Description: desc}
}

// OptionalParam returns an optional parameter of the given type.
func OptionalParam(t ParamType, desc string) Param {
	return Param{Type: t, Description: desc}
}

// Schema maps parameter names to their declarations.
type Schema map[string]Param

// Names returns the parameter names in sorted order.
func (s Schema) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a copy of the schema.
func (s Schema) Clone() Schema {
	out := make(Schema, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Validate checks that every required parameter is present and non-null and
// that every declared parameter has a compatible type. Undeclared arguments
// are accepted.
func (s Schema) Validate(args map[string]any) error {
	var fields []FieldError
	for _, name := range s.Names() {
		p := s[name]
		v, ok := args[name]
		if !ok || v == nil {
			if p.Required {
				fields = append(fields, FieldError{Param: name, Message: "required parameter missing"})
			}
			continue
		}
		if !p.Type.Accepts(v) {
			fields = append(fields, FieldError{
				Param:   name,
				Message: fmt.Sprintf("expected %s, got %s", p.Type, describeValue(v)),
			})
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// JSONSchema renders the schema as a JSON Schema object for model prompts.
func (s Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s))
	required := []string{}
	for _, name := range s.Names() {
		p := s[name]
		prop := map[string]any{}
		if p.Type != TypeAny {
			prop["type"] = string(p.Type)
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		props[name] = prop
		if p.Required {
			required = append(required, name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func describeValue(v any) string {
	switch n := v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64:
		if n == math.Trunc(n) {
			return "integer"
		}
		return "number"
	case int, int32, int64:
		return "integer"
	case []any, []string:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
