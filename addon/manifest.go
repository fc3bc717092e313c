package addon

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/agentgraph/errors"
)

// Manifest declares an addon's identity, dependencies, and message API. The
// message API is advisory for the router but authoritative for language
// bindings marshaling property values across the instantiation boundary.
type Manifest struct {
	Kind         Kind                 `json:"type"`
	Name         string               `json:"name"`
	Version      string               `json:"version"`
	Dependencies []ManifestDependency `json:"dependencies,omitempty"`
	API          MessageAPI           `json:"api,omitempty"`
}

// ManifestDependency names another addon this one requires.
type ManifestDependency struct {
	Kind    Kind   `json:"type"`
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// MessageAPI lists the messages an addon accepts and emits, per kind and
// direction.
type MessageAPI struct {
	CmdIn         []MessageSchema `json:"cmd_in,omitempty"`
	CmdOut        []MessageSchema `json:"cmd_out,omitempty"`
	DataIn        []MessageSchema `json:"data_in,omitempty"`
	DataOut       []MessageSchema `json:"data_out,omitempty"`
	AudioFrameIn  []MessageSchema `json:"audio_frame_in,omitempty"`
	AudioFrameOut []MessageSchema `json:"audio_frame_out,omitempty"`
	VideoFrameIn  []MessageSchema `json:"video_frame_in,omitempty"`
	VideoFrameOut []MessageSchema `json:"video_frame_out,omitempty"`
}

// MessageSchema describes one message's property schema.
type MessageSchema struct {
	Name     string                    `json:"name"`
	Property map[string]PropertySchema `json:"property,omitempty"`
	Required []string                  `json:"required,omitempty"`
}

// PropertySchema describes one property's type.
type PropertySchema struct {
	Type string `json:"type"`
}

// ParseManifest decodes a manifest from JSON.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.WrapInvalid(err, "Manifest", "ParseManifest", "json decode")
	}
	if m.Name == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Manifest", "ParseManifest", "name validation")
	}
	return &m, nil
}

// SchemaIn returns the inbound schema declared for a message name in the
// given section ("cmd_in", "data_in", ...). Returns false when the manifest
// does not describe the message.
func (m *Manifest) SchemaIn(section, name string) (MessageSchema, bool) {
	var list []MessageSchema
	switch section {
	case "cmd_in":
		list = m.API.CmdIn
	case "cmd_out":
		list = m.API.CmdOut
	case "data_in":
		list = m.API.DataIn
	case "data_out":
		list = m.API.DataOut
	case "audio_frame_in":
		list = m.API.AudioFrameIn
	case "audio_frame_out":
		list = m.API.AudioFrameOut
	case "video_frame_in":
		list = m.API.VideoFrameIn
	case "video_frame_out":
		list = m.API.VideoFrameOut
	}
	for _, schema := range list {
		if schema.Name == name {
			return schema, true
		}
	}
	return MessageSchema{}, false
}

// jsonSchema compiles the message schema into a JSON Schema document.
func (s MessageSchema) jsonSchema() map[string]any {
	props := make(map[string]any, len(s.Property))
	for key, prop := range s.Property {
		props[key] = map[string]any{"type": normalizeSchemaType(prop.Type)}
	}
	doc := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(s.Required) > 0 {
		doc["required"] = s.Required
	}
	return doc
}

// normalizeSchemaType maps manifest type names to JSON Schema types. The
// manifest vocabulary uses the runtime's value types; buf/bytes values travel
// as base64 strings on the wire.
func normalizeSchemaType(t string) string {
	switch strings.ToLower(t) {
	case "string", "buf", "bytes":
		return "string"
	case "int", "int8", "int16", "int32", "int64", "uint8", "uint16", "uint32", "uint64":
		return "integer"
	case "float", "float32", "float64":
		return "number"
	case "bool":
		return "boolean"
	case "object":
		return "object"
	default:
		return t
	}
}

// ValidateProperties validates a message's serialized property bag against
// the schema. Violations return ErrInvalidConfig carrying every failed check.
func (s MessageSchema) ValidateProperties(propsJSON []byte) error {
	if len(s.Property) == 0 && len(s.Required) == 0 {
		return nil
	}
	if len(propsJSON) == 0 {
		propsJSON = []byte("{}")
	}

	schemaLoader := gojsonschema.NewGoLoader(s.jsonSchema())
	docLoader := gojsonschema.NewBytesLoader(propsJSON)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return errors.WrapInvalid(err, "MessageSchema", "ValidateProperties", "schema evaluation")
	}
	if result.Valid() {
		return nil
	}

	var details []string
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return errors.WrapInvalid(
		fmt.Errorf("%w: message %q: %s", errors.ErrInvalidConfig, s.Name, strings.Join(details, "; ")),
		"MessageSchema", "ValidateProperties", "property schema check")
}
