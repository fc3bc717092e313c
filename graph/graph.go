package graph

import (
	"encoding/json"
	"fmt"

	"github.com/c360/agentgraph/errors"
	"github.com/c360/agentgraph/message"
)

// Node type discriminators used in graph definitions.
const (
	NodeTypeExtension      = "extension"
	NodeTypeExtensionGroup = "extension_group"
)

// DefaultGroupAddon is the addon used for extension groups that are referenced
// by extensions but have no declared extension_group node.
const DefaultGroupAddon = "default_extension_group"

// Definition is the declarative description of one graph.
type Definition struct {
	// Name identifies the graph within its app. Optional for ad hoc graphs.
	Name string `json:"name,omitempty"`
	// AutoStart marks a predefined graph to be started when the app runs.
	AutoStart bool `json:"auto_start,omitempty"`
	// Nodes declares the extensions and extension groups of the graph.
	Nodes []Node `json:"nodes"`
	// Connections is the routing table source: one entry per source
	// extension, with per-kind rule lists.
	Connections []Connection `json:"connections,omitempty"`
}

// Node declares one extension or extension group.
type Node struct {
	Type string `json:"type"`
	Name string `json:"name"`
	// Addon names the registered factory that instantiates this node.
	Addon string `json:"addon"`
	// ExtensionGroup names the owning group. Extension nodes only.
	ExtensionGroup string `json:"extension_group,omitempty"`
	// Property is the node's configuration, handed verbatim to the addon
	// factory and exposed to the instance through its Env.
	Property json.RawMessage `json:"property,omitempty"`
}

// Connection declares the outbound routing rules for one source extension.
type Connection struct {
	Extension  string `json:"extension"`
	Cmd        []Rule `json:"cmd,omitempty"`
	Data       []Rule `json:"data,omitempty"`
	AudioFrame []Rule `json:"audio_frame,omitempty"`
	VideoFrame []Rule `json:"video_frame,omitempty"`
}

// Rule routes messages with a given name to an ordered destination list.
type Rule struct {
	Name string        `json:"name"`
	Dest []Destination `json:"dest"`
}

// Destination names a destination extension.
type Destination struct {
	Extension string `json:"extension"`
}

// Parse decodes a graph definition from JSON and validates it.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrGraphInvalid, err),
			"Definition", "Parse", "json decode")
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks the definition's structural invariants: node declarations
// are well formed and unique, and every connection source and destination
// resolves to a declared extension node. Violations return ErrGraphInvalid
// identifying the offending node or connection; nothing is partially applied.
func (d *Definition) Validate() error {
	extensions := make(map[string]Node)
	groups := make(map[string]Node)

	for _, node := range d.Nodes {
		switch node.Type {
		case NodeTypeExtension:
			if node.Name == "" {
				return invalid("extension node with empty name")
			}
			if node.Addon == "" {
				return invalid("extension %q declares no addon", node.Name)
			}
			if node.ExtensionGroup == "" {
				return invalid("extension %q declares no extension_group", node.Name)
			}
			if _, dup := extensions[node.Name]; dup {
				return invalid("duplicate extension node %q", node.Name)
			}
			extensions[node.Name] = node
		case NodeTypeExtensionGroup:
			if node.Name == "" {
				return invalid("extension_group node with empty name")
			}
			if _, dup := groups[node.Name]; dup {
				return invalid("duplicate extension_group node %q", node.Name)
			}
			groups[node.Name] = node
		default:
			return invalid("node %q has unknown type %q", node.Name, node.Type)
		}
	}

	if len(extensions) == 0 {
		return invalid("graph declares no extension nodes")
	}

	for _, conn := range d.Connections {
		if _, ok := extensions[conn.Extension]; !ok {
			return invalid("connection source %q is not a declared extension", conn.Extension)
		}

		sections := []struct {
			kind  message.Kind
			rules []Rule
		}{
			{message.KindCommand, conn.Cmd},
			{message.KindData, conn.Data},
			{message.KindAudioFrame, conn.AudioFrame},
			{message.KindVideoFrame, conn.VideoFrame},
		}

		for _, section := range sections {
			seen := make(map[string]bool)
			for _, rule := range section.rules {
				if rule.Name == "" {
					return invalid("connection %q has a %s rule with empty name",
						conn.Extension, section.kind)
				}
				if seen[rule.Name] {
					return invalid("connection %q has duplicate %s rule %q",
						conn.Extension, section.kind, rule.Name)
				}
				seen[rule.Name] = true

				if len(rule.Dest) == 0 {
					return invalid("connection %q rule %s:%q has no destinations",
						conn.Extension, section.kind, rule.Name)
				}
				for _, dest := range rule.Dest {
					if _, ok := extensions[dest.Extension]; !ok {
						return invalid("connection %q rule %s:%q references undeclared extension %q",
							conn.Extension, section.kind, rule.Name, dest.Extension)
					}
				}
			}
		}
	}

	return nil
}

func invalid(format string, args ...any) error {
	detail := fmt.Sprintf(format, args...)
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s", errors.ErrGraphInvalid, detail),
		"Definition", "Validate", "connection table check")
}

// ExtensionNodes returns the extension nodes in declaration order.
func (d *Definition) ExtensionNodes() []Node {
	var out []Node
	for _, node := range d.Nodes {
		if node.Type == NodeTypeExtension {
			out = append(out, node)
		}
	}
	return out
}

// GroupNames returns the names of all extension groups in first-use order:
// declared group nodes first, then groups referenced only by extensions.
func (d *Definition) GroupNames() []string {
	var names []string
	seen := make(map[string]bool)
	for _, node := range d.Nodes {
		if node.Type == NodeTypeExtensionGroup && !seen[node.Name] {
			seen[node.Name] = true
			names = append(names, node.Name)
		}
	}
	for _, node := range d.Nodes {
		if node.Type == NodeTypeExtension && !seen[node.ExtensionGroup] {
			seen[node.ExtensionGroup] = true
			names = append(names, node.ExtensionGroup)
		}
	}
	return names
}

// GroupNode returns the declared node for a group. Groups referenced only by
// extensions get a synthetic node using DefaultGroupAddon.
func (d *Definition) GroupNode(name string) Node {
	for _, node := range d.Nodes {
		if node.Type == NodeTypeExtensionGroup && node.Name == name {
			return node
		}
	}
	return Node{Type: NodeTypeExtensionGroup, Name: name, Addon: DefaultGroupAddon}
}

// ExtensionsInGroup returns the extension nodes owned by a group, in
// declaration order. Declaration order fixes creation order, and teardown
// runs in strict reverse of it.
func (d *Definition) ExtensionsInGroup(group string) []Node {
	var out []Node
	for _, node := range d.Nodes {
		if node.Type == NodeTypeExtension && node.ExtensionGroup == group {
			out = append(out, node)
		}
	}
	return out
}

// LocationOf resolves an extension name to its (group, extension) location.
func (d *Definition) LocationOf(extension string) (message.Location, bool) {
	for _, node := range d.Nodes {
		if node.Type == NodeTypeExtension && node.Name == extension {
			return message.Location{Group: node.ExtensionGroup, Extension: node.Name}, true
		}
	}
	return message.Location{}, false
}
