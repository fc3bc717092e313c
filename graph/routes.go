package graph

import (
	"github.com/c360/agentgraph/message"
)

// routeKey identifies one routing rule: messages of one kind and name leaving
// one source extension.
type routeKey struct {
	source string
	kind   message.Kind
	name   string
}

// RouteTable is the compiled, immutable form of a definition's connection
// table. It is built once before the engine spawns any goroutine and read
// lock-free by every sender thread afterwards.
type RouteTable struct {
	routes    map[routeKey][]message.Location
	locations map[string]message.Location
}

// BuildRoutes compiles the definition's connections into a route table.
// The definition must already have passed Validate; BuildRoutes trusts it.
func (d *Definition) BuildRoutes() *RouteTable {
	table := &RouteTable{
		routes:    make(map[routeKey][]message.Location),
		locations: make(map[string]message.Location),
	}

	for _, node := range d.ExtensionNodes() {
		table.locations[node.Name] = message.Location{
			Group:     node.ExtensionGroup,
			Extension: node.Name,
		}
	}

	for _, conn := range d.Connections {
		table.addRules(conn.Extension, message.KindCommand, conn.Cmd)
		table.addRules(conn.Extension, message.KindData, conn.Data)
		table.addRules(conn.Extension, message.KindAudioFrame, conn.AudioFrame)
		table.addRules(conn.Extension, message.KindVideoFrame, conn.VideoFrame)
	}

	return table
}

func (t *RouteTable) addRules(source string, kind message.Kind, rules []Rule) {
	for _, rule := range rules {
		key := routeKey{source: source, kind: kind, name: rule.Name}
		dests := make([]message.Location, 0, len(rule.Dest))
		for _, dest := range rule.Dest {
			dests = append(dests, t.locations[dest.Extension])
		}
		t.routes[key] = dests
	}
}

// Resolve returns the ordered destination list for a message of the given
// kind and name leaving source. An empty result means no rule matches; the
// router decides whether that is a drop (data, frames) or NoRoute (commands).
func (t *RouteTable) Resolve(source message.Location, kind message.Kind, name string) []message.Location {
	return t.routes[routeKey{source: source.Extension, kind: kind, name: name}]
}

// Location resolves an extension name to its location.
func (t *RouteTable) Location(extension string) (message.Location, bool) {
	loc, ok := t.locations[extension]
	return loc, ok
}
