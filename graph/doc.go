// Package graph defines the declarative description an engine executes: a set
// of extension nodes (addon name, instance name, owning group, configuration)
// and a connection table mapping (source extension, message kind, message name)
// to an ordered list of destination extensions.
//
// A definition is validated once, at load time, before the engine spawns any
// goroutine: every connection source and destination must resolve to an
// extension node declared in the same graph. After validation the definition
// compiles into an immutable RouteTable the router consults lock-free on every
// send.
package graph
