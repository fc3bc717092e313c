// Package addon provides the process-wide registry mapping (kind, name) pairs
// to factories capable of instantiating extensions, extension groups,
// protocols, and addon loaders.
//
// Instantiation follows a uniform contract regardless of where the addon is
// implemented: the factory allocates the instance, the registry wraps it in a
// Handle whose Destroy hook is guaranteed to run exactly once, and the owning
// extension group binds the instance to a freshly created environment handle
// before its init hook runs. Foreign-language addons are hosted behind the
// same contract: a Loader addon registers their factories at startup, and the
// returned instance is an opaque handle the runtime only ever invokes from the
// owning group's goroutine.
//
// Registration of a (kind, name) pair that already exists fails with
// ErrDuplicateRegistration and leaves the first registration active.
// Instantiating an unregistered pair fails with ErrUnknownAddon.
package addon
