// Package owner provides the two standard socket ownership strategies.
//
// SingletonByID indexes plugs by their "id" property and hands out one
// cached instance per id. EphemeralByDescriptor indexes plugs by a key the
// caller parses from each descriptor and constructs a fresh instance on
// every request; VersionKey, GlobKey and PriorityKey cover the common keys.
//
// Both register with the registry when created:
//
//	var Socket = owner.MustSingletonByID[Fruit](registry.Default(), metadata)
//
// and both construct plugs through Registry.InstantiatePlug, so instances
// installed by a test harness are returned in place of new ones.
package owner
