// Package clone deep-copies entity graphs.
//
// A Spec, built once per entity type with Define, names the attributes reset
// on every copy, the associations followed recursively, and optional hooks.
// Specs live in a Registry keyed by exact entity type. An Engine turns a
// target entity into an Operation whose Make duplicates the target, clears
// attributes, runs hooks, attaches the copy to its destination, and recurses
// into every declared association using the spec registered for each
// member's runtime type.
//
// The outermost Make opens one transaction on the engine's store; every
// nested operation joins it through Options.Transaction, so a failure
// anywhere in the graph rolls back the whole clone.
package clone
