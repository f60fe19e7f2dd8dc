// Package registry provides the concurrent workflow registry and the
// dispatcher built on top of it.
//
// The Registry maps workflow types to implementation modules with upsert
// semantics and one-level aliasing. The Dispatcher resolves a type, merges
// caller configuration into the module's static definition, and keeps a
// confidence-ranked store of proven configuration patterns reported by
// external learning collaborators.
//
// Both types are explicit singleton services: construct them once at process
// start and inject them into callers. There is no ambient global table.
package registry
