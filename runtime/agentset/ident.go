// Package agentset provides strong type identifiers for agents and tools.
package agentset

// Ident is the strong type for worker identifiers, the plain worker names
// of a chain (e.g., "planner", "test_runner"). Use this type when referencing agents in
// maps or APIs to avoid accidental mixing with free-form strings.
type Ident string
