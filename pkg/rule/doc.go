// Package rule holds the loaded configuration: the alias table, the
// per-profile ordered rule lists, and the matcher that resolves a target
// string to an ordered list of candidate commands.
//
// Rule priority is a stable sort key (kind rank, declaration order): regex
// rules outrank globs, and within a kind the most recently declared rule
// wins. Earlier rules are kept, not removed, so the full candidate list is
// available for fallback execution and query diagnostics.
package rule
