// Package pattern compiles raw pattern text from rule configuration into
// matchable, priority-classified patterns.
//
// A leading `~` marks a regular expression, a `[name]` bracket form marks an
// alias reference, and everything else is a glob. Globs match whole strings
// (paths and URIs alike), so `*` crosses `/` boundaries.
package pattern
