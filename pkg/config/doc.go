// Package config loads rule configuration from the line-oriented rrr format.
//
// Recognized lines:
//
//	# comment
//	:profile <name>
//	:include <path>           file or directory, recursive
//	:import <path>            desktop-entry file or directory, recursive
//	[<name>] <command>        alias definition
//	<pattern> <command>       rule; pattern is quoted when it contains spaces
//
// Includes are expanded into a single flat rule stream, partitioned by
// profile, with cycle detection over the active inclusion stack.
package config
