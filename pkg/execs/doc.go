// Package execs runs resolved candidate commands, optionally cascading to
// lower-ranked candidates on failure.
//
// A candidate succeeds when its process exits with status zero or is
// terminated by a signal. Signal termination typically reflects deliberate
// user interruption, so it halts the cascade instead of continuing to the
// next candidate.
package execs
