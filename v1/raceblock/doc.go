// Package raceblock elects, among callers that fire the same unit of work at
// nearly the same instant, a single one that actually runs it. Callers never
// talk to each other: each writes a random token under a shared key in a
// Redis compatible store, waits for the other candidates to finish writing,
// and runs the work only if its own token is the one left in the store.
//
// The election is best effort. It reduces duplicate execution across
// processes and hosts but gives no fencing or linearizability guarantee: in
// rare timing conditions nobody runs the work, or two callers do. ModeAtomic
// trades the timing based election for a single SET NX when the store
// supports it.
package raceblock
