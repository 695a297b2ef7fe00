// Package reservation holds the client side of the room hold protocol.
//
// A Controller owns one booking attempt: the rooms a guest has selected, the
// hold the inventory granted for them and a one second countdown mirroring the
// server's ten minute expiry. The inventory is the authority on whether rooms
// are still held; the countdown is advisory. Releases are best-effort and
// never block a transition, acquisition failures always block progression.
package reservation
