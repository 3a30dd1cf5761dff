// Package game implements the per-room draw-and-guess state machine and the
// registry of live rooms.
//
// Every Session method takes the session's own mutex, so rooms never contend
// with each other. Deferred work (the drawing deadline and the pause between
// rounds) runs on timers owned by the session; a fired timer re-acquires the
// lock and checks a round token, so a superseded timer is a no-op.
package game
