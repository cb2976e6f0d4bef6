// Package driver runs complete sessions end to end: connect, the
// fixed-timestep pump, and orderly teardown. Each Run function owns its
// session objects for the whole run and maps outcomes onto plain
// returns: nil for a clean stop, an error when initialization or the
// handshake failed.
//
// Every loop iteration follows the same order: observe the stop flag,
// send, receive, check for disconnect, advance the logical clock one
// timestep, check for connection failure, sleep one timestep. The stop
// flag is the only value written from outside the loop goroutine.
package driver
