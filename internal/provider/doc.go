// Package provider exposes hosted quantum machines as backends that run
// OpenQASM 2.0 circuits.
//
// A Provider holds one account: its credentials, API session and the
// backends discovered from the machine list. Backend.Run submits one API
// job per circuit and returns a Job that groups them. Job.Result waits for
// every API job, over the websocket channel when the API offers one and
// by polling otherwise, and turns the per-shot register values into
// counts keyed by hexadecimal outcome.
package provider
