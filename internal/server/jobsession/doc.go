// Package jobsession implements the job session protocol over websocket.
//
// A session is one connection that authenticates, submits exactly one job
// and receives its output followed by a single job_result (or a single
// rejected). Each session runs a reader and a writer goroutine; the writer
// is the only goroutine that writes to the connection, so frames leave in
// the order they are queued. Closing the session, for any reason, cancels
// its context and thereby kills the workload.
package jobsession
