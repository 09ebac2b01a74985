// Package supervisor runs the long-lived sessions of the GUI: pod watches
// and container log tails.
//
// Every session moves through Starting, Streaming and one terminal state:
// Ended, Cancelled or Errored. Starting resolves the cluster's clients on the
// caller's goroutine, so lookup and credential problems are returned
// directly and no session is registered. Streaming runs in a goroutine owned
// by a session.Table slot; starting a session under a key that is already in
// use cancels the old session and waits for it before the new one emits.
//
// Terminal states emit "session_ended" (with a reason of "ended" or
// "cancelled") or "session_error" (with a user-facing error), are logged and
// counted, and release the table slot exactly once.
//
// Errors are not retried here. Pod watches rely on the client-go informer to
// relist after transient failures and only stop on Unauthorized, Forbidden or
// NotFound. Log tails end on the first read error.
package supervisor
