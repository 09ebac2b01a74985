// Package session tracks long-running background tasks by key.
//
// A Table guarantees that at most one task runs per key: starting a task for
// a key that is already in use first cancels the previous task and waits for
// it to return. If the previous task does not return in time, it keeps its
// key and the new task is not started. Tasks deregister themselves when they finish, without
// disturbing a newer task that has taken over their key.
package session
