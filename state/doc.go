// Package state persists the two shared JSON documents that every
// meetscribe invocation races on: the recording session and the processing
// job registry.
//
// There is no daemon; each command is a short-lived process reading and
// writing the same files. The store therefore treats the documents as a
// tiny key-value store with lock-protected read-modify-write and atomic
// replacement, never as shared memory:
//
//   - every mutation goes through UpdateSession/UpdateJobs, which hold a
//     lock file (O_CREATE|O_EXCL with the holder PID inside) for the whole
//     read-modify-write, retried with doubling backoff and broken when the
//     holder is dead or the lock has gone stale
//   - writes land in a temp file in the same directory, are fsynced, and
//     renamed into place, so a reader never observes a partial document
//   - loads fail soft: a missing or corrupt document yields the zero value
//     and a logged warning, and Reset force-clears everything when stuck
package state
