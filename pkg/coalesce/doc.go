// Package coalesce deduplicates identical concurrent logical requests.
//
// Submit looks up the request fingerprint in an in-memory registry. The
// first submitter for a fingerprint becomes the originator: its function
// runs exactly once, on a context detached from any single caller. Later
// submitters attach as waiters and observe the identical outcome, value or
// error, when the execution settles.
//
// A settled entry lingers for a short grace window before removal, so
// duplicates arriving just after completion still coalesce onto the
// recorded outcome instead of re-executing.
//
// A waiter whose context fires detaches immediately without leaking the
// entry; the shared execution is aborted only when every attached waiter
// has detached before it settles.
package coalesce
