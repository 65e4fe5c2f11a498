// Package admission bounds the number of concurrent in-flight calls to an
// upstream and queues excess callers until capacity frees up.
//
// The queue has two FIFO lanes. The priority lane is always drained first;
// within a lane, admission order equals enqueue order. Calls that are
// already executing are never preempted.
//
// A queued call fails with a queue-timeout error when it is not admitted
// within its queue timeout, and with a cancellation error when its context
// fires before admission; in both cases the call is removed from the queue
// and the upstream is never touched.
//
// The queue is bounded. When it is full, a normal enqueue is rejected
// immediately, while a priority enqueue displaces the single oldest
// normal-lane waiter to make room.
package admission
