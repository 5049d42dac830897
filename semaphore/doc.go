// Package semaphore provides a channel-based counting semaphore honoring
// timeout and context semantics, used to bound fan-out concurrency.
package semaphore
