/*
Package dispatch implements the hub's command-and-content dispatch engine:
the pending-ack table holding one waiter per in-flight dispatch, the
dispatcher that fans administrative intents out to sessions, and the
acknowledgement router feeding device responses back to the waiters.

The engine's contract is error-as-value: every per-device condition, from a
device-reported failure to a timeout to a mid-dispatch disconnect, is a
field of the returned Result.  The only out-of-band failure is dispatching
to an unknown fleet.

A waiter's result slot is written exactly once.  Terminal acknowledgements,
timeouts, session teardown, caller cancellation, and hub shutdown all race
for it; the winner decides the outcome and the rest are no-ops.
*/
package dispatch
