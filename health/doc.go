/*
Package health tracks hub liveness statistics: process and system memory via
goprocinfo plus any registered hub counters (connected sessions, pending
acknowledgements, stored analytics events).  A Monitor collects on a clock
ticker and serves the latest snapshot as JSON, answering 503 once memory
crosses the configured ceiling.
*/
package health
