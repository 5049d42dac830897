/*
Package xmetrics provides configurability for Prometheus-based metrics.  The more general go-kit interfaces
are used where possible.

Application packages contribute Module functions describing their metrics; NewRegistry merges the modules
and preregisters everything against a single Prometheus registry that also acts as a go-kit provider.
*/
package xmetrics
