/*
Package device implements the session layer of the hub: websocket sessions
for connected signage devices, a sharded registry holding at most one live
session per device and stream kind, and the read/write pumps that service
each session.

A Manager instance owns exactly one stream kind.  A typical deployment runs
two managers, one for the command stream and one for the content stream,
sharing nothing but their metrics registry.

Connecting a device whose identifier already has a live session tears the
incumbent session down completely, and only then registers the newcomer.
Interested parties observe this through the ordinary Disconnect event.
*/
package device
