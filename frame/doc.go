/*
Package frame defines the wire model exchanged between the hub and its
signage devices: command and content frames pushed down a device's
subscription stream, the acknowledgements devices send back, and the
JSON/Msgpack codec shared by the websocket transport and the HTTP
acknowledge endpoints.

Frames are pure data.  The hub never interprets a command payload or a
content manifest; it stamps correlation identifiers on them, delivers
them, and correlates the acknowledgements that come back.
*/
package frame
