// Package domain models messages from the Blitzortung lightning network.
//
// # Data Source
//
// Frames arrive over the public websocket feed (wss://ws1.blitzortung.org/)
// after a fixed {"a": 111} subscription handshake. Strike payloads are
// LZW-compressed JSON in the network's own character-coded variant (see
// package lzw); control and status frames may be plain JSON or opaque text.
// The schema is not published and drifts between message types, so records
// are dynamic field maps rather than fixed structs.
//
// # Record Conventions
//
// Every record carries two synthetic fields stamped at capture:
//
//	timestamp  capture time (not the strike's event time), RFC 3339
//	data_type  "json" when structured parsing succeeded, otherwise "raw"
//
// Fallback fields mirror the behavior of the original collector:
//
//	raw_data   the frame (decoded when possible) when it is not JSON
//	list_data  a re-serialized JSON array payload
//	json_data  a bare JSON scalar payload
//
// Normalization never drops a message: a frame that neither decompresses nor
// parses is stored verbatim under raw_data. Lossy-but-present beats silently
// dropped.
package domain
