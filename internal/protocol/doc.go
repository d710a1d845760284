// Package protocol implements the binary event-stream framing used by the
// streaming recognition backend: a length prelude with its own CRC32, typed
// headers, a payload and a trailing CRC32 over the whole message.
package protocol
