// Package transcribe streams PCM audio to a speech-recognition backend over a
// presigned websocket and delivers finalized transcripts. Outbound audio is
// framed as event-stream AudioEvents by a single sender goroutine reading a
// bounded queue; a receive goroutine validates inbound frames and decodes
// TranscriptEvent payloads. Exception frames and integrity failures are fatal
// to the connection.
package transcribe
