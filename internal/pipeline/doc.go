// Package pipeline runs one announcer session end to end: microphone
// capture feeds the recognition stream, final transcripts are classified
// into announcements, and announcements go out through the outbox.
package pipeline
