// Package classifier maps finalized transcripts to (category, intent)
// announcements. Text is normalized, categories are found by exact alias
// containment with a fuzzy partial-ratio fallback, intents by phrase
// containment only, and each pair is rate limited by a debounce window before
// its message text is rendered from a per-intent template.
package classifier
