// Package outbox implements store-and-forward delivery of announcements.
// Messages that cannot be published are appended to a SQLite log through
// gorm and retried oldest first on startup and before every new delivery.
package outbox
