// Package notifications delivers pipeline events via pluggable notifiers.
//
// ntfy and Telegram are supported; an empty provider yields a no-op service.
// Events are formatted once into a title, body, tags and priority so every
// transport renders the same text. Workflow code depends only on the Service
// interface.
package notifications
