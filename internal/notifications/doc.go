// Package notifications delivers queue events via ntfy.
//
// When no topic is configured a no-op implementation is returned, so
// callers never need to guard their notification calls. The Bridge type
// adapts the error-returning Service to the scheduler's fire-and-forget
// surface.
package notifications
