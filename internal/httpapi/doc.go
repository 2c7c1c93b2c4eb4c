// Package httpapi exposes the daemon's control surface: queue
// management, the authorization dialogue, and a server-sent event stream
// that relays the progress bus to connected clients.
package httpapi
