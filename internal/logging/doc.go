// Package logging provides slog construction and the shared attribute
// vocabulary used across spool components. All packages log through
// *slog.Logger instances built here; context helpers attach stage and
// job identity so every line from a worker carries its correlation
// fields without each call site repeating them.
package logging
