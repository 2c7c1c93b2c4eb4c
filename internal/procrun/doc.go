// Package procrun spawns and supervises the external tools. It owns the
// line-splitting rules for their output streams, process-group kill for
// cancellation, and the registry of cancellation entries that maps a
// running item to its live subprocess.
package procrun
