// Package progress contains the fixed line grammars that extract progress
// telemetry from the fetch and transcode tools. Parsers are pure: a line
// either yields an update or is ignored, never an error.
package progress
