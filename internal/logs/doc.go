// Package logs reads the daemon log file for the CLI: a bounded tail of
// the most recent lines plus incremental reads for follow mode.
package logs
