// Command spool is the control CLI for the spool daemon. It talks to
// the daemon's HTTP API for queue and authorization operations and
// works directly with the configuration file for local utilities.
package main
