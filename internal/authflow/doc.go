// Package authflow drives the download tool's interactive registration
// dialogue. One machine exists per daemon; it walks a fixed prompt
// sequence in two phases, hands the login URL to the caller between
// them, and produces an account credential on success.
package authflow
