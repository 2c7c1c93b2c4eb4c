// Package bus provides the in-process progress event bus. Delivery is
// synchronous and best-effort: subscribers that join late see no replay,
// and a returned unsubscribe handle removes exactly one registration so
// reconnecting stream clients never leak handlers.
package bus
