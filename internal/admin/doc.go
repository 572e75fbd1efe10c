// Package admin owns the HTTP admin surface of a running modem.
//
// Ownership boundary:
// - health, readiness and prometheus endpoints
// - modem status and last received frame
// - ad hoc transmit for bench testing
package admin
