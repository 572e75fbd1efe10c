// Package modem owns one emulated synchronous DCE.
//
// Ownership boundary:
// - line wiring for the loopback and gpio backends
// - engine and sequencer construction from one Config
// - clock timer lifecycle
// - DSR/CD/CTS ready choreography
// - serialized transmit and receive calls for the host link and admin API
package modem
