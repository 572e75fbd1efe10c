// Package sequencer owns the bit clock that drives both engines.
//
// Ownership boundary:
// - four-phase tick: send, clock high, sample, clock low
// - tick period derived from the configured bit rate
// - periodic timer registration and teardown
package sequencer
