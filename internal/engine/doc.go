// Package engine implements the bit-level transceivers of the synchronous line.
//
// SendEngine shifts queued bytes out least significant bit first, filling
// with SYN when the queue runs dry. ReceiveEngine samples one bit per cycle,
// hunts for character sync and assembles BSC frames, handing completed frames
// to the foreground through two alternating buffers.
//
// SendBit, GetBit, SampleBit and ProcessBit run on the clock goroutine only.
// Every other method is for the foreground goroutine. Readers use atomics;
// control calls that change state take the engine mutex, so they land between
// two clock steps and are never overwritten by one in progress.
package engine
