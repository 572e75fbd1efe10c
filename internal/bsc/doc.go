// Package bsc owns the IBM Binary Synchronous Communications wire vocabulary.
//
// Ownership boundary:
// - control-byte constants and names
// - classification of completed receive frames
// - outgoing block builders used by the host command processors
package bsc
