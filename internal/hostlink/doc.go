// Package hostlink owns the command link between the modem and the host
// program or terminal driving it.
//
// Ownership boundary:
// - binary command framing and response codes
// - interactive text command shell
// - switching between the two on request
// - serial port and TCP transports, serial port discovery
package hostlink
