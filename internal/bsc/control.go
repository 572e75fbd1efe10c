package bsc

import "fmt"

// Control bytes as they appear on the line. Values are fixed by the attached
// equipment and are not configurable.
const (
	SYN byte = 0x32
	SOH byte = 0x01
	STX byte = 0x02
	ETB byte = 0x26
	ENQ byte = 0x2D
	ETX byte = 0x03
	DLE byte = 0x10
	PAD byte = 0xFF
	NAK byte = 0x3D
	ITB byte = 0x1F
	EOT byte = 0x37

	// Sent after a DLE.
	ACK0 byte = 0x70
	ACK1 byte = 0x61
	WACK byte = 0x6B
	RVI  byte = 0x7C
)

const (
	// IDLE is the fill character shifted out when the send queue is empty.
	IDLE = SYN
	// TTD (temporary text delay) is ENQ following STX, or DLE ENQ in transparent text.
	TTD = ENQ
	// LeadingPad precedes the SYN pair so the remote clock can settle on
	// alternating bits.
	LeadingPad byte = 0x55
)

var controlNames = map[byte]string{
	SYN: "SYN",
	SOH: "SOH",
	STX: "STX",
	ETB: "ETB",
	ENQ: "ENQ",
	ETX: "ETX",
	DLE: "DLE",
	PAD: "PAD",
	NAK: "NAK",
	ITB: "ITB",
	EOT: "EOT",
}

var supervisoryNames = map[byte]string{
	ACK0: "ACK0",
	ACK1: "ACK1",
	WACK: "WACK",
	RVI:  "RVI",
}

// Name returns the mnemonic for a control byte or a hex literal otherwise.
func Name(b byte) string {
	if n, ok := controlNames[b]; ok {
		return n
	}
	return fmt.Sprintf("0x%02X", b)
}

// SupervisoryName returns the mnemonic of a DLE-prefixed code.
func SupervisoryName(b byte) (string, bool) {
	n, ok := supervisoryNames[b]
	return n, ok
}

// IsBlockEnd reports whether b terminates a text block (followed by two BCC bytes).
func IsBlockEnd(b byte) bool {
	return b == ETX || b == ETB
}
