package bsc

import "github.com/sigurn/crc16"

// Preamble is the sequence that opens every host-originated transmission.
func Preamble() []byte {
	return []byte{PAD, LeadingPad, LeadingPad, SYN}
}

// Envelope wraps raw host bytes the way the binary WRITE command does:
// preamble, the bytes untouched, closing PAD.
func Envelope(data []byte) []byte {
	out := Preamble()
	out = append(out, data...)
	return append(out, PAD)
}

// LineReset puts tributary stations back into control mode.
func LineReset() []byte {
	out := Preamble()
	return append(out, SYN, EOT, PAD)
}

// Poll addresses a specific station/device with the poll control-unit address.
func Poll(cu, dev byte) []byte {
	return addressed(cu, dev)
}

// Select addresses a specific station/device with the select control-unit address.
func Select(cu, dev byte) []byte {
	return addressed(cu, dev)
}

func addressed(cu, dev byte) []byte {
	out := Preamble()
	return append(out, SYN, cu, cu, dev, dev, ENQ, PAD)
}

// TransparentBlock builds DLE STX text DLE end BCC BCC PAD. DLE bytes inside
// text are doubled. end must be ETX or ETB.
func TransparentBlock(text []byte, end byte) []byte {
	out := Preamble()
	out = append(out, SYN, DLE, STX)
	for _, b := range text {
		if b == DLE {
			out = append(out, DLE)
		}
		out = append(out, b)
	}
	crc := CRC16(append(append([]byte(nil), text...), end))
	out = append(out, DLE, end, byte(crc), byte(crc>>8))
	return append(out, PAD)
}

var arcTable = crc16.MakeTable(crc16.CRC16_ARC)

// CRC16 is the block check used with EBCDIC transparent text
// (CRC-16/ARC: x^16 + x^15 + x^2 + 1, reflected, zero initial value). The low
// byte is sent first.
func CRC16(data []byte) uint16 {
	return crc16.Checksum(data, arcTable)
}
