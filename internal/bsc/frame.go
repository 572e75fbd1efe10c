package bsc

// Kind identifies a completed receive frame.
type Kind int

const (
	KindUnknown Kind = iota
	KindEOT
	KindNAK
	KindACK0
	KindACK1
	KindWACK
	KindRVI
	KindText
	KindTransparent
	KindTTD
)

func (k Kind) String() string {
	switch k {
	case KindEOT:
		return "eot"
	case KindNAK:
		return "nak"
	case KindACK0:
		return "ack0"
	case KindACK1:
		return "ack1"
	case KindWACK:
		return "wack"
	case KindRVI:
		return "rvi"
	case KindText:
		return "text"
	case KindTransparent:
		return "transparent"
	case KindTTD:
		return "ttd"
	default:
		return "unknown"
	}
}

// Classify inspects a completed frame as produced by the receive engine
// (leading SYN preserved, stuffing removed). The receive engine never completes
// a frame on DLE WACK or DLE RVI, so KindWACK and KindRVI only come from frames
// built or captured outside it.
func Classify(frame []byte) Kind {
	i := 0
	for i < len(frame) && frame[i] == SYN {
		i++
	}
	if i >= len(frame) {
		return KindUnknown
	}
	rest := frame[i:]
	switch rest[0] {
	case EOT:
		return KindEOT
	case NAK:
		return KindNAK
	case SOH, STX:
		return KindText
	case DLE:
		if len(rest) < 2 {
			return KindUnknown
		}
		switch rest[1] {
		case ACK0:
			return KindACK0
		case ACK1:
			return KindACK1
		case WACK:
			return KindWACK
		case RVI:
			return KindRVI
		case STX:
			if n := len(rest); n >= 2 && rest[n-2] == DLE && rest[n-1] == ENQ {
				return KindTTD
			}
			return KindTransparent
		}
	}
	return KindUnknown
}
