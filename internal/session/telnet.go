package session

import "net"

// Telnet protocol bytes (RFC 854).
const (
	telnetSE   = 240
	telnetSB   = 250
	telnetWILL = 251
	telnetDONT = 254
	telnetIAC  = 255
)

type telnetState int

const (
	stateData telnetState = iota
	stateIAC
	stateOption
	stateSub
	stateSubIAC
)

// telnetConn removes option negotiation from a telnet stream so that only
// console text reaches the session buffer. Negotiation is never answered;
// QEMU's serial server falls back to plain character mode.
type telnetConn struct {
	net.Conn
	state telnetState
	raw   []byte
}

func newTelnetConn(conn net.Conn) *telnetConn {
	return &telnetConn{Conn: conn}
}

func (t *telnetConn) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	if cap(t.raw) < len(b) {
		t.raw = make([]byte, len(b))
	}

	for {
		n, err := t.Conn.Read(t.raw[:len(b)])
		out := t.filter(t.raw[:n], b)
		if out > 0 || err != nil {
			return out, err
		}
	}
}

// filter copies the data bytes of in to out and returns how many were
// written. len(out) >= len(in).
func (t *telnetConn) filter(in, out []byte) int {
	w := 0
	for _, c := range in {
		switch t.state {
		case stateData:
			switch c {
			case telnetIAC:
				t.state = stateIAC
			case 0:
				// NUL after CR in telnet NVT
			default:
				out[w] = c
				w++
			}
		case stateIAC:
			switch {
			case c == telnetIAC:
				out[w] = c
				w++
				t.state = stateData
			case c >= telnetWILL && c <= telnetDONT:
				t.state = stateOption
			case c == telnetSB:
				t.state = stateSub
			default:
				t.state = stateData
			}
		case stateOption:
			t.state = stateData
		case stateSub:
			if c == telnetIAC {
				t.state = stateSubIAC
			}
		case stateSubIAC:
			if c == telnetSE {
				t.state = stateData
			} else {
				t.state = stateSub
			}
		}
	}
	return w
}
