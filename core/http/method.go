package http

// Method is the numeric ID of a supported request method.
type Method uint8

const (
	MethodUnknown Method = iota
	MethodGET
	MethodHEAD
	MethodPOST
	MethodPUT
	MethodDELETE
	MethodPATCH
	MethodOPTIONS
)

// ParseMethod maps a method token onto its ID. Tokens outside the
// supported set return MethodUnknown; the caller decides between 501
// (valid token) and 400 (not a token at all).
func ParseMethod(b []byte) Method {
	switch len(b) {
	case 3:
		if b[0] == 'G' && b[1] == 'E' && b[2] == 'T' {
			return MethodGET
		}
		if b[0] == 'P' && b[1] == 'U' && b[2] == 'T' {
			return MethodPUT
		}
	case 4:
		if b[0] == 'P' && b[1] == 'O' && b[2] == 'S' && b[3] == 'T' {
			return MethodPOST
		}
		if b[0] == 'H' && b[1] == 'E' && b[2] == 'A' && b[3] == 'D' {
			return MethodHEAD
		}
	case 5:
		if b[0] == 'P' && b[1] == 'A' && b[2] == 'T' && b[3] == 'C' && b[4] == 'H' {
			return MethodPATCH
		}
	case 6:
		if b[0] == 'D' && b[1] == 'E' && b[2] == 'L' &&
			b[3] == 'E' && b[4] == 'T' && b[5] == 'E' {
			return MethodDELETE
		}
	case 7:
		if b[0] == 'O' && b[1] == 'P' && b[2] == 'T' &&
			b[3] == 'I' && b[4] == 'O' && b[5] == 'N' && b[6] == 'S' {
			return MethodOPTIONS
		}
	}
	return MethodUnknown
}

// String returns the wire form of the method.
func (m Method) String() string {
	switch m {
	case MethodGET:
		return "GET"
	case MethodHEAD:
		return "HEAD"
	case MethodPOST:
		return "POST"
	case MethodPUT:
		return "PUT"
	case MethodDELETE:
		return "DELETE"
	case MethodPATCH:
		return "PATCH"
	case MethodOPTIONS:
		return "OPTIONS"
	default:
		return ""
	}
}

// Methods lists every supported method in canonical Allow-header order.
func Methods() []Method {
	return []Method{
		MethodGET, MethodHEAD, MethodPOST, MethodPUT,
		MethodDELETE, MethodPATCH, MethodOPTIONS,
	}
}

// isToken reports whether b is a valid RFC 7230 token.
func isToken(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if !isTokenByte(c) {
			return false
		}
	}
	return true
}

func isTokenByte(c byte) bool {
	if c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' {
		return true
	}
	switch c {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.',
		'^', '_', '`', '|', '~':
		return true
	}
	return false
}
