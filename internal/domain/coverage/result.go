package coverage

import (
	"fmt"
)

// InvalidReport says why a submission was rejected. It carries no detail: an
// invalid submission cannot be patched and has to be uploaded again.
type InvalidReport uint8

const (
	LineNumberInvalid InvalidReport = iota + 1
	StatementsInvalid
	ParseError
)

func (r InvalidReport) String() string {
	switch r {
	case LineNumberInvalid:
		return "LineNumberInvalid"
	case StatementsInvalid:
		return "StatementsInvalid"
	case ParseError:
		return "ParseError"
	default:
		return "Unknown"
	}
}

func (r InvalidReport) IsValid() bool {
	switch r {
	case LineNumberInvalid, StatementsInvalid, ParseError:
		return true
	default:
		return false
	}
}

func (r InvalidReport) Error() string {
	return "the report was formatted incorrectly: " + r.String()
}

func (r InvalidReport) MarshalText() ([]byte, error) {
	if !r.IsValid() {
		return nil, fmt.Errorf("invalid report kind %d", uint8(r))
	}
	return []byte(r.String()), nil
}

func (r *InvalidReport) UnmarshalText(text []byte) error {
	switch string(text) {
	case "LineNumberInvalid":
		*r = LineNumberInvalid
	case "StatementsInvalid":
		*r = StatementsInvalid
	case "ParseError":
		*r = ParseError
	default:
		return fmt.Errorf("unknown invalid report %q", text)
	}
	return nil
}

// Result is the outcome of validating a submission. Its only implementations
// are Valid and Invalid.
type Result interface {
	result()
}

type Valid struct {
	Report Report
}

type Invalid struct {
	Reason InvalidReport
}

func (Valid) result()   {}
func (Invalid) result() {}
