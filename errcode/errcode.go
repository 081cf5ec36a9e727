package errcode

// Code is a stable, caller-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK            Code = "ok"
	Busy          Code = "busy"
	Unsupported   Code = "unsupported"
	InvalidParams Code = "invalid_params"

	IncompatibleSocket Code = "incompatible_socket"
	UnknownSocket      Code = "unknown_socket"
	UnknownPin         Code = "unknown_pin"
	PinConflict        Code = "pin_conflict"

	Timeout       Code = "timeout"
	BusError      Code = "bus_error"
	InvalidState  Code = "invalid_state"
	ProtocolError Code = "protocol_error"

	Error Code = "error" // generic fallback
)

// Optional wrapper when we want to keep context and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	if e.Msg != "" {
		return string(e.C) + ": " + e.Msg
	}
	return string(e.C)
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}

// AsBus coerces a raw transfer error into a coded one. Codes and wrapped
// codes pass through untouched; anything else (machine errors, driver
// sentinels) becomes BusError with the cause attached.
func AsBus(op string, err error) error {
	if err == nil {
		return nil
	}
	switch err.(type) {
	case Code, *E:
		return err
	}
	return &E{C: BusError, Op: op, Msg: err.Error(), Err: err}
}
