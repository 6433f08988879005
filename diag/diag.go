// Package diag defines the diagnostic code taxonomy and error type
// shared by every other package in this module.
package diag

import "fmt"

// Severity is the 3-bit severity prefix of a Code.
type Severity uint8

const (
	Debug Severity = iota
	Warn
	ErrorSeverity
	Fatal
)

func (s Severity) String() string {
	switch s {
	case Debug:
		return "debug"
	case Warn:
		return "warn"
	case ErrorSeverity:
		return "error"
	case Fatal:
		return "fatal"
	default:
		return "severity?"
	}
}

// Code is a 13-bit diagnostic tag packed with its 3-bit severity prefix
// into a uint16 (severity in the high 3 bits).
type Code uint16

func makeCode(sev Severity, tag uint16) Code {
	return Code(uint16(sev)<<13 | (tag & 0x1FFF))
}

// Severity extracts the severity prefix from a Code.
func (c Code) Severity() Severity {
	return Severity(uint16(c) >> 13)
}

//go:generate stringer -type=Code
const (
	// Fatal.
	EBadState Code = iota + 1000
)

const (
	// Error - recoverable.
	EAlloc Code = iota + 2000
	EDoingItWrong
	EScopeFinal
	EForeignScope
	ETypeScope

	// EPROTOCOL family.
	EOverrun
	EFeedMe
	ELimit
	ESymbol
	EType
	ERecord
	EBufPointer
	EOverflow
)

const (
	// Warn.
	WLargeMetadata Code = iota + 3000
)

const (
	// Debug / trace.
	DLifecycle Code = iota + 4000
	DHashtreeReshape
	DBulkInsert
)

func init() {
	// Re-derive the codes above using makeCode so their Severity() is
	// correct; the iota blocks exist purely to give each tag a distinct,
	// stable, human-legible numeric identity across releases.
	remap := func(codes []*Code, sev Severity) {
		for _, c := range codes {
			*c = makeCode(sev, uint16(*c))
		}
	}
	remap([]*Code{&EBadState}, Fatal)
	remap([]*Code{
		&EAlloc, &EDoingItWrong, &EScopeFinal, &EForeignScope, &ETypeScope,
		&EOverrun, &EFeedMe, &ELimit, &ESymbol, &EType, &ERecord, &EBufPointer, &EOverflow,
	}, ErrorSeverity)
	remap([]*Code{&WLargeMetadata}, Warn)
	remap([]*Code{&DLifecycle, &DHashtreeReshape, &DBulkInsert}, Debug)
}

var names = map[Code]string{
	EBadState:     "EBADSTATE",
	EAlloc:        "EALLOC",
	EDoingItWrong: "EDOINGITWRONG",
	EScopeFinal:   "ESCOPEFINAL",
	EForeignScope: "EFOREIGNSCOPE",
	ETypeScope:    "ETYPESCOPE",
	EOverrun:      "EOVERRUN",
	EFeedMe:       "EFEEDME",
	ELimit:        "ELIMIT",
	ESymbol:       "ESYMBOL",
	EType:         "ETYPE",
	ERecord:       "ERECORD",
	EBufPointer:   "EBUFPOINTER",
	EOverflow:     "EOVERFLOW",
	WLargeMetadata: "WLARGEMETADATA",
	DLifecycle:       "DLIFECYCLE",
	DHashtreeReshape: "DHASHTREERESHAPE",
	DBulkInsert:      "DBULKINSERT",
}

func (c Code) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return fmt.Sprintf("Code(%d,%s)", uint16(c)&0x1FFF, c.Severity())
}

// Error wraps a Code with formatted context. It implements error and
// Unwrap, so errors.Is(err, diag.EOverrun) works against a wrapped
// *Error returned from any package in this module.
type Error struct {
	Code    Code
	Message string
	Wrapped error
}

func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Wrapped: err}
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Is lets errors.Is(err, someCode) work by comparing against a bare
// Code value wrapped as a sentinel-like error.
func (c Code) Error() string { return c.String() }

func (e *Error) Is(target error) bool {
	if tc, ok := target.(Code); ok {
		return e.Code == tc
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}
