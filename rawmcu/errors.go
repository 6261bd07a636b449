package rawmcu

import (
	"fmt"
	"os"
)

// ErrCode categorizes bridge and engine failures
type ErrCode int

const (
	ErrCodeBadConfiguration     ErrCode = 1
	ErrCodeBadSampling          ErrCode = 2
	ErrCodeSamplingTooLarge     ErrCode = 3
	ErrCodeTooManyComponents    ErrCode = 4
	ErrCodeBufferTooSmall       ErrCode = 5
	ErrCodeRawModeRequired      ErrCode = 6
	ErrCodeAmbiguousBatchHeight ErrCode = 7
	ErrCodeEmptyInput           ErrCode = 8
	ErrCodeTruncatedStream      ErrCode = 9
	ErrCodeBadStreamHeader      ErrCode = 10
	ErrCodeUnsupportedVersion   ErrCode = 11
	ErrCodeSourceFailure        ErrCode = 12
	ErrCodeDestinationFailure   ErrCode = 13
	ErrCodeEngineFailure        ErrCode = 14
	ErrCodeSessionClosed        ErrCode = 15
)

func (e ErrCode) String() string {
	switch e {
	case ErrCodeBadConfiguration:
		return "BadConfiguration"
	case ErrCodeBadSampling:
		return "BadSampling"
	case ErrCodeSamplingTooLarge:
		return "SamplingTooLarge"
	case ErrCodeTooManyComponents:
		return "TooManyComponents"
	case ErrCodeBufferTooSmall:
		return "BufferTooSmall"
	case ErrCodeRawModeRequired:
		return "RawModeRequired"
	case ErrCodeAmbiguousBatchHeight:
		return "AmbiguousBatchHeight"
	case ErrCodeEmptyInput:
		return "EmptyInput"
	case ErrCodeTruncatedStream:
		return "TruncatedStream"
	case ErrCodeBadStreamHeader:
		return "BadStreamHeader"
	case ErrCodeUnsupportedVersion:
		return "UnsupportedVersion"
	case ErrCodeSourceFailure:
		return "SourceFailure"
	case ErrCodeDestinationFailure:
		return "DestinationFailure"
	case ErrCodeEngineFailure:
		return "EngineFailure"
	case ErrCodeSessionClosed:
		return "SessionClosed"
	default:
		return fmt.Sprintf("ErrCode(%d)", int(e))
	}
}

// CodecError represents a categorized bridge or engine error
type CodecError struct {
	Code    ErrCode
	Message string
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewCodecError creates a new CodecError
func NewCodecError(code ErrCode, message string) *CodecError {
	return &CodecError{Code: code, Message: message}
}

// FatalHandler receives fatal conditions reported by a codec engine.
// Engine state is undefined once a fatal condition has been raised, so
// an implementation must never return control to its caller: it either
// unwinds the stack or terminates the process.
type FatalHandler interface {
	FatalError(code ErrCode, message string)
}

// UnwindOnFatal is the default policy: it unwinds the calling stack
// with a *CodecError panic. Session entry points recover the panic and
// hand it back as an ordinary error, after which the session must not
// be used further.
var UnwindOnFatal FatalHandler = unwindHandler{}

type unwindHandler struct{}

func (unwindHandler) FatalError(code ErrCode, message string) {
	panic(NewCodecError(code, message))
}

// AbortOnFatal reports the condition on stderr and terminates the
// process.
var AbortOnFatal FatalHandler = abortHandler{}

type abortHandler struct{}

func (abortHandler) FatalError(code ErrCode, message string) {
	fmt.Fprintf(os.Stderr, "fatal codec error: %s: %s\n", code, message)
	os.Exit(2)
}

// recoverFatal converts an unwound *CodecError into a returned error.
// Any other panic value is re-raised.
func recoverFatal(err *error) {
	if r := recover(); r != nil {
		ce, ok := r.(*CodecError)
		if !ok {
			panic(r)
		}
		*err = ce
	}
}
