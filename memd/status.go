package memd

import "fmt"

// StatusCode is a server response status.
type StatusCode uint16

const (
	StatusSuccess        StatusCode = 0x0000
	StatusKeyNotFound    StatusCode = 0x0001
	StatusKeyExists      StatusCode = 0x0002
	StatusTooBig         StatusCode = 0x0003
	StatusInvalidArgs    StatusCode = 0x0004
	StatusNotStored      StatusCode = 0x0005
	StatusBadDelta       StatusCode = 0x0006
	StatusNotMyVBucket   StatusCode = 0x0007
	StatusNoBucket       StatusCode = 0x0008
	StatusLocked         StatusCode = 0x0009
	StatusAuthStale      StatusCode = 0x001f
	StatusAuthError      StatusCode = 0x0020
	StatusAuthContinue   StatusCode = 0x0021
	StatusRangeError     StatusCode = 0x0022
	StatusAccessError    StatusCode = 0x0024
	StatusNotInitialized StatusCode = 0x0025
	StatusUnknownCommand StatusCode = 0x0081
	StatusOutOfMemory    StatusCode = 0x0082
	StatusNotSupported   StatusCode = 0x0083
	StatusInternalError  StatusCode = 0x0084
	StatusBusy           StatusCode = 0x0085
	StatusTmpFail        StatusCode = 0x0086
)

func (s StatusCode) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusKeyNotFound:
		return "key not found"
	case StatusKeyExists:
		return "key already exists"
	case StatusTooBig:
		return "value too big"
	case StatusInvalidArgs:
		return "invalid arguments"
	case StatusNotStored:
		return "value not stored"
	case StatusBadDelta:
		return "invalid delta"
	case StatusNotMyVBucket:
		return "not my vbucket"
	case StatusNoBucket:
		return "no bucket selected"
	case StatusLocked:
		return "document locked"
	case StatusAuthStale:
		return "auth stale"
	case StatusAuthError:
		return "auth error"
	case StatusAuthContinue:
		return "auth continue"
	case StatusRangeError:
		return "range error"
	case StatusAccessError:
		return "access error"
	case StatusNotInitialized:
		return "not initialized"
	case StatusUnknownCommand:
		return "unknown command"
	case StatusOutOfMemory:
		return "out of memory"
	case StatusNotSupported:
		return "not supported"
	case StatusInternalError:
		return "internal error"
	case StatusBusy:
		return "server busy"
	case StatusTmpFail:
		return "temporary failure"
	}
	return fmt.Sprintf("unknown status (0x%04x)", uint16(s))
}
