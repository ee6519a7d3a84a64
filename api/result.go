// Package api
// Author: momentics@gmail.com
//
// Device result codes and their mapping onto library errors.

package api

// ResultCode is the status a lane reports after executing one request.
// The values are owned by the device-side routine and pass through opaquely
// unless listed below.
type ResultCode uint32

const (
	ResultOK             ResultCode = 0
	ResultInvalidInput   ResultCode = 1
	ResultBufferTooSmall ResultCode = 2
)

func (c ResultCode) String() string {
	switch c {
	case ResultOK:
		return "ok"
	case ResultInvalidInput:
		return "invalid_input"
	case ResultBufferTooSmall:
		return "buffer_too_small"
	default:
		return "unknown"
	}
}

// Err converts a lane result code into the error returned to the caller.
// Unknown codes are surfaced as *Error carrying the raw code.
func (c ResultCode) Err() error {
	switch c {
	case ResultOK:
		return nil
	case ResultInvalidInput:
		return NewError(ErrCodeDeviceResult, "lane rejected input").
			Wrap(ErrCorruptInput).
			WithContext("code", uint32(c))
	case ResultBufferTooSmall:
		return NewError(ErrCodeDeviceResult, "lane output overflow").
			Wrap(ErrBufferTooSmall).
			WithContext("code", uint32(c))
	default:
		return NewError(ErrCodeDeviceResult, "lane returned unknown result code").
			WithContext("code", uint32(c))
	}
}
