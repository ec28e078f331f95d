package engine

import "errors"

// codedError lifts the code of a wrapped engine Error to the top level, where
// the JSON-RPC server looks for it, while keeping the full message.
type codedError struct {
	code int
	err  error
}

func (e *codedError) Error() string  { return e.err.Error() }
func (e *codedError) ErrorCode() int { return e.code }
func (e *codedError) Unwrap() error  { return e.err }

// ToWire prepares err for a JSON-RPC response. Errors that wrap an engine Error
// keep its code; anything else is returned unchanged.
func ToWire(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if !errors.As(err, &e) {
		return err
	}
	if err == error(e) {
		return e
	}
	return &codedError{code: e.code, err: err}
}

// remoteError is an engine error received from a peer. It matches its sentinel
// with errors.Is.
type remoteError struct {
	msg  string
	base *Error
}

func (e *remoteError) Error() string  { return e.msg }
func (e *remoteError) ErrorCode() int { return e.base.code }
func (e *remoteError) Unwrap() error  { return e.base }

// FromWire maps an error returned by a JSON-RPC call back onto the engine
// sentinel its code names. Unknown codes and transport errors are returned
// unchanged.
func FromWire(err error) error {
	if err == nil {
		return nil
	}
	var coded interface{ ErrorCode() int }
	if !errors.As(err, &coded) {
		return err
	}
	base, ok := ErrorByCode(coded.ErrorCode())
	if !ok {
		return err
	}
	if err.Error() == base.msg {
		return base
	}
	return &remoteError{msg: err.Error(), base: base}
}
