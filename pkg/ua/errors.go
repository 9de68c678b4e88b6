package ua

import (
	"fmt"
	"sync"

	"softphone/pkg/engine"
)

// OpError is returned for every engine request that reports a non-success
// status code. The human-readable message is resolved through the engine
// on first use, not at construction time.
type OpError struct {
	Op   string
	Obj  string
	Code engine.Code

	eng  engine.Engine
	once sync.Once
	msg  string
}

func (e *OpError) Message() string {
	e.once.Do(func() {
		if e.msg == "" && e.eng != nil {
			e.msg = e.eng.Strerror(e.Code)
		}
	})
	return e.msg
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %s: code %d (%s)", e.Obj, e.Op, e.Code, e.Message())
}

// errCheck converts a status code into an *OpError, or nil on success.
func (u *UA) errCheck(op string, obj fmt.Stringer, code engine.Code) error {
	if code == engine.OK {
		return nil
	}
	name := "ua"
	if obj != nil {
		name = obj.String()
	}
	return &OpError{Op: op, Obj: name, Code: code, eng: u.eng}
}
