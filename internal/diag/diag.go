// Package diag logs failures by location and error type without echoing
// paths or device names carried in the message text.
package diag

import (
	"errors"
	"fmt"
	"log"
	"runtime"
	"strings"
)

type coder interface {
	ResultCode() int32
}

// Error logs err with the caller location and error type chain. When any
// error in the chain carries a platform result code it is logged as code=.
func Error(context string, err error) {
	if err == nil {
		return
	}
	log.Print(line(callerLocation(2), context, err))
}

func line(loc, context string, err error) string {
	var b strings.Builder
	b.WriteString("error at ")
	b.WriteString(loc)
	if context != "" {
		b.WriteString(" context=")
		b.WriteString(context)
	}
	b.WriteString(" types=")
	b.WriteString(strings.Join(errorTypes(err), "->"))
	if code, ok := resultCode(err); ok {
		fmt.Fprintf(&b, " code=%d", code)
	}
	return b.String()
}

func resultCode(err error) (int32, bool) {
	var c coder
	if errors.As(err, &c) {
		if code := c.ResultCode(); code != 0 {
			return code, true
		}
	}
	return 0, false
}

func callerLocation(skip int) string {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	fn := runtime.FuncForPC(pc)
	name := "unknown"
	if fn != nil {
		name = fn.Name()
	}
	return fmt.Sprintf("%s:%d %s", file, line, name)
}

func errorTypes(err error) []string {
	types := []string{}
	seen := map[string]struct{}{}
	for err != nil {
		name := fmt.Sprintf("%T", err)
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			types = append(types, name)
		}
		err = errors.Unwrap(err)
	}
	return types
}
