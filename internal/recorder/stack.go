package recorder

import (
	"reflect"
	"runtime"
	"strconv"
	"strings"

	"github.com/loopviz/loopviz/internal/hooks"
)

const maxStackDepth = 32

// ownPrefixes are the function-name prefixes of frames that belong to the
// instrumentation itself and are stripped from creation stacks.
var ownPrefixes = []string{
	packagePrefix(reflect.ValueOf(New).Pointer()),
	packagePrefix(reflect.ValueOf(hooks.NewScript).Pointer()),
}

func packagePrefix(pc uintptr) string {
	name := runtime.FuncForPC(pc).Name()
	slash := strings.LastIndex(name, "/")
	dot := strings.Index(name[slash+1:], ".")
	if dot < 0 {
		return name
	}
	return name[:slash+1+dot+1]
}

func ownFrame(fn string) bool {
	if fn == "runtime.goexit" {
		return true
	}
	for _, p := range ownPrefixes {
		if strings.HasPrefix(fn, p) {
			return true
		}
	}
	return false
}

// captureStack returns the caller's stack in the usual "function\n\tfile:line"
// layout, minus instrumentation frames.
func captureStack() string {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var b strings.Builder
	for {
		f, more := frames.Next()
		if f.Function != "" && !ownFrame(f.Function) {
			b.WriteString(f.Function)
			b.WriteString("\n\t")
			b.WriteString(f.File)
			b.WriteByte(':')
			b.WriteString(strconv.Itoa(f.Line))
			b.WriteByte('\n')
		}
		if !more {
			break
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}
