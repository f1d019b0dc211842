package log

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

type formatter struct {
	pattern string
	time    string
}

// Format expands a pattern string containing %time, %level, %field,
// %msg, %caller, %func, %goroutine placeholders and terminates the
// line, so LoggerConfig.Pattern never needs its own newline token.
func (f *formatter) Format(entry *logrus.Entry) ([]byte, error) {
	output := f.pattern
	output = strings.Replace(output, "%time", entry.Time.Format(f.time), 1)
	output = strings.Replace(output, "%level", entry.Level.String(), 1)
	output = strings.Replace(output, "%field", buildFields(entry), 1)
	output = strings.Replace(output, "%msg", entry.Message, 1)
	output = strings.Replace(output, "%caller", getCaller(entry), 1)
	output = strings.Replace(output, "%func", getFunc(entry), 1)
	output = strings.Replace(output, "%goroutine", getGoroutineID(), 1)
	return []byte(output + "\n"), nil
}

// getCaller returns "package/file:line" for the log call site.
// entry.HasCaller() is true whenever the logger has SetReportCaller
// enabled, which initByConfig always does; the runtime.Caller fallback
// only matters for an *logrus.Entry built outside that path (tests
// constructing their own logrus.Logger).
func getCaller(entry *logrus.Entry) string {
	if entry.HasCaller() {
		file := baseName(entry.Caller.File)
		pkg := ""
		if entry.Caller.Function != "" {
			funcParts := strings.Split(entry.Caller.Function, ".")
			if len(funcParts) > 1 {
				pkgParts := strings.Split(funcParts[0], "/")
				pkg = pkgParts[len(pkgParts)-1]
			}
		}
		return fmt.Sprintf("%s/%s:%d", pkg, file, entry.Caller.Line)
	}
	_, file, line, ok := runtime.Caller(8)
	if ok {
		return fmt.Sprintf("unknown/%s:%d", baseName(file), line)
	}
	return "unknown"
}

func baseName(path string) string {
	if idx := strings.LastIndex(path, "/"); idx != -1 && idx+1 < len(path) {
		return path[idx+1:]
	}
	return path
}

// getFunc returns just the method/function name, without its package
// or receiver-type qualifier.
func getFunc(entry *logrus.Entry) string {
	if entry.HasCaller() {
		return lastDotSegment(entry.Caller.Function)
	}
	pc, _, _, ok := runtime.Caller(8)
	if ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			return lastDotSegment(fn.Name())
		}
	}
	return "unknown"
}

func lastDotSegment(name string) string {
	if idx := strings.LastIndex(name, "."); idx != -1 && idx+1 < len(name) {
		return name[idx+1:]
	}
	return name
}

// getGoroutineID extracts the calling goroutine's id from the header
// line runtime.Stack always emits ("goroutine N [state]:"); there is
// no public API for this, so parsing the header is the only way.
func getGoroutineID() string {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	stack := strings.TrimPrefix(string(buf[:n]), "goroutine ")
	idField := strings.Fields(stack)
	if len(idField) > 0 {
		return idField[0]
	}
	return "unknown"
}

func buildFields(entry *logrus.Entry) string {
	var fields []string
	for key, val := range entry.Data {
		stringVal, ok := val.(string)
		if !ok {
			stringVal = fmt.Sprint(val)
		}
		fields = append(fields, key+"="+stringVal)
	}
	return strings.Join(fields, ",")
}
