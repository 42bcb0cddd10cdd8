package jskernel

import (
	"strings"

	"github.com/dop251/goja"

	"github.com/wehubfusion/Daedalus/pkg/kernel"
)

// parseRunError converts a goja run failure into a structured error record.
func parseRunError(err error) kernel.Record {
	if exc, ok := err.(*goja.Exception); ok {
		return parseException(exc)
	}

	// Compile-stage failures never reach the exception path.
	message := firstLine(err.Error())
	name := "Error"
	if idx := strings.Index(message, "SyntaxError"); idx != -1 {
		name = "SyntaxError"
	}
	return kernel.ErrorRecord(name, message, nil)
}

// parseException extracts name, message and stack lines from a thrown value.
func parseException(exc *goja.Exception) kernel.Record {
	name := "Error"
	message := firstLine(exc.Error())
	var traceback []string

	if value := exc.Value(); value != nil {
		scratch := goja.New()
		obj := value.ToObject(scratch)

		if v := obj.Get("name"); v != nil && !goja.IsUndefined(v) {
			name = v.String()
		}
		if v := obj.Get("message"); v != nil && !goja.IsUndefined(v) {
			message = v.String()
		} else if goja.IsUndefined(obj.Get("name")) {
			// Thrown primitive: the value itself is the message.
			message = value.String()
		}
		if v := obj.Get("stack"); v != nil && !goja.IsUndefined(v) {
			traceback = splitStack(v.String())
		}
	}

	return kernel.ErrorRecord(name, message, traceback)
}

// splitStack breaks a JavaScript stack string into trimmed, non-empty lines.
func splitStack(stack string) []string {
	var lines []string
	for _, line := range strings.Split(stack, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx != -1 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}
