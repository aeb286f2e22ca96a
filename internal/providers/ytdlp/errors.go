package ytdlp

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Stages reported by ProcessError.
const (
	StageLookup   = "lookup"
	StageDownload = "download"
	StageVerify   = "verify"
)

const maxDetailLength = 300

// ProcessError is a stage-aware failure of the external tool.
type ProcessError struct {
	Stage      string
	Message    string
	ExitCode   int
	StderrTail []string
	Err        error
}

func (e *ProcessError) Error() string {
	if e == nil {
		return ""
	}
	if e.ExitCode == 0 {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s (exit=%d)", e.Stage, e.Message, e.ExitCode)
}

func (e *ProcessError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Detail is the client-facing description: the message followed by the
// tool's own ERROR line when it printed one.
func (e *ProcessError) Detail() string {
	if e == nil {
		return ""
	}
	detail := e.Message
	if line := errorLine(e.StderrTail); line != "" {
		detail += ": " + line
	}
	return truncate(detail, maxDetailLength)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

// errorLine picks the first "ERROR:" line, or the last line of the tail.
func errorLine(tail []string) string {
	for _, line := range tail {
		if strings.HasPrefix(line, "ERROR:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "ERROR:"))
		}
	}
	if len(tail) > 0 {
		return tail[len(tail)-1]
	}
	return ""
}
