package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

const (
	stderrTailLines = 20
	maxLineBytes    = 1 << 20
)

// commandSpec describes one invocation of the external tool.
type commandSpec struct {
	Name string
	Args []string
	// CaptureStdout buffers stdout whole instead of splitting it into lines.
	CaptureStdout bool
	// OnLine receives every stderr line, and stdout lines when CaptureStdout
	// is false. Calls are serialized.
	OnLine func(line string)
}

// commandResult is an internal process execution response.
type commandResult struct {
	Stdout     string
	StderrTail []string
	ExitCode   int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, spec commandSpec) (commandResult, error)
}

// execRunner executes commands via os/exec. Arguments are passed as a
// vector; nothing is ever handed to a shell.
type execRunner struct{}

func (r *execRunner) Run(ctx context.Context, spec commandSpec) (commandResult, error) {
	cmd := exec.CommandContext(ctx, spec.Name, spec.Args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return commandResult{ExitCode: -1}, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return commandResult{ExitCode: -1}, err
	}
	if err := cmd.Start(); err != nil {
		return commandResult{ExitCode: -1}, err
	}

	var (
		out    bytes.Buffer
		tail   = newLineTail(stderrTailLines)
		g      errgroup.Group
		lineMu sync.Mutex
	)
	onLine := func(line string) {
		if spec.OnLine == nil {
			return
		}
		lineMu.Lock()
		defer lineMu.Unlock()
		spec.OnLine(line)
	}
	g.Go(func() error {
		if spec.CaptureStdout {
			_, err := io.Copy(&out, stdout)
			return err
		}
		return scanLines(stdout, onLine)
	})
	g.Go(func() error {
		return scanLines(stderr, func(line string) {
			tail.add(line)
			onLine(line)
		})
	})
	scanErr := g.Wait()
	waitErr := cmd.Wait()

	result := commandResult{
		Stdout:     out.String(),
		StderrTail: tail.lines(),
	}
	if waitErr != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		return result, waitErr
	}
	if scanErr != nil && !errors.Is(scanErr, io.EOF) {
		return result, scanErr
	}
	return result, nil
}

// scanLines splits r on both \n and \r so carriage-return progress redraws
// surface as separate lines.
func scanLines(r io.Reader, fn func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	scanner.Split(splitCRLF)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			fn(line)
		}
	}
	err := scanner.Err()
	if errors.Is(err, bufio.ErrTooLong) {
		// keep draining so the child never blocks on a full pipe
		_, err = io.Copy(io.Discard, r)
	}
	return err
}

func splitCRLF(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// lineTail keeps the last n lines written to it.
type lineTail struct {
	n   int
	buf []string
}

func newLineTail(n int) *lineTail {
	return &lineTail{n: n}
}

func (t *lineTail) add(line string) {
	t.buf = append(t.buf, line)
	if len(t.buf) > t.n {
		t.buf = t.buf[len(t.buf)-t.n:]
	}
}

func (t *lineTail) lines() []string {
	return append([]string(nil), t.buf...)
}
