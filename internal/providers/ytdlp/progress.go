package ytdlp

import (
	"math"
	"regexp"
	"strconv"
)

// PercentPattern matches a decimal number immediately followed by '%'.
var PercentPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)%`)

// ProgressSource extracts a raw 0-100 completion value from one line of
// tool output.
type ProgressSource interface {
	Parse(line string) (float64, bool)
}

// PercentSource reads the first percentage on a line.
type PercentSource struct{}

func (PercentSource) Parse(line string) (float64, bool) {
	m := PercentPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return math.Min(math.Max(v, 0), 100), true
}

// monotonicProgress forwards whole-percent values that strictly increase.
// Decreasing or repeated values are dropped; this happens whenever the tool
// starts a second stream (video then audio) and restarts its count at 0.
type monotonicProgress struct {
	source ProgressSource
	emit   func(int)
	last   int
}

func newMonotonicProgress(source ProgressSource, emit func(int)) *monotonicProgress {
	return &monotonicProgress{source: source, emit: emit, last: -1}
}

func (m *monotonicProgress) observe(line string) {
	if m.emit == nil {
		return
	}
	raw, ok := m.source.Parse(line)
	if !ok {
		return
	}
	v := int(math.Floor(raw))
	if v <= m.last {
		return
	}
	m.last = v
	m.emit(v)
}
