// Package oplog records the outcome of every step an update run takes and
// renders the summary printed at the end of the run.
package oplog

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/distantorigin/field-updater/internal/logging"
)

// Outcome is the severity of a logged step
type Outcome int

const (
	Success Outcome = iota
	Failure
	CriticalFailure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "SUCCESS"
	case Failure:
		return "FAILED"
	case CriticalFailure:
		return "CRITICAL"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Entry is one immutable step outcome
type Entry struct {
	Time        time.Time
	Description string
	Outcome     Outcome
	Detail      string
}

func (e Entry) String() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Description, e.Outcome)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Description, e.Outcome, e.Detail)
}

// Log is the append-only record of a single update run
type Log struct {
	entries []Entry
	now     func() time.Time
	logger  *logrus.Entry
}

// New creates an empty log. Every recorded entry is mirrored to logger
// (nil selects the "oplog" component logger).
func New(logger *logrus.Entry) *Log {
	if logger == nil {
		logger = logging.L("oplog")
	}
	return &Log{now: time.Now, logger: logger}
}

// Record appends an entry. Detail parts are joined with "; ".
func (l *Log) Record(description string, outcome Outcome, detail ...string) Entry {
	e := Entry{
		Time:        l.now(),
		Description: description,
		Outcome:     outcome,
		Detail:      strings.Join(detail, "; "),
	}
	l.entries = append(l.entries, e)

	fields := l.logger.WithField(logging.KeyOutcome, outcome.String())
	if e.Detail != "" {
		fields = fields.WithField("detail", e.Detail)
	}
	switch outcome {
	case Success:
		fields.Info(description)
	case Failure:
		fields.Warn(description)
	default:
		fields.Error(description)
	}
	return e
}

// Success records a successful step
func (l *Log) Success(description string, detail ...string) Entry {
	return l.Record(description, Success, detail...)
}

// Fail records a recoverable failure
func (l *Log) Fail(description string, detail ...string) Entry {
	return l.Record(description, Failure, detail...)
}

// Critical records a failure that puts user data or runnability at risk
func (l *Log) Critical(description string, detail ...string) Entry {
	return l.Record(description, CriticalFailure, detail...)
}

// Entries returns a copy of the recorded entries in order
func (l *Log) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// HasCritical reports whether any CriticalFailure was recorded
func (l *Log) HasCritical() bool {
	for _, e := range l.entries {
		if e.Outcome == CriticalFailure {
			return true
		}
	}
	return false
}

// Summary is the end-of-run tally
type Summary struct {
	Entries       []Entry
	SuccessCount  int
	CriticalCount int
}

// Summary tallies the log. SuccessCount counts only Success entries.
func (l *Log) Summary() Summary {
	s := Summary{Entries: l.Entries()}
	for _, e := range s.Entries {
		switch e.Outcome {
		case Success:
			s.SuccessCount++
		case CriticalFailure:
			s.CriticalCount++
		}
	}
	return s
}

// Render writes the human-readable summary
func (s Summary) Render(w io.Writer) error {
	var b strings.Builder
	b.WriteString("Summary of Operations:\n")
	for _, e := range s.Entries {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "\n%d/%d operations successful.\n", s.SuccessCount, len(s.Entries))
	if s.CriticalCount > 0 {
		fmt.Fprintf(&b, "%d critical failure(s) recorded.\n", s.CriticalCount)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
