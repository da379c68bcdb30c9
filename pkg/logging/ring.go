// Package logging holds logrus helpers shared by the service components.
package logging

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var _ logrus.Hook = (*Ring)(nil)

// Ring is a logrus hook that keeps the most recent formatted log lines.
type Ring struct {
	formatter logrus.Formatter
	level     logrus.Level

	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

// NewRing keeps up to size lines at level or more severe.
func NewRing(size int, level logrus.Level) *Ring {
	if size <= 0 {
		size = 1
	}

	return &Ring{
		formatter: &logrus.TextFormatter{DisableColors: true, FullTimestamp: true},
		level:     level,
		lines:     make([]string, size),
	}
}

// Levels implements logrus.Hook.
func (r *Ring) Levels() []logrus.Level {
	levels := make([]logrus.Level, 0, len(logrus.AllLevels))

	for _, l := range logrus.AllLevels {
		if l <= r.level {
			levels = append(levels, l)
		}
	}

	return levels
}

// Fire implements logrus.Hook.
func (r *Ring) Fire(entry *logrus.Entry) error {
	b, err := r.formatter.Format(entry)
	if err != nil {
		return err
	}

	line := strings.TrimRight(string(b), "\n")

	r.mu.Lock()
	defer r.mu.Unlock()

	r.lines[r.next] = line
	r.next = (r.next + 1) % len(r.lines)

	if r.next == 0 {
		r.full = true
	}

	return nil
}

// Lines returns the kept lines, newest first.
func (r *Ring) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.next
	if r.full {
		n = len(r.lines)
	}

	out := make([]string, 0, n)

	for i := 1; i <= n; i++ {
		out = append(out, r.lines[(r.next-i+len(r.lines))%len(r.lines)])
	}

	return out
}

// LevelName returns the minimum level captured.
func (r *Ring) LevelName() string {
	return r.level.String()
}
