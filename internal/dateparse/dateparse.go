// Package dateparse turns the posted-date strings found on job boards into timestamps.
package dateparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// layouts are tried in order after the caller-supplied layout.
var layouts = []string{
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z",
	time.RFC3339,
}

var (
	relativePattern = regexp.MustCompile(`^(\d+)\s+(day|days|week|weeks|month|months)\s+ago\b`)
	shortPattern    = regexp.MustCompile(`^(\d+)\s*([dwm])(?:\s+ago)?$`)
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

type clockFunc func() time.Time

func (f clockFunc) Now() time.Time { return f() }

// Parser normalizes absolute and relative date strings.
type Parser struct {
	clock  Clock
	logger *zap.Logger
}

// Option customizes a Parser.
type Option func(*Parser)

// WithClock overrides the time source used for relative phrases.
func WithClock(c Clock) Option {
	return func(p *Parser) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithLogger sets the logger used to report unrecognized input.
func WithLogger(l *zap.Logger) Option {
	return func(p *Parser) {
		if l != nil {
			p.logger = l
		}
	}
}

// New builds a Parser that uses the system clock unless overridden.
func New(opts ...Option) *Parser {
	p := &Parser{
		clock:  clockFunc(time.Now),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse returns the timestamp described by text or nil when it is not recognized.
// layout, when non-empty, is a Go time layout tried before the built-in ones.
func (p *Parser) Parse(text, layout string) *time.Time {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if layout != "" {
		if t, err := time.Parse(layout, text); err == nil {
			return &t
		}
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, text); err == nil {
			return &t
		}
	}
	if t, ok := p.relative(strings.ToLower(text)); ok {
		return &t
	}
	p.logger.Warn("unrecognized date", zap.String("text", text))
	return nil
}

func (p *Parser) relative(text string) (time.Time, bool) {
	today := startOfDay(p.clock.Now())
	switch {
	case strings.Contains(text, "yesterday"):
		return today.AddDate(0, 0, -1), true
	case strings.Contains(text, "today"), text == "just posted", text == "new":
		return today, true
	}
	if m := relativePattern.FindStringSubmatch(text); m != nil {
		return offset(today, m[1], m[2][:1])
	}
	if m := shortPattern.FindStringSubmatch(text); m != nil {
		return offset(today, m[1], m[2])
	}
	return time.Time{}, false
}

// offset subtracts n units from day. Months are 30 days.
func offset(day time.Time, n, unit string) (time.Time, bool) {
	amount, err := strconv.Atoi(n)
	if err != nil {
		return time.Time{}, false
	}
	days := amount
	switch unit {
	case "w":
		days = amount * 7
	case "m":
		days = amount * 30
	}
	return day.AddDate(0, 0, -days), true
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
