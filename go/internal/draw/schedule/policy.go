package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config is the weekly draw policy as it appears in the config file.
type Config struct {
	Timezone          string        `yaml:"timezone"`
	Weekdays          []string      `yaml:"weekdays"`
	Time              string        `yaml:"time"` // HH:MM, service timezone
	Lead              time.Duration `yaml:"lead"`
	Grace             time.Duration `yaml:"grace"`
	RegistrationClose time.Duration `yaml:"registration_close"`
}

// DefaultConfig draws on Wednesdays and Sundays at 20:00 Zurich time and admits
// executions up to two minutes after the instant.
func DefaultConfig() Config {
	return Config{
		Timezone:          "Europe/Zurich",
		Weekdays:          []string{"wednesday", "sunday"},
		Time:              "20:00",
		Lead:              0,
		Grace:             2 * time.Minute,
		RegistrationClose: 5 * time.Minute,
	}
}

// Policy answers calendar questions about the weekly draw.
type Policy struct {
	cfg      Config
	loc      *time.Location
	sched    cron.Schedule
	weekdays []time.Weekday
	hour     int
	minute   int
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// NewPolicy validates cfg and compiles it into a cron schedule.
func NewPolicy(cfg Config) (*Policy, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	if len(cfg.Weekdays) == 0 {
		return nil, errors.New("at least one draw weekday is required")
	}
	if cfg.Lead < 0 || cfg.Grace < 0 {
		return nil, errors.New("admission window bounds must not be negative")
	}

	hour, minute, err := parseClock(cfg.Time)
	if err != nil {
		return nil, err
	}

	seen := make(map[time.Weekday]bool)
	var days []time.Weekday
	var fields []string
	for _, name := range cfg.Weekdays {
		d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", name)
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		days = append(days, d)
		fields = append(fields, strconv.Itoa(int(d)))
	}

	spec := fmt.Sprintf("CRON_TZ=%s %d %d * * %s", cfg.Timezone, minute, hour, strings.Join(fields, ","))
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("compile draw schedule %q: %w", spec, err)
	}

	return &Policy{
		cfg:      cfg,
		loc:      loc,
		sched:    sched,
		weekdays: days,
		hour:     hour,
		minute:   minute,
	}, nil
}

func parseClock(s string) (int, int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid draw time %q, want HH:MM: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

// Location is the service timezone.
func (p *Policy) Location() *time.Location { return p.loc }

// Config returns the policy's source configuration.
func (p *Policy) Config() Config { return p.cfg }

// NextEligibleInstant returns the first draw instant strictly after now.
// At exactly a draw instant the following occurrence is returned.
func (p *Policy) NextEligibleInstant(now time.Time) time.Time {
	return p.sched.Next(now).In(p.loc)
}

// InAdmissionWindow reports whether now lies within [slot-Lead, slot+Grace] for
// some scheduled slot, and returns that slot.
func (p *Policy) InAdmissionWindow(now time.Time) (time.Time, bool) {
	lower := now.Add(-p.cfg.Grace)
	slot := p.sched.Next(lower.Add(-time.Second))
	if slot.Before(lower) {
		slot = p.sched.Next(slot)
	}
	if slot.After(now.Add(p.cfg.Lead)) {
		return time.Time{}, false
	}
	return slot.In(p.loc), true
}

// RegistrationOpen reports whether new participants are accepted. Registration
// closes RegistrationClose before each draw instant.
func (p *Policy) RegistrationOpen(now time.Time) bool {
	next := p.NextEligibleInstant(now)
	return now.Before(next.Add(-p.cfg.RegistrationClose))
}

// StartOfDay returns midnight of t's calendar day in the service timezone.
func (p *Policy) StartOfDay(t time.Time) time.Time {
	local := t.In(p.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, p.loc)
}

// Describe renders the policy for logs, e.g. "wednesday,sunday 20:00 Europe/Zurich".
func (p *Policy) Describe() string {
	names := make([]string, len(p.weekdays))
	for i, d := range p.weekdays {
		names[i] = strings.ToLower(d.String())
	}
	return fmt.Sprintf("%s %02d:%02d %s", strings.Join(names, ","), p.hour, p.minute, p.loc)
}
