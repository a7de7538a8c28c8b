package schedule

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Frequencies
const (
	Hourly  = "hourly"
	Daily   = "daily"
	Weekly  = "weekly"
	Monthly = "monthly"
	Cron    = "cron"
)

// Job types
const (
	TypeAudit    = "audit"
	TypeTemplate = "template"
	TypeCustom   = "custom"
)

const defaultClock = "09:00"

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Spec says when a job runs. Zero values take the defaults: daily at 09:00,
// Monday, the 1st of the month, every hour.
type Spec struct {
	Frequency     string  `yaml:"frequency,omitempty" json:"frequency,omitempty"`
	Time          string  `yaml:"time,omitempty" json:"time,omitempty"`
	DayOfWeek     int     `yaml:"day_of_week,omitempty" json:"day_of_week,omitempty"`
	DayOfMonth    int     `yaml:"day_of_month,omitempty" json:"day_of_month,omitempty"`
	IntervalHours float64 `yaml:"interval_hours,omitempty" json:"interval_hours,omitempty"`
	Cron          string  `yaml:"cron,omitempty" json:"cron,omitempty"`
}

// FrequencyOrDefault returns the frequency, daily when unset
func (s Spec) FrequencyOrDefault() string {
	if s.Frequency == "" {
		return Daily
	}
	return s.Frequency
}

func (s Spec) clock() (int, int, error) {
	raw := s.Time
	if raw == "" {
		raw = defaultClock
	}
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q: want HH:MM", raw)
	}
	return t.Hour(), t.Minute(), nil
}

// Validate checks the frequency and the fields it depends on
func (s Spec) Validate() error {
	switch s.FrequencyOrDefault() {
	case Hourly:
		if s.IntervalHours < 0 {
			return fmt.Errorf("interval_hours must be positive")
		}
		return nil
	case Daily:
	case Weekly:
		if s.DayOfWeek < 0 || s.DayOfWeek > 7 {
			return fmt.Errorf("day_of_week must be between 1 and 7")
		}
	case Monthly:
		if s.DayOfMonth < 0 || s.DayOfMonth > 31 {
			return fmt.Errorf("day_of_month must be between 1 and 31")
		}
	case Cron:
		if _, err := cronParser.Parse(s.Cron); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", s.Cron, err)
		}
		return nil
	default:
		return fmt.Errorf("unknown frequency %q", s.Frequency)
	}
	_, _, err := s.clock()
	return err
}

// Job is one scheduled report
type Job struct {
	ID       string `yaml:"id" json:"id"`
	Name     string `yaml:"name,omitempty" json:"name,omitempty"`
	Type     string `yaml:"type,omitempty" json:"type,omitempty"`
	Enabled  *bool  `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Schedule Spec   `yaml:"schedule,omitempty" json:"schedule,omitempty"`
	Params   Params `yaml:"params,omitempty" json:"params,omitempty"`
}

// IsEnabled reports whether the job runs; jobs are enabled unless disabled
func (j Job) IsEnabled() bool {
	return j.Enabled == nil || *j.Enabled
}

// TypeOrDefault returns the job type, audit when unset
func (j Job) TypeOrDefault() string {
	if j.Type == "" {
		return TypeAudit
	}
	return j.Type
}

// DisplayName returns the name, or the id when the job has none
func (j Job) DisplayName() string {
	if j.Name != "" {
		return j.Name
	}
	return j.ID
}

// Params are the type-specific job parameters
type Params map[string]interface{}

// String returns a string parameter, "" when missing or not a string
func (p Params) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// Bool returns a boolean parameter, false when missing
func (p Params) Bool(key string) bool {
	b, _ := p[key].(bool)
	return b
}

// Strings returns a list parameter with each item formatted as a string
func (p Params) Strings(key string) []string {
	switch v := p[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return nil
	}
}

// Map returns a mapping parameter, nil when missing
func (p Params) Map(key string) map[string]interface{} {
	m, _ := p[key].(map[string]interface{})
	return m
}

type file struct {
	Jobs []Job `yaml:"jobs"`
}

// Load reads a schedule file
func Load(path string) ([]Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schedule: %w", err)
	}
	return Parse(data)
}

// Parse decodes a schedule document. Jobs without an id get one derived from
// their name.
func Parse(data []byte) ([]Job, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse schedule: %w", err)
	}

	seen := make(map[string]bool, len(f.Jobs))
	for i := range f.Jobs {
		job := &f.Jobs[i]
		if job.ID == "" {
			job.ID = DeriveID(job.Name)
		}
		if seen[job.ID] {
			return nil, fmt.Errorf("duplicate job id %q", job.ID)
		}
		seen[job.ID] = true
		if err := job.Schedule.Validate(); err != nil {
			return nil, fmt.Errorf("job %s: %w", job.ID, err)
		}
	}
	return f.Jobs, nil
}

// DeriveID lower-cases name and replaces spaces with '_'; "unnamed" when empty
func DeriveID(name string) string {
	if name == "" {
		name = "unnamed"
	}
	return strings.ToLower(strings.ReplaceAll(name, " ", "_"))
}

// Due reports whether job should run at now given its last recorded state.
// Calendar frequencies are due once per matching day, at or after the
// configured time.
func Due(job Job, st JobState, now time.Time) bool {
	spec := job.Schedule
	lastRun, ran := st.LastRunTime(now.Location())

	switch spec.FrequencyOrDefault() {
	case Hourly:
		if !ran {
			return true
		}
		interval := spec.IntervalHours
		if interval == 0 {
			interval = 1
		}
		return now.Sub(lastRun) >= time.Duration(interval*float64(time.Hour))

	case Daily:
		return dueToday(spec, lastRun, ran, now)

	case Weekly:
		dow := spec.DayOfWeek
		if dow == 0 {
			dow = 1
		}
		if isoWeekday(now) != dow {
			return false
		}
		return dueToday(spec, lastRun, ran, now)

	case Monthly:
		dom := spec.DayOfMonth
		if dom == 0 {
			dom = 1
		}
		if now.Day() != dom {
			return false
		}
		return dueToday(spec, lastRun, ran, now)

	case Cron:
		sched, err := cronParser.Parse(spec.Cron)
		if err != nil {
			return false
		}
		from := lastRun
		if !ran {
			from = now.Add(-24 * time.Hour)
		}
		return !sched.Next(from).After(now)
	}
	return false
}

func dueToday(spec Spec, lastRun time.Time, ran bool, now time.Time) bool {
	h, m, err := spec.clock()
	if err != nil {
		return false
	}
	at := time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, now.Location())
	if now.Before(at) {
		return false
	}
	return !(ran && sameDay(lastRun, now))
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// isoWeekday numbers Monday 1 through Sunday 7
func isoWeekday(t time.Time) int {
	if t.Weekday() == time.Sunday {
		return 7
	}
	return int(t.Weekday())
}
