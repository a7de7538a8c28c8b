package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Wednesday
var fixedNow = time.Date(2024, 1, 3, 10, 30, 0, 0, time.UTC)

func ranAt(t time.Time) JobState {
	return JobState{LastRun: t.Format(TimeLayout), LastStatus: StatusSuccess}
}

func TestParse(t *testing.T) {
	jobs, err := Parse([]byte(`
jobs:
  - name: Daily Audit Report
    schedule: {frequency: daily, time: "08:15"}
    params:
      use_demo: true
      args: [a, 2]
      extra_context: {season: 冬季}
  - id: digest
    type: template
    enabled: false
    schedule: {frequency: cron, cron: "30 8 * * 1-5"}
  - type: custom
`))
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	assert.Equal(t, "daily_audit_report", jobs[0].ID)
	assert.Equal(t, TypeAudit, jobs[0].TypeOrDefault())
	assert.True(t, jobs[0].IsEnabled())
	assert.True(t, jobs[0].Params.Bool("use_demo"))
	assert.Equal(t, []string{"a", "2"}, jobs[0].Params.Strings("args"))
	assert.Equal(t, "冬季", jobs[0].Params.Map("extra_context")["season"])
	assert.Equal(t, "", jobs[0].Params.String("missing"))

	assert.Equal(t, "digest", jobs[1].ID)
	assert.False(t, jobs[1].IsEnabled())
	assert.Equal(t, "digest", jobs[1].DisplayName())

	assert.Equal(t, "unnamed", jobs[2].ID)
	assert.Equal(t, Daily, jobs[2].Schedule.FrequencyOrDefault())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"bad yaml", "jobs: [\n"},
		{"duplicate id", "jobs:\n  - id: a\n  - name: A\n"},
		{"bad cron", "jobs:\n  - id: a\n    schedule: {frequency: cron, cron: \"61 * * * *\"}\n"},
		{"bad time", "jobs:\n  - id: a\n    schedule: {frequency: daily, time: \"9am\"}\n"},
		{"unknown frequency", "jobs:\n  - id: a\n    schedule: {frequency: fortnightly}\n"},
		{"bad weekday", "jobs:\n  - id: a\n    schedule: {frequency: weekly, day_of_week: 8}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestDue(t *testing.T) {
	today := func(h, m int) time.Time {
		return time.Date(2024, 1, 3, h, m, 0, 0, time.UTC)
	}
	yesterday := today(9, 0).AddDate(0, 0, -1)

	tests := []struct {
		name string
		spec Spec
		st   JobState
		want bool
	}{
		{"daily never ran", Spec{Frequency: Daily, Time: "09:00"}, JobState{}, true},
		{"daily before time", Spec{Frequency: Daily, Time: "11:00"}, JobState{}, false},
		{"daily ran today", Spec{Frequency: Daily, Time: "09:00"}, ranAt(today(9, 5)), false},
		{"daily ran yesterday", Spec{Frequency: Daily, Time: "09:00"}, ranAt(yesterday), true},
		{"default frequency and time", Spec{}, JobState{}, true},
		{"weekly on day", Spec{Frequency: Weekly, DayOfWeek: 3, Time: "10:00"}, JobState{}, true},
		{"weekly default monday", Spec{Frequency: Weekly}, JobState{}, false},
		{"monthly on day", Spec{Frequency: Monthly, DayOfMonth: 3}, ranAt(yesterday), true},
		{"monthly default first", Spec{Frequency: Monthly}, JobState{}, false},
		{"hourly never ran", Spec{Frequency: Hourly, IntervalHours: 4}, JobState{}, true},
		{"hourly too soon", Spec{Frequency: Hourly, IntervalHours: 4}, ranAt(fixedNow.Add(-3 * time.Hour)), false},
		{"hourly elapsed", Spec{Frequency: Hourly, IntervalHours: 4}, ranAt(fixedNow.Add(-4 * time.Hour)), true},
		{"hourly default interval", Spec{Frequency: Hourly}, ranAt(fixedNow.Add(-time.Hour)), true},
		{"cron activation passed", Spec{Frequency: Cron, Cron: "0 9 * * *"}, ranAt(yesterday), true},
		{"cron ran after activation", Spec{Frequency: Cron, Cron: "0 9 * * *"}, ranAt(today(9, 0)), false},
		{"cron never ran within a day", Spec{Frequency: Cron, Cron: "0 9 * * *"}, JobState{}, true},
		{"cron never ran weekly", Spec{Frequency: Cron, Cron: "0 9 * * 1"}, JobState{}, false},
		{"cron descriptor", Spec{Frequency: Cron, Cron: "@hourly"}, ranAt(today(9, 59)), true},
		{"unknown frequency", Spec{Frequency: "fortnightly"}, JobState{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := Job{ID: "j", Schedule: tt.spec}
			assert.Equal(t, tt.want, Due(job, tt.st, fixedNow))
		})
	}
}

func TestLastRunTime(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Time
		ok   bool
	}{
		{"2024-01-03T09:00:00", time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC), true},
		{"2024-01-03T09:00:00.123456", time.Date(2024, 1, 3, 9, 0, 0, 123456000, time.UTC), true},
		{"2024-01-03T17:00:00+08:00", time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC), true},
		{"", time.Time{}, false},
		{"yesterday", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := JobState{LastRun: tt.raw}.LastRunTime(time.UTC)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, tt.want.Equal(got), "got %s", got)
			}
		})
	}
}

func TestIsoWeekday(t *testing.T) {
	assert.Equal(t, 1, isoWeekday(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 7, isoWeekday(time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)))
}
