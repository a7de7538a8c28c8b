// Package schedule runs report jobs declared in a YAML schedule.
//
// A schedule lists jobs with a type (template, audit or custom), a
// frequency and type-specific params:
//
//	jobs:
//	  - name: Daily Audit
//	    type: audit
//	    schedule: {frequency: daily, time: "09:00"}
//	    params:
//	      use_demo: true
//	      output_local: 'reports/audit_{{date now "20060102"}}.md'
//	  - id: weekday_digest
//	    type: template
//	    schedule: {frequency: cron, cron: "30 8 * * 1-5"}
//	    params: {app_token: bascnXXX, table_id: tblXXX, template: weekly_report.md}
//
// Frequencies are hourly (interval_hours), daily, weekly (day_of_week,
// Monday=1), monthly (day_of_month) and cron. Run state is kept in a
// FileStore, RedisStore or SQLiteStore.
//
// Example usage:
//
//	runner := schedule.NewRunner(schedule.FromFile("schedule.yaml"), schedule.NewFileStore(".report_state.json"), logger)
//	schedule.RegisterDefaults(runner, schedule.Deps{Source: client, Publisher: publisher, Logger: logger})
//	results, err := runner.RunDue(ctx, "")
package schedule
