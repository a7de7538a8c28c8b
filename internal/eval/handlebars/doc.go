// Package handlebars renders Handlebars patterns for report job settings
// such as output file paths and document titles.
//
// Report bodies are rendered by package template; this package only expands
// the short strings that name where a report goes.
//
// Example usage:
//
//	engine := handlebars.NewEngine()
//
//	path, err := engine.Render(
//	    `reports/{{slug job_id}}-{{date now "20060102"}}.md`,
//	    map[string]interface{}{"job_id": "Daily Audit"},
//	    time.Now(),
//	)
//	// reports/daily_audit-20240103.md
//
// Built-in helpers:
//   - uppercase - Convert string to uppercase
//   - lowercase - Convert string to lowercase
//   - trim - Trim whitespace from string
//   - default - Return default value if first arg is empty
//   - date - Format a time with a Go layout
//   - slug - Make a string safe for use in a file name
package handlebars
