package handlebars

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aymerick/raymond"
)

var registerOnce sync.Once

// Engine renders Handlebars patterns such as output paths and document titles
type Engine struct {
	cache map[string]*raymond.Template
	mu    sync.RWMutex
}

// NewEngine creates a new pattern engine
func NewEngine() *Engine {
	registerOnce.Do(registerHelpers)

	return &Engine{
		cache: make(map[string]*raymond.Template),
	}
}

// Render renders a pattern with the given data. The render instant is
// exposed to the pattern as "now".
func (e *Engine) Render(pattern string, data map[string]interface{}, now time.Time) (string, error) {
	if !strings.Contains(pattern, "{{") {
		return pattern, nil
	}

	tmpl, err := e.getTemplate(pattern)
	if err != nil {
		return "", fmt.Errorf("failed to compile pattern: %w", err)
	}

	ctx := make(map[string]interface{}, len(data)+1)
	for k, v := range data {
		ctx[k] = v
	}
	if _, ok := ctx["now"]; !ok {
		ctx["now"] = now
	}

	result, err := tmpl.Exec(ctx)
	if err != nil {
		return "", fmt.Errorf("pattern execution failed: %w", err)
	}

	return result, nil
}

// getTemplate gets a compiled template from cache or compiles it
func (e *Engine) getTemplate(pattern string) (*raymond.Template, error) {
	e.mu.RLock()
	if tmpl, ok := e.cache[pattern]; ok {
		e.mu.RUnlock()
		return tmpl, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Check again in case another goroutine compiled it
	if tmpl, ok := e.cache[pattern]; ok {
		return tmpl, nil
	}

	tmpl, err := raymond.Parse(pattern)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	e.cache[pattern] = tmpl
	return tmpl, nil
}

// Validate validates a pattern without rendering it
func (e *Engine) Validate(pattern string) error {
	_, err := raymond.Parse(pattern)
	return err
}

// ClearCache clears the compiled pattern cache
func (e *Engine) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[string]*raymond.Template)
}

// registerHelpers registers the pattern helpers. Raymond helpers are global
// and may only be registered once per process.
func registerHelpers() {
	raymond.RegisterHelper("uppercase", func(str string) string {
		return strings.ToUpper(str)
	})

	raymond.RegisterHelper("lowercase", func(str string) string {
		return strings.ToLower(str)
	})

	raymond.RegisterHelper("trim", func(str string) string {
		return strings.TrimSpace(str)
	})

	raymond.RegisterHelper("default", func(value interface{}, defaultValue interface{}) interface{} {
		if value == nil || value == "" {
			return defaultValue
		}
		return value
	})

	// date formats a time.Time (or RFC 3339 string) with a Go layout
	raymond.RegisterHelper("date", func(value interface{}, layout string) string {
		switch v := value.(type) {
		case time.Time:
			return v.Format(layout)
		case string:
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return v
			}
			return t.Format(layout)
		default:
			return ""
		}
	})

	// slug lower-cases and replaces path-hostile characters with '_'
	raymond.RegisterHelper("slug", func(str string) string {
		return slugify(str)
	})
}

func slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch r {
		case ' ', '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
