package template

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ident matches a bare or dotted path. Han ideographs are allowed so that
// spreadsheet column names like 门店名称 can be referenced directly.
const ident = `[\w\p{Han}.]+`

var (
	eachPattern  = regexp.MustCompile(`(?s)\{\{#each\s+(` + ident + `)\}\}(.*?)\{\{/each\}\}`)
	ifPattern    = regexp.MustCompile(`(?s)\{\{#if\s+(` + ident + `)\}\}(.*?)\{\{/if\}\}`)
	varPattern   = regexp.MustCompile(`\{\{(` + ident + `)\}\}`)
	tokenPattern = regexp.MustCompile(`\{\{([^{}]+)\}\}`)
)

// Engine renders templates against a clock. The zero value is not usable;
// create one with NewEngine.
type Engine struct {
	clock func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithClock sets the clock used for built-in time variables
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// NewEngine creates a new template engine using the wall clock by default
func NewEngine(opts ...Option) *Engine {
	e := &Engine{clock: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Render renders a template with the given data. The clock is read once per
// call.
func (e *Engine) Render(tmpl string, data map[string]interface{}) string {
	return Render(tmpl, data, e.clock())
}

// Render renders tmpl against data layered over the built-in variables for
// now. It holds no state between calls and is safe for concurrent use.
func Render(tmpl string, data map[string]interface{}, now time.Time) string {
	ctx := Builtins(now)
	for k, v := range data {
		ctx[k] = v
	}

	out := expandEach(tmpl, ctx)
	out = resolveIf(out, ctx)
	return resolveVars(out, ctx)
}

// expandEach replaces every {{#each}} block with its per-item bodies
func expandEach(text string, ctx map[string]interface{}) string {
	return replaceSpans(eachPattern, text, func(groups []string) string {
		items, ok := asList(Resolve(ctx, groups[1]))
		if !ok {
			return ""
		}

		body := trimOneNewline(groups[2])
		lines := make([]string, 0, len(items))
		for idx, item := range items {
			rec, isRecord := asRecord(item)
			if !isRecord {
				lines = append(lines, strings.ReplaceAll(body, "{{this}}", Format(item)))
				continue
			}
			if allEmpty(rec) {
				continue
			}
			line := resolveItemIf(body, rec)
			lines = append(lines, substituteItem(line, rec, idx))
		}
		return strings.Join(lines, "\n")
	})
}

// resolveItemIf resolves {{#if field}} blocks whose path is a direct field
// of item. Blocks naming anything else are left for the top-level pass.
func resolveItemIf(body string, item map[string]interface{}) string {
	return replaceSpans(ifPattern, body, func(groups []string) string {
		if strings.Contains(groups[1], ".") {
			return groups[0]
		}
		val, ok := item[groups[1]]
		if !ok {
			return groups[0]
		}
		if Truthy(val) {
			return groups[2]
		}
		return ""
	})
}

// substituteItem replaces {{field}} tokens naming fields of item and the
// {{@index}} token in one scan, so substituted values are never re-read.
func substituteItem(body string, item map[string]interface{}, idx int) string {
	return tokenPattern.ReplaceAllStringFunc(body, func(token string) string {
		name := token[2 : len(token)-2]
		if val, ok := item[name]; ok {
			return Format(val)
		}
		if name == "@index" {
			return strconv.Itoa(idx)
		}
		return token
	})
}

// resolveIf keeps or drops top-level {{#if}} blocks
func resolveIf(text string, ctx map[string]interface{}) string {
	return replaceSpans(ifPattern, text, func(groups []string) string {
		if Truthy(Resolve(ctx, groups[1])) {
			return groups[2]
		}
		return ""
	})
}

// resolveVars substitutes bare variable references. Null and record values
// leave the token untouched.
func resolveVars(text string, ctx map[string]interface{}) string {
	return replaceSpans(varPattern, text, func(groups []string) string {
		val := Resolve(ctx, groups[1])
		if val == nil {
			return groups[0]
		}
		if _, isRecord := asRecord(val); isRecord {
			return groups[0]
		}
		return Format(val)
	})
}

// replaceSpans replaces each leftmost non-overlapping match of re with the
// result of fn, which receives the full match followed by its submatches.
func replaceSpans(re *regexp.Regexp, text string, fn func(groups []string) string) string {
	matches := re.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, m := range matches {
		groups := make([]string, len(m)/2)
		for i := range groups {
			if m[2*i] >= 0 {
				groups[i] = text[m[2*i]:m[2*i+1]]
			}
		}
		b.WriteString(text[last:m[0]])
		b.WriteString(fn(groups))
		last = m[1]
	}
	b.WriteString(text[last:])
	return b.String()
}

// trimOneNewline strips a single leading and a single trailing newline
func trimOneNewline(s string) string {
	s = strings.TrimPrefix(s, "\n")
	return strings.TrimSuffix(s, "\n")
}

// allEmpty reports whether every field of rec is null, "" or an empty list
func allEmpty(rec map[string]interface{}) bool {
	for _, v := range rec {
		if !isEmpty(v) {
			return false
		}
	}
	return true
}

func isEmpty(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	if l, ok := asList(v); ok {
		return len(l) == 0
	}
	return false
}
