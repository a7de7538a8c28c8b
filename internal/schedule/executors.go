package schedule

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/zj00777/feishu-power-skill/internal/audit"
	"github.com/zj00777/feishu-power-skill/internal/docflow"
	"github.com/zj00777/feishu-power-skill/internal/eval/cel"
	"github.com/zj00777/feishu-power-skill/internal/eval/handlebars"
)

// ErrNoSource is returned when a job needs bitable access that is not configured
var ErrNoSource = errors.New("bitable access is not configured")

// CustomTimeout bounds a custom script run
const CustomTimeout = 5 * time.Minute

const (
	demoStores = 50
	stdoutTail = 2000
	stderrTail = 1000
)

// Deps are the collaborators the built-in executors use. Nil members
// disable the features that need them.
type Deps struct {
	Generator *docflow.Generator
	Publisher *docflow.Publisher
	// Source reads bitable tables; *feishu.Client satisfies it
	Source docflow.RecordSource
	// Joiner joins sales and target tables; *bitable.Engine satisfies it
	Joiner    audit.Joiner
	Evaluator *cel.Evaluator
	Patterns  *handlebars.Engine

	TemplatesDir string
	ConfigsDir   string
	ScriptsDir   string

	Logger *zap.Logger
}

// RegisterDefaults registers the template, audit and custom executors
func RegisterDefaults(r *Runner, d Deps) {
	r.Register(TypeTemplate, NewTemplateExecutor(d))
	r.Register(TypeAudit, NewAuditExecutor(d))
	r.Register(TypeCustom, NewCustomExecutor(d.ScriptsDir, CustomTimeout))
}

func (d *Deps) defaults() {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Patterns == nil {
		d.Patterns = handlebars.NewEngine()
	}
	if d.Generator == nil {
		d.Generator = docflow.NewGenerator(d.Publisher, d.Logger)
	}
}

// TemplateExecutor renders a template against a bitable table.
//
// Params: app_token, table_id, template, title, group_by, filter,
// folder_token, publish, output_local, extra_context. title and
// output_local are handlebars patterns.
type TemplateExecutor struct {
	deps  Deps
	clock func() time.Time
}

// NewTemplateExecutor creates a template executor
func NewTemplateExecutor(d Deps) *TemplateExecutor {
	d.defaults()
	return &TemplateExecutor{deps: d, clock: time.Now}
}

// Execute runs a template job
func (e *TemplateExecutor) Execute(ctx context.Context, job Job) (Output, error) {
	p := job.Params

	tmpl := p.String("template")
	if tmpl == "" {
		return nil, fmt.Errorf("template is required")
	}
	path := resolve(e.deps.TemplatesDir, tmpl)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("template not found: %s", path)
	}

	app, table := p.String("app_token"), p.String("table_id")
	if app == "" || table == "" {
		return nil, fmt.Errorf("app_token and table_id are required")
	}
	if e.deps.Source == nil {
		return nil, ErrNoSource
	}

	now := e.clock()
	title, err := renderParam(e.deps.Patterns, job, "title", now)
	if err != nil {
		return nil, err
	}
	local, err := renderParam(e.deps.Patterns, job, "output_local", now)
	if err != nil {
		return nil, err
	}

	publish := p.Bool("publish")
	res, err := e.deps.Generator.FromBitable(ctx, e.deps.Source, app, table, path,
		docflow.ContextOptions{
			GroupBy: p.String("group_by"),
			Filter:  p.String("filter"),
			Extra:   p.Map("extra_context"),
		},
		docflow.GenerateOptions{
			Title:       title,
			FolderToken: p.String("folder_token"),
			OutputLocal: local,
			Publish:     publish,
		},
	)
	if err != nil {
		return nil, err
	}

	out := Output{
		"type":     TypeTemplate,
		"template": path,
		"title":    res.Title,
	}
	if res.LocalPath != "" {
		out["local_path"] = res.LocalPath
	}
	if res.DocToken != "" {
		out["doc_token"] = res.DocToken
		out["url"] = res.URL
		out["blocks"] = res.Blocks
		out["failed_blocks"] = res.FailedBlocks
	}
	if !publish && local == "" {
		out["content"] = res.Content
	}
	return out, nil
}

// AuditExecutor audits stores and writes the report.
//
// Params: use_demo, config, app_token, sales_table, target_table,
// join_field, extra_context, folder_token, publish, output_local, title.
type AuditExecutor struct {
	deps  Deps
	clock func() time.Time
}

// NewAuditExecutor creates an audit executor
func NewAuditExecutor(d Deps) *AuditExecutor {
	d.defaults()
	if d.Evaluator == nil {
		d.Evaluator = cel.NewEvaluator()
	}
	return &AuditExecutor{deps: d, clock: time.Now}
}

// Execute runs an audit job
func (e *AuditExecutor) Execute(ctx context.Context, job Job) (Output, error) {
	p := job.Params
	logger := e.deps.Logger

	cfg := audit.DefaultConfig()
	if name := p.String("config"); name != "" {
		var err error
		cfg, err = audit.LoadConfig(resolve(e.deps.ConfigsDir, name), logger)
		if err != nil {
			return nil, err
		}
	}

	auditor, err := audit.NewAuditor(cfg, e.deps.Evaluator, logger)
	if err != nil {
		return nil, err
	}

	var (
		stores []map[string]interface{}
		source string
	)
	if p.Bool("use_demo") {
		stores = audit.DemoStores(demoStores)
		source = fmt.Sprintf("Demo 模拟数据（%d家门店）", demoStores)
	} else {
		app, sales := p.String("app_token"), p.String("sales_table")
		if app == "" || sales == "" {
			return nil, fmt.Errorf("app_token and sales_table are required unless use_demo is set")
		}
		if e.deps.Source == nil {
			return nil, ErrNoSource
		}
		stores, err = audit.FetchStores(ctx, e.deps.Source, e.deps.Joiner, cfg, audit.TableSource{
			App:         app,
			SalesTable:  sales,
			TargetTable: p.String("target_table"),
			JoinField:   p.String("join_field"),
		})
		if err != nil {
			return nil, err
		}
		source = fmt.Sprintf("Bitable %s/%s（%d 家门店）", app, sales, len(stores))
	}

	result, err := auditor.Run(ctx, stores, p.Map("extra_context"))
	if err != nil {
		return nil, err
	}

	now := e.clock()
	md := audit.ReportMarkdown(result, now)
	out := Output{
		"type":        TypeAudit,
		"data_source": source,
		"summary":     result.Summary,
		"store_count": result.TotalStores,
	}

	local, err := renderParam(e.deps.Patterns, job, "output_local", now)
	if err != nil {
		return nil, err
	}
	if local != "" {
		if err := docflow.WriteLocal(local, md); err != nil {
			return nil, err
		}
		out["local_path"] = local
	}

	if p.Bool("publish") {
		if e.deps.Publisher == nil {
			return nil, docflow.ErrNoPublisher
		}
		title, err := renderParam(e.deps.Patterns, job, "title", now)
		if err != nil {
			return nil, err
		}
		if title == "" {
			title = audit.ReportTitle(now)
		}
		pub, err := e.deps.Publisher.Publish(ctx, title, p.String("folder_token"), md)
		if err != nil {
			return nil, err
		}
		out["doc_token"] = pub.DocToken
		out["url"] = pub.URL
	}

	return out, nil
}

// CustomExecutor runs an external script.
//
// Params: script, args, interpreter. Without an interpreter the script is
// executed directly. A non-zero exit code is reported, not treated as a
// failure.
type CustomExecutor struct {
	dir     string
	timeout time.Duration
}

// NewCustomExecutor creates an executor resolving relative scripts in dir
func NewCustomExecutor(dir string, timeout time.Duration) *CustomExecutor {
	if timeout <= 0 {
		timeout = CustomTimeout
	}
	return &CustomExecutor{dir: dir, timeout: timeout}
}

// Execute runs a custom job
func (e *CustomExecutor) Execute(ctx context.Context, job Job) (Output, error) {
	p := job.Params
	script := p.String("script")
	if script == "" {
		return nil, fmt.Errorf("script is required")
	}
	path := resolve(e.dir, script)
	args := p.Strings("args")

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var cmd *exec.Cmd
	if interp := p.String("interpreter"); interp != "" {
		cmd = exec.CommandContext(ctx, interp, append([]string{path}, args...)...)
	} else {
		cmd = exec.CommandContext(ctx, path, args...)
	}
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	code := 0
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return nil, fmt.Errorf("script %s timed out after %s", path, e.timeout)
		case errors.As(err, &exitErr):
			code = exitErr.ExitCode()
		default:
			return nil, fmt.Errorf("failed to run script %s: %w", path, err)
		}
	}

	return Output{
		"type":       TypeCustom,
		"script":     path,
		"returncode": code,
		"stdout":     tail(stdout.String(), stdoutTail),
		"stderr":     tail(stderr.String(), stderrTail),
	}, nil
}

// renderParam renders a string parameter as a handlebars pattern. The
// pattern sees job, name, type and params.
func renderParam(patterns *handlebars.Engine, job Job, key string, now time.Time) (string, error) {
	raw := job.Params.String(key)
	if raw == "" {
		return "", nil
	}
	data := map[string]interface{}{
		"job":    job.ID,
		"name":   job.DisplayName(),
		"type":   job.TypeOrDefault(),
		"params": map[string]interface{}(job.Params),
	}
	out, err := patterns.Render(raw, data, now)
	if err != nil {
		return "", fmt.Errorf("failed to render %s: %w", key, err)
	}
	return out, nil
}

func resolve(dir, path string) string {
	if dir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
