package docflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zj00777/feishu-power-skill/internal/eval/template"
)

// ErrNoPublisher is returned when publishing is requested without a Publisher
var ErrNoPublisher = errors.New("document publishing is not configured")

// GenerateOptions controls where a rendered report goes
type GenerateOptions struct {
	// Title overrides the title derived from the first heading
	Title       string
	FolderToken string
	// OutputLocal also writes the rendered markdown to this path
	OutputLocal string
	// Publish creates a Feishu document
	Publish bool
}

// Result describes a generated report
type Result struct {
	DocToken     string `json:"doc_token,omitempty"`
	URL          string `json:"url,omitempty"`
	Title        string `json:"title"`
	LocalPath    string `json:"local_path,omitempty"`
	Content      string `json:"-"`
	Blocks       int    `json:"blocks,omitempty"`
	FailedBlocks int    `json:"failed_blocks,omitempty"`
}

// Generator renders templates and hands the output to a Publisher
type Generator struct {
	publisher *Publisher
	logger    *zap.Logger
	clock     func() time.Time
}

// NewGenerator creates a new generator. publisher may be nil when documents
// are only rendered locally.
func NewGenerator(publisher *Publisher, logger *zap.Logger) *Generator {
	return &Generator{
		publisher: publisher,
		logger:    logger,
		clock:     time.Now,
	}
}

// Generate renders the template file at tmplPath with data and delivers it
// according to opts
func (g *Generator) Generate(ctx context.Context, tmplPath string, data map[string]interface{}, opts GenerateOptions) (*Result, error) {
	raw, err := os.ReadFile(tmplPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}
	return g.GenerateText(ctx, string(raw), data, opts)
}

// GenerateText is Generate with the template text supplied directly
func (g *Generator) GenerateText(ctx context.Context, tmpl string, data map[string]interface{}, opts GenerateOptions) (*Result, error) {
	now := g.clock()
	content := template.Render(tmpl, data, now)

	res := &Result{
		Title:   opts.Title,
		Content: content,
	}
	if res.Title == "" {
		res.Title = DeriveTitle(content, now)
	}

	if opts.OutputLocal != "" {
		if err := WriteLocal(opts.OutputLocal, content); err != nil {
			return nil, err
		}
		res.LocalPath = opts.OutputLocal
	}

	if opts.Publish {
		if g.publisher == nil {
			return nil, ErrNoPublisher
		}
		pub, err := g.publisher.Publish(ctx, res.Title, opts.FolderToken, content)
		if err != nil {
			return nil, err
		}
		res.DocToken = pub.DocToken
		res.URL = pub.URL
		res.Blocks = pub.Blocks
		res.FailedBlocks = pub.Failed
	}

	g.logger.Info("report generated",
		zap.String("title", res.Title),
		zap.String("local_path", res.LocalPath),
		zap.String("doc", res.DocToken),
	)
	return res, nil
}

// FromBitable builds a context from a table and generates a report from it
func (g *Generator) FromBitable(ctx context.Context, source RecordSource, app, table, tmplPath string, ctxOpts ContextOptions, opts GenerateOptions) (*Result, error) {
	data, err := BuildContext(ctx, source, app, table, ctxOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to build context: %w", err)
	}
	return g.Generate(ctx, tmplPath, data, opts)
}

// DeriveTitle returns the text of a leading "#" line, or 报告_<yyyymmdd_hhmm>
func DeriveTitle(content string, now time.Time) string {
	first := strings.TrimSpace(strings.SplitN(content, "\n", 2)[0])
	if strings.HasPrefix(first, "#") {
		if title := strings.TrimSpace(strings.TrimLeft(first, "#")); title != "" {
			return title
		}
	}
	return "报告_" + now.Format("20060102_1504")
}
