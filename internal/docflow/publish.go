package docflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/zj00777/feishu-power-skill/internal/feishu"
)

// Publishing defaults
const (
	DefaultBatchSize  = 50
	DefaultBatchPause = 300 * time.Millisecond
	DefaultDocURL     = "https://my.feishu.cn/docx/"
)

// DocumentWriter creates documents and appends blocks. *feishu.Client satisfies it.
type DocumentWriter interface {
	CreateDocument(ctx context.Context, title, folderToken string) (*feishu.Document, error)
	CreateBlocks(ctx context.Context, doc, parent string, children []feishu.Block, index int) error
}

// PublishResult describes a published document
type PublishResult struct {
	DocToken string `json:"doc_token"`
	URL      string `json:"url"`
	Blocks   int    `json:"blocks"`
	Failed   int    `json:"failed"`
}

// Publisher writes rendered markdown into Feishu documents
type Publisher struct {
	writer    DocumentWriter
	logger    *zap.Logger
	batchSize int
	pause     time.Duration
	docURL    string
}

// PublisherOption configures a Publisher
type PublisherOption func(*Publisher)

// WithBatchSize sets how many blocks are sent per append call
func WithBatchSize(n int) PublisherOption {
	return func(p *Publisher) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithBatchPause sets the minimum spacing between append calls
func WithBatchPause(d time.Duration) PublisherOption {
	return func(p *Publisher) {
		p.pause = d
	}
}

// WithDocURL sets the prefix used to build document links
func WithDocURL(prefix string) PublisherOption {
	return func(p *Publisher) {
		if prefix != "" {
			p.docURL = prefix
		}
	}
}

// NewPublisher creates a new publisher
func NewPublisher(writer DocumentWriter, logger *zap.Logger, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		writer:    writer,
		logger:    logger,
		batchSize: DefaultBatchSize,
		pause:     DefaultBatchPause,
		docURL:    DefaultDocURL,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// URL returns the browser link of a document
func (p *Publisher) URL(docToken string) string {
	if !strings.HasSuffix(p.docURL, "/") {
		return p.docURL + "/" + docToken
	}
	return p.docURL + docToken
}

// Publish creates a document titled title and writes markdown into it
func (p *Publisher) Publish(ctx context.Context, title, folderToken, markdown string) (*PublishResult, error) {
	doc, err := p.writer.CreateDocument(ctx, title, folderToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	written, failed, err := p.Append(ctx, doc.DocumentID, markdown)
	if err != nil {
		return nil, err
	}

	return &PublishResult{
		DocToken: doc.DocumentID,
		URL:      p.URL(doc.DocumentID),
		Blocks:   written,
		Failed:   failed,
	}, nil
}

// Append converts markdown to blocks and appends them to the document body in
// batches. A rejected batch is retried one block at a time; blocks that still
// fail are counted and skipped. It returns the written and failed counts.
func (p *Publisher) Append(ctx context.Context, docToken, markdown string) (int, int, error) {
	blocks := MarkdownToBlocks(markdown)

	limiter := rate.NewLimiter(rate.Inf, 1)
	if p.pause > 0 {
		limiter = rate.NewLimiter(rate.Every(p.pause), 1)
	}

	written, failed := 0, 0
	for start := 0; start < len(blocks); start += p.batchSize {
		end := start + p.batchSize
		if end > len(blocks) {
			end = len(blocks)
		}
		if err := limiter.Wait(ctx); err != nil {
			return written, failed, fmt.Errorf("failed waiting for batch slot: %w", err)
		}

		chunk := blocks[start:end]
		err := p.writer.CreateBlocks(ctx, docToken, docToken, chunk, -1)
		if err == nil {
			written += len(chunk)
			continue
		}

		p.logger.Warn("block batch rejected, retrying one by one",
			zap.String("doc", docToken),
			zap.Int("offset", start),
			zap.Int("count", len(chunk)),
			zap.Error(err),
		)
		for j, block := range chunk {
			if err := p.writer.CreateBlocks(ctx, docToken, docToken, []feishu.Block{block}, -1); err != nil {
				failed++
				p.logger.Warn("block dropped",
					zap.String("doc", docToken),
					zap.Int("index", start+j),
					zap.Error(err),
				)
				continue
			}
			written++
		}
	}

	p.logger.Info("document content written",
		zap.String("doc", docToken),
		zap.Int("blocks", written),
		zap.Int("failed", failed),
	)
	return written, failed, nil
}

// WriteLocal writes text to path, creating parent directories
func WriteLocal(path, text string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
