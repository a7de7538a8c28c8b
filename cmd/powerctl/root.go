package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/zj00777/feishu-power-skill/internal/bitable"
	"github.com/zj00777/feishu-power-skill/internal/config"
	"github.com/zj00777/feishu-power-skill/internal/docflow"
	"github.com/zj00777/feishu-power-skill/internal/feishu"
)

var (
	// Persistent flags available to all subcommands
	jsonOutput bool
	verbose    bool

	// Version is set at build time
	Version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "powerctl",
	Short: "Feishu power skill: templates, bitable batches, retail audits and scheduled reports",
	Long: `powerctl renders report templates, runs bulk bitable operations, audits
retail stores and runs scheduled report jobs against the Feishu open platform.

Credentials and defaults come from the environment (FEISHU_APP_ID,
FEISHU_APP_SECRET, TEMPLATES_DIR, CONFIGS_DIR, STATE_BACKEND, ...).`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output command results in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}

// env is what a command needs from the environment
type env struct {
	cfg    *config.Config
	logger *zap.Logger
}

func loadEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	level := "warn"
	if verbose {
		level = "debug"
	}
	logger, err := initLogger(level)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return &env{cfg: cfg, logger: logger}, nil
}

// feishu returns an API client, failing early without credentials
func (e *env) feishu() (*feishu.Client, error) {
	if !e.cfg.HasFeishuCredentials() {
		return nil, fmt.Errorf("%w: set FEISHU_APP_ID and FEISHU_APP_SECRET", feishu.ErrMissingCredentials)
	}
	return feishu.NewClient(feishu.Config{
		AppID:     e.cfg.FeishuAppID,
		AppSecret: e.cfg.FeishuAppSecret,
		BaseURL:   e.cfg.FeishuBaseURL,
		Timeout:   e.cfg.HTTPTimeout,
	}, e.logger), nil
}

func (e *env) publisher(client *feishu.Client) *docflow.Publisher {
	return docflow.NewPublisher(client, e.logger,
		docflow.WithBatchSize(e.cfg.DocBatchSize),
		docflow.WithBatchPause(e.cfg.DocBatchPause),
		docflow.WithDocURL(e.cfg.FeishuDocURL),
	)
}

func (e *env) bitable() (*bitable.Engine, error) {
	client, err := e.feishu()
	if err != nil {
		return nil, err
	}
	return bitable.NewEngine(client, e.logger), nil
}

// initLogger builds a JSON logger on stderr so stdout carries command output
func initLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return config.Build()
}

// printResult writes data as JSON with --json, otherwise calls textFn
func printResult(w io.Writer, data interface{}, textFn func()) error {
	if jsonOutput {
		return writeJSON(w, data)
	}
	textFn()
	return nil
}

func writeJSON(w io.Writer, data interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// readMapFile reads a JSON or YAML mapping
func readMapFile(path string) (map[string]interface{}, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	data := map[string]interface{}{}
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return data, nil
}

// parseExtra decodes a JSON object flag value
func parseExtra(raw string) (map[string]interface{}, error) {
	if raw == "" {
		return nil, nil
	}
	var extra map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &extra); err != nil {
		return nil, fmt.Errorf("--extra must be a JSON object: %w", err)
	}
	return extra, nil
}

func resolveIn(dir, path string) string {
	if dir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func main() {
	Execute()
}
