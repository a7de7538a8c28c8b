package audit

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Alert levels
const (
	LevelCritical = "critical"
	LevelWarning  = "warning"
	LevelInfo     = "info"
)

// defaultPenalty applies to levels without a "<level>_penalty" scoring entry
const defaultPenalty = 10

// Rule configures one audit check
type Rule struct {
	Enabled     *bool              `yaml:"enabled,omitempty"`
	Level       string             `yaml:"level,omitempty"`
	Name        string             `yaml:"name,omitempty"`
	Description string             `yaml:"description,omitempty"`
	Thresholds  map[string]float64 `yaml:"thresholds,omitempty"`

	// Condition is a CEL expression over store, f, t and ctx. A rule with a
	// condition produces an alert whenever it evaluates to true.
	Condition string `yaml:"condition,omitempty"`
	// Metric, Detail and Advice are alert texts for condition rules,
	// rendered with the template engine against the store record
	Metric string `yaml:"metric,omitempty"`
	Detail string `yaml:"detail,omitempty"`
	Advice string `yaml:"advice,omitempty"`
}

// IsEnabled reports whether the rule runs; rules are enabled unless set false
func (r Rule) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// LevelOrDefault returns the rule level, warning when unset
func (r Rule) LevelOrDefault() string {
	if r.Level == "" {
		return LevelWarning
	}
	return r.Level
}

// Threshold returns a named threshold or def when missing
func (r Rule) Threshold(name string, def float64) float64 {
	if v, ok := r.Thresholds[name]; ok {
		return v
	}
	return def
}

// NamedRule is a rule with its configuration key
type NamedRule struct {
	Key string
	Rule
}

// Rules keeps rules in the order they appear in the YAML mapping
type Rules []NamedRule

// UnmarshalYAML decodes a mapping of rule key to rule, preserving order
func (rs *Rules) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("rules: expected a mapping, got line %d", node.Line)
	}
	out := make(Rules, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var r Rule
		if err := node.Content[i+1].Decode(&r); err != nil {
			return fmt.Errorf("rule %q: %w", node.Content[i].Value, err)
		}
		out = append(out, NamedRule{Key: node.Content[i].Value, Rule: r})
	}
	*rs = out
	return nil
}

// MarshalYAML encodes rules back into an ordered mapping
func (rs Rules) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, r := range rs {
		var value yaml.Node
		if err := value.Encode(r.Rule); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: r.Key}, &value)
	}
	return node, nil
}

// Get returns the rule with the given key
func (rs Rules) Get(key string) (*Rule, bool) {
	for i := range rs {
		if rs[i].Key == key {
			return &rs[i].Rule, true
		}
	}
	return nil, false
}

// Config is an industry audit profile
type Config struct {
	Industry     string            `yaml:"industry"`
	Rules        Rules             `yaml:"rules"`
	FieldMapping map[string]string `yaml:"field_mapping"`
	Scoring      map[string]int    `yaml:"scoring"`
}

// Penalty returns the score deduction for one alert of level
func (c *Config) Penalty(level string) int {
	if p, ok := c.Scoring[level+"_penalty"]; ok {
		return p
	}
	return defaultPenalty
}

// Field maps a canonical field key such as "actual_sales" to the column name
func (c *Config) Field(key string) string {
	if name, ok := c.FieldMapping[key]; ok && name != "" {
		return name
	}
	return key
}

// EnabledRules counts enabled rules
func (c *Config) EnabledRules() int {
	n := 0
	for _, r := range c.Rules {
		if r.IsEnabled() {
			n++
		}
	}
	return n
}

// DefaultFieldMapping maps canonical keys to the default Chinese column names
func DefaultFieldMapping() map[string]string {
	return map[string]string{
		"store_name":          "门店名称",
		"initial_stock":       "期初库存",
		"sold_qty":            "销售数量",
		"current_stock":       "当前库存",
		"days_on_shelf":       "上架天数",
		"actual_sales":        "实际销售额",
		"target_sales":        "目标销售额",
		"total_sku":           "总SKU数",
		"active_sku":          "有销SKU数",
		"avg_inventory_value": "平均库存金额",
		"daily_cogs":          "日均销售成本",
		"status":              "营业状态",
	}
}

// DefaultScoring holds the default per-level penalties
func DefaultScoring() map[string]int {
	return map[string]int{
		"critical_penalty": 25,
		"warning_penalty":  10,
		"info_penalty":     3,
	}
}

func rule(level, name, desc string, thresholds map[string]float64) Rule {
	enabled := true
	return Rule{Enabled: &enabled, Level: level, Name: name, Description: desc, Thresholds: thresholds}
}

// DefaultConfig is the built-in general retail profile
func DefaultConfig() *Config {
	return &Config{
		Industry: "通用零售",
		Rules: Rules{
			{Key: "sell_through_high", Rule: rule(LevelCritical, "售罄率过高", "库存即将售罄",
				map[string]float64{"sell_through_min": 0.85, "days_left_max": 3})},
			{Key: "sell_through_low", Rule: rule(LevelWarning, "售罄率过低", "商品滞销",
				map[string]float64{"sell_through_max": 0.20, "days_on_shelf_min": 14})},
			{Key: "target_achievement_low", Rule: rule(LevelCritical, "目标达成率不足", "销售严重落后于目标",
				map[string]float64{"achievement_min": 0.60})},
			{Key: "negative_inventory", Rule: rule(LevelCritical, "负库存", "系统库存为负", nil)},
			{Key: "zero_sales", Rule: rule(LevelCritical, "零销售", "营业日无任何销售", nil)},
			{Key: "inventory_turnover_slow", Rule: rule(LevelWarning, "库存周转过慢", "资金占用过大",
				map[string]float64{"turnover_days_max": 45})},
			{Key: "low_sell_rate", Rule: rule(LevelWarning, "动销率过低", "大量SKU无销售",
				map[string]float64{"sell_rate_min": 0.60})},
		},
		FieldMapping: DefaultFieldMapping(),
		Scoring:      DefaultScoring(),
	}
}

// LoadConfig reads a YAML profile. A missing file falls back to
// DefaultConfig with a warning. Missing field_mapping and scoring sections
// take their defaults.
func LoadConfig(path string, logger *zap.Logger) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("audit config not found, using built-in defaults", zap.String("path", path))
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read audit config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse audit config %s: %w", path, err)
	}
	if cfg.FieldMapping == nil {
		cfg.FieldMapping = DefaultFieldMapping()
	}
	if cfg.Scoring == nil {
		cfg.Scoring = DefaultScoring()
	}
	if cfg.Industry == "" {
		cfg.Industry = "未知"
	}
	return &cfg, nil
}

// ConfigInfo summarizes a profile file for listings
type ConfigInfo struct {
	File         string `json:"file"`
	Industry     string `json:"industry"`
	EnabledRules int    `json:"enabled_rules"`
}

// ListConfigs describes every .yaml/.yml profile in dir, sorted by file name
func ListConfigs(dir string, logger *zap.Logger) ([]ConfigInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config dir: %w", err)
	}

	var infos []ConfigInfo
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
			continue
		}
		cfg, err := LoadConfig(filepath.Join(dir, name), logger)
		if err != nil {
			return nil, err
		}
		infos = append(infos, ConfigInfo{File: name, Industry: cfg.Industry, EnabledRules: cfg.EnabledRules()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].File < infos[j].File })
	return infos, nil
}
