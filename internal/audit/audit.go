package audit

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/zj00777/feishu-power-skill/internal/eval/cel"
	"github.com/zj00777/feishu-power-skill/internal/eval/template"
)

// Alert is one rule violation for one store
type Alert struct {
	Store       string `json:"门店"`
	Rule        string `json:"rule"`
	Type        string `json:"异常类型"`
	Level       string `json:"级别"`
	Description string `json:"描述"`
	Metric      string `json:"指标"`
	Detail      string `json:"详情"`
	Advice      string `json:"建议"`
}

// StoreScore is a store's health score out of 100
type StoreScore struct {
	Store  string `json:"门店"`
	Score  int    `json:"评分"`
	Alerts int    `json:"异常数"`
}

// Summary counts alerts per level and stores without alerts
type Summary struct {
	Critical int `json:"critical"`
	Warning  int `json:"warning"`
	Info     int `json:"info"`
	Healthy  int `json:"healthy"`
}

func (s *Summary) add(level string) {
	switch level {
	case LevelCritical:
		s.Critical++
	case LevelWarning:
		s.Warning++
	case LevelInfo:
		s.Info++
	}
}

// Result is the outcome of an audit run
type Result struct {
	AuditTime   time.Time    `json:"audit_time"`
	Industry    string       `json:"industry"`
	TotalStores int          `json:"total_stores"`
	Summary     Summary      `json:"summary"`
	Alerts      []Alert      `json:"alerts"`
	StoreScores []StoreScore `json:"store_scores"`
}

// AlertsAt returns the alerts of one level in run order
func (r *Result) AlertsAt(level string) []Alert {
	var out []Alert
	for _, a := range r.Alerts {
		if a.Level == level {
			out = append(out, a)
		}
	}
	return out
}

// Auditor runs a configured rule set over store records
type Auditor struct {
	cfg       *Config
	evaluator *cel.Evaluator
	logger    *zap.Logger
	clock     func() time.Time
}

// NewAuditor creates an auditor. Condition expressions are validated up
// front so a broken profile fails before any store is checked.
func NewAuditor(cfg *Config, evaluator *cel.Evaluator, logger *zap.Logger) (*Auditor, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	for _, r := range cfg.Rules {
		if r.Condition == "" {
			continue
		}
		if err := evaluator.ValidateExpression(r.Condition); err != nil {
			return nil, fmt.Errorf("invalid condition for rule %s: %w", r.Key, err)
		}
	}

	return &Auditor{
		cfg:       cfg,
		evaluator: evaluator,
		logger:    logger,
		clock:     time.Now,
	}, nil
}

// Config returns the profile the auditor runs
func (a *Auditor) Config() *Config {
	return a.cfg
}

// Run checks every store against every enabled rule. extra is exposed to
// checkers and expressions as ctx (e.g. daily_avg_sold).
func (a *Auditor) Run(ctx context.Context, stores []map[string]interface{}, extra map[string]interface{}) (*Result, error) {
	if extra == nil {
		extra = map[string]interface{}{}
	}

	res := &Result{
		AuditTime:   a.clock(),
		Industry:    a.cfg.Industry,
		TotalStores: len(stores),
		Alerts:      []Alert{},
		StoreScores: make([]StoreScore, 0, len(stores)),
	}

	for _, record := range stores {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		store := NewStore(record, a.cfg.FieldMapping)
		name := store.Text("store_name", "")
		if name == "" {
			name = "未知"
			if v, ok := record["name"]; ok && v != nil {
				name = template.Format(v)
			}
		}

		var storeAlerts []Alert
		for _, r := range a.cfg.Rules {
			if !r.IsEnabled() {
				continue
			}
			finding := a.check(ctx, r, store, extra)
			if finding == nil {
				continue
			}

			typ := r.Name
			if typ == "" {
				typ = r.Key
			}
			storeAlerts = append(storeAlerts, Alert{
				Store:       name,
				Rule:        r.Key,
				Type:        typ,
				Level:       r.LevelOrDefault(),
				Description: r.Description,
				Metric:      finding.Metric,
				Detail:      finding.Detail,
				Advice:      finding.Advice,
			})
			res.Summary.add(r.LevelOrDefault())
		}

		if len(storeAlerts) == 0 {
			res.Summary.Healthy++
		}
		res.Alerts = append(res.Alerts, storeAlerts...)

		score := 100
		for _, al := range storeAlerts {
			score -= a.cfg.Penalty(al.Level)
		}
		if score < 0 {
			score = 0
		}
		res.StoreScores = append(res.StoreScores, StoreScore{Store: name, Score: score, Alerts: len(storeAlerts)})
	}

	sort.SliceStable(res.StoreScores, func(i, j int) bool {
		return res.StoreScores[i].Score < res.StoreScores[j].Score
	})

	a.logger.Info("audit finished",
		zap.String("industry", res.Industry),
		zap.Int("stores", res.TotalStores),
		zap.Int("critical", res.Summary.Critical),
		zap.Int("warning", res.Summary.Warning),
		zap.Int("healthy", res.Summary.Healthy),
	)
	return res, nil
}

// check runs a condition rule or the built-in checker registered for the key
func (a *Auditor) check(ctx context.Context, r NamedRule, store Store, extra map[string]interface{}) *Finding {
	if r.Condition != "" {
		return a.checkCondition(ctx, r, store, extra)
	}

	checker, ok := checkers[r.Key]
	if !ok {
		a.logger.Debug("no checker for rule", zap.String("rule", r.Key))
		return nil
	}
	return checker(store, extra, r.Rule)
}

func (a *Auditor) checkCondition(ctx context.Context, r NamedRule, store Store, extra map[string]interface{}) *Finding {
	thresholds := make(map[string]interface{}, len(r.Thresholds))
	for k, v := range r.Thresholds {
		thresholds[k] = v
	}
	fields := store.Mapped()

	matched, err := a.evaluator.EvaluateBool(ctx, r.Condition, map[string]interface{}{
		cel.VarStore:      store.Record,
		cel.VarFields:     fields,
		cel.VarThresholds: thresholds,
		cel.VarContext:    extra,
	})
	if err != nil {
		a.logger.Warn("rule condition failed",
			zap.String("rule", r.Key),
			zap.String("condition", r.Condition),
			zap.Error(err),
		)
		return nil
	}
	if !matched {
		return nil
	}

	data := make(map[string]interface{}, len(store.Record)+3)
	for k, v := range store.Record {
		data[k] = v
	}
	data[cel.VarFields] = fields
	data[cel.VarThresholds] = thresholds
	data[cel.VarContext] = extra

	now := a.clock()
	return &Finding{
		Metric: template.Render(r.Metric, data, now),
		Detail: template.Render(r.Detail, data, now),
		Advice: template.Render(r.Advice, data, now),
	}
}
