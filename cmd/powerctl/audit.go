package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/zj00777/feishu-power-skill/internal/audit"
	"github.com/zj00777/feishu-power-skill/internal/docflow"
	"github.com/zj00777/feishu-power-skill/internal/eval/cel"
)

var (
	auditConfig  string
	auditStores  int
	auditPublish bool
	auditFolder  string
	auditOutput  string
	auditExtra   string
	auditApp     string
	auditSales   string
	auditTarget  string
	auditJoin    string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit retail stores against an industry rule profile",
	Long: `Audit store sales and inventory against the rules of an industry
profile, score every store and write a markdown report.

Profiles are YAML files; --config takes a path or a file name inside
CONFIGS_DIR. Without --config the built-in apparel retail profile is used.`,
}

var auditDemoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Audit generated demo stores",
	Example: `  powerctl audit demo
  powerctl audit demo --config fmcg.yaml --output reports/demo.md
  powerctl audit demo --publish --folder fldcnXXX`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAudit(cmd, func(context.Context, *env, *audit.Config) ([]map[string]interface{}, error) {
			return audit.DemoStores(auditStores), nil
		})
	},
}

var auditRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Audit stores read from bitable",
	Example: `  powerctl audit run --app bascnXXX --sales-table tblSales
  powerctl audit run --app bascnXXX --sales-table tblSales --target-table tblTarget --publish`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAudit(cmd, func(ctx context.Context, e *env, cfg *audit.Config) ([]map[string]interface{}, error) {
			client, err := e.feishu()
			if err != nil {
				return nil, err
			}
			engine, err := e.bitable()
			if err != nil {
				return nil, err
			}
			return audit.FetchStores(ctx, client, engine, cfg, audit.TableSource{
				App:         auditApp,
				SalesTable:  auditSales,
				TargetTable: auditTarget,
				JoinField:   auditJoin,
			})
		})
	},
}

var auditConfigsCmd = &cobra.Command{
	Use:   "configs",
	Short: "List the rule profiles in CONFIGS_DIR",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		infos, err := audit.ListConfigs(e.cfg.ConfigsDir, e.logger)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		return printResult(w, infos, func() {
			if len(infos) == 0 {
				fmt.Fprintf(w, "ℹ️  %s 中没有配置文件\n", e.cfg.ConfigsDir)
				return
			}
			for _, c := range infos {
				fmt.Fprintf(w, "%s\t%s\t%d 条规则\n", c.File, c.Industry, c.EnabledRules)
			}
		})
	},
}

type storeLoader func(ctx context.Context, e *env, cfg *audit.Config) ([]map[string]interface{}, error)

func runAudit(cmd *cobra.Command, load storeLoader) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	extra, err := parseExtra(auditExtra)
	if err != nil {
		return err
	}

	cfg := audit.DefaultConfig()
	if auditConfig != "" {
		path := auditConfig
		if _, err := os.Stat(path); err != nil {
			path = resolveIn(e.cfg.ConfigsDir, auditConfig)
		}
		if cfg, err = audit.LoadConfig(path, e.logger); err != nil {
			return err
		}
	}
	auditor, err := audit.NewAuditor(cfg, cel.NewEvaluator(), e.logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	stores, err := load(ctx, e, cfg)
	if err != nil {
		return err
	}
	result, err := auditor.Run(ctx, stores, extra)
	if err != nil {
		return err
	}

	now := time.Now()
	md := audit.ReportMarkdown(result, now)
	out := map[string]interface{}{"result": result}
	if auditOutput != "" {
		if err := docflow.WriteLocal(auditOutput, md); err != nil {
			return err
		}
		out["local_path"] = auditOutput
	}

	var pub *docflow.PublishResult
	if auditPublish {
		client, err := e.feishu()
		if err != nil {
			return err
		}
		pub, err = e.publisher(client).Publish(ctx, audit.ReportTitle(now), auditFolder, md)
		if err != nil {
			return err
		}
		out["document"] = pub
	}

	w := cmd.OutOrStdout()
	return printResult(w, out, func() {
		if auditOutput == "" && pub == nil {
			fmt.Fprint(w, md)
			return
		}
		s := result.Summary
		fmt.Fprintf(w, "🔍 %s: %d 家门店, 🔴 %d 🟡 %d 🔵 %d, ✅ %d 家健康\n",
			result.Industry, result.TotalStores, s.Critical, s.Warning, s.Info, s.Healthy)
		if auditOutput != "" {
			fmt.Fprintf(w, "📝 报告已保存: %s\n", auditOutput)
		}
		if pub != nil {
			fmt.Fprintf(w, "✅ 文档已创建: %s\n", pub.URL)
		}
	})
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditDemoCmd, auditRunCmd, auditConfigsCmd)

	for _, c := range []*cobra.Command{auditDemoCmd, auditRunCmd} {
		c.Flags().StringVarP(&auditConfig, "config", "c", "", "Rule profile (path or name in CONFIGS_DIR)")
		c.Flags().BoolVar(&auditPublish, "publish", false, "Publish the report as a Feishu document")
		c.Flags().StringVar(&auditFolder, "folder", "", "Drive folder token for the report")
		c.Flags().StringVarP(&auditOutput, "output", "o", "", "Write the markdown report to this file")
		c.Flags().StringVar(&auditExtra, "extra", "", "Extra rule context as a JSON object")
	}
	auditDemoCmd.Flags().IntVar(&auditStores, "stores", 50, "Number of demo stores")

	auditRunCmd.Flags().StringVar(&auditApp, "app", "", "Bitable app token")
	auditRunCmd.Flags().StringVar(&auditSales, "sales-table", "", "Sales table ID")
	auditRunCmd.Flags().StringVar(&auditTarget, "target-table", "", "Target table ID to join")
	auditRunCmd.Flags().StringVar(&auditJoin, "join-field", "", "Join field (default: the profile's store name column)")
	_ = auditRunCmd.MarkFlagRequired("app")
	_ = auditRunCmd.MarkFlagRequired("sales-table")
}
