package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zj00777/feishu-power-skill/internal/bitable"
	"github.com/zj00777/feishu-power-skill/internal/feishu"
)

var (
	btApp      string
	btTable    string
	btData     string
	btDryRun   bool
	btRecords  string
	btFilter   string
	btPageSize int
	btLeft     string
	btRight    string
	btOn       string
	btSelect   string
	btOutput   string
)

var bitableCmd = &cobra.Command{
	Use:   "bitable",
	Short: "Bulk operations on bitable tables",
}

var bitableTablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List the tables of an app",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := feishuClient()
		if err != nil {
			return err
		}
		tables, err := client.ListTables(cmd.Context(), btApp)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		return printResult(w, tables, func() {
			for _, t := range tables {
				fmt.Fprintf(w, "%s\t%s\n", t.TableID, t.Name)
			}
		})
	},
}

var bitableFieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "List the fields of a table",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := feishuClient()
		if err != nil {
			return err
		}
		fields, err := client.ListFields(cmd.Context(), btApp, btTable)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		return printResult(w, fields, func() {
			for _, f := range fields {
				fmt.Fprintf(w, "%s\t%s\t%s\n", f.FieldID, f.FieldName, bitable.FieldTypeName(f.Type))
			}
		})
	},
}

var bitableRecordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Print one page of records",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := feishuClient()
		if err != nil {
			return err
		}
		page, err := client.ListRecords(cmd.Context(), btApp, btTable, feishu.ListOptions{
			PageSize: btPageSize,
			Filter:   btFilter,
		})
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), page)
	},
}

var bitableCreateCmd = &cobra.Command{
	Use:   "batch-create",
	Short: "Create records from a JSON or CSV file",
	Long: `Create records in chunks of 500. A failed chunk is reported and the
remaining chunks still run.

Examples:
  powerctl bitable batch-create --app bascnXXX --table tblXXX --data stores.csv --dry-run
  powerctl bitable batch-create --app bascnXXX --table tblXXX --data stores.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := bitable.LoadRecords(btData)
		if err != nil {
			return err
		}
		engine, err := batchEngine()
		if err != nil {
			return err
		}
		res, err := engine.BatchCreate(cmd.Context(), btApp, btTable, records, btDryRun)
		if err != nil {
			return err
		}
		return printBatch(cmd, "创建", res)
	},
}

var bitableUpdateCmd = &cobra.Command{
	Use:   "batch-update",
	Short: "Update records from a JSON or CSV file",
	Long: `Every row needs a record_id. Values are read from a nested "fields"
object or from the remaining columns.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rows, err := bitable.LoadRecords(btData)
		if err != nil {
			return err
		}
		updates, err := bitable.Updates(rows)
		if err != nil {
			return err
		}
		engine, err := batchEngine()
		if err != nil {
			return err
		}
		res, err := engine.BatchUpdate(cmd.Context(), btApp, btTable, updates, btDryRun)
		if err != nil {
			return err
		}
		return printBatch(cmd, "更新", res)
	},
}

var bitableDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete records by ID",
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := splitList(btRecords)
		if len(ids) == 0 {
			return fmt.Errorf("--records must list at least one record ID")
		}
		w := cmd.OutOrStdout()
		if btDryRun {
			return printResult(w, map[string]interface{}{"dry_run": true, "total": len(ids)}, func() {
				fmt.Fprintf(w, "🔍 预演: 将删除 %d 条记录\n", len(ids))
			})
		}
		client, err := feishuClient()
		if err != nil {
			return err
		}
		for start := 0; start < len(ids); start += feishu.MaxPageSize {
			end := start + feishu.MaxPageSize
			if end > len(ids) {
				end = len(ids)
			}
			if err := client.BatchDeleteRecords(cmd.Context(), btApp, btTable, ids[start:end]); err != nil {
				return err
			}
		}
		return printResult(w, map[string]interface{}{"deleted": len(ids)}, func() {
			fmt.Fprintf(w, "✅ 已删除 %d 条记录\n", len(ids))
		})
	},
}

var bitableJoinCmd = &cobra.Command{
	Use:   "join",
	Short: "Inner-join two tables on a field",
	Long: `Join two tables of the same app on the text value of a field and print
the merged rows as JSON. Right-hand values win on name clashes.

Example:
  powerctl bitable join --app bascnXXX --left tblSales --right tblTarget --on 门店名称 --select 门店名称,销售额,目标`,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := bitableEngine()
		if err != nil {
			return err
		}
		rows, err := engine.Join(cmd.Context(), btApp, btLeft, btRight, btOn, splitList(btSelect))
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), rows)
	},
}

var bitableSnapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Export a table with its schema to a timestamped JSON file",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := bitableEngine()
		if err != nil {
			return err
		}
		path, err := engine.Snapshot(cmd.Context(), btApp, btTable, btOutput, time.Now())
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		return printResult(w, map[string]string{"path": path}, func() {
			fmt.Fprintf(w, "✅ 快照已保存: %s\n", path)
		})
	},
}

var bitableStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize fill rates, numeric ranges and option distributions",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := bitableEngine()
		if err != nil {
			return err
		}
		stats, err := engine.Stats(cmd.Context(), btApp, btTable)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		return printResult(w, stats, func() {
			fmt.Fprintf(w, "📊 %s: %d 条记录, %d 个字段\n", stats.TableID, stats.TotalRecords, stats.TotalFields)
			for _, f := range stats.Fields {
				line := fmt.Sprintf("  %s (%s) 填充率 %s", f.Name, f.TypeName, f.FillRate)
				if f.Avg != nil {
					line += fmt.Sprintf(" 最小 %g 最大 %g 平均 %g 合计 %g", *f.Min, *f.Max, *f.Avg, *f.Sum)
				}
				if len(f.Distribution) > 0 {
					parts := make([]string, 0, len(f.Distribution))
					for _, d := range f.Distribution {
						parts = append(parts, fmt.Sprintf("%s×%d", d.Value, d.Count))
					}
					line += " " + strings.Join(parts, " ")
				}
				fmt.Fprintln(w, line)
			}
		})
	},
}

func printBatch(cmd *cobra.Command, verb string, res *bitable.BatchResult) error {
	w := cmd.OutOrStdout()
	return printResult(w, res, func() {
		switch {
		case res.Message != "":
			fmt.Fprintf(w, "ℹ️  %s\n", res.Message)
		case res.DryRun:
			fmt.Fprintf(w, "🔍 预演: 将%s %d 条记录\n", verb, res.Total)
			for _, s := range res.Sample {
				fmt.Fprintf(w, "   %v\n", s)
			}
		default:
			fmt.Fprintf(w, "✅ 已%s %d/%d 条记录\n", verb, res.Done, res.Total)
			for _, e := range res.Errors {
				fmt.Fprintf(w, "⚠️  第 %d-%d 条失败: %s\n", e.Offset+1, e.Offset+e.Count, e.Error)
			}
		}
	})
}

func feishuClient() (*feishu.Client, error) {
	e, err := loadEnv()
	if err != nil {
		return nil, err
	}
	return e.feishu()
}

func bitableEngine() (*bitable.Engine, error) {
	e, err := loadEnv()
	if err != nil {
		return nil, err
	}
	return e.bitable()
}

// batchEngine skips the credential check for dry runs, which never call the API
func batchEngine() (*bitable.Engine, error) {
	if !btDryRun {
		return bitableEngine()
	}
	e, err := loadEnv()
	if err != nil {
		return nil, err
	}
	return bitable.NewEngine(nil, e.logger), nil
}

func init() {
	rootCmd.AddCommand(bitableCmd)
	bitableCmd.AddCommand(bitableTablesCmd, bitableFieldsCmd, bitableRecordsCmd,
		bitableCreateCmd, bitableUpdateCmd, bitableDeleteCmd,
		bitableJoinCmd, bitableSnapshotCmd, bitableStatsCmd)

	bitableCmd.PersistentFlags().StringVar(&btApp, "app", "", "Bitable app token")
	_ = bitableCmd.MarkPersistentFlagRequired("app")

	for _, c := range []*cobra.Command{bitableFieldsCmd, bitableRecordsCmd, bitableCreateCmd,
		bitableUpdateCmd, bitableDeleteCmd, bitableSnapshotCmd, bitableStatsCmd} {
		c.Flags().StringVar(&btTable, "table", "", "Table ID")
		_ = c.MarkFlagRequired("table")
	}

	bitableRecordsCmd.Flags().IntVar(&btPageSize, "page-size", 20, "Records per page")
	bitableRecordsCmd.Flags().StringVar(&btFilter, "filter", "", "Record filter expression")

	for _, c := range []*cobra.Command{bitableCreateCmd, bitableUpdateCmd} {
		c.Flags().StringVar(&btData, "data", "", "Records file (.json or .csv)")
		_ = c.MarkFlagRequired("data")
	}
	for _, c := range []*cobra.Command{bitableCreateCmd, bitableUpdateCmd, bitableDeleteCmd} {
		c.Flags().BoolVar(&btDryRun, "dry-run", false, "Show what would change without calling the API")
	}
	bitableDeleteCmd.Flags().StringVar(&btRecords, "records", "", "Comma-separated record IDs")

	bitableJoinCmd.Flags().StringVar(&btLeft, "left", "", "Left table ID")
	bitableJoinCmd.Flags().StringVar(&btRight, "right", "", "Right table ID")
	bitableJoinCmd.Flags().StringVar(&btOn, "on", "", "Join field name")
	bitableJoinCmd.Flags().StringVar(&btSelect, "select", "", "Comma-separated fields to keep")
	for _, name := range []string{"left", "right", "on"} {
		_ = bitableJoinCmd.MarkFlagRequired(name)
	}

	bitableSnapshotCmd.Flags().StringVarP(&btOutput, "output", "o", "snapshots", "Snapshot directory")
}
