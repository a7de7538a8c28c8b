package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zj00777/feishu-power-skill/internal/docflow"
	"github.com/zj00777/feishu-power-skill/internal/eval/template"
)

var (
	renderTemplate string
	renderContext  string
	renderOutput   string
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render a template with a local JSON or YAML context",
	Long: `Render a report template ({{#each}}, {{#if}} and {{var}} directives)
against a context file. TODAY, YESTERDAY, WEEK_START, WEEK_END and NOW are
always available.

Examples:
  powerctl render --template templates/weekly.md --context data.json
  powerctl render --template templates/weekly.md --context data.yaml --output out/weekly.md`,
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(renderTemplate)
		if err != nil {
			return fmt.Errorf("failed to read template: %w", err)
		}
		data := map[string]interface{}{}
		if renderContext != "" {
			if data, err = readMapFile(renderContext); err != nil {
				return err
			}
		}

		content := template.NewEngine().Render(string(raw), data)
		if renderOutput != "" {
			if err := docflow.WriteLocal(renderOutput, content); err != nil {
				return err
			}
		}

		w := cmd.OutOrStdout()
		return printResult(w, map[string]interface{}{
			"content":    content,
			"local_path": renderOutput,
		}, func() {
			if renderOutput != "" {
				fmt.Fprintf(w, "✅ 已写入 %s\n", renderOutput)
				return
			}
			fmt.Fprint(w, content)
		})
	},
}

var (
	ctxApp     string
	ctxTable   string
	ctxGroupBy string
	ctxFilter  string
)

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Print the template context built from a bitable table",
	Long: `Read every record of a table and print the context a template would see:
records, total, fields, summary and, with --group-by, groups.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		client, err := e.feishu()
		if err != nil {
			return err
		}
		data, err := docflow.BuildContext(cmd.Context(), client, ctxApp, ctxTable, docflow.ContextOptions{
			GroupBy: ctxGroupBy,
			Filter:  ctxFilter,
		})
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), data)
	},
}

var (
	genApp      string
	genTable    string
	genTemplate string
	genGroupBy  string
	genFilter   string
	genTitle    string
	genFolder   string
	genLocal    string
	genExtra    string
	genNoPub    bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Render a template against a bitable table and publish it as a document",
	Long: `Build the context from a bitable table, render the template and create a
Feishu document from the result. Use --local to also keep a markdown copy,
or --no-publish to only render locally.

Examples:
  powerctl generate --app bascnXXX --table tblXXX --template weekly.md --group-by 区域
  powerctl generate --app bascnXXX --table tblXXX --template weekly.md --no-publish --local out/weekly.md`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		extra, err := parseExtra(genExtra)
		if err != nil {
			return err
		}
		client, err := e.feishu()
		if err != nil {
			return err
		}

		var publisher *docflow.Publisher
		if !genNoPub {
			publisher = e.publisher(client)
		}
		path := genTemplate
		if _, err := os.Stat(path); err != nil {
			path = resolveIn(e.cfg.TemplatesDir, genTemplate)
		}

		res, err := docflow.NewGenerator(publisher, e.logger).FromBitable(cmd.Context(), client,
			genApp, genTable, path,
			docflow.ContextOptions{GroupBy: genGroupBy, Filter: genFilter, Extra: extra},
			docflow.GenerateOptions{
				Title:       genTitle,
				FolderToken: genFolder,
				OutputLocal: genLocal,
				Publish:     !genNoPub,
			},
		)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		return printResult(w, res, func() {
			if res.URL != "" {
				fmt.Fprintf(w, "✅ 文档已创建: %s\n   %s\n", res.Title, res.URL)
				if res.FailedBlocks > 0 {
					fmt.Fprintf(w, "⚠️  %d 个内容块写入失败\n", res.FailedBlocks)
				}
			}
			if res.LocalPath != "" {
				fmt.Fprintf(w, "📝 本地副本: %s\n", res.LocalPath)
			}
			if res.URL == "" && res.LocalPath == "" {
				fmt.Fprint(w, res.Content)
			}
		})
	},
}

func init() {
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(generateCmd)

	renderCmd.Flags().StringVarP(&renderTemplate, "template", "t", "", "Template file")
	renderCmd.Flags().StringVarP(&renderContext, "context", "c", "", "Context file (JSON or YAML)")
	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", "", "Write the rendered text to this file")
	_ = renderCmd.MarkFlagRequired("template")

	contextCmd.Flags().StringVar(&ctxApp, "app", "", "Bitable app token")
	contextCmd.Flags().StringVar(&ctxTable, "table", "", "Table ID")
	contextCmd.Flags().StringVar(&ctxGroupBy, "group-by", "", "Group records by this field")
	contextCmd.Flags().StringVar(&ctxFilter, "filter", "", "Record filter expression")
	_ = contextCmd.MarkFlagRequired("app")
	_ = contextCmd.MarkFlagRequired("table")

	generateCmd.Flags().StringVar(&genApp, "app", "", "Bitable app token")
	generateCmd.Flags().StringVar(&genTable, "table", "", "Table ID")
	generateCmd.Flags().StringVarP(&genTemplate, "template", "t", "", "Template file, resolved in TEMPLATES_DIR when not found")
	generateCmd.Flags().StringVar(&genGroupBy, "group-by", "", "Group records by this field")
	generateCmd.Flags().StringVar(&genFilter, "filter", "", "Record filter expression")
	generateCmd.Flags().StringVar(&genTitle, "title", "", "Document title (default: first heading)")
	generateCmd.Flags().StringVar(&genFolder, "folder", "", "Drive folder token")
	generateCmd.Flags().StringVar(&genLocal, "local", "", "Also write the markdown to this file")
	generateCmd.Flags().StringVar(&genExtra, "extra", "", "Extra context as a JSON object")
	generateCmd.Flags().BoolVar(&genNoPub, "no-publish", false, "Render without creating a document")
	_ = generateCmd.MarkFlagRequired("app")
	_ = generateCmd.MarkFlagRequired("table")
	_ = generateCmd.MarkFlagRequired("template")
}
