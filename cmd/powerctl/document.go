package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	docToken   string
	docFile    string
	docTitle   string
	docFolder  string
	docBlockID string
	docText    string
	docParent  string
	docStart   int
	docEnd     int
	docRaw     bool
)

var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "Read and edit Feishu documents",
}

var docReadCmd = &cobra.Command{
	Use:   "read",
	Short: "Print a document's title and plain text",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := feishuClient()
		if err != nil {
			return err
		}
		meta, err := client.GetDocument(cmd.Context(), docToken)
		if err != nil {
			return err
		}
		content, err := client.RawContent(cmd.Context(), docToken)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		return printResult(w, map[string]interface{}{
			"document": meta,
			"content":  content,
		}, func() {
			if !docRaw {
				fmt.Fprintf(w, "# %s\n\n", meta.Title)
			}
			fmt.Fprint(w, content)
		})
	},
}

var docBlocksCmd = &cobra.Command{
	Use:   "blocks",
	Short: "Print a document's block tree as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := feishuClient()
		if err != nil {
			return err
		}
		blocks, err := client.ListBlocks(cmd.Context(), docToken)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), blocks)
	},
}

var docPublishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Create a document from a markdown file",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(docFile)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", docFile, err)
		}
		e, err := loadEnv()
		if err != nil {
			return err
		}
		client, err := e.feishu()
		if err != nil {
			return err
		}
		res, err := e.publisher(client).Publish(cmd.Context(), docTitle, docFolder, string(raw))
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		return printResult(w, res, func() {
			fmt.Fprintf(w, "✅ 文档已创建: %s\n", res.URL)
			if res.Failed > 0 {
				fmt.Fprintf(w, "⚠️  %d 个内容块写入失败\n", res.Failed)
			}
		})
	},
}

var docAppendCmd = &cobra.Command{
	Use:   "append",
	Short: "Append a markdown file to an existing document",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(docFile)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", docFile, err)
		}
		e, err := loadEnv()
		if err != nil {
			return err
		}
		client, err := e.feishu()
		if err != nil {
			return err
		}
		written, failed, err := e.publisher(client).Append(cmd.Context(), docToken, string(raw))
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		return printResult(w, map[string]int{"blocks": written, "failed": failed}, func() {
			fmt.Fprintf(w, "✅ 已追加 %d 个内容块\n", written)
			if failed > 0 {
				fmt.Fprintf(w, "⚠️  %d 个内容块写入失败\n", failed)
			}
		})
	},
}

var docUpdateBlockCmd = &cobra.Command{
	Use:   "update-block",
	Short: "Replace the text of a block",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := feishuClient()
		if err != nil {
			return err
		}
		update := map[string]interface{}{
			"update_text_elements": map[string]interface{}{
				"elements": []map[string]interface{}{
					{"text_run": map[string]interface{}{"content": docText}},
				},
			},
		}
		if err := client.UpdateBlock(cmd.Context(), docToken, docBlockID, update); err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		return printResult(w, map[string]string{"block_id": docBlockID}, func() {
			fmt.Fprintf(w, "✅ 已更新 %s\n", docBlockID)
		})
	},
}

var docDeleteBlocksCmd = &cobra.Command{
	Use:   "delete-blocks",
	Short: "Delete children [start, end) of a block",
	RunE: func(cmd *cobra.Command, args []string) error {
		if docEnd <= docStart {
			return fmt.Errorf("--end must be greater than --start")
		}
		parent := docParent
		if parent == "" {
			parent = docToken
		}
		client, err := feishuClient()
		if err != nil {
			return err
		}
		if err := client.DeleteBlocks(cmd.Context(), docToken, parent, docStart, docEnd); err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		return printResult(w, map[string]int{"deleted": docEnd - docStart}, func() {
			fmt.Fprintf(w, "✅ 已删除 %d 个内容块\n", docEnd-docStart)
		})
	},
}

func init() {
	rootCmd.AddCommand(docCmd)
	docCmd.AddCommand(docReadCmd, docBlocksCmd, docPublishCmd, docAppendCmd, docUpdateBlockCmd, docDeleteBlocksCmd)

	for _, c := range []*cobra.Command{docReadCmd, docBlocksCmd, docAppendCmd, docUpdateBlockCmd, docDeleteBlocksCmd} {
		c.Flags().StringVar(&docToken, "doc", "", "Document token")
		_ = c.MarkFlagRequired("doc")
	}
	docReadCmd.Flags().BoolVar(&docRaw, "raw", false, "Print only the content")

	for _, c := range []*cobra.Command{docPublishCmd, docAppendCmd} {
		c.Flags().StringVarP(&docFile, "file", "f", "", "Markdown file")
		_ = c.MarkFlagRequired("file")
	}
	docPublishCmd.Flags().StringVar(&docTitle, "title", "", "Document title")
	docPublishCmd.Flags().StringVar(&docFolder, "folder", "", "Drive folder token")
	_ = docPublishCmd.MarkFlagRequired("title")

	docUpdateBlockCmd.Flags().StringVar(&docBlockID, "block", "", "Block ID")
	docUpdateBlockCmd.Flags().StringVar(&docText, "text", "", "New text")
	_ = docUpdateBlockCmd.MarkFlagRequired("block")

	docDeleteBlocksCmd.Flags().StringVar(&docParent, "parent", "", "Parent block ID (default: the document root)")
	docDeleteBlocksCmd.Flags().IntVar(&docStart, "start", 0, "First child index")
	docDeleteBlocksCmd.Flags().IntVar(&docEnd, "end", 0, "Child index after the last one to delete")
}
