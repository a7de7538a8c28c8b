package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	wikiSpace  string
	wikiParent string
	wikiToken  string
	driveDir   string
	driveName  string
)

var wikiCmd = &cobra.Command{
	Use:   "wiki",
	Short: "Browse knowledge bases",
}

var wikiSpacesCmd = &cobra.Command{
	Use:   "spaces",
	Short: "List knowledge bases",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := feishuClient()
		if err != nil {
			return err
		}
		spaces, err := client.ListWikiSpaces(cmd.Context())
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		return printResult(w, spaces, func() {
			for _, s := range spaces {
				fmt.Fprintf(w, "%s\t%s\n", s.SpaceID, s.Name)
			}
		})
	},
}

var wikiNodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "List the nodes of a space",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := feishuClient()
		if err != nil {
			return err
		}
		nodes, err := client.ListWikiNodes(cmd.Context(), wikiSpace, wikiParent)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		return printResult(w, nodes, func() {
			for _, n := range nodes {
				marker := " "
				if n.HasChild {
					marker = "+"
				}
				fmt.Fprintf(w, "%s %s\t%s\t%s\n", marker, n.NodeToken, n.ObjType, n.Title)
			}
		})
	},
}

var wikiNodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Resolve a node token to its document",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := feishuClient()
		if err != nil {
			return err
		}
		node, err := client.GetWikiNode(cmd.Context(), wikiToken)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		return printResult(w, node, func() {
			fmt.Fprintf(w, "%s\n  %s: %s\n", node.Title, node.ObjType, node.ObjToken)
		})
	},
}

var driveCmd = &cobra.Command{
	Use:   "drive",
	Short: "Browse and organize drive folders",
}

var driveLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List a folder (the root folder by default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := feishuClient()
		if err != nil {
			return err
		}
		files, err := client.ListFiles(cmd.Context(), driveDir)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		return printResult(w, files, func() {
			for _, f := range files {
				fmt.Fprintf(w, "%-8s %s\t%s\n", f.Type, f.Token, f.Name)
			}
		})
	},
}

var driveMkdirCmd = &cobra.Command{
	Use:   "mkdir",
	Short: "Create a folder",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := feishuClient()
		if err != nil {
			return err
		}
		token, err := client.CreateFolder(cmd.Context(), driveName, driveDir)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		return printResult(w, map[string]string{"token": token}, func() {
			fmt.Fprintf(w, "✅ 已创建文件夹 %s: %s\n", driveName, token)
		})
	},
}

func init() {
	rootCmd.AddCommand(wikiCmd, driveCmd)
	wikiCmd.AddCommand(wikiSpacesCmd, wikiNodesCmd, wikiNodeCmd)
	driveCmd.AddCommand(driveLsCmd, driveMkdirCmd)

	wikiNodesCmd.Flags().StringVar(&wikiSpace, "space", "", "Space ID")
	wikiNodesCmd.Flags().StringVar(&wikiParent, "parent", "", "Parent node token")
	_ = wikiNodesCmd.MarkFlagRequired("space")
	wikiNodeCmd.Flags().StringVar(&wikiToken, "token", "", "Node token")
	_ = wikiNodeCmd.MarkFlagRequired("token")

	for _, c := range []*cobra.Command{driveLsCmd, driveMkdirCmd} {
		c.Flags().StringVar(&driveDir, "folder", "", "Folder token")
	}
	driveMkdirCmd.Flags().StringVar(&driveName, "name", "", "Folder name")
	_ = driveMkdirCmd.MarkFlagRequired("name")
}
