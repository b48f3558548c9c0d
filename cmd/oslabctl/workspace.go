package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type WorkspaceRow struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	OwnerID     string `json:"owner_id"`
	Stars       int    `json:"stars"`
	Forks       int    `json:"forks"`
	IsPublished bool   `json:"is_published"`
	CreatedAt   string `json:"created_at"`
}

var workspaceCmd = &cobra.Command{
	Use:     "workspace",
	Aliases: []string{"ws"},
	Short:   "Manage workspaces",
}

var createWorkspaceName string

var workspaceCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a workspace from the default template",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := NewClient(apiURL, authToken)
		var ws WorkspaceRow
		if err := c.Post("/v1/workspaces", map[string]string{"name": createWorkspaceName}, &ws); err != nil {
			return err
		}
		printResult(ws)
		return nil
	},
}

var workspaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List published workspaces",
	RunE: func(cmd *cobra.Command, args []string) error {
		sortBy, _ := cmd.Flags().GetString("sort")
		c := NewClient(apiURL, authToken)
		var resp struct {
			Workspaces []WorkspaceRow `json:"workspaces"`
		}
		if err := c.Get("/v1/workspaces?sort="+sortBy, &resp); err != nil {
			return err
		}
		printResult(resp.Workspaces)
		return nil
	},
}

var workspaceGetCmd = &cobra.Command{
	Use:   "get <workspace-id>",
	Short: "Show one workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := NewClient(apiURL, authToken)
		var ws WorkspaceRow
		if err := c.Get("/v1/workspaces/"+args[0], &ws); err != nil {
			return err
		}
		printResult(ws)
		return nil
	},
}

var workspaceDeleteCmd = &cobra.Command{
	Use:   "delete <workspace-id>",
	Short: "Delete a workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := NewClient(apiURL, authToken)
		if err := c.Delete("/v1/workspaces/"+args[0], nil); err != nil {
			return err
		}
		fmt.Println("Workspace deleted.")
		return nil
	},
}

var workspaceForkCmd = &cobra.Command{
	Use:   "fork <workspace-id>",
	Short: "Fork a workspace's published state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := NewClient(apiURL, authToken)
		var ws WorkspaceRow
		if err := c.Post("/v1/workspaces/"+args[0]+"/fork", nil, &ws); err != nil {
			return err
		}
		printResult(ws)
		return nil
	},
}

var workspaceStarCmd = &cobra.Command{
	Use:   "star <workspace-id>",
	Short: "Star a published workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := NewClient(apiURL, authToken)
		var ws WorkspaceRow
		if err := c.Post("/v1/workspaces/"+args[0]+"/star", nil, &ws); err != nil {
			return err
		}
		printResult(ws)
		return nil
	},
}

var workspaceUnpublishCmd = &cobra.Command{
	Use:   "unpublish <workspace-id>",
	Short: "Disable a workspace's public preview",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := NewClient(apiURL, authToken)
		if err := c.Post("/v1/workspaces/"+args[0]+"/unpublish", nil, nil); err != nil {
			return err
		}
		fmt.Println("Workspace unpublished.")
		return nil
	},
}

func init() {
	workspaceCreateCmd.Flags().StringVarP(&createWorkspaceName, "name", "n", "", "Workspace name")
	workspaceCreateCmd.MarkFlagRequired("name")
	workspaceListCmd.Flags().String("sort", "created", "Sort order (stars, forks, created)")

	workspaceCmd.AddCommand(workspaceCreateCmd)
	workspaceCmd.AddCommand(workspaceListCmd)
	workspaceCmd.AddCommand(workspaceGetCmd)
	workspaceCmd.AddCommand(workspaceDeleteCmd)
	workspaceCmd.AddCommand(workspaceForkCmd)
	workspaceCmd.AddCommand(workspaceStarCmd)
	workspaceCmd.AddCommand(workspaceUnpublishCmd)
	rootCmd.AddCommand(workspaceCmd)
}
