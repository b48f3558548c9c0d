package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type SessionRow struct {
	ID              string `json:"id"`
	WorkspaceID     string `json:"workspace_id"`
	State           string `json:"state"`
	PreviewURL      string `json:"preview_url"`
	InstallExitCode *int   `json:"install_exit_code"`
	Error           string `json:"error"`
	CreatedAt       string `json:"created_at"`
	LastActiveAt    string `json:"last_active_at"`
}

var sessionCmd = &cobra.Command{
	Use:     "session",
	Aliases: []string{"sess"},
	Short:   "Manage execution sessions",
}

var sessionOpenCmd = &cobra.Command{
	Use:   "open <workspace-id>",
	Short: "Open (or join) the workspace's session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := NewClient(apiURL, authToken)
		var s SessionRow
		if err := c.Post("/v1/workspaces/"+args[0]+"/sessions", nil, &s); err != nil {
			return err
		}
		printResult(s)
		return nil
	},
}

var sessionGetCmd = &cobra.Command{
	Use:   "get <session-id>",
	Short: "Show session state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := NewClient(apiURL, authToken)
		var s SessionRow
		if err := c.Get("/v1/sessions/"+args[0], &s); err != nil {
			return err
		}
		printResult(s)
		return nil
	},
}

var sessionCloseCmd = &cobra.Command{
	Use:   "close <session-id>",
	Short: "Release a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := NewClient(apiURL, authToken)
		if err := c.Delete("/v1/sessions/"+args[0], nil); err != nil {
			return err
		}
		fmt.Println("Session released.")
		return nil
	},
}

var sessionPutCmd = &cobra.Command{
	Use:   "put <session-id> <path> <local-file>",
	Short: "Write a local file into the session",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := os.ReadFile(args[2])
		if err != nil {
			return err
		}
		c := NewClient(apiURL, authToken)
		if err := c.Put("/v1/sessions/"+args[0]+"/files/"+args[1], map[string]string{"content": string(content)}, nil); err != nil {
			return err
		}
		fmt.Println("File written.")
		return nil
	},
}

var sessionCatCmd = &cobra.Command{
	Use:   "cat <session-id> <path>",
	Short: "Print a session file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := NewClient(apiURL, authToken)
		var resp struct {
			Content string `json:"content"`
		}
		if err := c.Get("/v1/sessions/"+args[0]+"/files/"+args[1], &resp); err != nil {
			return err
		}
		fmt.Print(resp.Content)
		return nil
	},
}

var sessionRunCmd = &cobra.Command{
	Use:   "run <session-id> <command> [args...]",
	Short: "Run a command in the session",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := NewClient(apiURL, authToken)
		if err := c.Post("/v1/sessions/"+args[0]+"/run", map[string]interface{}{"argv": args[1:]}, nil); err != nil {
			return err
		}
		fmt.Println("Command dispatched.")
		return nil
	},
}

var sessionSaveCmd = &cobra.Command{
	Use:   "save <session-id>",
	Short: "Save the session tree and publish it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := NewClient(apiURL, authToken)
		var resp struct {
			PreviewURL string `json:"preview_url"`
		}
		if err := c.Post("/v1/sessions/"+args[0]+"/save", nil, &resp); err != nil {
			return err
		}
		fmt.Printf("Published. Preview: %s\n", resp.PreviewURL)
		return nil
	},
}

func init() {
	sessionCmd.AddCommand(sessionOpenCmd)
	sessionCmd.AddCommand(sessionGetCmd)
	sessionCmd.AddCommand(sessionCloseCmd)
	sessionCmd.AddCommand(sessionPutCmd)
	sessionCmd.AddCommand(sessionCatCmd)
	sessionCmd.AddCommand(sessionRunCmd)
	sessionCmd.AddCommand(sessionSaveCmd)
	rootCmd.AddCommand(sessionCmd)
}
