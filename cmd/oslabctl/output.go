package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
)

func printResult(v interface{}) {
	if output == "json" {
		json.NewEncoder(os.Stdout).Encode(v)
		return
	}
	printTable(v)
}

func printTable(v interface{}) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	switch data := v.(type) {
	case []WorkspaceRow:
		if len(data) == 0 {
			fmt.Println("No workspaces found.")
			return
		}
		fmt.Fprintln(w, "ID\tNAME\tSLUG\tOWNER\tSTARS\tFORKS\tPUBLISHED\tCREATED")
		for _, ws := range data {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%v\t%s\n",
				ws.ID, truncate(ws.Name, 30), ws.Slug, ws.OwnerID, ws.Stars, ws.Forks, ws.IsPublished, ws.CreatedAt)
		}
	case WorkspaceRow:
		fmt.Fprintf(w, "ID:\t%s\n", data.ID)
		fmt.Fprintf(w, "Name:\t%s\n", data.Name)
		fmt.Fprintf(w, "Slug:\t%s\n", data.Slug)
		fmt.Fprintf(w, "Owner:\t%s\n", data.OwnerID)
		fmt.Fprintf(w, "Stars:\t%d\n", data.Stars)
		fmt.Fprintf(w, "Forks:\t%d\n", data.Forks)
		fmt.Fprintf(w, "Published:\t%v\n", data.IsPublished)
		fmt.Fprintf(w, "Created:\t%s\n", data.CreatedAt)
	case SessionRow:
		fmt.Fprintf(w, "ID:\t%s\n", data.ID)
		fmt.Fprintf(w, "Workspace:\t%s\n", data.WorkspaceID)
		fmt.Fprintf(w, "State:\t%s\n", data.State)
		if data.PreviewURL != "" {
			fmt.Fprintf(w, "Preview:\t%s\n", data.PreviewURL)
		}
		if data.InstallExitCode != nil {
			fmt.Fprintf(w, "Install exit:\t%d\n", *data.InstallExitCode)
		}
		if data.Error != "" {
			fmt.Fprintf(w, "Error:\t%s\n", data.Error)
		}
		fmt.Fprintf(w, "Created:\t%s\n", data.CreatedAt)
		fmt.Fprintf(w, "Last active:\t%s\n", data.LastActiveAt)
	default:
		json.NewEncoder(os.Stdout).Encode(v)
	}
	w.Flush()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
