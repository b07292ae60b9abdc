package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AlbertoV5/workstream/internal/index"
	"github.com/AlbertoV5/workstream/internal/util"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List workstreams",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	idx, err := index.Load(a.Root)
	if err != nil {
		return err
	}
	if len(idx.Streams) == 0 {
		fmt.Println("No workstreams. Run 'work create <name>' to start one.")
		return nil
	}

	fmt.Println(headerStyle.Render("  ID             PLAN      STAGES  TASKS     NAME"))
	for _, stream := range idx.Streams {
		marker := " "
		id := stream.ID
		if stream.Current {
			marker = currentStyle.Render("*")
			id = currentStyle.Render(id)
		}
		approved := 0
		for _, entry := range stream.Approval.Stages {
			if entry.Status == index.ApprovalApproved {
				approved++
			}
		}
		fmt.Printf("%s %s %s %-7d %s %s\n",
			marker,
			util.PadRight(id, 14),
			util.PadRight(approvalBadge(string(stream.Approval.Plan.Status)), 9),
			approved,
			util.PadRight(approvalBadge(string(stream.Approval.Tasks.Status)), 9),
			util.Truncate(stream.Name, 40))
	}
	return nil
}
