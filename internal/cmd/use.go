package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AlbertoV5/workstream/internal/index"
)

var useCmd = &cobra.Command{
	Use:   "use <stream>",
	Short: "Set the current workstream",
	Args:  cobra.ExactArgs(1),
	RunE:  runUse,
}

func init() {
	rootCmd.AddCommand(useCmd)
}

func runUse(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	var streamID string
	err = index.Modify(a.Root, a.Locker, func(idx *index.Index) error {
		stream, ok := index.FindStream(idx, args[0])
		if !ok {
			return fmt.Errorf("no workstream matches %q", args[0])
		}
		streamID = stream.ID
		return index.SetCurrent(idx, stream.ID)
	})
	if err != nil {
		return err
	}
	fmt.Printf("Current workstream is now %s\n", streamID)
	return nil
}
