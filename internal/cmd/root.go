package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AlbertoV5/workstream/internal/config"
	"github.com/AlbertoV5/workstream/internal/repo"
)

var rootCmd = &cobra.Command{
	Use:   "work",
	Short: "Approval-gated parallel agent workstreams",
	Long: `Work manages workstreams: structured multi-stage plans (PLAN.md) that
pass through human approval gates before their tasks are executed by
parallel agent sessions in a tmux pane grid.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("stream", "s", "", "workstream id or name (defaults to the current stream)")
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/workstream/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	root, err := repo.FindRootFromCwd()
	if err != nil {
		root = ""
	}
	if cfgFile := viper.GetString("config"); cfgFile != "" {
		config.SetDefaults()
		viper.SetConfigFile(cfgFile)
		_ = viper.ReadInConfig()
		return
	}
	config.Init(root)
}

func streamFlag(cmd *cobra.Command) string {
	value, _ := cmd.Flags().GetString("stream")
	if value == "" {
		value = os.Getenv("WORK_STREAM")
	}
	return value
}
