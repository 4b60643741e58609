// Package cmd contains the command line applications for the project.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/yeisme/folderrelay/pkg/configs"
)

var (
	// configPath 配置文件或目录.
	configPath string
	// debug 打印配置时附带 viper 的调试输出.
	debug bool

	rootCmd = &cobra.Command{
		Use:           configs.AppName,
		Short:         "Relay multipart folder uploads to a downstream webhook",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./", "config file or directory")

	registerServeCommands()
	registerConfigsCommands()
	registerKVCommands()
	registerMQCommands()
	registerVersionCommands()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
