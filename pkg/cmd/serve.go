package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yeisme/folderrelay/pkg/app"
	"github.com/yeisme/folderrelay/pkg/configs"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "start the upload relay http server",
	RunE:  runServe,
}

// runServe 加载配置并运行服务，收到 SIGINT/SIGTERM 后优雅退出.
func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := configs.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}

	return a.Run(ctx)
}

func registerServeCommands() {
	rootCmd.AddCommand(serveCmd)
}
