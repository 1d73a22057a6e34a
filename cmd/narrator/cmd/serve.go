package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tcross/narrator/internal/logger"
	"github.com/tcross/narrator/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动网页服务",
	Long: `启动 HTTP 服务，提供网页表单和 JSON API。

示例:
  narrator serve
  narrator serve --addr 127.0.0.1:8080`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "监听地址（默认读取配置 server.addr）")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		printError("加载配置失败", err)
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	a, err := newApp(cfg)
	if err != nil {
		printError("初始化失败", err)
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srvCfg := server.Config{
		Addr:    cfg.Server.Addr,
		Service: a.service,
		Catalog: a.catalog,
	}
	if a.history != nil {
		srvCfg.History = a.history
	}

	if err := server.New(srvCfg).Run(ctx); err != nil {
		printError("服务异常退出", err)
		return err
	}
	logger.Infof("[main] 服务已停止")
	return nil
}
