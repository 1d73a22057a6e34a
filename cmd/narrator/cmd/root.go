package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tcross/narrator/internal/config"
	"github.com/tcross/narrator/internal/logger"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "narrator",
	Short: "英语/日语文本转 MP3 朗读",
	Long: `narrator 将英语或日语文本合成为 MP3 音频。

后端:
  edge  - 微软 Edge 朗读服务（默认，支持音色和语速）
  gtts  - Google 翻译朗读（只区分语言，非 1.0 语速通过本地变速实现）`,
	SilenceUsage: true,
}

// Execute 执行根命令。
func Execute() error {
	err := rootCmd.Execute()
	logger.Sync()
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "configs/narrator.yaml", "配置文件路径（不存在时使用默认配置）")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "输出调试日志")
}

// loadConfig 读取配置并初始化日志。
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(cfgFile)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	}); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return cfg, nil
}

func printError(msg string, err error) {
	fmt.Fprintf(os.Stderr, "错误: %s: %v\n", msg, err)
}
