package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tcross/narrator/internal/speech"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "查看最近的生成记录",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "显示条数")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		printError("加载配置失败", err)
		return err
	}
	if !cfg.HistoryEnabled() {
		return errors.New("生成记录未启用（history.enabled: false）")
	}

	a, err := newApp(cfg)
	if err != nil {
		printError("初始化失败", err)
		return err
	}
	defer a.Close()

	records, err := a.history.List(context.Background(), historyLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("暂无记录。")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tLANG\tGENDER\tSPEED\tENGINE\tSTATUS\tFILE\tTEXT")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%sx\t%s\t%s\t%s\t%s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			r.Language, r.Gender, speech.FormatSpeed(r.Speed), r.Engine, r.Status,
			orDash(r.File), truncate(r.Text, 30))
	}
	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncate 按字符截断并去掉换行。
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
