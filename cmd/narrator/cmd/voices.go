package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tcross/narrator/internal/speech"
)

var voicesCmd = &cobra.Command{
	Use:   "voices",
	Short: "列出 Edge 后端使用的音色",
	Args:  cobra.NoArgs,
	RunE:  runVoices,
}

func init() {
	rootCmd.AddCommand(voicesCmd)
}

func runVoices(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		printError("加载配置失败", err)
		return err
	}
	catalog := speech.NewVoiceCatalog(cfg.VoiceOverrides())

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LANG\tGENDER\tVOICE")
	for _, v := range catalog.Voices() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", v.Language, v.Gender, v.ID)
	}
	return w.Flush()
}
