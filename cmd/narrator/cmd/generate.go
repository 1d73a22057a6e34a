package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tcross/narrator/internal/audio"
	"github.com/tcross/narrator/internal/narrator"
	"github.com/tcross/narrator/internal/speech"
)

var (
	genText   string
	genLang   string
	genGender string
	genSpeed  string
	genEngine string
	genPlay   bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "合成一段文本",
	Long: `将文本合成为 MP3 并保存到输出目录。

未指定 --text 时使用所选语言的示例文本；--text - 从标准输入读取。

示例:
  narrator generate -t "Hello there" -g Male -s 1.25
  narrator generate -l ja -e gtts -s 0.75 --play
  echo "新薬の開発" | narrator generate -l ja -t -`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVarP(&genText, "text", "t", "", "要合成的文本，- 表示从标准输入读取")
	generateCmd.Flags().StringVarP(&genLang, "lang", "l", "en", "语言: en, ja")
	generateCmd.Flags().StringVarP(&genGender, "gender", "g", "Female", "音色性别: Female, Male")
	generateCmd.Flags().StringVarP(&genSpeed, "speed", "s", "1.0", "语速: 0.5, 0.75, 1.0, 1.25, 1.5")
	generateCmd.Flags().StringVarP(&genEngine, "engine", "e", "edge", "后端: edge, gtts")
	generateCmd.Flags().BoolVar(&genPlay, "play", false, "生成后播放")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	req, err := buildRequest(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		printError("加载配置失败", err)
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		printError("初始化失败", err)
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := a.service.Generate(ctx, req)
	switch {
	case err == nil:
	case narrator.IsDegraded(err):
		fmt.Fprintf(os.Stderr, "警告: %v\n", err)
	case res != nil:
		printError("合成失败，已保留部分音频", err)
	default:
		printError("合成失败", err)
		return err
	}

	voice := res.Voice
	if voice == "" {
		voice = "-"
	}
	fmt.Printf("已生成: %s\n", res.Path)
	fmt.Printf("  引擎: %s  音色: %s  语速: %sx\n", req.Engine, voice, speech.FormatSpeed(req.Speed))
	fmt.Printf("  大小: %d 字节  时长: %.1f 秒\n", res.Size, res.Duration.Seconds())

	if genPlay {
		if perr := play(ctx, res.Path); perr != nil {
			printError("播放失败", perr)
		}
	}
	if err != nil && !narrator.IsDegraded(err) {
		return err
	}
	return nil
}

// buildRequest 解析命令行参数。
func buildRequest(cmd *cobra.Command) (speech.Request, error) {
	var req speech.Request
	var err error
	if req.Language, err = speech.ParseLanguage(genLang); err != nil {
		return req, err
	}
	if req.Gender, err = speech.ParseGender(genGender); err != nil {
		return req, err
	}
	if req.Speed, err = speech.ParseSpeed(genSpeed); err != nil {
		return req, err
	}
	if req.Engine, err = speech.ParseEngine(genEngine); err != nil {
		return req, err
	}

	switch {
	case !cmd.Flags().Changed("text"):
		req.Text = speech.DefaultTexts[req.Language]
	case genText == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return req, fmt.Errorf("读取标准输入失败: %w", err)
		}
		req.Text = strings.TrimSpace(string(data))
	default:
		req.Text = genText
	}
	return req, req.Validate()
}

func play(ctx context.Context, path string) error {
	p, err := audio.NewPlayer()
	if err != nil {
		return err
	}
	defer p.Close()
	return p.PlayFile(ctx, path)
}
