package cmd

import (
	"time"

	"github.com/tcross/narrator/internal/config"
	"github.com/tcross/narrator/internal/database"
	"github.com/tcross/narrator/internal/history"
	"github.com/tcross/narrator/internal/logger"
	"github.com/tcross/narrator/internal/narrator"
	"github.com/tcross/narrator/internal/speech"
	"github.com/tcross/narrator/internal/tempo"
	"github.com/tcross/narrator/internal/tts"
)

// app 持有一次命令执行所需的全部组件。
type app struct {
	cfg     *config.Config
	catalog *speech.VoiceCatalog
	service *narrator.Service
	db      *database.DB
	history *history.Store
}

// newApp 按配置组装后端、变速处理、历史记录和生成服务。
func newApp(cfg *config.Config) (*app, error) {
	a := &app{
		cfg:     cfg,
		catalog: speech.NewVoiceCatalog(cfg.VoiceOverrides()),
	}

	if cfg.HistoryEnabled() {
		db, err := database.Open(cfg.History.DBPath)
		if err != nil {
			return nil, err
		}
		store, err := history.NewStore(db)
		if err != nil {
			db.Close()
			return nil, err
		}
		a.db, a.history = db, store
	}

	encoder := tempo.NewFFmpegEncoder(cfg.Tempo.Encoder, cfg.Tempo.Bitrate)
	if err := encoder.Available(); err != nil {
		logger.Warnf("[main] Google 后端的非 1.0 语速将输出正常语速: %v", err)
	}

	dispatcher := narrator.NewDispatcher(narrator.DispatcherConfig{
		Catalog: a.catalog,
		Primary: tts.NewEdgeEngine(tts.EdgeConfig{Proxy: cfg.Edge.Proxy}),
		Secondary: tts.NewGoogleEngine(tts.GoogleConfig{
			BaseURL: cfg.GTTS.BaseURL,
			Timeout: time.Duration(cfg.GTTS.Timeout) * time.Second,
		}),
		Tempo:         tempo.NewTransformer(encoder),
		StreamTimeout: time.Duration(cfg.Edge.ReceiveTimeout) * time.Second,
	})

	svcCfg := narrator.ServiceConfig{
		Dispatcher: dispatcher,
		OutputDir:  cfg.Output.Dir,
		FilePrefix: cfg.Output.Prefix,
	}
	if a.history != nil {
		svcCfg.Recorder = a.history
	}
	a.service = narrator.NewService(svcCfg)
	return a, nil
}

// Close 释放数据库连接。
func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}
