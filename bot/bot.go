// Package bot wires the Discord transport to the wizard engine, index and
// quota tracker, and owns process lifecycle.
package bot

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"postmaker/banner"
	"postmaker/config"
	"postmaker/index"
	"postmaker/paste"
	"postmaker/preset"
	"postmaker/quota"
	"postmaker/router"
	"postmaker/session"
	"postmaker/store"
	"postmaker/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Bot holds the assembled application.
type Bot struct {
	dg        *discordgo.Session
	router    *router.Router
	engine    *session.Engine
	idx       *index.Index
	quota     *quota.Tracker
	presets   *preset.Registry
	publisher *ChannelPublisher
}

// Start brings the whole bot up and blocks until SIGINT/SIGTERM.
func Start() {
	if err := config.LoadConfig(); err != nil {
		log.Printf("error loading config: %v", err)
		return
	}
	if err := utils.InitLogger(config.Cfg.Log); err != nil {
		log.Printf("error initializing logger: %v", err)
		return
	}
	defer utils.Logger.Sync()

	st, err := store.OpenSQLite(config.Cfg.DBPath)
	if err != nil {
		utils.Logger.Error("open database", zap.Error(err))
		return
	}
	defer st.Close()

	tracker, err := quota.New(st, config.Cfg.Quota.DailyLimit, config.Cfg.Quota.Timezone)
	if err != nil {
		utils.Logger.Error("init quota tracker", zap.Error(err))
		return
	}
	idx, err := index.New(st, utils.Logger)
	if err != nil {
		utils.Logger.Error("load post index", zap.Error(err))
		return
	}
	presets := preset.New(st)

	dg, err := discordgo.New("Bot " + config.Cfg.Token)
	if err != nil {
		utils.Logger.Error("create discord session", zap.Error(err))
		return
	}

	publisher := NewChannelPublisher(dg, config.Cfg.Channel)
	engine, err := session.New(st, tracker, presets, idx,
		banner.New(config.Cfg.Banner.AssetDir),
		paste.New(config.Cfg.Paste.Endpoint, config.Cfg.Paste.APIKey),
		publisher,
		utils.Logger,
		session.Config{
			Timeout:     time.Duration(config.Cfg.Session.TimeoutMinutes) * time.Minute,
			MaxRetries:  config.Cfg.Session.MaxRetries,
			InlineLimit: config.Cfg.Paste.InlineLimit,
			WorkerLimit: int64(config.Cfg.Session.WorkerLimit),
		})
	if err != nil {
		utils.Logger.Error("init session engine", zap.Error(err))
		return
	}

	b := &Bot{
		dg:        dg,
		router:    router.New(utils.Logger, errText),
		engine:    engine,
		idx:       idx,
		quota:     tracker,
		presets:   presets,
		publisher: publisher,
	}
	b.bindCommands()
	registerEventHandlers(dg, b)

	if err := dg.Open(); err != nil {
		utils.Logger.Error("open discord connection", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	engine.StartSweeper(ctx, time.Minute)

	utils.Logger.Info("bot is now running, press CTRL-C to exit")
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	cancel()
	b.router.Close()
	dg.Close()
}
