package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	_ "github.com/joho/godotenv/autoload"
	glog "github.com/labstack/gommon/log"

	"atelier/pkg/catalog"
	"atelier/pkg/coach"
	"atelier/pkg/config"
	"atelier/pkg/generation"
	"atelier/pkg/inference"
	"atelier/pkg/server"
	"atelier/pkg/video"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}
	log.SetLevel(cfg.Level())

	ctx, done := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer done()

	chat := inference.NewOpenAIInferencer(cfg.Chat.APIKey, cfg.Chat.TextModel).
		ChangeBaseURL(cfg.Chat.BaseURL).
		SetTimeout(cfg.VendorTimeout)

	var coachInf inference.Inferencer
	if cfg.Gemini.Native {
		gemini := inference.NewGeminiInferencer(cfg.Gemini.APIKey, cfg.Gemini.Model).
			ChangeBaseURL(cfg.Gemini.NativeBaseURL).
			SetTimeout(cfg.VendorTimeout)
		log.Info("Coach chat via Gemini API", "model", gemini.Model())
		coachInf = gemini
	} else {
		proxy := inference.NewOpenAIInferencer(cfg.Gemini.APIKey, cfg.Gemini.Model).
			ChangeBaseURL(cfg.Gemini.BaseURL).
			SetTimeout(cfg.VendorTimeout)
		log.Info("Coach chat via OpenAI-compatible proxy", "model", proxy.Model(), "baseURL", cfg.Gemini.BaseURL)
		coachInf = proxy
	}

	fallback := generation.VendorGemini
	if cfg.Gemini.Native {
		fallback = generation.VendorGeminiNative
	}
	images := generation.NewDispatcher(fallback,
		generation.NewDoubao(cfg.Ark.APIKey, cfg.Ark.BaseURL, cfg.Ark.ImageModel, cfg.Ark.ImageSize, cfg.VendorTimeout),
		generation.NewGemini(cfg.Gemini.APIKey, cfg.Gemini.ImageBaseURL, cfg.Gemini.ImageModel, cfg.VendorTimeout),
		generation.NewGeminiNative(cfg.Gemini.APIKey, cfg.Gemini.NativeImageModel, cfg.VendorTimeout).
			ChangeBaseURL(cfg.Gemini.NativeBaseURL),
	)

	videos := video.NewClient(cfg.Ark.VideoURL, cfg.Ark.APIKey, cfg.Ark.VideoModel, cfg.VendorTimeout).
		WithPolicy(video.Policy{
			Interval:    cfg.Video.PollInterval,
			MaxInterval: cfg.Video.MaxPollInterval,
			MaxWait:     cfg.Video.MaxWait,
			MaxAttempts: cfg.Video.MaxAttempts,
		})
	if !cfg.VideoConfigured() {
		log.Warn("Video generation is not configured", "need", "ARK_API_KEY, ARK_API_URL, ARK_VIDEO_MODEL")
	}

	prompts, err := catalog.Open(cfg.PromptStore)
	if err != nil {
		log.Fatal("Failed to load prompt templates", "path", cfg.PromptStore, "error", err)
	}

	ark := inference.NewArkClient(cfg.Ark.APIKey, cfg.Ark.BaseURL, cfg.Ark.ChatModel, cfg.VendorTimeout)
	log.Info("Vendors configured", "chat", chat.Model(), "ark", ark.Model(), "images", fallback)

	srv := server.NewServer(ctx, server.Options{
		Config:        cfg,
		Chat:          chat,
		Coach:         coachInf,
		Ark:           ark,
		Images:        images,
		Video:         videos,
		Prompts:       prompts,
		TrainerPrompt: coach.LoadTrainerPrompt(cfg.Coach.TrainerPrompt),
	})
	if cfg.Level() <= log.DebugLevel {
		srv.Echo.Logger.SetLevel(glog.DEBUG)
	}

	finishedShutDown := make(chan struct{})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Shutdown failed", "error", err)
		}
		close(finishedShutDown)
	}()

	if err := srv.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("Server stopped", "error", err)
		os.Exit(1)
	}
	<-finishedShutDown
}
