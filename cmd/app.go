package main

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/zap"

	"chat-client/internal/config"
	"chat-client/internal/csrf"
	"chat-client/internal/integrations/chatapi"
	"chat-client/internal/integrations/paramstore"
	"chat-client/internal/logging"
	"chat-client/internal/transcript"
	"chat-client/internal/usecase"
)

// app is everything a command needs, wired from configuration.
type app struct {
	cfg        config.Config
	log        *zap.Logger
	api        *chatapi.Client
	transcript *transcript.Transcript
	chat       *usecase.ChatService
}

func newApp(ctx context.Context, interactive bool) (*app, error) {
	// ---- Configuration ----
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return nil, err
	}
	flags.Apply(&cfg)

	if cfg.ParamPrefix != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		ps, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			return nil, err
		}
		if err := cfg.ResolveParams(ctx, ps); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// ---- Logging ----
	logger, err := logging.New(logging.Options{File: cfg.LogFile, Stderr: !interactive, Debug: cfg.Debug})
	if err != nil {
		return nil, err
	}

	// ---- Clients ----
	api, err := chatapi.NewClient(cfg.BaseURL,
		chatapi.WithTokenSource(csrf.First(csrf.Static(cfg.CSRFToken), csrf.CookieHeader(cfg.Cookie))),
		chatapi.WithProjectName(cfg.Project),
	)
	if err != nil {
		return nil, err
	}
	if cfg.Bootstrap {
		bootCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		if err := api.Bootstrap(bootCtx); err != nil {
			logger.Warn("csrf cookie bootstrap failed", zap.String("base_url", cfg.BaseURL), zap.Error(err))
		}
		cancel()
	}

	// ---- Chat client ----
	tr := transcript.New()
	chat, err := usecase.NewChatService(ctx, api, tr, usecase.ChatOptions{
		Timeout:     cfg.Timeout,
		Ordering:    usecase.Ordering(cfg.Ordering),
		MaxInFlight: cfg.MaxInFlight,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("chat client ready",
		zap.String("base_url", cfg.BaseURL),
		zap.String("ordering", cfg.Ordering),
		zap.Int("max_in_flight", cfg.MaxInFlight),
		zap.Duration("timeout", cfg.Timeout))

	return &app{cfg: cfg, log: logger, api: api, transcript: tr, chat: chat}, nil
}

func (a *app) Close() {
	a.chat.Close()
	_ = a.log.Sync()
}
