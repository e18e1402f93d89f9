package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/onegate/onegate/internal/config"
	"github.com/onegate/onegate/internal/gateway"
	"github.com/onegate/onegate/internal/ingest"
	"github.com/onegate/onegate/internal/llm"
	. "github.com/onegate/onegate/internal/logging"
	"github.com/onegate/onegate/internal/models"
	"github.com/onegate/onegate/internal/payment"
	"github.com/onegate/onegate/internal/subagent"
	"github.com/onegate/onegate/internal/transport/telegram"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "onegate.toml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("onegate %s\n", version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	Init(&Config{
		Level:      logLevel(cfg.Logging.Level),
		ShowCaller: cfg.Logging.ShowCaller,
	})

	L_info("onegate %s starting", version)

	registry, err := models.NewDefaultRegistry()
	if err != nil {
		L_fatal("failed to build model registry: %v", err)
	}

	providers, err := llm.NewProviders(map[models.Provider]llm.ProviderConfig{
		models.ProviderOpenAI:   {APIKey: cfg.Providers.OpenAI.APIKey, BaseURL: cfg.Providers.OpenAI.BaseURL},
		models.ProviderClaude:   {APIKey: cfg.Providers.Claude.APIKey},
		models.ProviderVertex:   {APIKey: cfg.Providers.Vertex.APIKey, BaseURL: cfg.Providers.Vertex.BaseURL},
		models.ProviderDeepSeek: {APIKey: cfg.Providers.DeepSeek.APIKey, BaseURL: cfg.Providers.DeepSeek.BaseURL},
		models.ProviderXAI:      {APIKey: cfg.Providers.XAI.APIKey},
	})
	if err != nil {
		L_fatal("failed to create providers: %v", err)
	}
	L_info("providers configured", "count", len(providers))

	ledger, err := payment.NewLedger(cfg.Payment.LedgerPath, cfg.Payment.Whitelist, cfg.Payment.NativeRate)
	if err != nil {
		L_fatal("failed to open payment ledger: %v", err)
	}
	defer ledger.Close()

	bot, err := telegram.NewBot(cfg.Telegram.BotToken)
	if err != nil {
		L_fatal("failed to create telegram bot: %v", err)
	}
	channel := bot.Channel()

	var agents []subagent.Subagent
	if cfg.Ingest.Endpoint != "" {
		client := ingest.NewClient(cfg.Ingest.Endpoint, time.Duration(cfg.Ingest.TimeoutSeconds)*time.Second)
		agents = append(agents, subagent.NewDocumentAgent(client, ledger, channel, cfg.Gateway.PriceAdjustment))
	} else {
		L_warn("ingest endpoint not configured, URL/PDF enrichment disabled")
	}

	gw, err := gateway.New(registry, providers, ledger, channel, agents, gateway.Options{
		SystemPrompt:    cfg.Gateway.SystemPrompt,
		DefaultModel:    cfg.Gateway.DefaultModel,
		WordLimit:       cfg.Gateway.WordLimit,
		PriceAdjustment: cfg.Gateway.PriceAdjustment,
		IntroText:       cfg.Gateway.IntroText,
	})
	if err != nil {
		L_fatal("failed to create gateway: %v", err)
	}

	bot.AttachGateway(gw)

	L_info("onegate ready")
	bot.Start()
}

func logLevel(level string) int {
	switch level {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}
