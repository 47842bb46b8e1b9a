// Package config loads service settings from the environment (and a .env file
// when present).
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
)

type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	BodyLimit string `env:"BODY_LIMIT" envDefault:"25M"`

	// HTMLDir holds the static HTML pages served under /html.
	HTMLDir string `env:"HTML_DIR" envDefault:"data/html"`
	// PromptStore is the JSON file user-created prompt templates persist to.
	PromptStore string `env:"PROMPT_STORE" envDefault:"data/prompts.json"`

	AllowPrivateDownloads bool          `env:"DOWNLOAD_ALLOW_PRIVATE" envDefault:"false"`
	VendorTimeout         time.Duration `env:"VENDOR_TIMEOUT" envDefault:"120s"`
	SummaryTTL            time.Duration `env:"SUMMARY_TTL" envDefault:"1h"`

	Chat   Chat   `envPrefix:"CHAT_"`
	Gemini Gemini `envPrefix:"GEMINI_"`
	Ark    Ark    `envPrefix:"ARK_"`
	Video  Video  `envPrefix:"VIDEO_"`
	Coach  Coach  `envPrefix:"COACH_"`
}

// Chat is the general OpenAI-compatible chat relay.
type Chat struct {
	APIKey      string `env:"API_KEY"`
	BaseURL     string `env:"BASE_URL" envDefault:"https://api.qnaigc.com/v1"`
	TextModel   string `env:"TEXT_MODEL" envDefault:"claude-4.5-opus"`
	VisionModel string `env:"VISION_MODEL" envDefault:"gemini-2.5-flash"`
}

type Gemini struct {
	APIKey  string `env:"API_KEY"`
	BaseURL string `env:"BASE_URL" envDefault:"https://api.qnaigc.com/v1"`
	Model   string `env:"MODEL" envDefault:"gemini-2.5-flash"`

	ImageModel   string `env:"IMAGE_MODEL" envDefault:"gemini-3.0-pro-image-preview"`
	ImageBaseURL string `env:"IMAGE_BASE_URL" envDefault:"https://api.qnaigc.com/v1"`

	// Native switches chat and image generation to the Gemini API itself
	// instead of an OpenAI-compatible proxy.
	Native           bool   `env:"NATIVE" envDefault:"false"`
	NativeImageModel string `env:"NATIVE_IMAGE_MODEL" envDefault:"gemini-2.5-flash-image"`
	// NativeBaseURL overrides the Gemini API endpoint; empty uses the SDK default.
	NativeBaseURL string `env:"NATIVE_BASE_URL"`
}

// Ark is Volcengine Ark (Doubao models, files, bots and video tasks).
type Ark struct {
	APIKey     string `env:"API_KEY"`
	BaseURL    string `env:"BASE_URL" envDefault:"https://ark.cn-beijing.volces.com/api/v3"`
	ChatModel  string `env:"CHAT_MODEL" envDefault:"doubao-seed-1-6-251015"`
	ImageModel string `env:"IMAGE_MODEL" envDefault:"doubao-seedream-4-5-251128"`
	ImageSize  string `env:"IMAGE_SIZE" envDefault:"2K"`
	BotID      string `env:"BOT_ID"`

	// VideoURL is the content generation task endpoint; tasks are read
	// back from VideoURL/{id}.
	VideoURL   string `env:"API_URL"`
	VideoModel string `env:"VIDEO_MODEL"`
}

// Video bounds how long the server waits on a video task when asked to.
type Video struct {
	PollInterval    time.Duration `env:"POLL_INTERVAL" envDefault:"2s"`
	MaxPollInterval time.Duration `env:"MAX_POLL_INTERVAL" envDefault:"15s"`
	MaxWait         time.Duration `env:"MAX_WAIT" envDefault:"10m"`
	MaxAttempts     uint64        `env:"MAX_ATTEMPTS" envDefault:"120"`
}

type Coach struct {
	TrainerPrompt string `env:"TRAINER_PROMPT" envDefault:"public/prompt/Coach Trainer.md"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if _, err := log.ParseLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	return &cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// Level is the parsed log level; Load has already validated it.
func (c *Config) Level() log.Level {
	level, _ := log.ParseLevel(c.LogLevel)
	return level
}

// VideoConfigured reports whether video tasks can be submitted.
func (c *Config) VideoConfigured() bool {
	return c.Ark.APIKey != "" && c.Ark.VideoURL != "" && c.Ark.VideoModel != ""
}
