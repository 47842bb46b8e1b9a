package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-resty/resty/v2"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"atelier/pkg/catalog"
	"atelier/pkg/config"
	"atelier/pkg/flight"
	"atelier/pkg/generation"
	"atelier/pkg/inference"
	"atelier/pkg/video"
)

// Responder is the Ark surface the coach and attachment routes use.
type Responder interface {
	Respond(ctx context.Context, req *inference.ResponseRequest) (string, error)
	UploadFile(ctx context.Context, r io.Reader, filename, mime, apiKey string) (*inference.FileObject, error)
	BotChat(ctx context.Context, botID, prompt, apiKey string) (string, error)
}

type ImageGenerator interface {
	Generate(ctx context.Context, req *generation.Request) (*generation.Result, error)
}

type VideoTasks interface {
	Configured() bool
	Submit(ctx context.Context, prompt, imageURL string) (string, error)
	Status(ctx context.Context, id string) (*video.Task, error)
	Wait(ctx context.Context, id string) (*video.Task, error)
}

// Options carries the vendor clients and stores the server is built from.
type Options struct {
	Config *config.Config

	// Chat serves /api/chat; Coach serves /api/coach-communication.
	Chat  inference.Inferencer
	Coach inference.Inferencer

	Ark     Responder
	Images  ImageGenerator
	Video   VideoTasks
	Prompts *catalog.Store

	// TrainerPrompt is the system prompt for coach communication practice.
	TrainerPrompt string
}

type Server struct {
	Echo *echo.Echo
	Ctx  context.Context

	cfg           *config.Config
	chat          inference.Inferencer
	coach         inference.Inferencer
	ark           Responder
	images        ImageGenerator
	video         VideoTasks
	prompts       *catalog.Store
	trainerPrompt string

	summaries *flight.Cache[string, string]
	download  *resty.Client
}

func NewServer(ctx context.Context, opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.BodyLimit(opts.Config.BodyLimit))

	s := &Server{
		Echo:          e,
		Ctx:           ctx,
		cfg:           opts.Config,
		chat:          opts.Chat,
		coach:         opts.Coach,
		ark:           opts.Ark,
		images:        opts.Images,
		video:         opts.Video,
		prompts:       opts.Prompts,
		trainerPrompt: opts.TrainerPrompt,
	}
	s.summaries = flight.NewCache(opts.Config.SummaryTTL, s.summarizeURL)
	s.download = newDownloadClient(opts.Config)

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.Echo.GET("/", s.handleGetRoot)
	s.Echo.GET("/html/:file", s.handleGetHTML)

	api := s.Echo.Group("/api")

	api.POST("/chat", s.handlePostChat)                              // general chat relay, SSE by default
	api.POST("/coach-communication", s.handlePostCoachCommunication) // trainer chat, SSE by default
	api.POST("/coach-routes", s.handlePostCoachRoutes)               // material -> route plan JSON
	api.GET("/coach-routes/schema", s.handleGetCoachRoutesSchema)

	api.POST("/generate", s.handlePostGenerate)
	api.POST("/generate-video", s.handlePostGenerateVideo)
	api.GET("/video-status", s.handleGetVideoStatus)

	api.POST("/upload", s.handlePostUpload)                    // image -> data URL
	api.POST("/parse-attachment", s.handlePostParseAttachment) // txt/md -> text, pdf -> Ark file id
	api.POST("/download", s.handlePostDownload)                // same-origin download proxy
	api.POST("/fetch-url", s.handlePostFetchURL)               // article URL -> summary

	api.GET("/html", s.handleListHTML)
	api.GET("/html/:file", s.handleGetHTML)

	api.GET("/prompts", s.handleListPrompts)
	api.GET("/prompts/categories", s.handleGetPromptCategories)
	api.GET("/prompts/:id", s.handleGetPrompt)
	api.POST("/prompts", s.handlePostPrompt)
	api.DELETE("/prompts/:id", s.handleDeletePrompt)
}

func (s *Server) Start(addr string) error {
	log.Info("Server listening", "addr", addr)
	return s.Echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info("Shutting down server...")

	var saveErr error
	if s.prompts != nil {
		saveErr = s.prompts.Save()
	}
	shutDownErr := s.Echo.Shutdown(ctx)
	if shutDownErr != nil && !errors.Is(shutDownErr, http.ErrServerClosed) {
		return shutDownErr
	}

	return saveErr
}

func cancelled(c echo.Context) bool {
	select {
	case <-c.Request().Context().Done():
		return true
	default:
		return false
	}
}

// bindLoose binds the request body into v, leaving v at its zero value when
// the body is missing or not valid JSON.
func bindLoose[T any](c echo.Context, v *T) {
	if err := c.Bind(v); err != nil {
		log.Debug("ignoring unreadable body", "path", c.Path(), "error", err)
		var zero T
		*v = zero
	}
}
