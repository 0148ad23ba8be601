package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tmc/langchaingo/tools"

	"pcbuild-agent/internal/llm"
	"pcbuild-agent/pkg/agent"
	"pcbuild-agent/pkg/logger"
	"pcbuild-agent/pkg/relay"
	"pcbuild-agent/pkg/search"
)

// ServerCmd represents the server command
var ServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the streaming API server",
	Long: `Start the streaming API server that accepts PC-build prompts and streams
agent reasoning steps back over Server-Sent Events (SSE).

Examples:
  pcbuild-agent server                      # Start with default settings
  pcbuild-agent server --port 8000          # Start on custom port
  pcbuild-agent server --provider openai    # Use OpenAI provider
  pcbuild-agent server --cors-origins "*"   # Enable CORS for all origins`,
	Run: runServer,
}

func init() {
	ServerCmd.Flags().Int("port", 5000, "server port")
	ServerCmd.Flags().String("host", "0.0.0.0", "server host")
	ServerCmd.Flags().StringSlice("cors-origins", []string{"*"}, "allowed CORS origins")
	ServerCmd.Flags().Duration("search-delay", 4*time.Second, "fixed delay before each search call")
	ServerCmd.Flags().Duration("ping-interval", 60*time.Second, "SSE keepalive ping interval")
	ServerCmd.Flags().Int64("max-workers", 32, "maximum concurrent reasoning sessions")
	ServerCmd.Flags().String("search-db", "", "SQLite path for the search result debug log (disabled when empty)")

	viper.BindPFlag("server.port", ServerCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", ServerCmd.Flags().Lookup("host"))
	viper.BindPFlag("server.cors-origins", ServerCmd.Flags().Lookup("cors-origins"))
	viper.BindPFlag("server.search-delay", ServerCmd.Flags().Lookup("search-delay"))
	viper.BindPFlag("server.ping-interval", ServerCmd.Flags().Lookup("ping-interval"))
	viper.BindPFlag("server.max-workers", ServerCmd.Flags().Lookup("max-workers"))
	viper.BindPFlag("server.search-db", ServerCmd.Flags().Lookup("search-db"))
}

// Config holds the server configuration.
type Config struct {
	Port         int           `json:"port"`
	Host         string        `json:"host"`
	CORSOrigins  []string      `json:"cors_origins"`
	Provider     string        `json:"provider"`
	ModelID      string        `json:"model_id"`
	Temperature  float64       `json:"temperature"`
	SearchDelay  time.Duration `json:"search_delay"`
	PingInterval time.Duration `json:"ping_interval"`
	MaxWorkers   int64         `json:"max_workers"`
	SearchDBPath string        `json:"search_db_path"`
}

// API is the streaming HTTP front end. One POST /stream request owns one
// reasoning session whose events are relayed back as SSE frames.
type API struct {
	config Config
	relay  *relay.Relay
	logger logger.ExtendedLogger
}

// NewAPI creates the API around a reasoning runner.
func NewAPI(config Config, runner relay.Runner, log logger.ExtendedLogger) *API {
	return &API{
		config: config,
		relay: relay.New(runner, relay.Options{
			PingInterval: config.PingInterval,
			MaxWorkers:   config.MaxWorkers,
			Logger:       log,
		}),
		logger: log,
	}
}

// Routes builds the HTTP router.
func (api *API) Routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(api.corsMiddleware)
	router.HandleFunc("/", api.handleIndex).Methods("GET")
	router.HandleFunc("/stream", api.handleStream).Methods("POST", "OPTIONS")
	return router
}

// CORS middleware
func (api *API) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		for _, allowed := range api.config.CORSOrigins {
			if allowed == "*" || allowed == origin {
				w.Header().Set("Access-Control-Allow-Origin", allowed)
				break
			}
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Health/metadata endpoint
func (api *API) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	json.NewEncoder(w).Encode(map[string]interface{}{
		"service": "pcbuild-agent",
		"status":  "healthy",
		"time":    time.Now(),
		"endpoints": map[string]string{
			"POST /stream": "run a reasoning session, streamed as SSE",
			"GET /":        "this health/metadata response",
		},
		"config": map[string]interface{}{
			"provider":    api.config.Provider,
			"model":       api.config.ModelID,
			"temperature": api.config.Temperature,
			"max_workers": api.config.MaxWorkers,
		},
	})
}

type streamRequest struct {
	Prompt string `json:"prompt"`
}

// handleStream validates the request, admits a session and relays its events
// as SSE frames until the stream_end frame.
func (api *API) handleStream(w http.ResponseWriter, r *http.Request) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}

	var req streamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		writeError(w, http.StatusBadRequest, "Missing 'prompt' in request")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	session, err := api.relay.Open(r.Context(), prompt)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "server busy, try again later")
		return
	}
	api.logger.Infof("session %s: streaming started", session.ID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		ev, ok := session.Next()
		if !ok {
			break
		}
		if r.Context().Err() != nil {
			api.logger.Infof("session %s: client disconnected", session.ID)
			session.Abandon()
			return
		}

		data, err := json.Marshal(ev)
		if err != nil {
			api.logger.Errorf("session %s: event encode failed: %v", session.ID, err)
			continue
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
			api.logger.Infof("session %s: write failed, abandoning: %v", session.ID, err)
			session.Abandon()
			return
		}
		flusher.Flush()
	}

	if dropped := session.Dropped(); dropped > 0 {
		api.logger.Warnf("session %s: %d events dropped on queue overflow", session.ID, dropped)
	}
	api.logger.Infof("session %s: stream closed (%s)", session.ID, session.State())
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func runServer(cmd *cobra.Command, args []string) {
	config := Config{
		Port:         viper.GetInt("server.port"),
		Host:         viper.GetString("server.host"),
		CORSOrigins:  viper.GetStringSlice("server.cors-origins"),
		Provider:     viper.GetString("provider"),
		ModelID:      viper.GetString("model"),
		Temperature:  viper.GetFloat64("temperature"),
		SearchDelay:  viper.GetDuration("server.search-delay"),
		PingInterval: viper.GetDuration("server.ping-interval"),
		MaxWorkers:   viper.GetInt64("server.max-workers"),
		SearchDBPath: viper.GetString("server.search-db"),
	}

	serverLogger, err := logger.CreateLogger(
		viper.GetString("log-file"),
		viper.GetString("log-level"),
		viper.GetString("log-format"),
		true,
	)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer serverLogger.Close()

	toolOpts := []search.ToolOption{
		search.WithDelay(config.SearchDelay),
		search.WithLogger(serverLogger),
	}
	if config.SearchDBPath != "" {
		store, err := search.OpenStore(config.SearchDBPath, serverLogger)
		if err != nil {
			serverLogger.Fatalf("Failed to open search log store: %v", err)
		}
		defer store.Close()
		toolOpts = append(toolOpts, search.WithStore(store))
	}
	searchTool := search.NewTool(search.NewDuckDuckGo(), toolOpts...)

	ctx := context.Background()
	pcAgent, err := agent.New(ctx, agent.Config{
		Provider:      llm.Provider(config.Provider),
		ModelID:       config.ModelID,
		Temperature:   config.Temperature,
		MaxIterations: viper.GetInt("max-iterations"),
		Logger:        serverLogger,
	}, []tools.Tool{searchTool})
	if err != nil {
		serverLogger.Fatalf("Failed to create agent: %v", err)
	}

	api := NewAPI(config, pcAgent, serverLogger)

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.Routes(),
		// No write timeout: SSE responses stay open for the whole session.
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		serverLogger.Infof("Server started on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverLogger.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	serverLogger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		serverLogger.Errorf("Server forced to shutdown: %v", err)
	}
	serverLogger.Info("Server shutdown complete")
}
