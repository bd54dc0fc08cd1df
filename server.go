package main

import (
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/kennelworks/hushd/internal/config"
	"github.com/kennelworks/hushd/internal/controller"
	"github.com/kennelworks/hushd/internal/events"
	"github.com/kennelworks/hushd/internal/history"
	"github.com/kennelworks/hushd/internal/media"
	"github.com/kennelworks/hushd/internal/notify"
	"github.com/kennelworks/hushd/internal/sensor"
	"github.com/kennelworks/hushd/internal/server"
	"github.com/kennelworks/hushd/internal/types"
	"github.com/kennelworks/hushd/internal/util"
)

var loginTmpl = template.Must(template.New("login").Parse(loginHTML))
var indexTmpl = template.Must(template.New("index").Parse(indexHTML))
var faviconTmpl = template.Must(template.New("favicon").Parse(faviconSVG))

type loginData struct {
	Error      bool
	CSRFToken  string
	Version    string
	Year       int
	DeviceName string
	PrimaryCSS template.CSS
}

type indexData struct {
	Version    string
	Year       int
	DeviceName string
	PrimaryCSS template.CSS
}

// Server is an HTTP server that provides the web interface for the noise controller.
type Server struct {
	config     *config.Config
	controller *controller.Controller
	notifier   *notify.Notifier
	history    *history.Store
	media      *media.DirStore
	events     *events.Logger
	sessions   *server.SessionManager
	commands   *server.CommandHandler
	version    *VersionChecker
}

// NewServer returns a new Server wired to the controller and its stores.
func NewServer(cfg *config.Config, ctrl *controller.Controller, notifier *notify.Notifier, hist *history.Store, store *media.DirStore, eventLog *events.Logger) *Server {
	sessions := server.NewSessionManager()
	commands := server.NewCommandHandler(cfg, ctrl, notifier)

	return &Server{
		config:     cfg,
		controller: ctrl,
		notifier:   notifier,
		history:    hist,
		media:      store,
		events:     eventLog,
		sessions:   sessions,
		commands:   commands,
		version:    NewVersionChecker(),
	}
}

// handleWebSocket handles bidirectional WebSocket communication for real-time updates.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := server.UpgradeConnection(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	// Create buffered send channel for thread-safe writes.
	// Only the writer goroutine writes to the connection, preventing race conditions.
	send := make(chan any, 16)
	done := make(chan struct{})
	statusUpdate := make(chan struct{}, 1)

	// Writer goroutine - sole writer to the connection
	go s.runWebSocketWriter(conn, send)

	// Reader goroutine - handles incoming commands
	go s.runWebSocketReader(conn, send, done, statusUpdate)

	s.runWebSocketEventLoop(send, done, statusUpdate)
}

// runWebSocketWriter writes messages from the send channel to the connection.
func (s *Server) runWebSocketWriter(conn server.WebSocketConn, send <-chan any) {
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
	}()
	for msg := range send {
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// runWebSocketReader reads commands from the connection and dispatches them.
func (s *Server) runWebSocketReader(conn server.WebSocketConn, send chan<- any, done, statusUpdate chan<- struct{}) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in WebSocket reader", "panic", r)
		}
		close(done)
	}()

	for {
		var cmd server.WSCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		s.commands.Handle(cmd, send, func() {
			select {
			case statusUpdate <- struct{}{}:
			default:
			}
		})
	}
}

// runWebSocketEventLoop handles periodic status and level updates.
func (s *Server) runWebSocketEventLoop(send chan any, done, statusUpdate <-chan struct{}) {
	levelsTicker := time.NewTicker(100 * time.Millisecond)  // 10 fps for the level meter
	statusTicker := time.NewTicker(3000 * time.Millisecond) // Status updates every 3s
	defer levelsTicker.Stop()
	defer statusTicker.Stop()

	// trySend attempts to send a message, returning false if done is closed
	trySend := func(msg any) bool {
		select {
		case send <- msg:
			return true
		case <-done:
			return false
		}
	}

	// Send initial status
	if !trySend(s.buildWSStatus()) {
		close(send)
		return
	}

	for {
		select {
		case <-done:
			close(send)
			return
		case <-statusUpdate:
			if !trySend(s.buildWSStatus()) {
				close(send)
				return
			}
		case <-levelsTicker.C:
			if !trySend(types.WSLevelsResponse{Type: "levels", Levels: s.controller.Levels()}) {
				close(send)
				return
			}
		case <-statusTicker.C:
			if !trySend(s.buildWSStatus()) {
				close(send)
				return
			}
		}
	}
}

// buildWSStatus returns the current WebSocket status response.
func (s *Server) buildWSStatus() types.WSStatusResponse {
	cfg := s.config.Snapshot()

	devices, err := sensor.ListInputDevices()
	if err != nil {
		slog.Debug("failed to list input devices", "error", err)
	}

	return types.WSStatusResponse{
		Type:          "status",
		Controller:    s.controller.Status(),
		DeviceName:    cfg.DeviceName,
		SensorBackend: cfg.SensorBackend,
		OutputBackend: cfg.OutputBackend,
		Asset:         cfg.Asset,
		TriggerMs:     cfg.TriggerMs,
		MaxPlayMs:     cfg.MaxPlayMs,
		Volume:        cfg.Volume,
		WebhookURL:    cfg.WebhookURL,
		LogPath:       cfg.LogPath,
		ZabbixServer:  cfg.ZabbixServer,
		ZabbixPort:    cfg.ZabbixPort,
		ZabbixHost:    cfg.ZabbixHost,
		ZabbixKey:     cfg.ZabbixKey,
		GraphTenantID: cfg.GraphTenantID,
		GraphClientID: cfg.GraphClientID,
		GraphFrom:     cfg.GraphFromAddress,
		GraphTo:       cfg.GraphRecipients,
		GraphExpiry:   s.notifier.GraphSecretExpiry(),
		NATSURL:       cfg.NATSURL,
		NATSSubject:   cfg.NATSSubject,
		Traces: types.TraceConfig{
			Enabled:       cfg.TracesEnabled,
			RetentionDays: cfg.TraceRetentionDays,
		},
		Devices: devices,
		Version: s.version.Info(),
	}
}

// SetupRoutes returns an [http.Handler] configured with all application routes.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()
	auth := s.sessions.AuthMiddleware()

	// Public routes (no auth required)
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/logout", s.handleLogout)

	// Public static assets. The login page needs the stylesheet, and browsers
	// re-fetch the service worker outside any session.
	mux.HandleFunc("/style.css", s.handlePublicStatic)
	mux.HandleFunc("/sw.js", s.handlePublicStatic)
	mux.HandleFunc("/favicon.svg", s.handleFavicon)

	// REST API routes
	mux.HandleFunc("/api/config", auth(s.handleAPIConfig))
	mux.HandleFunc("/api/devices", auth(s.handleAPIDevices))
	mux.HandleFunc("/api/episodes", auth(s.handleAPIEpisodes))
	mux.HandleFunc("/api/events", auth(s.handleAPIEvents))
	mux.HandleFunc("/api/assets", auth(s.handleAPIAssets))
	mux.HandleFunc("/api/log", auth(s.handleAPIViewLog))
	mux.HandleFunc("/api/settings", auth(s.handleAPISettings))
	mux.HandleFunc("/api/calibrate", auth(s.handleAPICalibrate))
	mux.HandleFunc("/api/playback/test", auth(s.handleAPIPlaybackTest))
	mux.HandleFunc("/api/playback/stop", auth(s.handleAPIPlaybackStop))
	mux.HandleFunc("/api/test/webhook", auth(s.handleAPITestWebhook))
	mux.HandleFunc("/api/test/log", auth(s.handleAPITestLog))
	mux.HandleFunc("/api/test/email", auth(s.handleAPITestEmail))
	mux.HandleFunc("/api/test/zabbix", auth(s.handleAPITestZabbix))
	mux.HandleFunc("/api/test/nats", auth(s.handleAPITestNATS))
	mux.HandleFunc("/api/test/push", auth(s.handleAPITestPush))
	mux.HandleFunc("/api/test/s3", auth(s.handleAPITestS3))
	mux.HandleFunc("/api/push/key", auth(s.handleAPIPushKey))
	mux.HandleFunc("/api/push/subscribe", auth(s.handleAPIPushSubscribe))
	mux.HandleFunc("/api/push/unsubscribe", auth(s.handleAPIPushUnsubscribe))

	// Protected routes
	mux.HandleFunc("/ws", auth(s.handleWebSocket))
	mux.HandleFunc("/", auth(s.handleStatic))

	return securityHeaders(mux)
}

// securityHeaders returns middleware that wraps handlers with security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// handlePublicStatic handles requests for static files without authentication.
func (s *Server) handlePublicStatic(w http.ResponseWriter, r *http.Request) {
	if !serveStaticFile(w, r.URL.Path) {
		http.NotFound(w, r)
	}
}

// handleFavicon serves the favicon with the configured device color.
func (s *Server) handleFavicon(w http.ResponseWriter, r *http.Request) {
	cfg := s.config.Snapshot()
	w.Header().Set("Content-Type", "image/svg+xml")
	if err := faviconTmpl.Execute(w, struct{ Color string }{Color: cfg.DeviceColorLight}); err != nil {
		slog.Error("failed to render favicon", "error", err)
	}
}

// serveStaticFile serves a static file by path and reports whether it was found.
func serveStaticFile(w http.ResponseWriter, path string) bool {
	file, ok := staticFiles[path]
	if !ok {
		return false
	}
	w.Header().Set("Content-Type", file.contentType)
	if _, err := w.Write([]byte(file.content)); err != nil {
		slog.Error("failed to write static file", "file", file.name, "error", err)
	}
	return true
}

// handleLogin handles login page display and form submission.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.sessions.HasValidSession(r) {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	cfg := s.config.Snapshot()
	data := loginData{
		Version:    Version,
		Year:       time.Now().Year(),
		CSRFToken:  s.sessions.CreateCSRFToken(),
		DeviceName: cfg.DeviceName,
		PrimaryCSS: template.CSS(util.GenerateBrandCSS(cfg.DeviceColorLight, cfg.DeviceColorDark)),
	}

	if r.Method == http.MethodPost {
		csrfToken := r.FormValue("csrf_token")
		if !s.sessions.ValidateCSRFToken(csrfToken) {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}

		username := r.FormValue("username")
		password := r.FormValue("password")

		if s.sessions.Login(w, r, username, password, cfg.WebUser, cfg.WebPassword) {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}

		data.Error = true
		data.CSRFToken = s.sessions.CreateCSRFToken() // New token for retry
	}

	w.Header().Set("Content-Type", "text/html")
	if err := loginTmpl.Execute(w, data); err != nil {
		slog.Error("failed to render login page", "error", err)
	}
}

// handleLogout handles user logout requests.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Logout(w, r)
	http.Redirect(w, r, "/login", http.StatusFound)
}

// staticFile is an embedded static file with content type and data.
type staticFile struct {
	contentType string
	content     string
	name        string
}

// staticFiles is a map from URL paths to static file definitions.
var staticFiles = map[string]staticFile{
	"/style.css": {
		contentType: "text/css",
		content:     styleCSS,
		name:        "style.css",
	},
	"/app.js": {
		contentType: "application/javascript",
		content:     appJS,
		name:        "app.js",
	},
	"/sw.js": {
		contentType: "application/javascript",
		content:     swJS,
		name:        "sw.js",
	},
	// favicon.svg is served dynamically via handleFavicon
}

// handleStatic handles requests for embedded static web interface files.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if path == "/" {
		path = "/index.html"
	}

	// Serve index.html with dynamic placeholders.
	if path == "/index.html" {
		cfg := s.config.Snapshot()
		w.Header().Set("Content-Type", "text/html")
		if err := indexTmpl.Execute(w, indexData{
			Version:    Version,
			Year:       time.Now().Year(),
			DeviceName: cfg.DeviceName,
			PrimaryCSS: template.CSS(util.GenerateBrandCSS(cfg.DeviceColorLight, cfg.DeviceColorDark)),
		}); err != nil {
			slog.Error("failed to write index.html", "error", err)
		}
		return
	}

	if serveStaticFile(w, path) {
		return
	}

	http.NotFound(w, r)
}

// Start begins the HTTP server.
// Returns an *http.Server that can be used for graceful shutdown.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.config.Snapshot().WebPort)
	slog.Info("starting web server", "addr", addr)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.SetupRoutes(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	return srv
}
