// Package preview serves the chat widget as a local web page.
package preview

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/duochat/duochat/pkg/attachment"
	"github.com/duochat/duochat/pkg/chat"
	"github.com/duochat/duochat/pkg/config"
	"github.com/duochat/duochat/pkg/latex"
	"github.com/duochat/duochat/pkg/logger"
	"github.com/duochat/duochat/pkg/widget"
)

const sessionCookie = "duochat_preview"

// Controller is the widget surface the preview drives.
type Controller interface {
	Send(ctx context.Context, d widget.Draft) error
	SwitchChannel(ch chat.Channel) error
	Active() chat.Channel
}

type Options struct {
	PollInterval   time.Duration
	MaxUploadBytes int64
}

type Server struct {
	config   config.PreviewConfig
	opts     Options
	widget   Controller
	view     *widget.MarkupView
	server   *http.Server
	sessions map[string]time.Time // token -> expiry
	logins   *rate.Limiter
	mu       sync.RWMutex
}

func NewServer(cfg config.PreviewConfig, opts Options, w Controller, view *widget.MarkupView) *Server {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	return &Server{
		config:   cfg,
		opts:     opts,
		widget:   w,
		view:     view,
		sessions: make(map[string]time.Time),
		logins:   rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// authEnabled returns true when a username and a password or hash are
// configured.
func (s *Server) authEnabled() bool {
	return s.config.Username != "" && (s.config.PasswordHash != "" || s.config.Password != "")
}

func (s *Server) checkCredentials(username, password string) bool {
	usernameMatch := subtle.ConstantTimeCompare([]byte(username), []byte(s.config.Username)) == 1
	var passwordMatch bool
	if s.config.PasswordHash != "" {
		passwordMatch = bcrypt.CompareHashAndPassword([]byte(s.config.PasswordHash), []byte(password)) == nil
	} else {
		passwordMatch = subtle.ConstantTimeCompare([]byte(password), []byte(s.config.Password)) == 1
	}
	return usernameMatch && passwordMatch
}

func (s *Server) createSession() string {
	b := make([]byte, 32)
	rand.Read(b)
	token := hex.EncodeToString(b)
	s.mu.Lock()
	s.sessions[token] = time.Now().Add(24 * time.Hour)
	s.mu.Unlock()
	return token
}

func (s *Server) validSession(r *http.Request) bool {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return false
	}
	s.mu.RLock()
	expiry, ok := s.sessions[cookie.Value]
	s.mu.RUnlock()
	return ok && time.Now().Before(expiry)
}

// requireAuth redirects to the login page when auth is on and the request
// has no valid session.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authEnabled() || s.validSession(r) {
			next(w, r)
			return
		}
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	}
}

// requireAuthAPI is like requireAuth but answers 401 JSON.
func (s *Server) requireAuthAPI(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authEnabled() || s.validSession(r) {
			next(w, r)
			return
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.requireAuth(s.handleUI))
	mux.HandleFunc("/messages", s.requireAuthAPI(s.handleMessages))
	mux.HandleFunc("/send", s.requireAuthAPI(s.handleSend))
	mux.HandleFunc("/switch", s.requireAuthAPI(s.handleSwitch))
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/logout", s.handleLogout)
	return mux
}

func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
}

// Start listens in the background until Stop.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("preview: listen: %w", err)
	}
	s.server = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	logger.InfoCF("preview", "Preview server started", map[string]interface{}{
		"addr": "http://" + ln.Addr().String(),
		"auth": s.authEnabled(),
	})

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorCF("preview", "Preview server error", map[string]interface{}{"error": err.Error()})
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.authEnabled() || s.validSession(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if r.Method == http.MethodGet {
		renderLogin(w, "")
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.logins.Allow() {
		logger.WarnCF("preview", "Login attempts throttled", map[string]interface{}{
			"remote": r.RemoteAddr,
		})
		http.Error(w, "too many login attempts", http.StatusTooManyRequests)
		return
	}

	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	isJSON := r.Header.Get("Content-Type") == "application/json"
	if isJSON {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request"})
			return
		}
	} else {
		r.ParseForm()
		body.Username = r.FormValue("username")
		body.Password = r.FormValue("password")
	}

	if !s.checkCredentials(body.Username, body.Password) {
		logger.WarnCF("preview", "Preview login failed", map[string]interface{}{
			"remote": r.RemoteAddr,
		})
		if isJSON {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			return
		}
		renderLogin(w, "Invalid username or password")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    s.createSession(),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   86400,
	})
	if isJSON {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		s.mu.Lock()
		delete(s.sessions, cookie.Value)
		s.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *Server) handleUI(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	snap := s.view.Snapshot()
	data := pageData{
		Channel:   string(s.widget.Active()),
		PollMS:    s.opts.PollInterval.Milliseconds(),
		Messages:  template.HTML(snap.HTML), // already escaped by render.Markup
		Shortcuts: latex.Shortcuts(),
		Auth:      s.authEnabled(),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := chatPage.Execute(w, data); err != nil {
		logger.ErrorCF("preview", "Page render failed", map[string]interface{}{"error": err.Error()})
	}
}

type noticeJSON struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

type messagesJSON struct {
	Channel string      `json:"channel"`
	HTML    string      `json:"html"`
	Count   int         `json:"count"`
	Typing  bool        `json:"typing"`
	Version uint64      `json:"version"`
	Notice  *noticeJSON `json:"notice,omitempty"`
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	snap := s.view.Snapshot()
	out := messagesJSON{
		Channel: string(snap.Channel),
		HTML:    snap.HTML,
		Count:   snap.Count,
		Typing:  snap.Typing,
		Version: snap.Version,
	}
	if n := s.view.TakeNotice(); n != nil {
		out.Notice = &noticeJSON{Level: n.Level.String(), Text: n.Text}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := s.opts.MaxUploadBytes
	if limit <= 0 {
		limit = 16 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	if err := r.ParseMultipartForm(limit); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request"})
		return
	}

	files, err := readFiles(r, limit)
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": err.Error()})
		return
	}

	draft := widget.Draft{
		Text:        r.FormValue("content"),
		Attachments: attachment.GroupFor(files...),
	}
	if err := s.widget.Send(r.Context(), draft); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, widget.ErrEmptyMessage) {
			status = http.StatusBadRequest
		} else if errors.Is(err, widget.ErrRejected) {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func readFiles(r *http.Request, limit int64) ([]attachment.File, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	var files []attachment.File
	for _, fh := range r.MultipartForm.File["file"] {
		if fh.Size > limit {
			return nil, fmt.Errorf("%s: %w", fh.Filename, attachment.ErrTooLarge)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		files = append(files, attachment.File{
			Name: fh.Filename,
			MIME: attachment.DetectMIME(fh.Filename, data),
			Data: data,
		})
	}
	return files, nil
}

func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ch, err := chat.ParseChannel(r.URL.Query().Get("channel"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.widget.SwitchChannel(ch); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"channel": string(ch)})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
