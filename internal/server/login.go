package server

import (
	"errors"
	"html/template"
	"net/http"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/shotlog/internal/models"
	"github.com/desertthunder/shotlog/internal/shared"
)

// LoginResult contains the outcome of a browser login.
type LoginResult struct {
	User *models.User
}

var loginPage = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>shotlog · Log in</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { background: white; padding: 2rem; min-width: 18rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #e8590c; margin: 0 0 1rem 0; }
        label, input { display: block; width: 100%; margin-bottom: .5rem; }
        .error { color: #c92a2a; }
    </style>
</head>
<body>
    <div class="container">
{{- if .Done }}
        <h1>✓ Logged in</h1>
        <p>Signed in as {{ .Username }}. You can close this window and return to the terminal.</p>
{{- else }}
        <h1>Log in</h1>
        {{ if .Error }}<p class="error">{{ .Error }}</p>{{ end }}
        <form method="post" action="/login">
            <input type="hidden" name="next" value="{{ .Next }}">
            <label>Username <input name="username" value="{{ .Username }}" autofocus></label>
            <label>Password <input name="password" type="password"></label>
            <button type="submit">Log in</button>
        </form>
{{- end }}
    </div>
</body>
</html>
`))

type loginView struct {
	Done     bool
	Username string
	Next     string
	Error    string
}

// LoginHandler serves the login form and posts credentials to the session manager.
//
// In single-use mode (the CLI browser login) the first successful login is delivered on
// [LoginHandler.Result] and later requests are refused. Otherwise a successful login
// redirects to the requested page, or to the default target.
type LoginHandler struct {
	mgr        SessionManager
	target     string
	singleUse  bool
	resultChan chan LoginResult
	once       sync.Once
	mu         sync.Mutex
	done       bool
	logger     *log.Logger
}

// NewLoginHandler creates a reusable login handler that redirects to target on success.
func NewLoginHandler(mgr SessionManager, target string, logger *log.Logger) *LoginHandler {
	return &LoginHandler{
		mgr:        mgr,
		target:     target,
		resultChan: make(chan LoginResult, 1),
		logger:     logger,
	}
}

// NewSingleUseLoginHandler creates a handler that accepts exactly one successful login.
func NewSingleUseLoginHandler(mgr SessionManager, logger *log.Logger) *LoginHandler {
	h := NewLoginHandler(mgr, "", logger)
	h.singleUse = true
	return h
}

// Routes returns the HTTP routes this handler serves.
func (h *LoginHandler) Routes() []string {
	return []string{LoginPath}
}

// ServeHTTP renders the form on GET and attempts a login on POST.
func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.singleUse {
		h.mu.Lock()
		done := h.done
		h.mu.Unlock()
		if done {
			http.Error(w, "Login already completed", http.StatusBadRequest)
			return
		}
	}

	switch r.Method {
	case http.MethodGet:
		h.render(w, http.StatusOK, loginView{Next: safeNext(r.URL.Query().Get("next"))})
	case http.MethodPost:
		h.login(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *LoginHandler) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	view := loginView{
		Username: strings.TrimSpace(r.PostFormValue("username")),
		Next:     safeNext(r.PostFormValue("next")),
	}
	password := r.PostFormValue("password")
	if view.Username == "" || password == "" {
		view.Error = "Username and password are required."
		h.render(w, http.StatusBadRequest, view)
		return
	}

	if err := h.mgr.Login(r.Context(), view.Username, password); err != nil {
		h.logger.Warn("login failed", "username", view.Username, "err", err)
		status := http.StatusUnauthorized
		view.Error = "Invalid username or password."
		if !errors.Is(err, shared.ErrAuthFailed) {
			status = http.StatusBadGateway
			view.Error = "Could not reach the server. Try again."
		}
		h.render(w, status, view)
		return
	}

	snap := h.mgr.Snapshot()
	h.Send(LoginResult{User: snap.User})

	if h.singleUse {
		h.mu.Lock()
		h.done = true
		h.mu.Unlock()
		view.Done = true
		h.render(w, http.StatusOK, view)
		return
	}

	target := view.Next
	if target == "" {
		target = h.target
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *LoginHandler) render(w http.ResponseWriter, status int, view loginView) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := loginPage.Execute(w, view); err != nil {
		h.logger.Error("render login page", "err", err)
	}
}

// Send delivers the first login result through the channel.
func (h *LoginHandler) Send(result LoginResult) {
	h.once.Do(func() {
		h.resultChan <- result
		close(h.resultChan)
	})
}

// Result returns the result channel for receiving login completion.
//
// Channel will receive exactly one result and then be closed.
func (h *LoginHandler) Result() <-chan LoginResult {
	return h.resultChan
}

// safeNext keeps only local absolute paths.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return ""
	}
	return next
}
