package handlers

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"html/template"
	"log"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"expense-ledger/internal/auth"
	"expense-ledger/internal/models"
	"expense-ledger/internal/storage"
)

// Context key type to avoid collisions.
type contextKey string

const (
	// UserContextKey is the context key for the authenticated user.
	UserContextKey contextKey = "user"
	// SessionCookieName is the name of the session cookie.
	SessionCookieName = "session"
	// flashCookieName carries a one-shot notice across a redirect.
	flashCookieName = "notice"
	// SessionDuration is how long sessions last (30 days).
	SessionDuration = 30 * 24 * time.Hour
	// DefaultSecret is the cookie-signing key used when SECRET_KEY is
	// unset. It is public knowledge; run production with a real secret.
	DefaultSecret = "dont_break_me"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	db           *storage.DB
	templateDir  string
	secret       string
	secureCookie bool
}

// NewHandlers creates a new Handlers instance. secret signs session
// cookie values so they cannot be minted or altered client-side.
func NewHandlers(db *storage.DB, templateDir, secret string, secureCookie bool) *Handlers {
	return &Handlers{db: db, templateDir: templateDir, secret: secret, secureCookie: secureCookie}
}

// CurrentUser retrieves the authenticated user from the request
// context, or nil for an anonymous request.
func CurrentUser(r *http.Request) *models.User {
	if user, ok := r.Context().Value(UserContextKey).(*models.User); ok {
		return user
	}
	return nil
}

// WithIdentity resolves the session cookie to a user once per request
// and threads it through the request context. Anything that fails —
// missing cookie, bad signature, expired session, deleted account —
// resolves to anonymous rather than an error. It also renews sessions
// past the halfway point of their lifetime, so active users stay
// logged in while idle sessions expire.
func (h *Handlers) WithIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := h.sessionToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		info, err := h.db.ValidateSessionWithInfo(token)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				log.Printf("session lookup: %v", err)
			}
			h.clearSessionCookie(w)
			next.ServeHTTP(w, r)
			return
		}

		if time.Until(info.ExpiresAt) < SessionDuration/2 {
			newExpiresAt := time.Now().Add(SessionDuration)
			if err := h.db.RenewSession(token, newExpiresAt); err == nil {
				h.setSessionCookie(w, token)
			}
			// If renewal fails, just continue with the current session
		}

		ctx := context.WithValue(r.Context(), UserContextKey, info.User)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth guards a protected route: anonymous requests are sent to
// the login page, remembering the originally requested path so login
// can forward there afterwards.
func (h *Handlers) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CurrentUser(r) == nil {
			h.setFlash(w, "Debes iniciar sesión.")
			http.Redirect(w, r, "/login?next="+url.QueryEscape(r.URL.Path), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sessionToken extracts and authenticates the session token from the
// request cookie.
func (h *Handlers) sessionToken(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return auth.VerifySignedValue(h.secret, cookie.Value)
}

func (h *Handlers) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    auth.SignValue(h.secret, token),
		Path:     "/",
		MaxAge:   int(SessionDuration.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// setFlash stores a one-shot notice to show after the next redirect.
// The message is base64-encoded so accented text survives the cookie.
func (h *Handlers) setFlash(w http.ResponseWriter, message string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    base64.RawURLEncoding.EncodeToString([]byte(message)),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlash returns the pending notice, if any, and clears it.
func (h *Handlers) popFlash(w http.ResponseWriter, r *http.Request) string {
	cookie, err := r.Cookie(flashCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	msg, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return ""
	}
	return string(msg)
}

// SignupViewModel holds data for the signup page.
type SignupViewModel struct {
	User    *models.User
	Error   string
	Success bool
}

// SignupForm renders the registration page.
func (h *Handlers) SignupForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, "signup.html", SignupViewModel{User: CurrentUser(r)})
}

// Signup handles the registration form submission.
func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, "signup.html", SignupViewModel{Error: "Nickname y contraseña son obligatorios."})
		return
	}

	nickname := strings.TrimSpace(r.FormValue("nickname"))
	password := strings.TrimSpace(r.FormValue("password"))
	var email *string
	if e := strings.TrimSpace(r.FormValue("email")); e != "" {
		email = &e
	}

	if nickname == "" || password == "" {
		h.render(w, "signup.html", SignupViewModel{Error: "Nickname y contraseña son obligatorios."})
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Printf("hash password: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if _, err := h.db.CreateUser(nickname, email, hash); err != nil {
		// Only a uniqueness collision gets the generic notice; it never
		// says which field collided. Anything else is a storage fault.
		if errors.Is(err, storage.ErrDuplicate) {
			h.render(w, "signup.html", SignupViewModel{Error: "No se pudo registrar. ¿Nickname o email ya usados?"})
			return
		}
		log.Printf("create user: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.render(w, "signup.html", SignupViewModel{Success: true})
}

// LoginViewModel holds data for the login page.
type LoginViewModel struct {
	User   *models.User
	Error  string
	Notice string
	Next   string
}

// LoginForm renders the login page.
func (h *Handlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	if CurrentUser(r) != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	h.render(w, "login.html", LoginViewModel{
		Notice: h.popFlash(w, r),
		Next:   sanitizeNext(r.URL.Query().Get("next")),
	})
}

// Login handles the login form submission. Failure messages are
// deliberately generic so they never reveal whether the nickname or
// the password was wrong.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, "login.html", LoginViewModel{Error: "Solicitud no válida."})
		return
	}

	nickname := strings.TrimSpace(r.FormValue("nickname"))
	password := strings.TrimSpace(r.FormValue("password"))
	next := sanitizeNext(r.FormValue("next"))

	user, err := h.db.GetUserByNickname(nickname)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Printf("lookup user: %v", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		h.render(w, "login.html", LoginViewModel{Error: "Usuario sin registrar.", Next: next})
		return
	}

	if !auth.CheckPassword(password, user.PasswordHash) {
		h.render(w, "login.html", LoginViewModel{Error: "El usuario y la contraseña no coinciden. Intentelo de nuevo", Next: next})
		return
	}

	token, err := auth.GenerateSessionToken()
	if err != nil {
		log.Printf("generate session token: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	// Any session that existed before authentication is discarded and a
	// fresh token issued, so a fixated pre-login session is worthless.
	oldToken, _ := h.sessionToken(r)
	if err := h.db.RotateSession(oldToken, token, user.ID, time.Now().Add(SessionDuration)); err != nil {
		log.Printf("create session: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.setSessionCookie(w, token)
	http.Redirect(w, r, next, http.StatusFound)
}

// Logout clears the session unconditionally.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if token, ok := h.sessionToken(r); ok {
		if err := h.db.DeleteSession(token); err != nil {
			log.Printf("delete session: %v", err)
		}
	}
	h.clearSessionCookie(w)
	h.setFlash(w, "Sesión cerrada.")
	http.Redirect(w, r, "/login", http.StatusFound)
}

// sanitizeNext only accepts local paths as a post-login target, so the
// login form cannot be used as an open redirect.
func sanitizeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return "/"
	}
	return next
}

func (h *Handlers) render(w http.ResponseWriter, viewName string, data any) {
	tmpl, err := template.ParseFiles(filepath.Join(h.templateDir, "base.html"), filepath.Join(h.templateDir, viewName))
	if err != nil {
		log.Printf("Template error: %v", err)
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		log.Printf("Template execution error: %v", err)
	}
}
