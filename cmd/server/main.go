package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"

	"expense-ledger/internal/auth"
	"expense-ledger/internal/handlers"
	"expense-ledger/internal/storage"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	port := envOr("PORT", "8080")
	dbPath := envOr("DB_PATH", "expenses.db")
	secureCookies := os.Getenv("SECURE_COOKIES") == "1"

	secret := os.Getenv("SECRET_KEY")
	if secret == "" {
		secret = handlers.DefaultSecret
		log.Printf("SECRET_KEY not set, using insecure default")
	}

	// A broken schema is fatal: better no service than a partial one.
	db, err := storage.NewDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := seedAdminUser(db); err != nil {
		return err
	}

	h := handlers.NewHandlers(db, "web/templates", secret, secureCookies)
	mux := setupRouter(h, "web/static")

	log.Printf("listening on :%s", port)
	return http.ListenAndServe(":"+port, mux)
}

func setupRouter(h *handlers.Handlers, staticDir string) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))

	mux.HandleFunc("GET /signup", h.SignupForm)
	mux.HandleFunc("POST /signup", h.Signup)
	mux.HandleFunc("GET /login", h.LoginForm)
	mux.HandleFunc("POST /login", h.Login)
	mux.HandleFunc("GET /logout", h.Logout)

	mux.Handle("GET /{$}", h.RequireAuth(http.HandlerFunc(h.Index)))
	mux.Handle("GET /nuevo", h.RequireAuth(http.HandlerFunc(h.NewExpenseForm)))
	mux.Handle("POST /nuevo", h.RequireAuth(http.HandlerFunc(h.CreateExpense)))
	mux.Handle("POST /borrar/{id}", h.RequireAuth(http.HandlerFunc(h.DeleteExpense)))
	mux.Handle("GET /resumen", h.RequireAuth(http.HandlerFunc(h.Summary)))

	return h.WithIdentity(mux)
}

// seedAdminUser creates an initial account from ADMIN_USER and
// ADMIN_PASSWORD, for first deployments and the e2e tests. Does nothing
// if either variable is unset or the user already exists.
func seedAdminUser(db *storage.DB) error {
	nickname := os.Getenv("ADMIN_USER")
	password := os.Getenv("ADMIN_PASSWORD")
	if nickname == "" || password == "" {
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	if _, err := db.CreateUser(nickname, nil, hash); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil
		}
		return fmt.Errorf("failed to seed admin user: %w", err)
	}
	log.Printf("seeded admin user %s", nickname)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
