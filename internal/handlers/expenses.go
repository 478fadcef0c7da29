package handlers

import (
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"expense-ledger/internal/models"
	"expense-ledger/internal/storage"
)

// FilterQuery echoes the raw filter parameters back into the form
// inputs so the user sees what they asked for.
type FilterQuery struct {
	Desde       string
	Hasta       string
	CantidadMin string
	CantidadMax string
}

// IndexViewModel is the data passed to the expense list template.
type IndexViewModel struct {
	User     *models.User
	Notice   string
	Expenses []models.Expense
	Total    float64
	Query    FilterQuery
}

// Index renders the current user's expenses, newest first, honoring the
// optional date and amount filters, with the total over the same set.
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r)
	q := r.URL.Query()

	fq := FilterQuery{
		Desde:       strings.TrimSpace(q.Get("desde")),
		Hasta:       strings.TrimSpace(q.Get("hasta")),
		CantidadMin: strings.TrimSpace(q.Get("cantidad_min")),
		CantidadMax: strings.TrimSpace(q.Get("cantidad_max")),
	}
	filter := storage.ExpenseFilter{
		DateFrom:  fq.Desde,
		DateTo:    fq.Hasta,
		AmountMin: parseAmount(fq.CantidadMin),
		AmountMax: parseAmount(fq.CantidadMax),
	}

	expenses, total, err := h.db.ListExpenses(user.ID, filter)
	if err != nil {
		log.Printf("ListExpenses error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.render(w, "index.html", IndexViewModel{
		User:     user,
		Notice:   h.popFlash(w, r),
		Expenses: expenses,
		Total:    total,
		Query:    fq,
	})
}

// parseAmount parses an amount bound, accepting both comma and dot as
// decimal separator. Empty or unparseable input means "no bound" — a
// malformed filter never turns into an error.
func parseAmount(s string) *float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// FormViewModel is the data passed to the creation form template.
type FormViewModel struct {
	User    *models.User
	Error   string
	Success bool
	Today   string
}

// NewExpenseForm renders the creation form. ok=1 marks the post-redirect
// success state, rendered distinctly from a blank form.
func (h *Handlers) NewExpenseForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, "form.html", FormViewModel{
		User:    CurrentUser(r),
		Success: r.URL.Query().Get("ok") == "1",
		Today:   time.Now().Format("2006-01-02"),
	})
}

// CreateExpense validates and stores a new expense, then redirects back
// to the form with a success flag (Post/Redirect/Get, so a browser
// refresh cannot resubmit).
func (h *Handlers) CreateExpense(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	amountRaw := strings.ReplaceAll(strings.TrimSpace(r.FormValue("cantidad")), ",", ".")
	category := strings.TrimSpace(r.FormValue("categoria"))
	description := strings.TrimSpace(r.FormValue("descripcion"))
	date := strings.TrimSpace(r.FormValue("fecha"))

	amount, err := strconv.ParseFloat(amountRaw, 64)
	if err != nil || amount <= 0 {
		h.render(w, "form.html", FormViewModel{
			User:  user,
			Error: "La cantidad no es válida. Debe ser un número mayor que 0.",
			Today: time.Now().Format("2006-01-02"),
		})
		return
	}

	if category == "" || date == "" {
		h.render(w, "form.html", FormViewModel{
			User:  user,
			Error: "Categoría y fecha son obligatorias.",
			Today: time.Now().Format("2006-01-02"),
		})
		return
	}

	if err := h.db.CreateExpense(amount, category, description, date, user.ID); err != nil {
		log.Printf("CreateExpense error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/nuevo?ok=1", http.StatusSeeOther)
}

// DeleteExpense removes one expense by id, constrained to the current
// user's rows. A miss — wrong id or someone else's row, the two are not
// distinguished — is a soft notice, never an error page.
func (h *Handlers) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r)

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.setFlash(w, "No puedes borrar ese gasto.")
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	deleted, err := h.db.DeleteExpense(id, user.ID)
	if err != nil {
		log.Printf("DeleteExpense error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if deleted {
		h.setFlash(w, "Gasto eliminado.")
	} else {
		h.setFlash(w, "No puedes borrar ese gasto.")
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
