package handlers

import (
	"log"
	"net/http"

	"expense-ledger/internal/models"
)

// SummaryCategoryItem represents a category with its spending share.
type SummaryCategoryItem struct {
	Category   string
	Total      float64
	Count      int
	Percentage float64
}

// SummaryViewModel is the data passed to the summary template.
type SummaryViewModel struct {
	User       *models.User
	Total      float64
	Categories []SummaryCategoryItem
}

// Summary renders per-category totals for the current user.
func (h *Handlers) Summary(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r)

	totals, err := h.db.CategoryTotals(user.ID)
	if err != nil {
		log.Printf("CategoryTotals error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var total float64
	for _, ct := range totals {
		total += ct.Total
	}

	items := make([]SummaryCategoryItem, 0, len(totals))
	for _, ct := range totals {
		percentage := 0.0
		if total > 0 {
			percentage = (ct.Total / total) * 100
		}
		items = append(items, SummaryCategoryItem{
			Category:   ct.Category,
			Total:      ct.Total,
			Count:      ct.Count,
			Percentage: percentage,
		})
	}

	h.render(w, "stats.html", SummaryViewModel{
		User:       user,
		Total:      total,
		Categories: items,
	})
}
