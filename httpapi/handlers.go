package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/mhartlev/lending-ledger-go/ledger"
)

type rentRequest struct {
	ItemID     int64 `json:"item_id"`
	BorrowerID int64 `json:"borrower_id"`
}

type rentResponse struct {
	LoanID int64 `json:"loan_id"`
}

type addItemRequest struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	ISBN        string `json:"isbn"`
	Genre       string `json:"genre"`
	TotalCopies int    `json:"total_copies"`
}

type addBorrowerRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type createdResponse struct {
	ID int64 `json:"id"`
}

type itemResponse struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	ISBN            string `json:"isbn"`
	Genre           string `json:"genre"`
	TotalCopies     int    `json:"total_copies"`
	AvailableCopies int    `json:"available_copies"`
}

type historyEntryResponse struct {
	LoanID       int64   `json:"loan_id"`
	ItemID       int64   `json:"item_id"`
	ItemTitle    string  `json:"item_title"`
	BorrowerID   int64   `json:"borrower_id"`
	BorrowerName string  `json:"borrower_name"`
	StartedAt    string  `json:"started_at"`
	ReturnedAt   *string `json:"returned_at"`
	Overdue      bool    `json:"overdue"`
}

type statisticsResponse struct {
	ItemID    int64  `json:"item_id"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	LoanCount int    `json:"loan_count"`
}

func (h *Handler) handleRent(w http.ResponseWriter, r *http.Request) {
	var request rentRequest
	if !h.decodeBody(w, r, &request) {
		return
	}

	loanID, err := h.rental.Borrow(r.Context(), request.ItemID, request.BorrowerID)
	if err != nil {
		h.auditError(r.Context(), "borrow rejected: "+err.Error(), r.URL.Path, &request.BorrowerID)
		h.writeError(w, err)

		return
	}

	h.auditInfo(r.Context(), "item borrowed", r.URL.Path, &request.BorrowerID)
	h.writeJSON(w, http.StatusCreated, rentResponse{LoanID: loanID})
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	var request rentRequest
	if !h.decodeBody(w, r, &request) {
		return
	}

	if err := h.rental.Return(r.Context(), request.ItemID, request.BorrowerID); err != nil {
		h.auditError(r.Context(), "return rejected: "+err.Error(), r.URL.Path, &request.BorrowerID)
		h.writeError(w, err)

		return
	}

	h.auditInfo(r.Context(), "item returned", r.URL.Path, &request.BorrowerID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var request addItemRequest
	if !h.decodeBody(w, r, &request) {
		return
	}

	itemID, err := h.catalog.AddItem(
		r.Context(), request.Title, request.Author, request.ISBN, request.Genre, request.TotalCopies)
	if err != nil {
		h.writeError(w, err)

		return
	}

	h.writeJSON(w, http.StatusCreated, createdResponse{ID: itemID})
}

func (h *Handler) handleAddBorrower(w http.ResponseWriter, r *http.Request) {
	var request addBorrowerRequest
	if !h.decodeBody(w, r, &request) {
		return
	}

	borrowerID, err := h.catalog.AddBorrower(r.Context(), request.Name, request.Email)
	if err != nil {
		h.writeError(w, err)

		return
	}

	h.writeJSON(w, http.StatusCreated, createdResponse{ID: borrowerID})
}

func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.pathID(w, r, "itemID")
	if !ok {
		return
	}

	item, err := h.catalog.GetItem(r.Context(), itemID)
	if err != nil {
		h.writeError(w, err)

		return
	}

	h.writeJSON(w, http.StatusOK, toItemResponse(item))
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.Search(r.Context(), r.URL.Query().Get("title"), r.URL.Query().Get("genre"))
	if err != nil {
		h.writeError(w, err)

		return
	}

	response := make([]itemResponse, 0, len(items))
	for _, item := range items {
		response = append(response, toItemResponse(item))
	}

	h.writeJSON(w, http.StatusOK, response)
}

func (h *Handler) handleHistoryByBorrower(w http.ResponseWriter, r *http.Request) {
	borrowerID, ok := h.pathID(w, r, "borrowerID")
	if !ok {
		return
	}

	history, err := h.catalog.HistoryByBorrower(r.Context(), borrowerID)
	if err != nil {
		h.writeError(w, err)

		return
	}

	h.writeJSON(w, http.StatusOK, toHistoryResponse(history))
}

func (h *Handler) handleHistoryByItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.pathID(w, r, "itemID")
	if !ok {
		return
	}

	history, err := h.catalog.HistoryByItem(r.Context(), itemID)
	if err != nil {
		h.writeError(w, err)

		return
	}

	h.writeJSON(w, http.StatusOK, toHistoryResponse(history))
}

func (h *Handler) handleMostPopular(w http.ResponseWriter, r *http.Request) {
	h.respondStatistics(w, r, h.catalog.MostPopularItem)
}

func (h *Handler) handleLeastPopular(w http.ResponseWriter, r *http.Request) {
	h.respondStatistics(w, r, h.catalog.LeastPopularItem)
}

func (h *Handler) handleMostOverdue(w http.ResponseWriter, r *http.Request) {
	h.respondStatistics(w, r, h.catalog.MostOverdueItem)
}

func (h *Handler) respondStatistics(
	w http.ResponseWriter,
	r *http.Request,
	query func(ctx context.Context) (ledger.ItemStatistics, error),
) {

	stats, err := query(r.Context())
	if err != nil {
		h.writeError(w, err)

		return
	}

	h.writeJSON(w, http.StatusOK, statisticsResponse{
		ItemID:    stats.ItemID,
		Title:     stats.Title,
		Author:    stats.Author,
		LoanCount: stats.LoanCount,
	})
}

// decodeBody parses the JSON request body; a malformed body answers 400.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})

		return false
	}

	return true
}

// pathID parses a numeric chi path parameter; a malformed id answers 400.
func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid " + param})

		return 0, false
	}

	return id, true
}

func toItemResponse(item ledger.Item) itemResponse {
	return itemResponse{
		ID:              item.ID,
		Title:           item.Title,
		Author:          item.Author,
		ISBN:            item.ISBN,
		Genre:           item.Genre,
		TotalCopies:     item.TotalCopies,
		AvailableCopies: item.AvailableCopies,
	}
}

func toHistoryResponse(history []ledger.HistoryEntry) []historyEntryResponse {
	response := make([]historyEntryResponse, 0, len(history))

	for _, entry := range history {
		item := historyEntryResponse{
			LoanID:       entry.LoanID,
			ItemID:       entry.ItemID,
			ItemTitle:    entry.ItemTitle,
			BorrowerID:   entry.BorrowerID,
			BorrowerName: entry.BorrowerName,
			StartedAt:    entry.StartedAt.UTC().Format(timeFormat),
			Overdue:      entry.Overdue,
		}

		if entry.ReturnedAt != nil {
			returnedAt := entry.ReturnedAt.UTC().Format(timeFormat)
			item.ReturnedAt = &returnedAt
		}

		response = append(response, item)
	}

	return response
}
