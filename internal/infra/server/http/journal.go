package httpserver

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/coachpo/ctpgate/internal/domain/orderstore"
)

const (
	journalOrdersPath   = "/journal/orders"
	journalTradesPath   = "/journal/trades"
	journalAccountsPath = "/journal/accounts"
)

func (s *httpServer) listJournalOrders(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	limit, ok := limitParam(w, values)
	if !ok {
		return
	}
	var statuses []string
	for _, raw := range values["status"] {
		for _, status := range strings.Split(raw, ",") {
			if status = strings.TrimSpace(status); status != "" {
				statuses = append(statuses, status)
			}
		}
	}
	records, err := s.journal.ListOrders(r.Context(), orderstore.OrderQuery{
		Gateway:  strings.TrimSpace(values.Get("gateway")),
		Symbol:   strings.TrimSpace(values.Get("symbol")),
		Statuses: statuses,
		Limit:    limit,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": records})
}

func (s *httpServer) listJournalTrades(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	limit, ok := limitParam(w, values)
	if !ok {
		return
	}
	records, err := s.journal.ListTrades(r.Context(), orderstore.TradeQuery{
		Gateway: strings.TrimSpace(values.Get("gateway")),
		OrderID: strings.TrimSpace(values.Get("orderId")),
		Symbol:  strings.TrimSpace(values.Get("symbol")),
		Limit:   limit,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": records})
}

func (s *httpServer) listJournalAccounts(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	limit, ok := limitParam(w, values)
	if !ok {
		return
	}
	gateway := strings.TrimSpace(values.Get("gateway"))
	if gateway == "" {
		writeError(w, http.StatusBadRequest, "gateway required")
		return
	}
	records, err := s.journal.ListAccounts(r.Context(), orderstore.AccountQuery{
		Gateway:   gateway,
		AccountID: strings.TrimSpace(values.Get("accountId")),
		Limit:     limit,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": records})
}

func limitParam(w http.ResponseWriter, values url.Values) (int, bool) {
	limit, err := intParam(values.Get("limit"))
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return 0, false
	}
	return limit, true
}
