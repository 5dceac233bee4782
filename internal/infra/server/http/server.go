// Package httpserver exposes the gateway request interface and the execution
// journal over JSON HTTP endpoints.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/coachpo/ctpgate/errs"
	"github.com/coachpo/ctpgate/internal/app/provider"
	"github.com/coachpo/ctpgate/internal/domain/orderstore"
	"github.com/coachpo/ctpgate/internal/domain/schema"
)

const (
	maxJSONBodyBytes int64 = 1 << 20 // 1 MiB

	gatewaysPath        = "/gateways"
	gatewayDetailPrefix = gatewaysPath + "/"
	bindingsPath        = "/bindings"
	healthPath          = "/healthz"
)

// GatewayManager is the subset of the provider manager served over HTTP.
type GatewayManager interface {
	Gateway(name string) (provider.Instance, error)
	Status(name string) (provider.Status, error)
	Gateways() []provider.Status
	Connect(name string) error
	Config(name string) (map[string]any, error)
	Bindings() []provider.BindingMetadata
}

// JournalReader serves persisted orders, fills and account snapshots.
type JournalReader interface {
	ListOrders(ctx context.Context, query orderstore.OrderQuery) ([]orderstore.OrderRecord, error)
	ListTrades(ctx context.Context, query orderstore.TradeQuery) ([]orderstore.TradeRecord, error)
	ListAccounts(ctx context.Context, query orderstore.AccountQuery) ([]orderstore.AccountRecord, error)
}

type handlerFunc func(http.ResponseWriter, *http.Request)

type httpServer struct {
	gateways GatewayManager
	journal  JournalReader
}

type queryTogglePayload struct {
	Enabled *bool `json:"enabled"`
}

// NewHandler creates the control API handler. The journal endpoints are only
// mounted when a reader is supplied.
func NewHandler(gateways GatewayManager, journal JournalReader) http.Handler {
	server := &httpServer{gateways: gateways, journal: journal}
	mux := http.NewServeMux()

	mux.Handle(healthPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.health,
	}))
	mux.Handle(gatewaysPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.listGateways,
	}))
	mux.Handle(gatewayDetailPrefix, http.HandlerFunc(server.handleGateway))
	mux.Handle(bindingsPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.listBindings,
	}))

	if journal != nil {
		mux.Handle(journalOrdersPath, server.methodHandlers(map[string]handlerFunc{
			http.MethodGet: server.listJournalOrders,
		}))
		mux.Handle(journalTradesPath, server.methodHandlers(map[string]handlerFunc{
			http.MethodGet: server.listJournalTrades,
		}))
		mux.Handle(journalAccountsPath, server.methodHandlers(map[string]handlerFunc{
			http.MethodGet: server.listJournalAccounts,
		}))
	}

	return withCORS(mux)
}

func (s *httpServer) methodHandlers(handlers map[string]handlerFunc) http.Handler {
	allowed := allowedMethods(handlers)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler(w, r)
			return
		}
		methodNotAllowed(w, allowed...)
	})
}

func allowedMethods(handlers map[string]handlerFunc) []string {
	if len(handlers) == 0 {
		return nil
	}
	allowed := make([]string, 0, len(handlers))
	for method := range handlers {
		allowed = append(allowed, method)
	}
	sort.Strings(allowed)
	return allowed
}

func (s *httpServer) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *httpServer) listGateways(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"gateways": s.gateways.Gateways()})
}

func (s *httpServer) listBindings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"bindings": s.gateways.Bindings()})
}

// handleGateway routes /gateways/{name}[/{action}[/{id}]].
func (s *httpServer) handleGateway(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, gatewayDetailPrefix), "/")
	name, action, hasAction := strings.Cut(rest, "/")
	name = strings.TrimSpace(name)
	if name == "" {
		writeError(w, http.StatusNotFound, "gateway name required")
		return
	}
	if !hasAction {
		s.methodHandlers(map[string]handlerFunc{
			http.MethodGet: func(w http.ResponseWriter, _ *http.Request) { s.getGateway(w, name) },
		}).ServeHTTP(w, r)
		return
	}

	action, id, _ := strings.Cut(strings.TrimSpace(action), "/")
	switch action {
	case "connect":
		s.onlyMethod(w, r, http.MethodPost, func() { s.connect(w, name) })
	case "logout":
		s.onlyMethod(w, r, http.MethodPost, func() { s.logout(w, name) })
	case "config":
		s.onlyMethod(w, r, http.MethodGet, func() { s.getConfig(w, name) })
	case "subscriptions":
		s.onlyMethod(w, r, http.MethodPost, func() { s.subscribe(w, r, name) })
	case "orders":
		if id == "" {
			s.onlyMethod(w, r, http.MethodPost, func() { s.sendOrder(w, r, name) })
			return
		}
		s.methodHandlers(map[string]handlerFunc{
			http.MethodGet:    func(w http.ResponseWriter, _ *http.Request) { s.getOrder(w, name, id) },
			http.MethodDelete: func(w http.ResponseWriter, r *http.Request) { s.cancelOrder(w, r, name, id) },
		}).ServeHTTP(w, r)
	case "queries":
		if id == "" {
			s.onlyMethod(w, r, http.MethodPut, func() { s.toggleQueries(w, r, name) })
			return
		}
		s.onlyMethod(w, r, http.MethodPost, func() { s.query(w, name, id) })
	case "contracts":
		s.onlyMethod(w, r, http.MethodGet, func() { s.getContract(w, name, id) })
	default:
		writeError(w, http.StatusNotFound, "unknown gateway action")
	}
}

func (s *httpServer) onlyMethod(w http.ResponseWriter, r *http.Request, method string, fn func()) {
	if r.Method != method {
		methodNotAllowed(w, method)
		return
	}
	fn()
}

func (s *httpServer) getGateway(w http.ResponseWriter, name string) {
	status, err := s.gateways.Status(name)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *httpServer) getConfig(w http.ResponseWriter, name string) {
	cfg, err := s.gateways.Config(name)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *httpServer) connect(w http.ResponseWriter, name string) {
	if err := s.gateways.Connect(name); err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "connecting"})
}

func (s *httpServer) logout(w http.ResponseWriter, name string) {
	gw, err := s.gateways.Gateway(name)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	if err := gw.Logout(); err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "logging_out"})
}

func (s *httpServer) subscribe(w http.ResponseWriter, r *http.Request, name string) {
	gw, err := s.gateways.Gateway(name)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	var req schema.SubscribeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := gw.Subscribe(req); err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted", "subscriptions": gw.State().Subscriptions})
}

func (s *httpServer) sendOrder(w http.ResponseWriter, r *http.Request, name string) {
	gw, err := s.gateways.Gateway(name)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	var req schema.OrderRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	id, err := gw.SendOrder(req)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"orderId": id})
}

// cancelOrder reads the instrument and optional session identity from the
// query string. A zero front or session id means the current session.
func (s *httpServer) cancelOrder(w http.ResponseWriter, r *http.Request, name, ref string) {
	gw, err := s.gateways.Gateway(name)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	values := r.URL.Query()
	req := schema.CancelRequest{
		OrderRef: strings.TrimSpace(ref),
		Symbol:   strings.TrimSpace(values.Get("symbol")),
		Exchange: schema.Exchange(strings.ToUpper(strings.TrimSpace(values.Get("exchange")))),
	}
	if req.FrontID, err = intParam(values.Get("frontId")); err != nil {
		writeError(w, http.StatusBadRequest, "frontId: "+err.Error())
		return
	}
	if req.SessionID, err = intParam(values.Get("sessionId")); err != nil {
		writeError(w, http.StatusBadRequest, "sessionId: "+err.Error())
		return
	}
	if req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol required")
		return
	}
	if err := gw.CancelOrder(req); err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancel_requested"})
}

func (s *httpServer) query(w http.ResponseWriter, name, kind string) {
	gw, err := s.gateways.Gateway(name)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	switch kind {
	case "account":
		err = gw.QryAccount()
	case "position":
		err = gw.QryPosition()
	default:
		writeError(w, http.StatusNotFound, "query must be account or position")
		return
	}
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queried"})
}

func (s *httpServer) toggleQueries(w http.ResponseWriter, r *http.Request, name string) {
	gw, err := s.gateways.Gateway(name)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	var payload queryTogglePayload
	if err := decodeBody(w, r, &payload); err != nil {
		writeDecodeError(w, err)
		return
	}
	if payload.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled required")
		return
	}
	gw.SetQueryEnabled(*payload.Enabled)
	writeJSON(w, http.StatusOK, gw.State())
}

func (s *httpServer) getOrder(w http.ResponseWriter, name, ref string) {
	gw, err := s.gateways.Gateway(name)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	order, ok := gw.Order(ref)
	if !ok {
		writeError(w, http.StatusNotFound, "no open order with that reference")
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *httpServer) getContract(w http.ResponseWriter, name, symbol string) {
	gw, err := s.gateways.Gateway(name)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	info, ok := gw.Contract(strings.TrimSpace(symbol))
	if !ok {
		writeError(w, http.StatusNotFound, "contract not found")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func writeGatewayError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, provider.ErrGatewayNotFound), errs.Is(err, errs.CodeNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errs.Is(err, errs.CodeInvalid), errs.Is(err, errs.CodeConfig):
		writeError(w, http.StatusBadRequest, err.Error())
	case errs.Is(err, errs.CodeNotReady):
		writeError(w, http.StatusConflict, err.Error())
	case errs.Is(err, errs.CodeUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errs.Is(err, errs.CodeNetwork), errs.Is(err, errs.CodeExchange):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	defer func() {
		_ = r.Body.Close()
	}()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

func intParam(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func writeDecodeError(w http.ResponseWriter, err error) {
	if isRequestTooLarge(err) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

func isRequestTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "error": message})
}

func withCORS(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
