package httpserver

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/ctpgate/errs"
	"github.com/coachpo/ctpgate/internal/app/provider"
	"github.com/coachpo/ctpgate/internal/domain/orderstore"
	"github.com/coachpo/ctpgate/internal/domain/schema"
	"github.com/coachpo/ctpgate/internal/infra/adapters/ctp"
	"github.com/coachpo/ctpgate/internal/infra/config"
)

type stubGateway struct {
	name      string
	ready     bool
	subs      []string
	orders    []schema.OrderRequest
	cancels   []schema.CancelRequest
	queries   []string
	queryOn   bool
	loggedOut bool
}

func (g *stubGateway) Name() string { return g.name }
func (g *stubGateway) Connect()     {}

func (g *stubGateway) Subscribe(req schema.SubscribeRequest) error {
	if strings.TrimSpace(req.Symbol) == "" {
		return errs.New(g.name, errs.CodeInvalid, errs.WithMessage("symbol required"))
	}
	g.subs = append(g.subs, req.Symbol)
	return nil
}

func (g *stubGateway) SendOrder(req schema.OrderRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	g.orders = append(g.orders, req)
	return g.name + ".7", nil
}

func (g *stubGateway) CancelOrder(req schema.CancelRequest) error {
	g.cancels = append(g.cancels, req)
	return nil
}

func (g *stubGateway) QryAccount() error {
	if !g.ready {
		return errs.New(g.name, errs.CodeNotReady, errs.WithMessage("trading session not ready"))
	}
	g.queries = append(g.queries, "account")
	return nil
}

func (g *stubGateway) QryPosition() error {
	g.queries = append(g.queries, "position")
	return nil
}

func (g *stubGateway) Logout() error {
	g.loggedOut = true
	return nil
}

func (g *stubGateway) SetQueryEnabled(enabled bool) { g.queryOn = enabled }

func (g *stubGateway) State() ctp.Status {
	state := ctp.StateDisconnected
	if g.ready {
		state = ctp.StateReady
	}
	return ctp.Status{Name: g.name, MdState: state, TdState: state, QueryEnabled: g.queryOn, Subscriptions: g.subs}
}

func (g *stubGateway) Contract(symbol string) (ctp.ContractInfo, bool) {
	if symbol != "rb2410" {
		return ctp.ContractInfo{}, false
	}
	return ctp.ContractInfo{Symbol: symbol, Exchange: schema.ExchangeSHFE, Size: 10}, true
}

func (g *stubGateway) Order(ref string) (schema.Order, bool) {
	if ref != "7" || len(g.orders) == 0 {
		return schema.Order{}, false
	}
	req := g.orders[0]
	return schema.Order{
		Gateway:     g.name,
		OrderID:     g.name + ".7",
		OrderRef:    "7",
		Symbol:      req.Symbol,
		Direction:   req.Direction,
		Offset:      req.Offset,
		Status:      schema.OrderStatusSubmitted,
		TotalVolume: req.Volume,
	}, true
}

func (g *stubGateway) Close() {}

type stubManager struct {
	gw        *stubGateway
	connected []string
}

func (m *stubManager) Gateway(name string) (provider.Instance, error) {
	if name != m.gw.name {
		return nil, errs.New(name, errs.CodeNotFound, errs.WithCause(provider.ErrGatewayNotFound))
	}
	return m.gw, nil
}

func (m *stubManager) Status(name string) (provider.Status, error) {
	if _, err := m.Gateway(name); err != nil {
		return provider.Status{}, err
	}
	return provider.Status{Status: m.gw.State(), Binding: config.BindingFake}, nil
}

func (m *stubManager) Gateways() []provider.Status {
	st, _ := m.Status(m.gw.name)
	return []provider.Status{st}
}

func (m *stubManager) Connect(name string) error {
	if _, err := m.Gateway(name); err != nil {
		return err
	}
	m.connected = append(m.connected, name)
	return nil
}

func (m *stubManager) Config(name string) (map[string]any, error) {
	if _, err := m.Gateway(name); err != nil {
		return nil, err
	}
	return map[string]any{"Name": name}, nil
}

func (m *stubManager) Bindings() []provider.BindingMetadata {
	return provider.DefaultRegistry().Bindings()
}

type stubJournal struct {
	orderQuery   orderstore.OrderQuery
	accountQuery orderstore.AccountQuery
}

func (j *stubJournal) ListOrders(_ context.Context, q orderstore.OrderQuery) ([]orderstore.OrderRecord, error) {
	j.orderQuery = q
	return []orderstore.OrderRecord{{Order: orderstore.Order{OrderID: "sim.1", Gateway: "sim", Status: "ALLTRADED"}, CreatedAt: time.Unix(0, 0)}}, nil
}

func (j *stubJournal) ListTrades(context.Context, orderstore.TradeQuery) ([]orderstore.TradeRecord, error) {
	return nil, nil
}

func (j *stubJournal) ListAccounts(_ context.Context, q orderstore.AccountQuery) ([]orderstore.AccountRecord, error) {
	j.accountQuery = q
	return nil, nil
}

func newTestServer(t *testing.T, journal JournalReader) (*httptest.Server, *stubManager) {
	t.Helper()
	m := &stubManager{gw: &stubGateway{name: "sim", ready: true}}
	srv := httptest.NewServer(NewHandler(m, journal))
	t.Cleanup(srv.Close)
	return srv, m
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestListAndDescribeGateways(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	code, body := do(t, srv, http.MethodGet, "/gateways", "")
	require.Equal(t, http.StatusOK, code)
	gateways := body["gateways"].([]any)
	require.Len(t, gateways, 1)
	first := gateways[0].(map[string]any)
	require.Equal(t, "sim", first["name"])
	require.Equal(t, "Ready", first["tdState"])
	require.Equal(t, "fake", first["binding"])

	code, body = do(t, srv, http.MethodGet, "/gateways/sim", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "Ready", body["mdState"])

	code, _ = do(t, srv, http.MethodGet, "/gateways/nope", "")
	require.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, srv, http.MethodPost, "/gateways", "")
	require.Equal(t, http.StatusMethodNotAllowed, code)

	code, body = do(t, srv, http.MethodGet, "/bindings", "")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body["bindings"], 2)
}

func TestConnectAndSubscribe(t *testing.T) {
	srv, m := newTestServer(t, nil)

	code, _ := do(t, srv, http.MethodPost, "/gateways/sim/connect", "")
	require.Equal(t, http.StatusAccepted, code)
	require.Equal(t, []string{"sim"}, m.connected)

	code, body := do(t, srv, http.MethodPost, "/gateways/sim/subscriptions", `{"symbol":"rb2410"}`)
	require.Equal(t, http.StatusAccepted, code)
	require.Equal(t, []any{"rb2410"}, body["subscriptions"])

	code, _ = do(t, srv, http.MethodPost, "/gateways/sim/subscriptions", `{"symbol":" "}`)
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, srv, http.MethodPost, "/gateways/sim/subscriptions", `{`)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestSendAndCancelOrder(t *testing.T) {
	srv, m := newTestServer(t, nil)

	code, body := do(t, srv, http.MethodPost, "/gateways/sim/orders",
		`{"symbol":"rb2410","exchange":"SHFE","price":"3650","volume":1,"direction":"LONG","offset":"OPEN","price_type":"LIMIT"}`)
	require.Equal(t, http.StatusAccepted, code, body)
	require.Equal(t, "sim.7", body["orderId"])
	require.Len(t, m.gw.orders, 1)
	require.True(t, m.gw.orders[0].Price.Equal(decimal.NewFromInt(3650)))

	code, body = do(t, srv, http.MethodGet, "/gateways/sim/orders/7", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "sim.7", body["order_id"])
	require.Equal(t, "SUBMITTED", body["status"])

	code, _ = do(t, srv, http.MethodGet, "/gateways/sim/orders/8", "")
	require.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, srv, http.MethodPost, "/gateways/sim/orders", `{"symbol":"","volume":1}`)
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, srv, http.MethodPost, "/gateways/sim/orders",
		`{"symbol":"rb2410","price":"3650","volume":1,"direction":"LONG","offset":"open","price_type":"LIMIT"}`)
	require.Equal(t, http.StatusBadRequest, code, "offsets are case sensitive")
	require.Len(t, m.gw.orders, 1)

	code, _ = do(t, srv, http.MethodDelete, "/gateways/sim/orders/7?symbol=rb2410&exchange=shfe", "")
	require.Equal(t, http.StatusAccepted, code)
	require.Equal(t, schema.CancelRequest{OrderRef: "7", Symbol: "rb2410", Exchange: schema.ExchangeSHFE}, m.gw.cancels[0])

	code, _ = do(t, srv, http.MethodDelete, "/gateways/sim/orders/7?symbol=rb2410&frontId=x", "")
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, srv, http.MethodDelete, "/gateways/sim/orders/7", "")
	require.Equal(t, http.StatusBadRequest, code, "symbol is required to cancel")
}

func TestQueriesAndPolling(t *testing.T) {
	srv, m := newTestServer(t, nil)

	code, _ := do(t, srv, http.MethodPost, "/gateways/sim/queries/account", "")
	require.Equal(t, http.StatusAccepted, code)
	code, _ = do(t, srv, http.MethodPost, "/gateways/sim/queries/position", "")
	require.Equal(t, http.StatusAccepted, code)
	require.Equal(t, []string{"account", "position"}, m.gw.queries)

	code, _ = do(t, srv, http.MethodPost, "/gateways/sim/queries/margin", "")
	require.Equal(t, http.StatusNotFound, code)

	m.gw.ready = false
	code, _ = do(t, srv, http.MethodPost, "/gateways/sim/queries/account", "")
	require.Equal(t, http.StatusConflict, code, "queries before Ready are refused")

	code, body := do(t, srv, http.MethodPut, "/gateways/sim/queries", `{"enabled":true}`)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, body["queryEnabled"])

	code, _ = do(t, srv, http.MethodPut, "/gateways/sim/queries", `{}`)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestLogoutContractAndConfig(t *testing.T) {
	srv, m := newTestServer(t, nil)

	code, _ := do(t, srv, http.MethodPost, "/gateways/sim/logout", "")
	require.Equal(t, http.StatusAccepted, code)
	require.True(t, m.gw.loggedOut)

	code, body := do(t, srv, http.MethodGet, "/gateways/sim/contracts/rb2410", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "SHFE", body["exchange"])
	require.EqualValues(t, 10, body["size"])

	code, _ = do(t, srv, http.MethodGet, "/gateways/sim/contracts/zz999", "")
	require.Equal(t, http.StatusNotFound, code)

	code, body = do(t, srv, http.MethodGet, "/gateways/sim/config", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "sim", body["Name"])

	code, _ = do(t, srv, http.MethodGet, "/gateways/sim/unknown", "")
	require.Equal(t, http.StatusNotFound, code)
}

func TestJournalEndpoints(t *testing.T) {
	code, _ := func() (int, map[string]any) {
		srv, _ := newTestServer(t, nil)
		return do(t, srv, http.MethodGet, "/journal/orders", "")
	}()
	require.Equal(t, http.StatusNotFound, code, "journal routes need a reader")

	journal := &stubJournal{}
	srv, _ := newTestServer(t, journal)

	code, body := do(t, srv, http.MethodGet, "/journal/orders?gateway=sim&status=ALLTRADED,CANCELLED&limit=5", "")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body["orders"], 1)
	require.Equal(t, orderstore.OrderQuery{Gateway: "sim", Statuses: []string{"ALLTRADED", "CANCELLED"}, Limit: 5}, journal.orderQuery)

	code, _ = do(t, srv, http.MethodGet, "/journal/orders?limit=-1", "")
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, srv, http.MethodGet, "/journal/accounts", "")
	require.Equal(t, http.StatusBadRequest, code)
	code, _ = do(t, srv, http.MethodGet, "/journal/accounts?gateway=sim&accountId=8001", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "8001", journal.accountQuery.AccountID)

	code, _ = do(t, srv, http.MethodGet, "/journal/trades?orderId=sim.1", "")
	require.Equal(t, http.StatusOK, code)
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	code, _ := do(t, srv, http.MethodOptions, "/gateways", "")
	require.Equal(t, http.StatusNoContent, code)
}
