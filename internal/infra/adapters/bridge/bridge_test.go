package bridge

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/coachpo/ctpgate/internal/infra/adapters/ctp/native"
)

type bridgeServer struct {
	srv      *httptest.Server
	requests chan frame
	conns    chan *websocket.Conn
}

func newBridgeServer(t *testing.T) *bridgeServer {
	t.Helper()
	s := &bridgeServer{requests: make(chan frame, 16), conns: make(chan *websocket.Conn, 1)}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		s.conns <- conn
		for {
			_, data, err := conn.Read(context.Background())
			if err != nil {
				return
			}
			var f frame
			if json.Unmarshal(data, &f) == nil {
				s.requests <- f
			}
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *bridgeServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *bridgeServer) accepted(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-s.conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("bridge server did not accept a connection")
		return nil
	}
}

func (s *bridgeServer) request(t *testing.T) frame {
	t.Helper()
	select {
	case f := <-s.requests:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("bridge server received no request")
		return frame{}
	}
}

func push(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(raw)))
}

type recorder struct {
	ch chan native.Callback
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan native.Callback, 64)}
}

func (r *recorder) spi(cb native.Callback) {
	select {
	case r.ch <- cb:
	default:
	}
}

func (r *recorder) next(t *testing.T) native.Callback {
	t.Helper()
	select {
	case cb := <-r.ch:
		return cb
	case <-time.After(2 * time.Second):
		t.Fatal("no callback delivered")
		return nil
	}
}

func TestTradingLoginRoundTrip(t *testing.T) {
	s := newBridgeServer(t)
	td := NewFactory(Options{}).NewTdAPI()
	defer td.Release()
	rec := newRecorder()

	require.NoError(t, td.Init(native.InitOptions{FrontAddress: s.url()}, rec.spi))
	conn := s.accepted(t)
	require.Equal(t, native.FrontConnected{}, rec.next(t))

	require.NoError(t, td.ReqUserLogin(native.ReqUserLoginField{BrokerID: "9999", UserID: "8001", Password: "pw"}, 3))
	req := s.request(t)
	require.Equal(t, "ReqUserLogin", req.Type)
	require.Equal(t, 3, req.RequestID)
	var login native.ReqUserLoginField
	require.NoError(t, json.Unmarshal(req.Data, &login))
	require.Equal(t, "8001", login.UserID)
	require.Equal(t, "pw", login.Password)

	push(t, conn, `{"type":"OnRspUserLogin","requestId":3,"last":true,"data":{"FrontID":2,"SessionID":99,"MaxOrderRef":"17"}}`)
	rsp, ok := rec.next(t).(native.RspUserLogin)
	require.True(t, ok)
	require.Equal(t, 3, rsp.RequestID)
	require.True(t, rsp.Last)
	require.False(t, rsp.Info.Failed())
	require.Equal(t, 99, rsp.Data.SessionID)
	require.Equal(t, "17", rsp.Data.MaxOrderRef)
}

func TestOrderFramesCarryVendorCodes(t *testing.T) {
	s := newBridgeServer(t)
	td := NewFactory(Options{}).NewTdAPI()
	defer td.Release()
	rec := newRecorder()
	require.NoError(t, td.Init(native.InitOptions{FrontAddress: s.url()}, rec.spi))
	conn := s.accepted(t)
	rec.next(t)

	require.NoError(t, td.ReqOrderInsert(native.InputOrderField{
		InstrumentID:   "rb2410",
		OrderRef:       "12",
		Direction:      native.DirectionSell,
		CombOffsetFlag: native.OffsetCloseToday.String(),
		OrderPriceType: native.PriceTypeLimit,
	}, 4))
	req := s.request(t)
	require.Equal(t, "ReqOrderInsert", req.Type)
	require.JSONEq(t, `"1"`, string(jsonField(t, req.Data, "Direction")))
	require.JSONEq(t, `"3"`, string(jsonField(t, req.Data, "CombOffsetFlag")))

	push(t, conn, `{"type":"OnRtnOrder","data":{"OrderRef":"12","OrderStatus":"5","Direction":"1"}}`)
	rtn, ok := rec.next(t).(native.RtnOrder)
	require.True(t, ok)
	require.Equal(t, native.OrderStatusCanceled, rtn.Data.OrderStatus)
	require.Equal(t, native.DirectionSell, rtn.Data.Direction)

	push(t, conn, `{"type":"OnErrRtnOrderAction","error":{"ErrorID":26,"ErrorMsg":"closed"},"data":{"OrderRef":"12"}}`)
	errRtn, ok := rec.next(t).(native.ErrRtnOrderAction)
	require.True(t, ok)
	require.Equal(t, 26, errRtn.Info.ErrorID)
	require.Equal(t, "12", errRtn.Data.OrderRef)
}

func jsonField(t *testing.T, raw json.RawMessage, key string) json.RawMessage {
	t.Helper()
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &fields))
	return fields[key]
}

func TestSubscribeSendsInstrumentList(t *testing.T) {
	s := newBridgeServer(t)
	md := NewFactory(Options{}).NewMdAPI()
	defer md.Release()
	rec := newRecorder()
	require.NoError(t, md.Init(native.InitOptions{FrontAddress: s.url()}, rec.spi))
	conn := s.accepted(t)
	rec.next(t)

	require.NoError(t, md.SubscribeMarketData("rb2410", "IF2406"))
	req := s.request(t)
	require.Equal(t, "SubscribeMarketData", req.Type)
	var data subscribeData
	require.NoError(t, json.Unmarshal(req.Data, &data))
	require.Equal(t, []string{"rb2410", "IF2406"}, data.InstrumentIDs)

	push(t, conn, `{"type":"OnRspSubMarketData","last":false,"data":{"InstrumentID":"rb2410"}}`)
	ack, ok := rec.next(t).(native.RspSubMarketData)
	require.True(t, ok)
	require.Equal(t, "rb2410", ack.InstrumentID)
	require.False(t, ack.Last)

	push(t, conn, `not json`)
	push(t, conn, `{"type":"OnRtnDepthMarketData","data":{"InstrumentID":"rb2410","LastPrice":3650,"Volume":12}}`)
	depth, ok := rec.next(t).(native.RtnDepthMarketData)
	require.True(t, ok, "malformed frames are dropped without closing the link")
	require.Equal(t, 3650.0, depth.Data.LastPrice)
}

func TestReadFailureDisconnectsWithoutRedial(t *testing.T) {
	s := newBridgeServer(t)
	md := NewFactory(Options{}).NewMdAPI()
	defer md.Release()
	rec := newRecorder()
	require.NoError(t, md.Init(native.InitOptions{FrontAddress: s.url()}, rec.spi))
	conn := s.accepted(t)
	rec.next(t)

	_ = conn.Close(websocket.StatusGoingAway, "bridge restart")
	disconnected, ok := rec.next(t).(native.FrontDisconnected)
	require.True(t, ok)
	require.Equal(t, reasonReadFailed, disconnected.Reason)

	err := md.SubscribeMarketData("rb2410")
	var callErr *native.CallError
	require.True(t, errors.As(err, &callErr))
	require.Equal(t, native.ResultNetwork, callErr.Code)

	select {
	case <-s.conns:
		t.Fatal("bridge handles must not redial")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDialFailureReportsDisconnect(t *testing.T) {
	s := newBridgeServer(t)
	address := s.url()
	s.srv.Close()

	td := NewFactory(Options{DialTimeout: time.Second}).NewTdAPI()
	defer td.Release()
	rec := newRecorder()
	require.NoError(t, td.Init(native.InitOptions{FrontAddress: address}, rec.spi))

	_, ok := rec.next(t).(native.FrontDisconnected)
	require.True(t, ok)
}

func TestQueriesAreRateLimited(t *testing.T) {
	s := newBridgeServer(t)
	td := NewFactory(Options{QueryRate: 0.01, QueryBurst: 1}).NewTdAPI()
	defer td.Release()
	rec := newRecorder()
	require.NoError(t, td.Init(native.InitOptions{FrontAddress: s.url()}, rec.spi))
	s.accepted(t)
	rec.next(t)

	require.NoError(t, td.ReqQryTradingAccount(native.QryTradingAccountField{}, 1))
	require.Equal(t, "ReqQryTradingAccount", s.request(t).Type)

	err := td.ReqQryInvestorPosition(native.QryInvestorPositionField{}, 2)
	var callErr *native.CallError
	require.True(t, errors.As(err, &callErr))
	require.Equal(t, native.ResultFlowControl, callErr.Code)

	require.NoError(t, td.ReqOrderInsert(native.InputOrderField{OrderRef: "1"}, 3), "orders bypass the query limit")
	require.Equal(t, "ReqOrderInsert", s.request(t).Type)
}

func TestInitValidation(t *testing.T) {
	f := NewFactory(Options{})
	md := f.NewMdAPI()
	defer md.Release()

	require.Error(t, md.Init(native.InitOptions{FrontAddress: "tcp://180.168.146.187:10211"}, func(native.Callback) {}))
	require.Error(t, md.Init(native.InitOptions{FrontAddress: "ws://127.0.0.1:1"}, nil))
}

func TestReleaseStopsReader(t *testing.T) {
	ignore := goleak.IgnoreCurrent()
	s := newBridgeServer(t)
	md := NewFactory(Options{}).NewMdAPI()
	rec := newRecorder()
	require.NoError(t, md.Init(native.InitOptions{FrontAddress: s.url()}, rec.spi))
	s.accepted(t)
	rec.next(t)

	md.Release()
	md.Release()
	s.srv.Close()

	select {
	case cb := <-rec.ch:
		t.Fatalf("unexpected callback after release: %s", native.Name(cb))
	default:
	}
	goleak.VerifyNone(t, ignore)
}

func TestDecodeFrame(t *testing.T) {
	cb, err := decodeFrame([]byte(`{"type":"OnRspQryInvestorPosition","requestId":8,"last":true}`))
	require.NoError(t, err)
	page, ok := cb.(native.RspQryInvestorPosition)
	require.True(t, ok)
	require.True(t, page.Last)
	require.Empty(t, page.Data.InstrumentID)

	cb, err = decodeFrame([]byte(`{"type":"OnRspError","requestId":2,"error":{"ErrorID":90,"ErrorMsg":"busy"}}`))
	require.NoError(t, err)
	require.Equal(t, native.RspError{Info: native.RspInfo{ErrorID: 90, ErrorMsg: "busy"}, RequestID: 2}, cb)

	cb, err = decodeFrame([]byte(`{"type":"OnFrontDisconnected","data":{"Reason":8194}}`))
	require.NoError(t, err)
	require.Equal(t, native.FrontDisconnected{Reason: 0x2002}, cb)

	_, err = decodeFrame([]byte(`{"type":"OnRspQryDepth"}`))
	require.Error(t, err)

	_, err = decodeFrame([]byte(`{"type":"OnRtnTrade","data":{"Volume":"x"}}`))
	require.Error(t, err)
}
