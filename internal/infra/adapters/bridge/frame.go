package bridge

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/coachpo/ctpgate/internal/infra/adapters/ctp/native"
)

// frame is one websocket message in either direction. Requests carry the vendor
// request name in Type, callbacks carry the vendor callback name.
type frame struct {
	Type      string          `json:"type"`
	RequestID int             `json:"requestId,omitempty"`
	Last      bool            `json:"last,omitempty"`
	Error     *native.RspInfo `json:"error,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type subscribeData struct {
	InstrumentIDs []string `json:"InstrumentIDs"`
}

type disconnectData struct {
	Reason int `json:"Reason"`
}

type heartBeatData struct {
	TimeLapse int `json:"TimeLapse"`
}

type subAckData struct {
	InstrumentID string `json:"InstrumentID"`
}

func encodeRequest(typ string, requestID int, data any) ([]byte, error) {
	f := frame{Type: typ, RequestID: requestID}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", typ, err)
		}
		f.Data = raw
	}
	return json.Marshal(f)
}

// payload decodes the data block. An absent block yields the zero value, which is
// how the front reports an empty query page.
func payload[T any](raw json.RawMessage) (T, error) {
	var out T
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

func decodeFrame(raw []byte) (native.Callback, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	cb, err := decodeCallback(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.Type, err)
	}
	return cb, nil
}

func decodeCallback(f frame) (native.Callback, error) {
	var info native.RspInfo
	if f.Error != nil {
		info = *f.Error
	}
	switch f.Type {
	case "OnFrontConnected":
		return native.FrontConnected{}, nil
	case "OnFrontDisconnected":
		d, err := payload[disconnectData](f.Data)
		return native.FrontDisconnected{Reason: d.Reason}, err
	case "OnHeartBeatWarning":
		d, err := payload[heartBeatData](f.Data)
		return native.HeartBeatWarning{TimeLapse: d.TimeLapse}, err
	case "OnRspError":
		return native.RspError{Info: info, RequestID: f.RequestID, Last: f.Last}, nil
	case "OnRspAuthenticate":
		return native.RspAuthenticate{Info: info, RequestID: f.RequestID, Last: f.Last}, nil
	case "OnRspUserLogin":
		d, err := payload[native.RspUserLoginField](f.Data)
		return native.RspUserLogin{Data: d, Info: info, RequestID: f.RequestID, Last: f.Last}, err
	case "OnRspUserLogout":
		d, err := payload[native.UserLogoutField](f.Data)
		return native.RspUserLogout{Data: d, Info: info, RequestID: f.RequestID, Last: f.Last}, err
	case "OnRspSubMarketData":
		d, err := payload[subAckData](f.Data)
		return native.RspSubMarketData{InstrumentID: d.InstrumentID, Info: info, Last: f.Last}, err
	case "OnRtnDepthMarketData":
		d, err := payload[native.DepthMarketDataField](f.Data)
		return native.RtnDepthMarketData{Data: d}, err
	case "OnRspSettlementInfoConfirm":
		d, err := payload[native.SettlementInfoConfirmField](f.Data)
		return native.RspSettlementInfoConfirm{Data: d, Info: info, RequestID: f.RequestID, Last: f.Last}, err
	case "OnRspQryInstrument":
		d, err := payload[native.InstrumentField](f.Data)
		return native.RspQryInstrument{Data: d, Info: info, RequestID: f.RequestID, Last: f.Last}, err
	case "OnRspQryInvestorPosition":
		d, err := payload[native.InvestorPositionField](f.Data)
		return native.RspQryInvestorPosition{Data: d, Info: info, RequestID: f.RequestID, Last: f.Last}, err
	case "OnRspQryTradingAccount":
		d, err := payload[native.TradingAccountField](f.Data)
		return native.RspQryTradingAccount{Data: d, Info: info, RequestID: f.RequestID, Last: f.Last}, err
	case "OnRspOrderInsert":
		d, err := payload[native.InputOrderField](f.Data)
		return native.RspOrderInsert{Data: d, Info: info, RequestID: f.RequestID, Last: f.Last}, err
	case "OnErrRtnOrderInsert":
		d, err := payload[native.InputOrderField](f.Data)
		return native.ErrRtnOrderInsert{Data: d, Info: info}, err
	case "OnRspOrderAction":
		d, err := payload[native.InputOrderActionField](f.Data)
		return native.RspOrderAction{Data: d, Info: info, RequestID: f.RequestID, Last: f.Last}, err
	case "OnErrRtnOrderAction":
		d, err := payload[native.InputOrderActionField](f.Data)
		return native.ErrRtnOrderAction{Data: d, Info: info}, err
	case "OnRtnOrder":
		d, err := payload[native.OrderField](f.Data)
		return native.RtnOrder{Data: d}, err
	case "OnRtnTrade":
		d, err := payload[native.TradeField](f.Data)
		return native.RtnTrade{Data: d}, err
	default:
		return nil, fmt.Errorf("unknown callback type %q", f.Type)
	}
}
