package ctp

import (
	"context"
	"errors"
	"fmt"

	"github.com/coachpo/ctpgate/errs"
	"github.com/coachpo/ctpgate/internal/domain/schema"
	"github.com/coachpo/ctpgate/internal/infra/adapters/ctp/native"
	"github.com/coachpo/ctpgate/internal/infra/adapters/shared"
	"github.com/coachpo/ctpgate/internal/infra/telemetry"
	"github.com/coachpo/ctpgate/internal/observability"
)

// Gateway-local error ids. Fronts use positive ids and request return codes -1..-3.
const (
	errorIDNotReady = -100
	errorIDRequest  = -101
)

// outlet is where both sessions send everything they produce: normalized
// events, structured logs and metrics.
type outlet struct {
	ctx     context.Context
	name    string
	norm    normalizer
	pub     *shared.Publisher
	logger  observability.Logger
	metrics *telemetry.GatewayMetrics
}

func (o *outlet) fields(extra ...observability.Field) []observability.Field {
	return append([]observability.Field{{Key: "gateway", Value: o.name}}, extra...)
}

func (o *outlet) log(content string, extra ...observability.Field) {
	o.logger.Info(content, o.fields(extra...)...)
	o.pub.PublishLog(o.ctx, o.norm.logEntry(content))
}

func (o *outlet) logf(format string, args ...any) {
	o.log(fmt.Sprintf(format, args...))
}

// rspError reports a front error block as an Error event and logs it wrapped
// in an errs envelope carrying the native id and decoded message.
func (o *outlet) rspError(msg string, info native.RspInfo, code errs.Code, opts ...errs.Option) {
	entry := o.norm.errorEntry(info)
	opts = append(opts,
		errs.WithMessage(msg),
		errs.WithNativeCode(entry.ErrorID),
		errs.WithRawMessage(entry.ErrorMsg))
	err := errs.New(o.name, code, opts...)
	o.logger.Error(msg, o.fields(observability.Field{Key: "error", Value: err})...)
	o.pub.PublishError(o.ctx, entry)
}

// localError reports a gateway-side failure as an Error event and returns it as
// an errs envelope.
func (o *outlet) localError(errorID int, code errs.Code, message string, cause error) error {
	opts := []errs.Option{errs.WithMessage(message), errs.WithNativeCode(errorID)}
	if cause != nil {
		opts = append(opts, errs.WithCause(cause))
		var callErr *native.CallError
		if errors.As(cause, &callErr) && callErr.Code == native.ResultFlowControl {
			opts = append(opts, errs.WithCanonicalCode(errs.CanonicalFlowControl))
		}
	}
	err := errs.New(o.name, code, opts...)
	text := message
	if cause != nil {
		text += ": " + cause.Error()
	}

	o.logger.Error(message, o.fields(observability.Field{Key: "error", Value: err})...)
	o.pub.PublishError(o.ctx, schema.ErrorEntry{
		Gateway:   o.name,
		Timestamp: o.norm.clock(),
		ErrorID:   errorID,
		ErrorMsg:  text,
	})
	return err
}

func (o *outlet) notReady(op string) error {
	o.metrics.RecordRequest(o.ctx, o.name, op, telemetry.ResultRejected)
	return o.localError(errorIDNotReady, errs.CodeNotReady, op+": session not ready", nil)
}

// requestFailed reports a native request the front refused to queue.
func (o *outlet) requestFailed(op string, err error) error {
	o.metrics.RecordRequest(o.ctx, o.name, op, telemetry.ResultError)
	return o.localError(errorIDRequest, errs.CodeExchange, op+" failed", err)
}

func (o *outlet) requestSent(op string) {
	o.metrics.RecordRequest(o.ctx, o.name, op, telemetry.ResultSuccess)
}

func (o *outlet) transition(session string, state SessionState) {
	o.logger.Debug("session state", o.fields(
		observability.Field{Key: "session", Value: session},
		observability.Field{Key: "state", Value: state.String()})...)
	o.metrics.RecordTransition(o.ctx, o.name, session, state.String())
}
