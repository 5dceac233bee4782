package provider

import (
	"github.com/coachpo/ctpgate/internal/domain/schema"
	"github.com/coachpo/ctpgate/internal/infra/adapters/ctp"
)

// Instance is the request surface of one running gateway.
type Instance interface {
	Name() string
	Connect()
	Subscribe(req schema.SubscribeRequest) error
	SendOrder(req schema.OrderRequest) (string, error)
	CancelOrder(req schema.CancelRequest) error
	QryAccount() error
	QryPosition() error
	Logout() error
	SetQueryEnabled(enabled bool)
	State() ctp.Status
	Contract(symbol string) (ctp.ContractInfo, bool)
	Order(orderRef string) (schema.Order, bool)
	Close()
}

var _ Instance = (*ctp.Gateway)(nil)
