package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachpo/ctpgate/internal/domain/orderstore"
)

// JournalStore persists order transitions, fills and account snapshots.
type JournalStore struct {
	pool *pgxpool.Pool
}

var _ orderstore.Store = (*JournalStore)(nil)

// NewJournalStore constructs a JournalStore backed by the provided pool.
func NewJournalStore(pool *pgxpool.Pool) *JournalStore {
	return &JournalStore{pool: pool}
}

const (
	orderUpsertSQL = `
INSERT INTO ctp_orders (
    order_id,
    gateway,
    order_ref,
    front_id,
    session_id,
    symbol,
    exchange,
    direction,
    offset_flag,
    status,
    price,
    total_volume,
    traded_volume,
    status_msg,
    inserted_at,
    cancelled_at,
    created_at,
    updated_at
)
VALUES (
    @order_id,
    @gateway,
    @order_ref,
    @front_id,
    @session_id,
    @symbol,
    @exchange,
    @direction,
    @offset_flag,
    @status,
    @price,
    @total_volume,
    @traded_volume,
    @status_msg,
    @inserted_at,
    @cancelled_at,
    NOW(),
    NOW()
)
ON CONFLICT (order_id, front_id, session_id) DO UPDATE SET
    status = EXCLUDED.status,
    traded_volume = GREATEST(ctp_orders.traded_volume, EXCLUDED.traded_volume),
    status_msg = EXCLUDED.status_msg,
    inserted_at = COALESCE(ctp_orders.inserted_at, EXCLUDED.inserted_at),
    cancelled_at = COALESCE(EXCLUDED.cancelled_at, ctp_orders.cancelled_at),
    updated_at = NOW();
`

	tradeInsertSQL = `
INSERT INTO ctp_trades (
    gateway,
    exchange,
    trade_id,
    direction,
    order_id,
    symbol,
    offset_flag,
    price,
    volume,
    traded_at,
    created_at
)
VALUES (
    @gateway,
    @exchange,
    @trade_id,
    @direction,
    @order_id,
    @symbol,
    @offset_flag,
    @price,
    @volume,
    @traded_at,
    NOW()
)
ON CONFLICT (gateway, exchange, trade_id, direction) DO NOTHING;
`

	accountInsertSQL = `
INSERT INTO ctp_account_snapshots (
    gateway,
    account_id,
    pre_balance,
    balance,
    available,
    commission,
    margin,
    close_profit,
    position_profit,
    snapshot_at,
    created_at
)
VALUES (
    @gateway,
    @account_id,
    @pre_balance,
    @balance,
    @available,
    @commission,
    @margin,
    @close_profit,
    @position_profit,
    @snapshot_at,
    NOW()
);
`

	orderSelectBase = `
SELECT
    order_id,
    gateway,
    order_ref,
    front_id,
    session_id,
    symbol,
    exchange,
    direction,
    offset_flag,
    status,
    price::text,
    total_volume,
    traded_volume,
    status_msg,
    inserted_at,
    cancelled_at,
    created_at,
    updated_at
FROM ctp_orders
`

	tradeSelectBase = `
SELECT
    gateway,
    exchange,
    trade_id,
    direction,
    order_id,
    symbol,
    offset_flag,
    price::text,
    volume,
    traded_at,
    created_at
FROM ctp_trades
`

	accountSelectBase = `
SELECT
    id,
    gateway,
    account_id,
    pre_balance::text,
    balance::text,
    available::text,
    commission::text,
    margin::text,
    close_profit::text,
    position_profit::text,
    snapshot_at,
    created_at
FROM ctp_account_snapshots
`

	defaultOrderLimit   = 50
	maxListLimit        = 500
	defaultTradeLimit   = 100
	defaultAccountLimit = 100
)

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type journalTx struct {
	tx    pgx.Tx
	store *JournalStore
}

func (s *JournalStore) ensurePool() (*pgxpool.Pool, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("journal store: nil pool")
	}
	return s.pool, nil
}

func (s *JournalStore) upsertOrderWith(ctx context.Context, exec execer, order orderstore.Order) error {
	if strings.TrimSpace(order.OrderID) == "" {
		return fmt.Errorf("journal store: order id required")
	}
	price, err := numericFromString(order.Price)
	if err != nil {
		return fmt.Errorf("journal store: order %s price: %w", order.OrderID, err)
	}
	args := pgx.NamedArgs{
		"order_id":      strings.TrimSpace(order.OrderID),
		"gateway":       strings.TrimSpace(order.Gateway),
		"order_ref":     strings.TrimSpace(order.OrderRef),
		"front_id":      order.FrontID,
		"session_id":    order.SessionID,
		"symbol":        order.Symbol,
		"exchange":      order.Exchange,
		"direction":     order.Direction,
		"offset_flag":   order.Offset,
		"status":        strings.TrimSpace(order.Status),
		"price":         price,
		"total_volume":  order.TotalVolume,
		"traded_volume": order.TradedVolume,
		"status_msg":    order.StatusMsg,
		"inserted_at":   nullableTime(order.InsertedAt),
		"cancelled_at":  nullableTime(order.CancelledAt),
	}
	if _, err := exec.Exec(ctx, orderUpsertSQL, args); err != nil {
		return fmt.Errorf("journal store: upsert order: %w", err)
	}
	return nil
}

func (s *JournalStore) recordTradeWith(ctx context.Context, exec execer, trade orderstore.Trade) error {
	if strings.TrimSpace(trade.TradeID) == "" {
		return fmt.Errorf("journal store: trade id required")
	}
	if trade.TradedAt.IsZero() {
		return fmt.Errorf("journal store: trade %s time required", trade.TradeID)
	}
	price, err := numericFromString(trade.Price)
	if err != nil {
		return fmt.Errorf("journal store: trade %s price: %w", trade.TradeID, err)
	}
	args := pgx.NamedArgs{
		"gateway":     strings.TrimSpace(trade.Gateway),
		"exchange":    trade.Exchange,
		"trade_id":    strings.TrimSpace(trade.TradeID),
		"direction":   trade.Direction,
		"order_id":    strings.TrimSpace(trade.OrderID),
		"symbol":      trade.Symbol,
		"offset_flag": trade.Offset,
		"price":       price,
		"volume":      trade.Volume,
		"traded_at":   trade.TradedAt,
	}
	if _, err := exec.Exec(ctx, tradeInsertSQL, args); err != nil {
		return fmt.Errorf("journal store: insert trade: %w", err)
	}
	return nil
}

func (s *JournalStore) appendAccountWith(ctx context.Context, exec execer, snapshot orderstore.AccountSnapshot) error {
	if strings.TrimSpace(snapshot.AccountID) == "" {
		return fmt.Errorf("journal store: account id required")
	}
	amounts := map[string]string{
		"pre_balance":     snapshot.PreBalance,
		"balance":         snapshot.Balance,
		"available":       snapshot.Available,
		"commission":      snapshot.Commission,
		"margin":          snapshot.Margin,
		"close_profit":    snapshot.CloseProfit,
		"position_profit": snapshot.PositionProfit,
	}
	args := pgx.NamedArgs{
		"gateway":     strings.TrimSpace(snapshot.Gateway),
		"account_id":  strings.TrimSpace(snapshot.AccountID),
		"snapshot_at": snapshot.SnapshotAt,
	}
	for name, value := range amounts {
		num, err := numericFromString(value)
		if err != nil {
			return fmt.Errorf("journal store: account %s %s: %w", snapshot.AccountID, name, err)
		}
		args[name] = num
	}
	if snapshot.SnapshotAt.IsZero() {
		args["snapshot_at"] = time.Now().UTC()
	}
	if _, err := exec.Exec(ctx, accountInsertSQL, args); err != nil {
		return fmt.Errorf("journal store: insert account snapshot: %w", err)
	}
	return nil
}

// UpsertOrder records the latest state of an order. Traded volume never moves
// backwards when updates arrive out of order.
func (s *JournalStore) UpsertOrder(ctx context.Context, order orderstore.Order) error {
	pool, err := s.ensurePool()
	if err != nil {
		return err
	}
	return s.upsertOrderWith(ctx, pool, order)
}

// RecordTrade stores a fill once; replays of the same trade are ignored.
func (s *JournalStore) RecordTrade(ctx context.Context, trade orderstore.Trade) error {
	pool, err := s.ensurePool()
	if err != nil {
		return err
	}
	return s.recordTradeWith(ctx, pool, trade)
}

// AppendAccount stores an account snapshot.
func (s *JournalStore) AppendAccount(ctx context.Context, snapshot orderstore.AccountSnapshot) error {
	pool, err := s.ensurePool()
	if err != nil {
		return err
	}
	return s.appendAccountWith(ctx, pool, snapshot)
}

// WithTransaction executes the supplied callback within a database transaction.
func (s *JournalStore) WithTransaction(ctx context.Context, fn func(context.Context, orderstore.Tx) error) error {
	if fn == nil {
		return fmt.Errorf("journal store: transaction callback required")
	}
	pool, err := s.ensurePool()
	if err != nil {
		return err
	}
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:       pgx.ReadCommitted,
		AccessMode:     pgx.ReadWrite,
		DeferrableMode: pgx.NotDeferrable,
	})
	if err != nil {
		return fmt.Errorf("journal store: begin tx: %w", err)
	}
	runErr := fn(ctx, &journalTx{tx: tx, store: s})
	if runErr != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("journal store: rollback tx: %w (original error: %v)", rbErr, runErr)
		}
		return runErr
	}
	if err := tx.Commit(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("journal store: commit tx: %w", err)
	}
	return nil
}

// ListOrders retrieves journal orders, most recently updated first.
func (s *JournalStore) ListOrders(ctx context.Context, query orderstore.OrderQuery) ([]orderstore.OrderRecord, error) {
	pool, err := s.ensurePool()
	if err != nil {
		return nil, err
	}
	builder := strings.Builder{}
	builder.WriteString(orderSelectBase)
	builder.WriteString(" WHERE 1=1")

	args := make([]any, 0, 4)
	argPos := 1
	if trimmed := strings.TrimSpace(query.Gateway); trimmed != "" {
		fmt.Fprintf(&builder, " AND gateway = $%d", argPos)
		args = append(args, trimmed)
		argPos++
	}
	if trimmed := strings.TrimSpace(query.Symbol); trimmed != "" {
		fmt.Fprintf(&builder, " AND symbol = $%d", argPos)
		args = append(args, trimmed)
		argPos++
	}
	if statuses := normalizedStates(query.Statuses); len(statuses) > 0 {
		fmt.Fprintf(&builder, " AND status = ANY($%d)", argPos)
		args = append(args, statuses)
		argPos++
	}
	fmt.Fprintf(&builder, " ORDER BY updated_at DESC LIMIT $%d", argPos)
	args = append(args, clampLimit(query.Limit, defaultOrderLimit, maxListLimit))

	rows, err := pool.Query(ctx, builder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("journal store: list orders: %w", err)
	}
	defer rows.Close()

	var records []orderstore.OrderRecord
	for rows.Next() {
		var (
			record      orderstore.OrderRecord
			insertedAt  pgtype.Timestamptz
			cancelledAt pgtype.Timestamptz
		)
		if err := rows.Scan(
			&record.OrderID,
			&record.Gateway,
			&record.OrderRef,
			&record.FrontID,
			&record.SessionID,
			&record.Symbol,
			&record.Exchange,
			&record.Direction,
			&record.Offset,
			&record.Status,
			&record.Price,
			&record.TotalVolume,
			&record.TradedVolume,
			&record.StatusMsg,
			&insertedAt,
			&cancelledAt,
			&record.CreatedAt,
			&record.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("journal store: scan order: %w", err)
		}
		if insertedAt.Valid {
			record.InsertedAt = insertedAt.Time
		}
		if cancelledAt.Valid {
			record.CancelledAt = cancelledAt.Time
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal store: iterate orders: %w", err)
	}
	return records, nil
}

// ListTrades retrieves fills, newest first.
func (s *JournalStore) ListTrades(ctx context.Context, query orderstore.TradeQuery) ([]orderstore.TradeRecord, error) {
	pool, err := s.ensurePool()
	if err != nil {
		return nil, err
	}
	builder := strings.Builder{}
	builder.WriteString(tradeSelectBase)
	builder.WriteString(" WHERE 1=1")

	args := make([]any, 0, 4)
	argPos := 1
	if trimmed := strings.TrimSpace(query.Gateway); trimmed != "" {
		fmt.Fprintf(&builder, " AND gateway = $%d", argPos)
		args = append(args, trimmed)
		argPos++
	}
	if trimmed := strings.TrimSpace(query.OrderID); trimmed != "" {
		fmt.Fprintf(&builder, " AND order_id = $%d", argPos)
		args = append(args, trimmed)
		argPos++
	}
	if trimmed := strings.TrimSpace(query.Symbol); trimmed != "" {
		fmt.Fprintf(&builder, " AND symbol = $%d", argPos)
		args = append(args, trimmed)
		argPos++
	}
	fmt.Fprintf(&builder, " ORDER BY traded_at DESC LIMIT $%d", argPos)
	args = append(args, clampLimit(query.Limit, defaultTradeLimit, maxListLimit))

	rows, err := pool.Query(ctx, builder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("journal store: list trades: %w", err)
	}
	defer rows.Close()

	var records []orderstore.TradeRecord
	for rows.Next() {
		var record orderstore.TradeRecord
		if err := rows.Scan(
			&record.Gateway,
			&record.Exchange,
			&record.TradeID,
			&record.Direction,
			&record.OrderID,
			&record.Symbol,
			&record.Offset,
			&record.Price,
			&record.Volume,
			&record.TradedAt,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("journal store: scan trade: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal store: iterate trades: %w", err)
	}
	return records, nil
}

// ListAccounts retrieves account snapshots, newest first. A gateway is required.
func (s *JournalStore) ListAccounts(ctx context.Context, query orderstore.AccountQuery) ([]orderstore.AccountRecord, error) {
	pool, err := s.ensurePool()
	if err != nil {
		return nil, err
	}
	gateway := strings.TrimSpace(query.Gateway)
	if gateway == "" {
		return nil, fmt.Errorf("journal store: gateway required")
	}
	builder := strings.Builder{}
	builder.WriteString(accountSelectBase)
	builder.WriteString(" WHERE gateway = $1")

	args := []any{gateway}
	argPos := 2
	if trimmed := strings.TrimSpace(query.AccountID); trimmed != "" {
		fmt.Fprintf(&builder, " AND account_id = $%d", argPos)
		args = append(args, trimmed)
		argPos++
	}
	fmt.Fprintf(&builder, " ORDER BY snapshot_at DESC, id DESC LIMIT $%d", argPos)
	args = append(args, clampLimit(query.Limit, defaultAccountLimit, maxListLimit))

	rows, err := pool.Query(ctx, builder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("journal store: list accounts: %w", err)
	}
	defer rows.Close()

	var records []orderstore.AccountRecord
	for rows.Next() {
		var record orderstore.AccountRecord
		if err := rows.Scan(
			&record.ID,
			&record.Gateway,
			&record.AccountID,
			&record.PreBalance,
			&record.Balance,
			&record.Available,
			&record.Commission,
			&record.Margin,
			&record.CloseProfit,
			&record.PositionProfit,
			&record.SnapshotAt,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("journal store: scan account: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal store: iterate accounts: %w", err)
	}
	return records, nil
}

func (t *journalTx) UpsertOrder(ctx context.Context, order orderstore.Order) error {
	if t == nil {
		return fmt.Errorf("journal store: nil transaction")
	}
	return t.store.upsertOrderWith(ctx, t.tx, order)
}

func (t *journalTx) RecordTrade(ctx context.Context, trade orderstore.Trade) error {
	if t == nil {
		return fmt.Errorf("journal store: nil transaction")
	}
	return t.store.recordTradeWith(ctx, t.tx, trade)
}

func (t *journalTx) AppendAccount(ctx context.Context, snapshot orderstore.AccountSnapshot) error {
	if t == nil {
		return fmt.Errorf("journal store: nil transaction")
	}
	return t.store.appendAccountWith(ctx, t.tx, snapshot)
}

func nullableTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value
}

func clampLimit(value, fallback, maximum int) int {
	if value <= 0 {
		return fallback
	}
	if value > maximum {
		return maximum
	}
	return value
}

func normalizedStates(states []string) []string {
	if len(states) == 0 {
		return nil
	}
	out := make([]string, 0, len(states))
	for _, state := range states {
		trimmed := strings.ToUpper(strings.TrimSpace(state))
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
