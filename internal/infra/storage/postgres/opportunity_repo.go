package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/vietddude/swapwatch/internal/core/domain"
	"github.com/vietddude/swapwatch/internal/infra/storage"
)

// DefaultQueryTimeout bounds a single journal query.
const DefaultQueryTimeout = 5 * time.Second

// OpportunityRepo implements storage.OpportunityRepository using PostgreSQL.
type OpportunityRepo struct {
	db *DB
}

var _ storage.OpportunityRepository = (*OpportunityRepo)(nil)

// NewOpportunityRepo creates a new PostgreSQL opportunity journal.
func NewOpportunityRepo(db *DB) *OpportunityRepo {
	return &OpportunityRepo{db: db}
}

type opportunityRow struct {
	ID            string         `db:"id"`
	ChainID       string         `db:"chain_id"`
	TxHash        string         `db:"tx_hash"`
	Sender        string         `db:"sender"`
	RouterAddress string         `db:"router_address"`
	RouterName    string         `db:"router_name"`
	RouterStyle   string         `db:"router_style"`
	SwapKind      string         `db:"swap_kind"`
	Method        string         `db:"method"`
	TokenIn       string         `db:"token_in"`
	TokenOut      string         `db:"token_out"`
	AmountIn      string         `db:"amount_in"`
	AmountInRaw   string         `db:"amount_in_raw"`
	Route         pq.StringArray `db:"route"`
	FeeTier       sql.NullInt32  `db:"fee_tier"`
	NativeIn      bool           `db:"native_in"`
	ExactOut      bool           `db:"exact_out"`
	ValueUSD      float64        `db:"value_usd"`
	ImpactPercent float64        `db:"impact_percent"`
	GasPrice      string         `db:"gas_price"`
	DetectedAt    time.Time      `db:"detected_at"`
}

const insertOpportunity = `
	INSERT INTO opportunities (
		id, chain_id, tx_hash, sender, router_address, router_name, router_style,
		swap_kind, method, token_in, token_out, amount_in, amount_in_raw, route,
		fee_tier, native_in, exact_out, value_usd, impact_percent, gas_price, detected_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21
	)
`

// Save records one event.
func (r *OpportunityRepo) Save(ctx context.Context, e *domain.OpportunityEvent) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var fee sql.NullInt32
	if e.Swap.FeeTier != nil {
		fee = sql.NullInt32{Int32: int32(*e.Swap.FeeTier), Valid: true}
	}
	raw := "0"
	if e.Swap.AmountInRaw != nil {
		raw = e.Swap.AmountInRaw.String()
	}
	gasPrice := e.GasPrice
	if gasPrice == "" {
		gasPrice = "0"
	}

	_, err := r.db.ExecContext(ctx, insertOpportunity,
		e.ID, string(e.ChainID), e.TxHash, e.From,
		e.Router.Address.Hex(), e.Router.Name, string(e.Router.Style),
		string(e.Swap.Kind), e.Swap.Method, e.Swap.TokenIn, e.Swap.TokenOut,
		e.Swap.AmountIn.String(), raw, pq.Array(e.Swap.Route),
		fee, e.Swap.NativeIn, e.Swap.ExactOut,
		e.ValueUSD, e.ImpactPercent, gasPrice, e.DetectedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return fmt.Errorf("%w: %s", storage.ErrDuplicateEvent, e.ID)
		}
		return fmt.Errorf("failed to save opportunity: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (r *OpportunityRepo) Recent(ctx context.Context, limit int) ([]*domain.OpportunityEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	var rows []opportunityRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, chain_id, tx_hash, sender, router_address, router_name, router_style,
		       swap_kind, method, token_in, token_out, amount_in::text AS amount_in,
		       amount_in_raw::text AS amount_in_raw, route, fee_tier, native_in, exact_out,
		       value_usd, impact_percent, gas_price::text AS gas_price, detected_at
		FROM opportunities
		ORDER BY detected_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list opportunities: %w", err)
	}

	out := make([]*domain.OpportunityEvent, 0, len(rows))
	for _, row := range rows {
		e, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Count returns the number of recorded events.
func (r *OpportunityRepo) Count(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM opportunities`); err != nil {
		return 0, fmt.Errorf("failed to count opportunities: %w", err)
	}
	return n, nil
}

// DeleteOlderThan removes events detected before the cutoff.
func (r *OpportunityRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM opportunities WHERE detected_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune opportunities: %w", err)
	}
	return res.RowsAffected()
}

func (row opportunityRow) toDomain() (*domain.OpportunityEvent, error) {
	amount, err := decimal.NewFromString(row.AmountIn)
	if err != nil {
		return nil, fmt.Errorf("opportunity %s: bad amount_in: %w", row.ID, err)
	}
	raw, ok := new(big.Int).SetString(row.AmountInRaw, 10)
	if !ok {
		return nil, fmt.Errorf("opportunity %s: bad amount_in_raw %q", row.ID, row.AmountInRaw)
	}

	swap := domain.NormalizedSwap{
		Kind:        domain.SwapKind(row.SwapKind),
		Method:      row.Method,
		TokenIn:     row.TokenIn,
		TokenOut:    row.TokenOut,
		AmountIn:    amount,
		AmountInRaw: raw,
		Route:       []string(row.Route),
		NativeIn:    row.NativeIn,
		ExactOut:    row.ExactOut,
	}
	if row.FeeTier.Valid {
		fee := uint32(row.FeeTier.Int32)
		swap.FeeTier = &fee
	}

	return &domain.OpportunityEvent{
		ID:      row.ID,
		ChainID: domain.ChainID(row.ChainID),
		TxHash:  row.TxHash,
		From:    row.Sender,
		Router: domain.RouterInfo{
			Address: common.HexToAddress(row.RouterAddress),
			Name:    row.RouterName,
			Style:   domain.RouterStyle(row.RouterStyle),
		},
		Swap:          swap,
		ValueUSD:      row.ValueUSD,
		ImpactPercent: row.ImpactPercent,
		GasPrice:      row.GasPrice,
		DetectedAt:    row.DetectedAt,
	}, nil
}
