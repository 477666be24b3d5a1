// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	apperrors "spread-trader/internal/errors"
	"spread-trader/internal/models"
)

// SQLiteStore implements Ledger using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based ledger.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := openSQLite(dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func openSQLite(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return db, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Recommendations awaiting approval
	CREATE TABLE IF NOT EXISTS recommendations (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		underlying TEXT NOT NULL,
		spread_type TEXT NOT NULL,
		short_strike REAL NOT NULL,
		long_strike REAL NOT NULL,
		expiration TEXT NOT NULL,
		credit REAL NOT NULL,
		max_loss REAL NOT NULL,
		iv_rank REAL,
		delta REAL,
		score REAL,
		thesis TEXT,
		confidence TEXT,
		suggested_contracts INTEGER,
		underlying_price REAL
	);

	-- Executed spreads
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		recommendation_id TEXT,
		opened_at DATETIME,
		closed_at DATETIME,
		status TEXT NOT NULL,
		underlying TEXT NOT NULL,
		spread_type TEXT NOT NULL,
		short_strike REAL NOT NULL,
		long_strike REAL NOT NULL,
		expiration TEXT NOT NULL,
		entry_credit REAL NOT NULL,
		exit_debit REAL,
		profit_loss REAL,
		contracts INTEGER NOT NULL,
		broker_order_id TEXT,
		exit_reason TEXT,
		reflection TEXT,
		lesson TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Live marks for open trades
	CREATE TABLE IF NOT EXISTS positions (
		id TEXT PRIMARY KEY,
		trade_id TEXT NOT NULL UNIQUE,
		underlying TEXT NOT NULL,
		short_strike REAL NOT NULL,
		long_strike REAL NOT NULL,
		expiration TEXT NOT NULL,
		contracts INTEGER NOT NULL,
		close_cost REAL,
		current_value REAL,
		unrealized_pnl REAL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS playbook (
		id TEXT PRIMARY KEY,
		rule TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT 'initial',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS iv_history (
		symbol TEXT NOT NULL,
		date TEXT NOT NULL,
		iv REAL NOT NULL,
		PRIMARY KEY (symbol, date)
	);

	CREATE TABLE IF NOT EXISTS daily_performance (
		date TEXT PRIMARY KEY,
		starting_balance REAL,
		ending_balance REAL,
		realized_pnl REAL,
		trades_opened INTEGER,
		trades_closed INTEGER,
		win_count INTEGER,
		loss_count INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_recommendations_status ON recommendations(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);
	CREATE INDEX IF NOT EXISTS idx_trades_closed_at ON trades(closed_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ============================================================================
// Recommendations
// ============================================================================

const recommendationColumns = `id, created_at, expires_at, status, underlying, spread_type, short_strike, long_strike,
	expiration, credit, max_loss, iv_rank, delta, score, thesis, confidence, suggested_contracts, underlying_price`

// SaveRecommendation inserts or replaces a recommendation.
func (s *SQLiteStore) SaveRecommendation(ctx context.Context, rec *models.Recommendation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO recommendations (`+recommendationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.CreatedAt.UTC(), rec.ExpiresAt.UTC(), rec.Status, rec.Underlying, rec.SpreadType, rec.ShortStrike, rec.LongStrike,
		rec.Expiration.Format(models.DateLayout), rec.Credit, rec.MaxLoss, rec.IVRank, rec.Delta, rec.Score, rec.Thesis,
		rec.Confidence, rec.SuggestedContracts, rec.UnderlyingPrice)
	if err != nil {
		return fmt.Errorf("failed to save recommendation: %w", err)
	}
	return nil
}

// GetRecommendation retrieves a recommendation by ID.
func (s *SQLiteStore) GetRecommendation(ctx context.Context, id string) (*models.Recommendation, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+recommendationColumns+" FROM recommendations WHERE id = ?", id)
	rec, err := scanRecommendation(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("recommendation %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recommendation: %w", err)
	}
	return rec, nil
}

// ListRecommendations retrieves recommendations matching the filter, newest first.
func (s *SQLiteStore) ListRecommendations(ctx context.Context, filter RecommendationFilter) ([]models.Recommendation, error) {
	query := "SELECT " + recommendationColumns + " FROM recommendations WHERE 1=1"
	args := []interface{}{}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if !filter.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, filter.Since.UTC())
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recommendations: %w", err)
	}
	defer rows.Close()

	var recs []models.Recommendation
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recommendation: %w", err)
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// UpdateRecommendationStatus moves a recommendation from one status to another.
func (s *SQLiteStore) UpdateRecommendationStatus(ctx context.Context, id string, from, to models.RecommendationStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE recommendations SET status = ? WHERE id = ? AND status = ?", to, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update recommendation status: %w", err)
	}
	return affected(res)
}

// ExpireRecommendations marks every pending recommendation past its expiry as expired.
func (s *SQLiteStore) ExpireRecommendations(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE recommendations SET status = ? WHERE status = ? AND expires_at <= ?",
		models.RecommendationExpired, models.RecommendationPending, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to expire recommendations: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecommendation(row rowScanner) (*models.Recommendation, error) {
	var rec models.Recommendation
	var expiration string
	var thesis, confidence sql.NullString
	var ivRank, delta, score, price sql.NullFloat64
	var contracts sql.NullInt64

	if err := row.Scan(&rec.ID, &rec.CreatedAt, &rec.ExpiresAt, &rec.Status, &rec.Underlying, &rec.SpreadType,
		&rec.ShortStrike, &rec.LongStrike, &expiration, &rec.Credit, &rec.MaxLoss, &ivRank, &delta, &score,
		&thesis, &confidence, &contracts, &price); err != nil {
		return nil, err
	}

	rec.Expiration, _ = time.Parse(models.DateLayout, expiration)
	rec.IVRank = ivRank.Float64
	rec.Delta = delta.Float64
	rec.Score = score.Float64
	rec.Thesis = thesis.String
	rec.Confidence = models.Confidence(confidence.String)
	rec.SuggestedContracts = int(contracts.Int64)
	rec.UnderlyingPrice = price.Float64
	return &rec, nil
}

// ============================================================================
// Trades
// ============================================================================

const tradeColumns = `id, recommendation_id, opened_at, closed_at, status, underlying, spread_type, short_strike,
	long_strike, expiration, entry_credit, exit_debit, profit_loss, contracts, broker_order_id, exit_reason,
	reflection, lesson`

// SaveTrade inserts or replaces a trade.
func (s *SQLiteStore) SaveTrade(ctx context.Context, trade *models.Trade) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO trades (`+tradeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, trade.ID, nullString(trade.RecommendationID), nullTime(trade.OpenedAt), nullTime(trade.ClosedAt), trade.Status,
		trade.Underlying, trade.SpreadType, trade.ShortStrike, trade.LongStrike, trade.Expiration.Format(models.DateLayout),
		trade.EntryCredit, nullFloat(trade.ExitDebit), nullFloat(trade.ProfitLoss), trade.Contracts,
		nullString(trade.BrokerOrderID), nullString(string(trade.ExitReason)), nullString(trade.Reflection),
		nullString(trade.Lesson))
	if err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}
	return nil
}

// GetTrade retrieves a trade by ID.
func (s *SQLiteStore) GetTrade(ctx context.Context, id string) (*models.Trade, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+tradeColumns+" FROM trades WHERE id = ?", id)
	trade, err := scanTrade(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("trade %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade: %w", err)
	}
	return trade, nil
}

// ListTrades retrieves trades matching the filter.
func (s *SQLiteStore) ListTrades(ctx context.Context, filter TradeFilter) ([]models.Trade, error) {
	query := "SELECT " + tradeColumns + " FROM trades WHERE 1=1"
	args := []interface{}{}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.Underlying != "" {
		query += " AND underlying = ?"
		args = append(args, filter.Underlying)
	}
	if !filter.ClosedSince.IsZero() {
		query += " AND closed_at >= ?"
		args = append(args, filter.ClosedSince.UTC())
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, *trade)
	}
	return trades, rows.Err()
}

// UpdateTradeStatus moves a trade from one status to another.
func (s *SQLiteStore) UpdateTradeStatus(ctx context.Context, id string, from, to models.TradeStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE trades SET status = ? WHERE id = ? AND status = ?", to, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update trade status: %w", err)
	}
	return affected(res)
}

// UpdateTradeOrderID points a pending trade at a replacement order.
func (s *SQLiteStore) UpdateTradeOrderID(ctx context.Context, id, orderID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE trades SET broker_order_id = ? WHERE id = ? AND status = ?",
		orderID, id, models.TradePendingFill)
	if err != nil {
		return false, fmt.Errorf("failed to update trade order id: %w", err)
	}
	return affected(res)
}

// ActivateTrade moves a pending trade to open. A positive fillCredit replaces the entry credit.
func (s *SQLiteStore) ActivateTrade(ctx context.Context, id string, openedAt time.Time, fillCredit float64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE trades
		SET status = ?, opened_at = ?, entry_credit = CASE WHEN ? > 0 THEN ? ELSE entry_credit END
		WHERE id = ? AND status = ?
	`, models.TradeOpen, openedAt.UTC(), fillCredit, fillCredit, id, models.TradePendingFill)
	if err != nil {
		return false, fmt.Errorf("failed to activate trade: %w", err)
	}
	return affected(res)
}

// CloseTrade moves an open trade to closed and records the exit.
func (s *SQLiteStore) CloseTrade(ctx context.Context, id string, c TradeClose) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE trades
		SET status = ?, closed_at = ?, exit_debit = ?, profit_loss = ?, exit_reason = ?
		WHERE id = ? AND status = ?
	`, models.TradeClosed, c.ClosedAt.UTC(), c.ExitDebit, c.ProfitLoss, c.Reason, id, models.TradeOpen)
	if err != nil {
		return false, fmt.Errorf("failed to close trade: %w", err)
	}
	return affected(res)
}

// SaveReflection stores the post-trade reflection and lesson.
func (s *SQLiteStore) SaveReflection(ctx context.Context, id, reflection, lesson string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE trades SET reflection = ?, lesson = ? WHERE id = ?", reflection, lesson, id)
	if err != nil {
		return fmt.Errorf("failed to save reflection: %w", err)
	}
	return nil
}

func scanTrade(row rowScanner) (*models.Trade, error) {
	var t models.Trade
	var recID, orderID, exitReason, reflection, lesson sql.NullString
	var openedAt, closedAt sql.NullTime
	var exitDebit, pnl sql.NullFloat64
	var expiration string

	if err := row.Scan(&t.ID, &recID, &openedAt, &closedAt, &t.Status, &t.Underlying, &t.SpreadType,
		&t.ShortStrike, &t.LongStrike, &expiration, &t.EntryCredit, &exitDebit, &pnl, &t.Contracts, &orderID,
		&exitReason, &reflection, &lesson); err != nil {
		return nil, err
	}

	t.RecommendationID = recID.String
	t.BrokerOrderID = orderID.String
	t.ExitReason = models.ExitReason(exitReason.String)
	t.Reflection = reflection.String
	t.Lesson = lesson.String
	t.Expiration, _ = time.Parse(models.DateLayout, expiration)
	if openedAt.Valid {
		t.OpenedAt = &openedAt.Time
	}
	if closedAt.Valid {
		t.ClosedAt = &closedAt.Time
	}
	if exitDebit.Valid {
		t.ExitDebit = &exitDebit.Float64
	}
	if pnl.Valid {
		t.ProfitLoss = &pnl.Float64
	}
	return &t, nil
}

// ============================================================================
// Positions
// ============================================================================

// UpsertPosition inserts or updates the mark for a trade.
func (s *SQLiteStore) UpsertPosition(ctx context.Context, pos *models.Position) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (id, trade_id, underlying, short_strike, long_strike, expiration, contracts,
			close_cost, current_value, unrealized_pnl, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trade_id) DO UPDATE SET
			close_cost = excluded.close_cost,
			current_value = excluded.current_value,
			unrealized_pnl = excluded.unrealized_pnl,
			updated_at = excluded.updated_at
	`, pos.ID, pos.TradeID, pos.Underlying, pos.ShortStrike, pos.LongStrike, pos.Expiration.Format(models.DateLayout),
		pos.Contracts, pos.CloseCost, pos.CurrentValue, pos.UnrealizedPnL, pos.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert position: %w", err)
	}
	return nil
}

// GetPositions returns all position marks.
func (s *SQLiteStore) GetPositions(ctx context.Context) ([]models.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trade_id, underlying, short_strike, long_strike, expiration, contracts,
			close_cost, current_value, unrealized_pnl, updated_at
		FROM positions ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []models.Position
	for rows.Next() {
		var p models.Position
		var expiration string
		var closeCost, value, pnl sql.NullFloat64
		if err := rows.Scan(&p.ID, &p.TradeID, &p.Underlying, &p.ShortStrike, &p.LongStrike, &expiration,
			&p.Contracts, &closeCost, &value, &pnl, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		p.Expiration, _ = time.Parse(models.DateLayout, expiration)
		p.CloseCost = closeCost.Float64
		p.CurrentValue = value.Float64
		p.UnrealizedPnL = pnl.Float64
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// DeletePositionByTrade removes the mark for a trade. Missing rows are not an error.
func (s *SQLiteStore) DeletePositionByTrade(ctx context.Context, tradeID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM positions WHERE trade_id = ?", tradeID); err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}
	return nil
}

// ============================================================================
// Playbook
// ============================================================================

// AddPlaybookRule stores a playbook rule.
func (s *SQLiteStore) AddPlaybookRule(ctx context.Context, rule *models.PlaybookRule) error {
	_, err := s.db.ExecContext(ctx, "INSERT OR REPLACE INTO playbook (id, rule, source, created_at) VALUES (?, ?, ?, ?)",
		rule.ID, rule.Rule, rule.Source, rule.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to add playbook rule: %w", err)
	}
	return nil
}

// GetPlaybookRules returns all playbook rules, oldest first.
func (s *SQLiteStore) GetPlaybookRules(ctx context.Context) ([]models.PlaybookRule, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, rule, source, created_at FROM playbook ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("failed to query playbook: %w", err)
	}
	defer rows.Close()

	var rules []models.PlaybookRule
	for rows.Next() {
		var r models.PlaybookRule
		if err := rows.Scan(&r.ID, &r.Rule, &r.Source, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan playbook rule: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// ============================================================================
// IV History
// ============================================================================

// SaveIVObservation upserts one daily IV reading.
func (s *SQLiteStore) SaveIVObservation(ctx context.Context, obs models.IVObservation) error {
	_, err := s.db.ExecContext(ctx, "INSERT OR REPLACE INTO iv_history (symbol, date, iv) VALUES (?, ?, ?)",
		obs.Symbol, obs.Date.Format(models.DateLayout), obs.IV)
	if err != nil {
		return fmt.Errorf("failed to save iv observation: %w", err)
	}
	return nil
}

// GetIVHistory returns up to limit most recent readings in ascending date order.
func (s *SQLiteStore) GetIVHistory(ctx context.Context, symbol string, limit int) ([]models.IVObservation, error) {
	if limit <= 0 {
		limit = 252
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, date, iv FROM (
			SELECT symbol, date, iv FROM iv_history WHERE symbol = ? ORDER BY date DESC LIMIT ?
		) ORDER BY date ASC
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query iv history: %w", err)
	}
	defer rows.Close()

	var out []models.IVObservation
	for rows.Next() {
		var o models.IVObservation
		var date string
		if err := rows.Scan(&o.Symbol, &date, &o.IV); err != nil {
			return nil, fmt.Errorf("failed to scan iv observation: %w", err)
		}
		o.Date, _ = time.Parse(models.DateLayout, date)
		out = append(out, o)
	}
	return out, rows.Err()
}

// ============================================================================
// Daily Performance
// ============================================================================

// SaveDailyPerformance upserts the summary for a date.
func (s *SQLiteStore) SaveDailyPerformance(ctx context.Context, p *models.DailyPerformance) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO daily_performance (date, starting_balance, ending_balance, realized_pnl,
			trades_opened, trades_closed, win_count, loss_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.Date, p.StartingBalance, p.EndingBalance, p.RealizedPnL, p.TradesOpened, p.TradesClosed, p.WinCount, p.LossCount)
	if err != nil {
		return fmt.Errorf("failed to save daily performance: %w", err)
	}
	return nil
}

// GetDailyPerformance returns the summary for a date.
func (s *SQLiteStore) GetDailyPerformance(ctx context.Context, date string) (*models.DailyPerformance, error) {
	var p models.DailyPerformance
	err := s.db.QueryRowContext(ctx, `
		SELECT date, starting_balance, ending_balance, realized_pnl, trades_opened, trades_closed, win_count, loss_count
		FROM daily_performance WHERE date = ?
	`, date).Scan(&p.Date, &p.StartingBalance, &p.EndingBalance, &p.RealizedPnL, &p.TradesOpened, &p.TradesClosed,
		&p.WinCount, &p.LossCount)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("daily performance %s: %w", date, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get daily performance: %w", err)
	}
	return &p, nil
}

// ============================================================================
// Helpers
// ============================================================================

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
