package combat

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS air_exchange_ratios (
	our_class   TEXT NOT NULL,
	enemy_class TEXT NOT NULL,
	our_ratio   REAL NOT NULL,
	enemy_ratio REAL NOT NULL,
	PRIMARY KEY (our_class, enemy_class)
);

CREATE TABLE IF NOT EXISTS ground_defense_rates (
	ground_class   TEXT PRIMARY KEY,
	detection_rate REAL NOT NULL
);
`

// SQLSource loads combat parameters from a SQLite database. A missing or
// partially populated database is not an error; the cache fills the gaps
// with defaults.
type SQLSource struct {
	db  *sql.DB
	log *zap.Logger
}

// OpenSQLSource opens (creating if needed) the parameter database at path
// and ensures the schema exists.
func OpenSQLSource(path string, log *zap.Logger) (*SQLSource, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open parameter database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure parameter schema: %w", err)
	}
	return &SQLSource{db: db, log: log}, nil
}

// Close releases the database handle.
func (s *SQLSource) Close() error {
	return s.db.Close()
}

// Load reads both parameter tables. A failure in one table is logged and the
// other table is still returned; Load errors only when neither table could
// be read.
func (s *SQLSource) Load(ctx context.Context) (ExchangeTable, DefenseTable, error) {
	exchange, exchangeErr := s.loadExchange(ctx)
	if exchangeErr != nil {
		s.log.Warn("loading air exchange ratios failed", zap.Error(exchangeErr))
	}
	defense, defenseErr := s.loadDefense(ctx)
	if defenseErr != nil {
		s.log.Warn("loading ground defense rates failed", zap.Error(defenseErr))
	}
	if exchangeErr != nil && defenseErr != nil {
		return nil, nil, fmt.Errorf("load combat parameters: %w", exchangeErr)
	}
	return exchange, defense, nil
}

func (s *SQLSource) loadExchange(ctx context.Context) (ExchangeTable, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT our_class, enemy_class, our_ratio, enemy_ratio FROM air_exchange_ratios`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	table := make(ExchangeTable)
	for rows.Next() {
		var key ExchangeKey
		var ratio ExchangeRatio
		if err := rows.Scan(&key.Ours, &key.Theirs, &ratio.Ours, &ratio.Theirs); err != nil {
			return nil, err
		}
		table[key] = ratio
	}
	return table, rows.Err()
}

func (s *SQLSource) loadDefense(ctx context.Context) (DefenseTable, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ground_class, detection_rate FROM ground_defense_rates`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	table := make(DefenseTable)
	for rows.Next() {
		var class string
		var rate float64
		if err := rows.Scan(&class, &rate); err != nil {
			return nil, err
		}
		table[class] = rate
	}
	return table, rows.Err()
}

// PutExchangeRatio inserts or replaces one air exchange ratio row.
func (s *SQLSource) PutExchangeRatio(ctx context.Context, ours, theirs string, ourRatio, enemyRatio float64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO air_exchange_ratios (our_class, enemy_class, our_ratio, enemy_ratio) VALUES (?, ?, ?, ?)`,
		ours, theirs, ourRatio, enemyRatio)
	if err != nil {
		return fmt.Errorf("put exchange ratio %s/%s: %w", ours, theirs, err)
	}
	return nil
}

// PutDefenseRate inserts or replaces one ground defense rate row.
func (s *SQLSource) PutDefenseRate(ctx context.Context, class string, rate float64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO ground_defense_rates (ground_class, detection_rate) VALUES (?, ?)`,
		class, rate)
	if err != nil {
		return fmt.Errorf("put defense rate %s: %w", class, err)
	}
	return nil
}
