package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/geodex/geodex/pkg/errors"
)

// Database mirrors the archive tree in Postgres so inventories over wide
// extents resolve in one round trip instead of many directory walks. Rows
// are written at archive time; the filesystem stays authoritative.
type Database struct {
	pool   *pgxpool.Pool
	driver string
}

var _ Inventory = (*Database)(nil)

// NewDatabase binds a connection pool to one driver's index.
func NewDatabase(pool *pgxpool.Pool, driver string) *Database {
	return &Database{pool: pool, driver: driver}
}

// Connect opens a pool against the configured DSN and verifies it.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeBackendConnect, "parsing database DSN", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeBackendConnect, "creating connection pool", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, errors.Wrap(errors.ErrCodeBackendConnect, "pinging database", err)
	}
	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS asset (
    id         BIGSERIAL PRIMARY KEY,
    name       TEXT NOT NULL,
    driver     TEXT NOT NULL,
    asset_type TEXT NOT NULL,
    tile       TEXT NOT NULL,
    sensor     TEXT NOT NULL,
    date       DATE NOT NULL,
    UNIQUE (driver, asset_type, tile, date)
);
CREATE TABLE IF NOT EXISTS product (
    id      BIGSERIAL PRIMARY KEY,
    name    TEXT NOT NULL,
    driver  TEXT NOT NULL,
    product TEXT NOT NULL,
    sensor  TEXT NOT NULL,
    tile    TEXT NOT NULL,
    date    DATE NOT NULL,
    UNIQUE (driver, product, sensor, tile, date)
);
CREATE INDEX IF NOT EXISTS asset_driver_date_idx ON asset (driver, date);
CREATE INDEX IF NOT EXISTS product_driver_date_idx ON product (driver, date);
`

// EnsureSchema creates the index tables if missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return errors.Wrap(errors.ErrCodeBackendUpdate, "creating index schema", err)
	}
	return nil
}

// normalizeDate strips the timezone a DATE column scan attaches.
func normalizeDate(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

func (db *Database) ListTiles(ctx context.Context) ([]string, error) {
	query := `
		SELECT tile FROM (
			SELECT tile FROM asset WHERE driver = $1
			UNION
			SELECT tile FROM product WHERE driver = $1
		) t ORDER BY tile
	`
	rows, err := db.pool.Query(ctx, query, db.driver)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeBackendQuery, "listing tiles", err)
	}
	defer rows.Close()

	var tiles []string
	for rows.Next() {
		var tile string
		if err := rows.Scan(&tile); err != nil {
			return nil, errors.Wrap(errors.ErrCodeBackendQuery, "scanning tile", err)
		}
		tiles = append(tiles, tile)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeBackendQuery, "listing tiles", err)
	}
	return tiles, nil
}

func (db *Database) ListDates(ctx context.Context, tile string) ([]time.Time, error) {
	query := `
		SELECT date FROM (
			SELECT date FROM asset WHERE driver = $1 AND tile = $2
			UNION
			SELECT date FROM product WHERE driver = $1 AND tile = $2
		) t ORDER BY date
	`
	rows, err := db.pool.Query(ctx, query, db.driver, tile)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeBackendQuery, "listing dates", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, errors.Wrap(errors.ErrCodeBackendQuery, "scanning date", err)
		}
		dates = append(dates, normalizeDate(d))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeBackendQuery, "listing dates", err)
	}
	return dates, nil
}

// where renders the criteria as SQL clauses. typeCol is the record-kind
// column the AssetType or Product field filters on.
func (db *Database) where(c SearchCriteria, typeCol, typeVal string) (string, []interface{}) {
	clauses := []string{"driver = $1"}
	args := []interface{}{db.driver}
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if typeVal != "" {
		add(typeCol+" = $%d", typeVal)
	}
	if c.Sensor != "" {
		add("sensor = $%d", c.Sensor)
	}
	if len(c.Tiles) > 0 {
		add("tile = ANY($%d)", c.Tiles)
	}
	if !c.Date.IsZero() {
		add("date = $%d", c.Date)
	}
	if !c.StartDate.IsZero() {
		add("date >= $%d", c.StartDate)
	}
	if !c.EndDate.IsZero() {
		add("date <= $%d", c.EndDate)
	}
	return strings.Join(clauses, " AND "), args
}

func (db *Database) AssetSearch(ctx context.Context, c SearchCriteria) ([]AssetRecord, error) {
	where, args := db.where(c, "asset_type", c.AssetType)
	query := fmt.Sprintf(`
		SELECT name, driver, asset_type, tile, sensor, date
		FROM asset WHERE %s
		ORDER BY tile, date, asset_type
	`, where)
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeBackendQuery, "asset search", err)
	}
	defer rows.Close()

	var out []AssetRecord
	for rows.Next() {
		var rec AssetRecord
		if err := rows.Scan(&rec.Name, &rec.Driver, &rec.AssetType, &rec.Tile, &rec.Sensor, &rec.Date); err != nil {
			return nil, errors.Wrap(errors.ErrCodeBackendQuery, "scanning asset row", err)
		}
		rec.Date = normalizeDate(rec.Date)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeBackendQuery, "asset search", err)
	}
	return out, nil
}

func (db *Database) ProductSearch(ctx context.Context, c SearchCriteria) ([]ProductRecord, error) {
	where, args := db.where(c, "product", c.Product)
	query := fmt.Sprintf(`
		SELECT name, driver, product, sensor, tile, date
		FROM product WHERE %s
		ORDER BY tile, date, product
	`, where)
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeBackendQuery, "product search", err)
	}
	defer rows.Close()

	var out []ProductRecord
	for rows.Next() {
		var rec ProductRecord
		if err := rows.Scan(&rec.Name, &rec.Driver, &rec.Product, &rec.Sensor, &rec.Tile, &rec.Date); err != nil {
			return nil, errors.Wrap(errors.ErrCodeBackendQuery, "scanning product row", err)
		}
		rec.Date = normalizeDate(rec.Date)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeBackendQuery, "product search", err)
	}
	return out, nil
}

func (db *Database) UpdateOrAddAsset(ctx context.Context, rec AssetRecord) error {
	query := `
		INSERT INTO asset (name, driver, asset_type, tile, sensor, date)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (driver, asset_type, tile, date)
		DO UPDATE SET name = EXCLUDED.name, sensor = EXCLUDED.sensor
	`
	_, err := db.pool.Exec(ctx, query,
		rec.Name, db.driver, rec.AssetType, rec.Tile, rec.Sensor, rec.Date)
	if err != nil {
		return errors.Wrap(errors.ErrCodeBackendUpdate,
			fmt.Sprintf("upserting asset %s", rec.Name), err)
	}
	return nil
}

func (db *Database) UpdateOrAddProduct(ctx context.Context, rec ProductRecord) error {
	query := `
		INSERT INTO product (name, driver, product, sensor, tile, date)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (driver, product, sensor, tile, date)
		DO UPDATE SET name = EXCLUDED.name
	`
	_, err := db.pool.Exec(ctx, query,
		rec.Name, db.driver, rec.Product, rec.Sensor, rec.Tile, rec.Date)
	if err != nil {
		return errors.Wrap(errors.ErrCodeBackendUpdate,
			fmt.Sprintf("upserting product %s", rec.Name), err)
	}
	return nil
}

func (db *Database) DeleteProduct(ctx context.Context, product, tile string, date time.Time) error {
	query := `
		DELETE FROM product
		WHERE driver = $1 AND product = $2 AND tile = $3 AND date = $4
	`
	if _, err := db.pool.Exec(ctx, query, db.driver, product, tile, date); err != nil {
		return errors.Wrap(errors.ErrCodeBackendUpdate,
			fmt.Sprintf("deleting product row %s/%s", tile, product), err)
	}
	return nil
}
