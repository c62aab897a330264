package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/patrickwarner/moovie-ads/internal/models"
)

// ErrDuplicatePosition is returned when a zone reuses a (page, position) pair.
var ErrDuplicatePosition = errors.New("zone position already used on this page")

// Postgres wraps a postgres DB connection.
type Postgres struct {
	DB *sql.DB
}

// schemaSQL sets up the necessary tables if they don't exist.
const schemaSQL = `CREATE TABLE IF NOT EXISTS ad_networks (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    is_enabled BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS ad_scripts (
    id TEXT PRIMARY KEY,
    network_id TEXT NOT NULL REFERENCES ad_networks(id) ON DELETE CASCADE,
    ad_type TEXT NOT NULL,
    script TEXT NOT NULL,
    is_enabled BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS ad_zones (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    page TEXT NOT NULL,
    position TEXT NOT NULL,
    ad_type TEXT NOT NULL,
    script_id TEXT,
    is_enabled BOOLEAN NOT NULL DEFAULT TRUE,
    rotation BOOLEAN NOT NULL DEFAULT TRUE,
    lazy_load BOOLEAN NOT NULL DEFAULT FALSE,
    trigger TEXT,
    delay INT NOT NULL DEFAULT 0,
    frequency INT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS ad_settings (
    id INT PRIMARY KEY CHECK (id = 1),
    master_enabled BOOLEAN NOT NULL DEFAULT TRUE,
    test_mode BOOLEAN NOT NULL DEFAULT FALSE,
    popup_frequency_cap INT NOT NULL DEFAULT 3,
    header_scripts TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_ad_zones_page_position ON ad_zones (page, position);
CREATE INDEX IF NOT EXISTS idx_ad_scripts_type_enabled ON ad_scripts (ad_type, is_enabled);
CREATE INDEX IF NOT EXISTS idx_ad_scripts_network_id ON ad_scripts (network_id);
`

// uniqueViolation is the postgres error code for unique constraint failures.
const uniqueViolation = "23505"

// InitPostgres connects to Postgres with connection pooling configuration.
func InitPostgres(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (*Postgres, error) {
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(
			attribute.String("db.system", "postgresql"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	p := &Postgres{DB: db}
	if err := p.ensureSchema(); err != nil {
		return nil, err
	}
	zap.L().Info("Connected to Postgres with connection pooling",
		zap.Int("max_open_conns", maxOpenConns),
		zap.Int("max_idle_conns", maxIdleConns),
		zap.Duration("conn_max_lifetime", connMaxLifetime))
	return p, nil
}

// Close terminates the Postgres connection.
func (p *Postgres) Close() {
	if p != nil && p.DB != nil {
		if err := p.DB.Close(); err != nil {
			zap.L().Error("postgres close", zap.Error(err))
		}
	}
}

// ensureSchema creates the required tables and the settings row.
func (p *Postgres) ensureSchema() error {
	ctx := context.Background()
	if _, err := p.DB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	def := models.DefaultAdSettings()
	if _, err := p.DB.ExecContext(ctx, `INSERT INTO ad_settings (id, master_enabled, test_mode, popup_frequency_cap, header_scripts)
        VALUES (1,$1,$2,$3,$4) ON CONFLICT (id) DO NOTHING`,
		def.MasterEnabled, def.TestMode, def.PopupFrequencyCap, def.HeaderScripts); err != nil {
		return fmt.Errorf("seed ad settings: %w", err)
	}
	return nil
}

// ===== Settings =====

// LoadSettings reads the singleton settings row.
func (p *Postgres) LoadSettings(ctx context.Context) (models.AdSettings, error) {
	var s models.AdSettings
	err := p.DB.QueryRowContext(ctx, `SELECT master_enabled, test_mode, popup_frequency_cap, header_scripts FROM ad_settings WHERE id=1`).
		Scan(&s.MasterEnabled, &s.TestMode, &s.PopupFrequencyCap, &s.HeaderScripts)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DefaultAdSettings(), nil
	}
	if err != nil {
		return models.AdSettings{}, fmt.Errorf("query settings: %w", err)
	}
	return s, nil
}

// SaveSettings upserts the singleton settings row.
func (p *Postgres) SaveSettings(ctx context.Context, s models.AdSettings) error {
	_, err := p.DB.ExecContext(ctx, `INSERT INTO ad_settings (id, master_enabled, test_mode, popup_frequency_cap, header_scripts)
        VALUES (1,$1,$2,$3,$4)
        ON CONFLICT (id) DO UPDATE SET master_enabled=EXCLUDED.master_enabled, test_mode=EXCLUDED.test_mode,
            popup_frequency_cap=EXCLUDED.popup_frequency_cap, header_scripts=EXCLUDED.header_scripts`,
		s.MasterEnabled, s.TestMode, s.PopupFrequencyCap, s.HeaderScripts)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// ===== Networks =====

// LoadNetworks fetches all ad networks.
func (p *Postgres) LoadNetworks(ctx context.Context) ([]models.AdNetwork, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT id, name, is_enabled, created_at FROM ad_networks ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query networks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	var ns []models.AdNetwork
	for rows.Next() {
		var n models.AdNetwork
		if err := rows.Scan(&n.ID, &n.Name, &n.IsEnabled, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan network: %w", err)
		}
		ns = append(ns, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return ns, nil
}

// InsertNetwork inserts a network, generating its ID and creation time.
func (p *Postgres) InsertNetwork(ctx context.Context, n *models.AdNetwork) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	err := p.DB.QueryRowContext(ctx, `INSERT INTO ad_networks (id, name, is_enabled) VALUES ($1,$2,$3) RETURNING created_at`,
		n.ID, n.Name, n.IsEnabled).Scan(&n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert network: %w", err)
	}
	return nil
}

// UpdateNetwork updates an existing network.
func (p *Postgres) UpdateNetwork(ctx context.Context, n models.AdNetwork) error {
	res, err := p.DB.ExecContext(ctx, `UPDATE ad_networks SET name=$1, is_enabled=$2 WHERE id=$3`, n.Name, n.IsEnabled, n.ID)
	if err != nil {
		return fmt.Errorf("update network: %w", err)
	}
	return requireAffected(res)
}

// DeleteNetwork removes a network. Its scripts are removed by cascade.
func (p *Postgres) DeleteNetwork(ctx context.Context, id string) error {
	res, err := p.DB.ExecContext(ctx, `DELETE FROM ad_networks WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete network: %w", err)
	}
	return requireAffected(res)
}

// ===== Scripts =====

// LoadScripts fetches scripts, optionally restricted to one network.
func (p *Postgres) LoadScripts(ctx context.Context, networkID string) ([]models.AdScript, error) {
	query := `SELECT id, network_id, ad_type, script, is_enabled, created_at FROM ad_scripts`
	var args []any
	if networkID != "" {
		query += ` WHERE network_id=$1`
		args = append(args, networkID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := p.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query scripts: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	var scripts []models.AdScript
	for rows.Next() {
		var s models.AdScript
		var adType string
		if err := rows.Scan(&s.ID, &s.NetworkID, &adType, &s.Script, &s.IsEnabled, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan script: %w", err)
		}
		s.AdType = models.AdType(adType)
		scripts = append(scripts, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return scripts, nil
}

// InsertScript inserts a script, generating its ID and creation time.
func (p *Postgres) InsertScript(ctx context.Context, s *models.AdScript) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	err := p.DB.QueryRowContext(ctx, `INSERT INTO ad_scripts (id, network_id, ad_type, script, is_enabled) VALUES ($1,$2,$3,$4,$5) RETURNING created_at`,
		s.ID, s.NetworkID, string(s.AdType), s.Script, s.IsEnabled).Scan(&s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert script: %w", err)
	}
	return nil
}

// UpdateScript updates an existing script.
func (p *Postgres) UpdateScript(ctx context.Context, s models.AdScript) error {
	res, err := p.DB.ExecContext(ctx, `UPDATE ad_scripts SET network_id=$1, ad_type=$2, script=$3, is_enabled=$4 WHERE id=$5`,
		s.NetworkID, string(s.AdType), s.Script, s.IsEnabled, s.ID)
	if err != nil {
		return fmt.Errorf("update script: %w", err)
	}
	return requireAffected(res)
}

// DeleteScript removes a script by ID.
func (p *Postgres) DeleteScript(ctx context.Context, id string) error {
	res, err := p.DB.ExecContext(ctx, `DELETE FROM ad_scripts WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete script: %w", err)
	}
	return requireAffected(res)
}

// ===== Zones =====

// LoadZones fetches zones, optionally restricted to one page.
func (p *Postgres) LoadZones(ctx context.Context, page models.Page) ([]models.AdZone, error) {
	query := `SELECT id, name, page, position, ad_type, script_id, is_enabled, rotation, lazy_load, trigger, delay, frequency, created_at FROM ad_zones`
	var args []any
	if page != "" {
		query += ` WHERE page=$1`
		args = append(args, string(page))
	}
	query += ` ORDER BY created_at, id`

	rows, err := p.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query zones: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	var zones []models.AdZone
	for rows.Next() {
		var z models.AdZone
		var pg, adType string
		var scriptID, trigger sql.NullString
		if err := rows.Scan(&z.ID, &z.Name, &pg, &z.Position, &adType, &scriptID, &z.IsEnabled, &z.Rotation, &z.LazyLoad, &trigger, &z.Delay, &z.Frequency, &z.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan zone: %w", err)
		}
		z.Page = models.Page(pg)
		z.AdType = models.AdType(adType)
		if scriptID.Valid {
			z.ScriptID = scriptID.String
		}
		if trigger.Valid {
			z.Trigger = models.Trigger(trigger.String)
		}
		zones = append(zones, z)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return zones, nil
}

// FetchZones returns every zone. It satisfies the zone cache source.
func (p *Postgres) FetchZones(ctx context.Context) ([]models.AdZone, error) {
	return p.LoadZones(ctx, "")
}

// InsertZone inserts a zone, generating its ID and creation time.
func (p *Postgres) InsertZone(ctx context.Context, z *models.AdZone) error {
	if z.ID == "" {
		z.ID = uuid.NewString()
	}
	err := p.DB.QueryRowContext(ctx, `INSERT INTO ad_zones (id, name, page, position, ad_type, script_id, is_enabled, rotation, lazy_load, trigger, delay, frequency)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING created_at`,
		z.ID, z.Name, string(z.Page), z.Position, string(z.AdType), nullString(z.ScriptID), z.IsEnabled, z.Rotation, z.LazyLoad,
		nullString(string(z.Trigger)), z.Delay, z.Frequency).Scan(&z.CreatedAt)
	if err != nil {
		return translateZoneErr("insert zone", err)
	}
	return nil
}

// UpdateZone updates an existing zone.
func (p *Postgres) UpdateZone(ctx context.Context, z models.AdZone) error {
	res, err := p.DB.ExecContext(ctx, `UPDATE ad_zones SET name=$1, page=$2, position=$3, ad_type=$4, script_id=$5, is_enabled=$6,
        rotation=$7, lazy_load=$8, trigger=$9, delay=$10, frequency=$11 WHERE id=$12`,
		z.Name, string(z.Page), z.Position, string(z.AdType), nullString(z.ScriptID), z.IsEnabled, z.Rotation, z.LazyLoad,
		nullString(string(z.Trigger)), z.Delay, z.Frequency, z.ID)
	if err != nil {
		return translateZoneErr("update zone", err)
	}
	return requireAffected(res)
}

// DeleteZone removes a zone by ID.
func (p *Postgres) DeleteZone(ctx context.Context, id string) error {
	res, err := p.DB.ExecContext(ctx, `DELETE FROM ad_zones WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete zone: %w", err)
	}
	return requireAffected(res)
}

func translateZoneErr(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", op, ErrDuplicatePosition)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
