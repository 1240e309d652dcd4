package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/equitee/equitee-api/internal/db"
	"github.com/equitee/equitee-api/internal/geo"
	"github.com/equitee/equitee-api/internal/model"
)

// PostgresStore implements Store on Postgres with PostGIS.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres connects a pool and returns a PostgresStore that owns it.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			pgxCfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			pgxCfg.MinConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Close does not close it.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS facilities (
	id                       TEXT PRIMARY KEY,
	kind                     TEXT NOT NULL,
	name                     TEXT NOT NULL,
	address                  TEXT,
	county                   TEXT,
	lat                      DOUBLE PRECISION,
	lng                      DOUBLE PRECISION,
	geom                     geometry(Point, 4326),
	price_min                DOUBLE PRECISION,
	price_max                DOUBLE PRECISION,
	price                    DOUBLE PRECISION,
	youth_programs           BOOLEAN NOT NULL DEFAULT false,
	equipment_rental         BOOLEAN NOT NULL DEFAULT false,
	transportation_available BOOLEAN NOT NULL DEFAULT false,
	difficulty_rating        DOUBLE PRECISION,
	website                  TEXT,
	specialties              TEXT[],
	experience_years         INTEGER,
	available                BOOLEAN NOT NULL DEFAULT false,
	organization             TEXT,
	age_min                  INTEGER,
	age_max                  INTEGER,
	updated_at               TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_facilities_kind ON facilities(kind);
CREATE INDEX IF NOT EXISTS idx_facilities_geom ON facilities USING GIST (geom);
CREATE INDEX IF NOT EXISTS idx_facilities_geog ON facilities USING GIST ((geom::geography));

CREATE TABLE IF NOT EXISTS demographic_areas (
	zip_code      TEXT PRIMARY KEY,
	median_income DOUBLE PRECISION NOT NULL,
	population    INTEGER,
	county        TEXT,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS accessibility_scores (
	zip_code              TEXT NOT NULL,
	facility_id           TEXT NOT NULL,
	facility_kind         TEXT NOT NULL,
	accessibility_score   DOUBLE PRECISION NOT NULL,
	distance_miles        DOUBLE PRECISION NOT NULL,
	estimated_annual_cost INTEGER NOT NULL,
	transport_score       INTEGER NOT NULL,
	computed_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (zip_code, facility_id)
);

CREATE INDEX IF NOT EXISTS idx_accessibility_scores_score ON accessibility_scores(accessibility_score);
`

// Migrate implements Store.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Ping checks connectivity for health endpoints.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

const facilityColumns = `id, kind, name, COALESCE(address, ''), COALESCE(county, ''), lat, lng,
	price_min, price_max, price, youth_programs, equipment_rental, transportation_available,
	difficulty_rating, COALESCE(website, ''), COALESCE(specialties, '{}'), experience_years,
	available, COALESCE(organization, ''), age_min, age_max`

func scanFacility(row pgx.Row) (*model.Facility, error) {
	var (
		f        model.Facility
		kind     string
		lat, lng *float64
	)
	err := row.Scan(
		&f.ID, &kind, &f.Name, &f.Address, &f.County, &lat, &lng,
		&f.PriceMin, &f.PriceMax, &f.Price, &f.YouthPrograms, &f.EquipmentRental, &f.TransportationAvailable,
		&f.DifficultyRating, &f.Website, &f.Specialties, &f.ExperienceYears,
		&f.Available, &f.Organization, &f.AgeMin, &f.AgeMax,
	)
	if err != nil {
		return nil, err
	}
	f.Kind = model.Kind(kind)
	if lat != nil && lng != nil {
		f.Location = &model.Coordinate{Lat: *lat, Lng: *lng}
	}
	return &f, nil
}

// ListFacilities implements FacilityStore.
func (s *PostgresStore) ListFacilities(ctx context.Context, kind model.Kind, filter FacilityFilter) ([]model.Facility, error) {
	where := []string{"kind = $1"}
	args := []any{string(kind)}
	for _, flag := range filter.sortedFlags() {
		col, err := flagColumn(flag)
		if err != nil {
			return nil, err
		}
		args = append(args, filter.Flags[flag])
		where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if filter.AvailableOnly {
		where = append(where, "available")
	}
	if c := filter.Within; c.active() {
		args = append(args, c.Center.Lng, c.Center.Lat, c.meters())
		where = append(where, fmt.Sprintf(
			"ST_DWithin(geom::geography, ST_SetSRID(ST_MakePoint($%d, $%d), 4326)::geography, $%d, false)",
			len(args)-2, len(args)-1, len(args)))
	}

	sql := "SELECT " + facilityColumns + " FROM facilities WHERE " + strings.Join(where, " AND ") + " ORDER BY id"
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list facilities")
	}
	defer rows.Close()

	out := make([]model.Facility, 0)
	for rows.Next() {
		f, err := scanFacility(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan facility row")
		}
		out = append(out, *f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate facility rows")
}

// GetFacility implements FacilityStore.
func (s *PostgresStore) GetFacility(ctx context.Context, id string) (*model.Facility, error) {
	f, err := scanFacility(s.pool.QueryRow(ctx, "SELECT "+facilityColumns+" FROM facilities WHERE id = $1", id))
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: facility %s", id)
		}
		return nil, eris.Wrap(err, "postgres: get facility")
	}
	return f, nil
}

const upsertFacilitySQL = `
	INSERT INTO facilities (
		id, kind, name, address, county, lat, lng, geom,
		price_min, price_max, price, youth_programs, equipment_rental, transportation_available,
		difficulty_rating, website, specialties, experience_years, available, organization, age_min, age_max
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, ST_GeomFromEWKB($8),
		$9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22
	)
	ON CONFLICT (id) DO UPDATE SET
		kind = EXCLUDED.kind,
		name = EXCLUDED.name,
		address = EXCLUDED.address,
		county = EXCLUDED.county,
		lat = EXCLUDED.lat,
		lng = EXCLUDED.lng,
		geom = EXCLUDED.geom,
		price_min = EXCLUDED.price_min,
		price_max = EXCLUDED.price_max,
		price = EXCLUDED.price,
		youth_programs = EXCLUDED.youth_programs,
		equipment_rental = EXCLUDED.equipment_rental,
		transportation_available = EXCLUDED.transportation_available,
		difficulty_rating = EXCLUDED.difficulty_rating,
		website = EXCLUDED.website,
		specialties = EXCLUDED.specialties,
		experience_years = EXCLUDED.experience_years,
		available = EXCLUDED.available,
		organization = EXCLUDED.organization,
		age_min = EXCLUDED.age_min,
		age_max = EXCLUDED.age_max,
		updated_at = now()
`

// UpsertFacilities implements FacilityStore. Facilities with a location get
// a PostGIS point alongside the plain lat/lng columns.
func (s *PostgresStore) UpsertFacilities(ctx context.Context, facilities []model.Facility) (int64, error) {
	if len(facilities) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert facilities: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var n int64
	for _, f := range facilities {
		var (
			lat, lng *float64
			point    []byte
		)
		if f.Location != nil {
			lat, lng = &f.Location.Lat, &f.Location.Lng
			if point, err = geo.PointEWKB(*f.Location); err != nil {
				return 0, eris.Wrapf(err, "postgres: encode location of %s", f.ID)
			}
		}
		tag, err := tx.Exec(ctx, upsertFacilitySQL,
			f.ID, string(f.Kind), f.Name, f.Address, f.County, lat, lng, point,
			f.PriceMin, f.PriceMax, f.Price, f.YouthPrograms, f.EquipmentRental, f.TransportationAvailable,
			f.DifficultyRating, f.Website, f.Specialties, f.ExperienceYears, f.Available, f.Organization, f.AgeMin, f.AgeMax,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: upsert facility %s", f.ID)
		}
		n += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: upsert facilities: commit")
	}
	return n, nil
}

// ListAreas implements DemographicStore.
func (s *PostgresStore) ListAreas(ctx context.Context) ([]model.DemographicArea, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT zip_code, median_income, population, COALESCE(county, '') FROM demographic_areas ORDER BY zip_code`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list areas")
	}
	defer rows.Close()

	out := make([]model.DemographicArea, 0)
	for rows.Next() {
		var a model.DemographicArea
		if err := rows.Scan(&a.ZipCode, &a.MedianIncome, &a.Population, &a.County); err != nil {
			return nil, eris.Wrap(err, "postgres: scan area row")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate area rows")
}

// GetArea implements DemographicStore.
func (s *PostgresStore) GetArea(ctx context.Context, zip string) (*model.DemographicArea, error) {
	var a model.DemographicArea
	err := s.pool.QueryRow(ctx,
		`SELECT zip_code, median_income, population, COALESCE(county, '') FROM demographic_areas WHERE zip_code = $1`, zip,
	).Scan(&a.ZipCode, &a.MedianIncome, &a.Population, &a.County)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: area %s", zip)
		}
		return nil, eris.Wrap(err, "postgres: get area")
	}
	return &a, nil
}

// UpsertAreas implements DemographicStore.
func (s *PostgresStore) UpsertAreas(ctx context.Context, areas []model.DemographicArea) (int64, error) {
	rows := make([][]any, len(areas))
	for i, a := range areas {
		rows[i] = []any{a.ZipCode, a.MedianIncome, a.Population, a.County}
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "demographic_areas",
		Columns:      []string{"zip_code", "median_income", "population", "county"},
		ConflictKeys: []string{"zip_code"},
		TouchColumn:  "updated_at",
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert areas")
}

var recordColumns = []string{
	"zip_code", "facility_id", "facility_kind", "accessibility_score",
	"distance_miles", "estimated_annual_cost", "transport_score", "computed_at",
}

var recordSelect = "SELECT " + strings.Join(recordColumns, ", ") + " FROM accessibility_scores"

func scanRecord(row pgx.Row) (*model.AccessibilityScoreRecord, error) {
	var (
		r    model.AccessibilityScoreRecord
		kind string
	)
	if err := row.Scan(
		&r.ZipCode, &r.FacilityID, &kind, &r.AccessibilityScore,
		&r.DistanceMiles, &r.EstimatedAnnualCost, &r.TransportScore, &r.ComputedAt,
	); err != nil {
		return nil, err
	}
	r.FacilityKind = model.Kind(kind)
	return &r, nil
}

func (s *PostgresStore) queryRecords(ctx context.Context, op, sql string, args ...any) ([]model.AccessibilityScoreRecord, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: %s", op)
	}
	defer rows.Close()

	out := make([]model.AccessibilityScoreRecord, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan score row")
		}
		out = append(out, *r)
	}
	return out, eris.Wrapf(rows.Err(), "postgres: %s", op)
}

// DeleteAll implements ScoreRecordStore.
func (s *PostgresStore) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM accessibility_scores`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete scores")
	}
	return tag.RowsAffected(), nil
}

// InsertBatch implements ScoreRecordStore using COPY.
func (s *PostgresStore) InsertBatch(ctx context.Context, records []model.AccessibilityScoreRecord) (int64, error) {
	rows := make([][]any, len(records))
	for i, r := range records {
		rows[i] = []any{
			r.ZipCode, r.FacilityID, string(r.FacilityKind), r.AccessibilityScore,
			r.DistanceMiles, int32(r.EstimatedAnnualCost), int32(r.TransportScore), r.ComputedAt,
		}
	}
	return db.CopyFrom(ctx, s.pool, "accessibility_scores", recordColumns, rows)
}

// ListByScore implements ScoreRecordStore.
func (s *PostgresStore) ListByScore(ctx context.Context, ascending bool, limit int) ([]model.AccessibilityScoreRecord, error) {
	dir := "DESC"
	if ascending {
		dir = "ASC"
	}
	sql := fmt.Sprintf("%s ORDER BY accessibility_score %s, zip_code, facility_id", recordSelect, dir)
	if limit > 0 {
		return s.queryRecords(ctx, "list scores", sql+" LIMIT $1", limit)
	}
	return s.queryRecords(ctx, "list scores", sql)
}

// ListByZip implements ScoreRecordStore.
func (s *PostgresStore) ListByZip(ctx context.Context, zip string) ([]model.AccessibilityScoreRecord, error) {
	return s.queryRecords(ctx, "list scores by zip",
		recordSelect+" WHERE zip_code = $1 ORDER BY accessibility_score DESC, facility_id", zip)
}

// GetRecord implements ScoreRecordStore.
func (s *PostgresStore) GetRecord(ctx context.Context, zip, facilityID string) (*model.AccessibilityScoreRecord, error) {
	r, err := scanRecord(s.pool.QueryRow(ctx, recordSelect+" WHERE zip_code = $1 AND facility_id = $2", zip, facilityID))
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: score %s/%s", zip, facilityID)
		}
		return nil, eris.Wrap(err, "postgres: get score")
	}
	return r, nil
}

// AverageByZip implements ScoreRecordStore.
func (s *PostgresStore) AverageByZip(ctx context.Context) (map[string]float64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT zip_code, AVG(accessibility_score) FROM accessibility_scores GROUP BY zip_code`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: average scores")
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var (
			zip string
			avg float64
		)
		if err := rows.Scan(&zip, &avg); err != nil {
			return nil, eris.Wrap(err, "postgres: scan average row")
		}
		out[zip] = avg
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate average rows")
}
