package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/equitee/equitee-api/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS facilities (
	id                       TEXT PRIMARY KEY,
	kind                     TEXT NOT NULL,
	name                     TEXT NOT NULL,
	address                  TEXT NOT NULL DEFAULT '',
	county                   TEXT NOT NULL DEFAULT '',
	lat                      REAL,
	lng                      REAL,
	price_min                REAL,
	price_max                REAL,
	price                    REAL,
	youth_programs           INTEGER NOT NULL DEFAULT 0,
	equipment_rental         INTEGER NOT NULL DEFAULT 0,
	transportation_available INTEGER NOT NULL DEFAULT 0,
	difficulty_rating        REAL,
	website                  TEXT NOT NULL DEFAULT '',
	specialties              TEXT NOT NULL DEFAULT '[]',
	experience_years         INTEGER,
	available                INTEGER NOT NULL DEFAULT 0,
	organization             TEXT NOT NULL DEFAULT '',
	age_min                  INTEGER,
	age_max                  INTEGER,
	updated_at               DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_facilities_kind ON facilities(kind);

CREATE TABLE IF NOT EXISTS demographic_areas (
	zip_code      TEXT PRIMARY KEY,
	median_income REAL NOT NULL,
	population    INTEGER,
	county        TEXT NOT NULL DEFAULT '',
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS accessibility_scores (
	zip_code              TEXT NOT NULL,
	facility_id           TEXT NOT NULL,
	facility_kind         TEXT NOT NULL,
	accessibility_score   REAL NOT NULL,
	distance_miles        REAL NOT NULL,
	estimated_annual_cost INTEGER NOT NULL,
	transport_score       INTEGER NOT NULL,
	computed_at           DATETIME NOT NULL,
	PRIMARY KEY (zip_code, facility_id)
);

CREATE INDEX IF NOT EXISTS idx_accessibility_scores_score ON accessibility_scores(accessibility_score);
`

// Migrate implements Store.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scannable interface {
	Scan(dest ...any) error
}

const sqliteFacilityColumns = `id, kind, name, address, county, lat, lng, price_min, price_max, price,
	youth_programs, equipment_rental, transportation_available, difficulty_rating, website,
	specialties, experience_years, available, organization, age_min, age_max`

func scanSQLiteFacility(row scannable) (*model.Facility, error) {
	var (
		f                          model.Facility
		kind, specialties          string
		lat, lng                   sql.NullFloat64
		priceMin, priceMax, price  sql.NullFloat64
		difficulty                 sql.NullFloat64
		experience, ageMin, ageMax sql.NullInt64
	)
	err := row.Scan(
		&f.ID, &kind, &f.Name, &f.Address, &f.County, &lat, &lng, &priceMin, &priceMax, &price,
		&f.YouthPrograms, &f.EquipmentRental, &f.TransportationAvailable, &difficulty, &f.Website,
		&specialties, &experience, &f.Available, &f.Organization, &ageMin, &ageMax,
	)
	if err != nil {
		return nil, err
	}

	f.Kind = model.Kind(kind)
	if lat.Valid && lng.Valid {
		f.Location = &model.Coordinate{Lat: lat.Float64, Lng: lng.Float64}
	}
	f.PriceMin = nullFloat(priceMin)
	f.PriceMax = nullFloat(priceMax)
	f.Price = nullFloat(price)
	f.DifficultyRating = nullFloat(difficulty)
	f.ExperienceYears = nullInt(experience)
	f.AgeMin = nullInt(ageMin)
	f.AgeMax = nullInt(ageMax)
	if specialties != "" && specialties != "[]" {
		if err := json.Unmarshal([]byte(specialties), &f.Specialties); err != nil {
			return nil, eris.Wrapf(err, "sqlite: decode specialties of %s", f.ID)
		}
	}
	return &f, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return model.Float(v.Float64)
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	return model.Int(int(v.Int64))
}

// ListFacilities implements FacilityStore.
func (s *SQLiteStore) ListFacilities(ctx context.Context, kind model.Kind, filter FacilityFilter) ([]model.Facility, error) {
	where := []string{"kind = ?"}
	args := []any{string(kind)}
	for _, flag := range filter.sortedFlags() {
		col, err := flagColumn(flag)
		if err != nil {
			return nil, err
		}
		where = append(where, fmt.Sprintf("%s = ?", col))
		args = append(args, filter.Flags[flag])
	}
	if filter.AvailableOnly {
		where = append(where, "available = 1")
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+sqliteFacilityColumns+" FROM facilities WHERE "+strings.Join(where, " AND ")+" ORDER BY id",
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list facilities")
	}
	defer rows.Close()

	out := make([]model.Facility, 0)
	for rows.Next() {
		f, err := scanSQLiteFacility(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan facility row")
		}
		// No spatial index here; the circle is checked per row.
		if !filter.Within.contains(*f) {
			continue
		}
		out = append(out, *f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate facility rows")
}

// GetFacility implements FacilityStore.
func (s *SQLiteStore) GetFacility(ctx context.Context, id string) (*model.Facility, error) {
	f, err := scanSQLiteFacility(s.db.QueryRowContext(ctx,
		"SELECT "+sqliteFacilityColumns+" FROM facilities WHERE id = ?", id))
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "sqlite: facility %s", id)
		}
		return nil, eris.Wrap(err, "sqlite: get facility")
	}
	return f, nil
}

// UpsertFacilities implements FacilityStore.
func (s *SQLiteStore) UpsertFacilities(ctx context.Context, facilities []model.Facility) (int64, error) {
	if len(facilities) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO facilities (`+sqliteFacilityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			kind = excluded.kind, name = excluded.name, address = excluded.address,
			county = excluded.county, lat = excluded.lat, lng = excluded.lng,
			price_min = excluded.price_min, price_max = excluded.price_max, price = excluded.price,
			youth_programs = excluded.youth_programs, equipment_rental = excluded.equipment_rental,
			transportation_available = excluded.transportation_available,
			difficulty_rating = excluded.difficulty_rating, website = excluded.website,
			specialties = excluded.specialties, experience_years = excluded.experience_years,
			available = excluded.available, organization = excluded.organization,
			age_min = excluded.age_min, age_max = excluded.age_max,
			updated_at = datetime('now')`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare facility upsert")
	}
	defer stmt.Close()

	var n int64
	for _, f := range facilities {
		var lat, lng *float64
		if f.Location != nil {
			lat, lng = &f.Location.Lat, &f.Location.Lng
		}
		specialties, err := json.Marshal(f.Specialties)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: encode specialties of %s", f.ID)
		}
		if f.Specialties == nil {
			specialties = []byte("[]")
		}
		res, err := stmt.ExecContext(ctx,
			f.ID, string(f.Kind), f.Name, f.Address, f.County, lat, lng, f.PriceMin, f.PriceMax, f.Price,
			f.YouthPrograms, f.EquipmentRental, f.TransportationAvailable, f.DifficultyRating, f.Website,
			string(specialties), f.ExperienceYears, f.Available, f.Organization, f.AgeMin, f.AgeMax,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert facility %s", f.ID)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit facilities")
	}
	return n, nil
}

// ListAreas implements DemographicStore.
func (s *SQLiteStore) ListAreas(ctx context.Context) ([]model.DemographicArea, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT zip_code, median_income, population, county FROM demographic_areas ORDER BY zip_code`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list areas")
	}
	defer rows.Close()

	out := make([]model.DemographicArea, 0)
	for rows.Next() {
		a, err := scanSQLiteArea(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan area row")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate area rows")
}

func scanSQLiteArea(row scannable) (*model.DemographicArea, error) {
	var (
		a   model.DemographicArea
		pop sql.NullInt64
	)
	if err := row.Scan(&a.ZipCode, &a.MedianIncome, &pop, &a.County); err != nil {
		return nil, err
	}
	a.Population = nullInt(pop)
	return &a, nil
}

// GetArea implements DemographicStore.
func (s *SQLiteStore) GetArea(ctx context.Context, zip string) (*model.DemographicArea, error) {
	a, err := scanSQLiteArea(s.db.QueryRowContext(ctx,
		`SELECT zip_code, median_income, population, county FROM demographic_areas WHERE zip_code = ?`, zip))
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "sqlite: area %s", zip)
		}
		return nil, eris.Wrap(err, "sqlite: get area")
	}
	return a, nil
}

// UpsertAreas implements DemographicStore.
func (s *SQLiteStore) UpsertAreas(ctx context.Context, areas []model.DemographicArea) (int64, error) {
	if len(areas) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var n int64
	for _, a := range areas {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO demographic_areas (zip_code, median_income, population, county)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (zip_code) DO UPDATE SET
				median_income = excluded.median_income,
				population = excluded.population,
				county = excluded.county,
				updated_at = datetime('now')`,
			a.ZipCode, a.MedianIncome, a.Population, a.County,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert area %s", a.ZipCode)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit areas")
	}
	return n, nil
}

const sqliteRecordSelect = `SELECT zip_code, facility_id, facility_kind, accessibility_score,
	distance_miles, estimated_annual_cost, transport_score, computed_at FROM accessibility_scores`

func scanSQLiteRecord(row scannable) (*model.AccessibilityScoreRecord, error) {
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

func (s *SQLiteStore) queryRecords(ctx context.Context, op, query string, args ...any) ([]model.AccessibilityScoreRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: %s", op)
	}
	defer rows.Close()

	out := make([]model.AccessibilityScoreRecord, 0)
	for rows.Next() {
		r, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan score row")
		}
		out = append(out, *r)
	}
	return out, eris.Wrapf(rows.Err(), "sqlite: %s", op)
}

// DeleteAll implements ScoreRecordStore.
func (s *SQLiteStore) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM accessibility_scores`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete scores")
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: rows affected")
}

// InsertBatch implements ScoreRecordStore in a single transaction.
func (s *SQLiteStore) InsertBatch(ctx context.Context, records []model.AccessibilityScoreRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO accessibility_scores (zip_code, facility_id, facility_kind, accessibility_score,
			distance_miles, estimated_annual_cost, transport_score, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare score insert")
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.ZipCode, r.FacilityID, string(r.FacilityKind), r.AccessibilityScore,
			r.DistanceMiles, r.EstimatedAnnualCost, r.TransportScore, r.ComputedAt.UTC(),
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert score %s/%s", r.ZipCode, r.FacilityID)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit scores")
	}
	return int64(len(records)), nil
}

// ListByScore implements ScoreRecordStore.
func (s *SQLiteStore) ListByScore(ctx context.Context, ascending bool, limit int) ([]model.AccessibilityScoreRecord, error) {
	dir := "DESC"
	if ascending {
		dir = "ASC"
	}
	query := fmt.Sprintf("%s ORDER BY accessibility_score %s, zip_code, facility_id", sqliteRecordSelect, dir)
	if limit > 0 {
		return s.queryRecords(ctx, "list scores", query+" LIMIT ?", limit)
	}
	return s.queryRecords(ctx, "list scores", query)
}

// ListByZip implements ScoreRecordStore.
func (s *SQLiteStore) ListByZip(ctx context.Context, zip string) ([]model.AccessibilityScoreRecord, error) {
	return s.queryRecords(ctx, "list scores by zip",
		sqliteRecordSelect+" WHERE zip_code = ? ORDER BY accessibility_score DESC, facility_id", zip)
}

// GetRecord implements ScoreRecordStore.
func (s *SQLiteStore) GetRecord(ctx context.Context, zip, facilityID string) (*model.AccessibilityScoreRecord, error) {
	r, err := scanSQLiteRecord(s.db.QueryRowContext(ctx,
		sqliteRecordSelect+" WHERE zip_code = ? AND facility_id = ?", zip, facilityID))
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "sqlite: score %s/%s", zip, facilityID)
		}
		return nil, eris.Wrap(err, "sqlite: get score")
	}
	return r, nil
}

// AverageByZip implements ScoreRecordStore.
func (s *SQLiteStore) AverageByZip(ctx context.Context) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT zip_code, AVG(accessibility_score) FROM accessibility_scores GROUP BY zip_code`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: average scores")
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var (
			zip string
			avg float64
		)
		if err := rows.Scan(&zip, &avg); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan average row")
		}
		out[zip] = avg
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate average rows")
}
