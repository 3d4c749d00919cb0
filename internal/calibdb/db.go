// Package calibdb persists fitted lag parameters. The correction core
// itself is stateless; a processing run that wants to reuse a previous
// deployment's calibration, or audit how parameters drifted across
// deployments, stores the per-cast fit results here.
package calibdb

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Corrector kinds stored in lag_fits.corrector.
const (
	CorrectorSensor  = "sensor"
	CorrectorThermal = "thermal"
)

// DB wraps the sqlite handle.
type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the calibration database at path and
// applies pending migrations.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("calibdb: opening %s: %w", path, err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("calibdb: setting pragmas: %w", err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db}, nil
}

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("calibdb: loading embedded migrations: %w", err)
	}
	drv, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("calibdb: preparing migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return fmt.Errorf("calibdb: preparing migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("calibdb: migration up failed: %w", err)
	}
	return nil
}

// Deployment identifies one glider mission.
type Deployment struct {
	ID        string
	Name      string
	Platform  string
	CreatedAt time.Time
}

// CreateDeployment registers a deployment and returns it with a fresh ID.
func (db *DB) CreateDeployment(name, platform string) (Deployment, error) {
	d := Deployment{
		ID:        uuid.NewString(),
		Name:      name,
		Platform:  platform,
		CreatedAt: time.Now().UTC(),
	}
	_, err := db.Exec(
		`INSERT INTO deployments (id, name, platform, created_at) VALUES (?, ?, ?, ?)`,
		d.ID, d.Name, d.Platform, d.CreatedAt,
	)
	if err != nil {
		return Deployment{}, fmt.Errorf("calibdb: inserting deployment %q: %w", name, err)
	}
	return d, nil
}

// FitRecord is one stored fit result. CastNumber 0 means the record covers
// the whole deployment (e.g. the median of the per-cast fits).
type FitRecord struct {
	DeploymentID  string
	CastNumber    int
	Corrector     string
	FlowDependent bool
	Params        []float64
	Residual      float64
	Converged     bool
}

// SaveFit stores one fit result.
func (db *DB) SaveFit(rec FitRecord) error {
	if rec.Corrector != CorrectorSensor && rec.Corrector != CorrectorThermal {
		return fmt.Errorf("calibdb: unknown corrector kind %q", rec.Corrector)
	}
	params, err := json.Marshal(rec.Params)
	if err != nil {
		return fmt.Errorf("calibdb: encoding parameters: %w", err)
	}
	_, err = db.Exec(
		`INSERT INTO lag_fits (deployment_id, cast_number, corrector, flow_dependent, params, residual, converged)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.DeploymentID, rec.CastNumber, rec.Corrector, rec.FlowDependent, string(params), rec.Residual, rec.Converged,
	)
	if err != nil {
		return fmt.Errorf("calibdb: inserting fit for deployment %s cast %d: %w", rec.DeploymentID, rec.CastNumber, err)
	}
	return nil
}

// FitsForDeployment returns the stored fits for a deployment, casts in
// order, deployment-wide records (cast 0) first.
func (db *DB) FitsForDeployment(deploymentID, corrector string) ([]FitRecord, error) {
	rows, err := db.Query(
		`SELECT deployment_id, cast_number, corrector, flow_dependent, params, residual, converged
		 FROM lag_fits WHERE deployment_id = ? AND corrector = ?
		 ORDER BY cast_number, fit_id`,
		deploymentID, corrector,
	)
	if err != nil {
		return nil, fmt.Errorf("calibdb: querying fits for deployment %s: %w", deploymentID, err)
	}
	defer rows.Close()

	var out []FitRecord
	for rows.Next() {
		var rec FitRecord
		var params string
		if err := rows.Scan(&rec.DeploymentID, &rec.CastNumber, &rec.Corrector,
			&rec.FlowDependent, &params, &rec.Residual, &rec.Converged); err != nil {
			return nil, fmt.Errorf("calibdb: scanning fit row: %w", err)
		}
		if err := json.Unmarshal([]byte(params), &rec.Params); err != nil {
			return nil, fmt.Errorf("calibdb: decoding parameters for cast %d: %w", rec.CastNumber, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
