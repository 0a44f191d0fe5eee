// Package store persists local CLI state in SQLite: named environment
// profiles and cached access tokens, so repeated invocations skip the
// token round-trip.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go sqlite driver
)

// Sentinel errors for store lookups.
var (
	// ErrProfileNotFound indicates no profile exists with the given name.
	ErrProfileNotFound = errors.New("store: profile not found")
	// ErrNoToken indicates no unexpired cached token exists for the profile.
	ErrNoToken = errors.New("store: no cached token")
	// ErrNoActiveProfile indicates no profile is marked active.
	ErrNoActiveProfile = errors.New("store: no active profile")
)

// schema creates the store tables. Secrets are never stored here; tokens
// are short-lived bearer tokens and the database file is 0600.
const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	id              TEXT PRIMARY KEY,
	name            TEXT UNIQUE NOT NULL,
	environment_url TEXT NOT NULL,
	api_version     TEXT NOT NULL DEFAULT '',
	tenant_id       TEXT NOT NULL DEFAULT '',
	client_id       TEXT NOT NULL DEFAULT '',
	username        TEXT NOT NULL DEFAULT '',
	auth_mode       TEXT NOT NULL DEFAULT '',
	active          INTEGER NOT NULL DEFAULT 0,
	created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS tokens (
	profile_id   TEXT PRIMARY KEY REFERENCES profiles(id) ON DELETE CASCADE,
	access_token TEXT NOT NULL,
	expires_at   TIMESTAMP NOT NULL
);
`

// Profile is a named Dataverse environment configuration.
// Secrets (client secret, password) stay in the config file or environment.
type Profile struct {
	ID             string
	Name           string
	EnvironmentURL string
	APIVersion     string
	TenantID       string
	ClientID       string
	Username       string
	AuthMode       string
	Active         bool
}

// Store is the SQLite-backed local state store.
type Store struct {
	db *sql.DB
}

// DefaultPath returns the default database location (~/.dvcli/state.db).
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".dvcli", "state.db"), nil
}

// Open opens (creating if needed) the store at path, or the default
// location when path is empty.
func Open(path string) (*Store, error) {
	if path == "" {
		defaultPath, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = defaultPath
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	// Bearer tokens live in this file
	if err := os.Chmod(path, 0600); err != nil {
		db.Close()
		return nil, fmt.Errorf("restrict state database permissions: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveProfile inserts or updates a profile by name, assigning an id to
// new profiles.
func (s *Store) SaveProfile(p *Profile) error {
	if p.Name == "" {
		return errors.New("store: profile name is required")
	}
	if p.EnvironmentURL == "" {
		return errors.New("store: profile environment URL is required")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	_, err := s.db.Exec(`
		INSERT INTO profiles (id, name, environment_url, api_version, tenant_id, client_id, username, auth_mode)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			environment_url = excluded.environment_url,
			api_version     = excluded.api_version,
			tenant_id       = excluded.tenant_id,
			client_id       = excluded.client_id,
			username        = excluded.username,
			auth_mode       = excluded.auth_mode`,
		p.ID, p.Name, p.EnvironmentURL, p.APIVersion, p.TenantID, p.ClientID, p.Username, p.AuthMode)
	if err != nil {
		return fmt.Errorf("save profile %s: %w", p.Name, err)
	}

	return nil
}

// GetProfile returns the profile with the given name.
func (s *Store) GetProfile(name string) (*Profile, error) {
	return s.queryProfile("name = ?", name)
}

// ActiveProfile returns the profile currently marked active.
func (s *Store) ActiveProfile() (*Profile, error) {
	p, err := s.queryProfile("active = 1")
	if errors.Is(err, ErrProfileNotFound) {
		return nil, ErrNoActiveProfile
	}
	return p, err
}

// queryProfile fetches a single profile matching the where clause.
func (s *Store) queryProfile(where string, args ...any) (*Profile, error) {
	row := s.db.QueryRow(`
		SELECT id, name, environment_url, api_version, tenant_id, client_id, username, auth_mode, active
		FROM profiles WHERE `+where, args...)

	var p Profile
	err := row.Scan(&p.ID, &p.Name, &p.EnvironmentURL, &p.APIVersion,
		&p.TenantID, &p.ClientID, &p.Username, &p.AuthMode, &p.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	return &p, nil
}

// ListProfiles returns all profiles ordered by name.
func (s *Store) ListProfiles() ([]Profile, error) {
	rows, err := s.db.Query(`
		SELECT id, name, environment_url, api_version, tenant_id, client_id, username, auth_mode, active
		FROM profiles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.ID, &p.Name, &p.EnvironmentURL, &p.APIVersion,
			&p.TenantID, &p.ClientID, &p.Username, &p.AuthMode, &p.Active); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}

	return profiles, rows.Err()
}

// DeleteProfile removes a profile and its cached token.
func (s *Store) DeleteProfile(name string) error {
	result, err := s.db.Exec("DELETE FROM profiles WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("delete profile %s: %w", name, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrProfileNotFound
	}

	return nil
}

// SetActive marks the named profile active and clears the flag elsewhere.
func (s *Store) SetActive(name string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("UPDATE profiles SET active = 0"); err != nil {
		return fmt.Errorf("clear active profile: %w", err)
	}

	result, err := tx.Exec("UPDATE profiles SET active = 1 WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("set active profile %s: %w", name, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrProfileNotFound
	}

	return tx.Commit()
}

// SaveToken caches an access token for a profile.
func (s *Store) SaveToken(profileID, accessToken string, expiresAt time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO tokens (profile_id, access_token, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(profile_id) DO UPDATE SET
			access_token = excluded.access_token,
			expires_at   = excluded.expires_at`,
		profileID, accessToken, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}

	return nil
}

// Token returns the cached token for a profile, or ErrNoToken when the
// cache is empty or expired.
func (s *Store) Token(profileID string) (string, time.Time, error) {
	row := s.db.QueryRow(
		"SELECT access_token, expires_at FROM tokens WHERE profile_id = ?", profileID)

	var token string
	var expiresAt time.Time
	err := row.Scan(&token, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", time.Time{}, ErrNoToken
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("load token: %w", err)
	}

	if time.Now().After(expiresAt) {
		return "", time.Time{}, ErrNoToken
	}

	return token, expiresAt, nil
}

// DeleteToken removes a profile's cached token.
func (s *Store) DeleteToken(profileID string) error {
	if _, err := s.db.Exec("DELETE FROM tokens WHERE profile_id = ?", profileID); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}
