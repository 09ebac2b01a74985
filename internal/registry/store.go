package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/giantswarm/kubedeck/internal/logging"
	"github.com/giantswarm/kubedeck/internal/registry/migrations"
	"github.com/giantswarm/kubedeck/internal/vault"
)

const driverName = "sqlite"

const selectColumns = `id, name, context_name, config_path, icon, description, tags, created_at, last_accessed`

// CredentialStore is the part of the vault the registry depends on.
type CredentialStore interface {
	ValidatePath(candidate string) (string, error)
	ExtractContext(source, contextName, clusterID string) (string, error)
	DiscoverContextsInFolder(root string) ([]vault.DiscoveredContext, error)
	Remove(path string) error
}

// MetricsRecorder records registry operation outcomes.
type MetricsRecorder interface {
	RecordRegistryOperation(ctx context.Context, operation, status string, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) RecordRegistryOperation(context.Context, string, string, time.Duration) {}

// Store is the durable cluster registry. All operations are serialized.
type Store struct {
	mu      sync.Mutex
	db      *sqlx.DB
	vault   CredentialStore
	logger  *slog.Logger
	metrics MetricsRecorder
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the recorder for operation metrics.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Store) {
		if m != nil {
			s.metrics = m
		}
	}
}

// withClock overrides time.Now for tests.
func withClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open opens (creating if needed) the registry database at path and applies
// the embedded schema.
func Open(ctx context.Context, path string, credentials CredentialStore, opts ...Option) (*Store, error) {
	if credentials == nil {
		return nil, errors.New("credential store is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), vault.DirMode); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sqlx.ConnectContext(ctx, driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{
		db:      db,
		vault:   credentials,
		logger:  slog.Default(),
		metrics: noopMetrics{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := vault.SetOwnerOnlyPermissions(path, false); err != nil {
		s.logger.Warn("Could not restrict registry database permissions", logging.Path(path), logging.Err(err))
	}

	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	entries, err := fs.ReadDir(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("failed to read embedded migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		stmt, err := migrations.FS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(stmt)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", name, err)
		}
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) observe(ctx context.Context, op string, start time.Time, err error) {
	status := logging.StatusSuccess
	if err != nil && !errors.Is(err, ErrNotFound) {
		status = logging.StatusError
	}
	s.metrics.RecordRegistryOperation(ctx, op, status, time.Since(start))
}

// Add validates and inserts rec. An empty ID is replaced by a new one; the
// creation and access timestamps are set to now.
func (s *Store) Add(ctx context.Context, rec ClusterRecord) (_ ClusterRecord, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "add", start, err) }()

	rec.Name = strings.TrimSpace(rec.Name)
	if rec.Name == "" {
		return ClusterRecord{}, invalid("name must not be empty")
	}
	if rec.ContextName == "" {
		return ClusterRecord{}, invalid("context name must not be empty")
	}
	canonical, err := s.vault.ValidatePath(rec.CredentialPath)
	if err != nil {
		return ClusterRecord{}, err
	}
	rec.CredentialPath = canonical

	if rec.ID == "" {
		rec.ID = NewID()
	}
	if rec.Tags == nil {
		rec.Tags = Tags{}
	}
	now := s.now().Unix()
	rec.CreatedAt = now
	rec.LastAccessed = now

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO clusters (id, name, context_name, config_path, icon, description, tags, created_at, last_accessed)
		VALUES (:id, :name, :context_name, :config_path, :icon, :description, :tags, :created_at, :last_accessed)`, rec)
	if err != nil {
		return ClusterRecord{}, fmt.Errorf("failed to insert cluster: %w", err)
	}

	s.logger.Info("Cluster registered",
		logging.ClusterID(rec.ID),
		logging.Context(rec.ContextName))

	return rec, nil
}

// List returns every record, most recently accessed first.
func (s *Store) List(ctx context.Context) (_ []ClusterRecord, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "list", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	records := []ClusterRecord{}
	err = s.db.SelectContext(ctx, &records,
		`SELECT `+selectColumns+` FROM clusters ORDER BY last_accessed DESC, created_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list clusters: %w", err)
	}
	return records, nil
}

// Get returns the record with the given id or a NotFoundError.
func (s *Store) Get(ctx context.Context, id string) (_ ClusterRecord, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "get", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.get(ctx, id)
}

func (s *Store) get(ctx context.Context, id string) (ClusterRecord, error) {
	var rec ClusterRecord
	err := s.db.GetContext(ctx, &rec, `SELECT `+selectColumns+` FROM clusters WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ClusterRecord{}, &NotFoundError{ID: id}
	}
	if err != nil {
		return ClusterRecord{}, fmt.Errorf("failed to load cluster %q: %w", id, err)
	}
	return rec, nil
}

// FindByContext returns the records registered for a context name.
func (s *Store) FindByContext(ctx context.Context, contextName string) ([]ClusterRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := []ClusterRecord{}
	err := s.db.SelectContext(ctx, &records,
		`SELECT `+selectColumns+` FROM clusters WHERE context_name = ? ORDER BY created_at ASC`, contextName)
	if err != nil {
		return nil, fmt.Errorf("failed to look up context %q: %w", contextName, err)
	}
	return records, nil
}

// Update applies patch to the record with the given id and returns the
// result. An empty patch writes nothing.
func (s *Store) Update(ctx context.Context, id string, patch Patch) (_ ClusterRecord, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "update", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.get(ctx, id)
	if err != nil {
		return ClusterRecord{}, err
	}
	if patch.IsEmpty() {
		return rec, nil
	}

	updated := patch.Apply(rec)
	updated.Name = strings.TrimSpace(updated.Name)
	if updated.Name == "" {
		return ClusterRecord{}, invalid("name must not be empty")
	}

	_, err = s.db.NamedExecContext(ctx, `
		UPDATE clusters SET name = :name, icon = :icon, description = :description, tags = :tags
		WHERE id = :id`, updated)
	if err != nil {
		return ClusterRecord{}, fmt.Errorf("failed to update cluster %q: %w", id, err)
	}
	return updated, nil
}

// Touch sets the record's last access time to now.
func (s *Store) Touch(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "touch", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE clusters SET last_accessed = ? WHERE id = ?`, s.now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to touch cluster %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to touch cluster %q: %w", id, err)
	}
	if n == 0 {
		return &NotFoundError{ID: id}
	}
	return nil
}

// Delete removes the record and its credential file. Deleting an id that is
// not registered succeeds. Credential paths outside the vault are left alone.
func (s *Store) Delete(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "delete", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.vault.Remove(rec.CredentialPath); err != nil {
		if !errors.Is(err, vault.ErrPathTraversal) {
			return err
		}
		s.logger.Warn("Credential file is outside the vault, leaving it in place",
			logging.ClusterID(id),
			logging.Path(rec.CredentialPath))
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM clusters WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete cluster %q: %w", id, err)
	}

	s.logger.Info("Cluster removed", logging.ClusterID(id), logging.Context(rec.ContextName))
	return nil
}
