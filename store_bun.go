package clubauth

import (
	"context"
	"database/sql"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// SessionRecord is one persisted key/value pair.
type SessionRecord struct {
	bun.BaseModel `bun:"table:session_store,alias:ss"`
	Key           string     `bun:"key,pk" json:"key"`
	Value         string     `bun:"value,notnull" json:"value"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// BunStore persists session keys in a single sqlite table through Bun.
type BunStore struct {
	db     *bun.DB
	logger Logger
}

var _ Store = (*BunStore)(nil)

// BunStoreOption customizes a BunStore.
type BunStoreOption func(*BunStore)

// WithBunStoreLogger overrides the logger used for degraded reads.
func WithBunStoreLogger(logger Logger) BunStoreOption {
	return func(s *BunStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewBunStore returns a Store backed by the given Bun handle.
func NewBunStore(db *bun.DB, opts ...BunStoreOption) *BunStore {
	s := &BunStore{
		db:     db,
		logger: defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// OpenSQLiteDB opens (and creates if needed) the sqlite database at path.
// Use ":memory:" for an ephemeral store.
func OpenSQLiteDB(path string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, "file:"+path+"?cache=shared")
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to open session database")
	}
	sqldb.SetMaxOpenConns(1)
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// Init creates the backing table when it does not exist yet.
func (s *BunStore) Init(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*SessionRecord)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to create session_store table")
	}
	return nil
}

// Save implements Store via an upsert on the key column.
func (s *BunStore) Save(ctx context.Context, key, value string) error {
	now := time.Now()
	rec := &SessionRecord{Key: key, Value: value, UpdatedAt: &now}

	_, err := s.db.NewInsert().
		Model(rec).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to persist session key")
	}
	return nil
}

// Load implements Store. Any storage error degrades to absent so a corrupted
// store never blocks booting into a logged-out state.
func (s *BunStore) Load(ctx context.Context, key string) (string, bool) {
	rec := new(SessionRecord)
	err := s.db.NewSelect().
		Model(rec).
		Where("key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err != sql.ErrNoRows {
			s.logger.Debug("session store read degraded to absent: key=%s err=%v", key, err)
		}
		return "", false
	}
	return rec.Value, true
}

// Remove implements Store. Deleting a missing key is not an error.
func (s *BunStore) Remove(ctx context.Context, key string) error {
	_, err := s.db.NewDelete().
		Model((*SessionRecord)(nil)).
		Where("key = ?", key).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to remove session key")
	}
	return nil
}
