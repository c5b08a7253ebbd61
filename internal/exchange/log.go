package exchange

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"miniapp-proxy/internal/config"
)

// Log records exchanges into a Ring and, when configured, SQLite.
// A disabled Log accepts Record calls and drops them.
type Log struct {
	enabled bool
	ring    *Ring
	db      *SQLite
	keep    int
	writes  atomic.Int64
	logger  *slog.Logger
	now     func() time.Time
}

// New builds the exchange log from config. When a SQLite path is set, the
// newest rows are loaded back into the ring.
func New(cfg *config.Config, logger *slog.Logger) (*Log, error) {
	size := cfg.Exchanges.BufferSize
	if size <= 0 {
		size = 200
	}
	l := &Log{
		enabled: cfg.Exchanges.Enabled,
		ring:    NewRing(size),
		keep:    size,
		logger:  logger.With("component", "exchange_log"),
		now:     time.Now,
	}
	if !l.enabled || cfg.Exchanges.SQLitePath == "" {
		return l, nil
	}

	db, err := OpenSQLite(cfg.Exchanges.SQLitePath)
	if err != nil {
		return nil, err
	}
	recent, err := db.Recent(size)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	for _, e := range recent {
		l.ring.Add(e)
	}
	l.db = db
	l.logger.Info("exchange log restored", "path", cfg.Exchanges.SQLitePath, "entries", len(recent))
	return l, nil
}

// Enabled reports whether entries are being kept.
func (l *Log) Enabled() bool {
	return l.enabled
}

// Record stores e, filling ID and Timestamp when empty.
func (l *Log) Record(e Entry) {
	if !l.enabled {
		return
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}
	l.ring.Add(e)

	l.logger.Debug("exchange",
		"id", e.ID,
		"method", e.Method,
		"path", e.Path,
		"status", e.Status,
		"size", humanize.Bytes(uint64(e.BodyBytes)),
	)

	if l.db == nil {
		return
	}
	if err := l.db.Insert(e); err != nil {
		l.logger.Warn("persist exchange", "err", err, "id", e.ID)
		return
	}
	// Prune once per buffer's worth of writes.
	if l.writes.Add(1)%int64(l.keep) == 0 {
		if err := l.db.Prune(l.keep); err != nil {
			l.logger.Warn("prune exchanges", "err", err)
		}
	}
}

// All returns stored entries, oldest first.
func (l *Log) All() []Entry {
	return l.ring.All()
}

// Get looks up an entry by ID.
func (l *Log) Get(id string) (Entry, bool) {
	return l.ring.Get(id)
}

// Subscribe streams entries recorded after the call.
func (l *Log) Subscribe() (<-chan Entry, func()) {
	return l.ring.Subscribe()
}

// Close releases the SQLite handle, if any.
func (l *Log) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}
