package framework

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/abchrisxyz/ergowatch/core/logger"
	"github.com/abchrisxyz/ergowatch/core/types"
)

// BatchStore applies a worker's domain mutations inside the transaction
// opened by the owning PgStore.
type BatchStore[B any] interface {
	// Persist applies the mutations for one included block.
	Persist(tx *gorm.DB, batch *types.Stamped[B]) error

	// RollBack reverts the mutations of the block at the given header.
	RollBack(tx *gorm.DB, header types.Header) error
}

// SourceableBatchStore additionally reads derived data back, for replay to
// lagging downstream cursors.
type SourceableBatchStore[B, S any] interface {
	BatchStore[B]

	GetAt(db *gorm.DB, height types.Height) (S, error)
}

// PgStore persists a worker's derived state atomically with its head
// movement. Every event is applied in a single transaction that commits the
// domain mutations and the header row together, or leaves the store
// untouched. The connection is uniquely owned by the worker using it.
type PgStore[B any] struct {
	db       *gorm.DB
	schema   string
	workerID string
	header   types.Header
	batch    BatchStore[B]
}

// NewPgStore initializes the worker's schema and loads its header row,
// inserting the initial sentinel on first run.
func NewPgStore[B any](db *gorm.DB, schema Schema, workerID string, batch BatchStore[B]) (*PgStore[B], error) {
	logger.Debugw("initializing store", "schema", schema.Name, "worker", workerID)
	if err := schema.Init(db); err != nil {
		return nil, err
	}
	header, err := loadHeader(db, schema.Name, workerID)
	if err != nil {
		return nil, err
	}
	logger.Debugw("store position", "schema", schema.Name, "worker", workerID,
		"height", header.Height, "headerId", header.HeaderID)
	return &PgStore[B]{
		db:       db,
		schema:   schema.Name,
		workerID: workerID,
		header:   header,
		batch:    batch,
	}, nil
}

// DB exposes the connection for read-only lookups.
func (s *PgStore[B]) DB() *gorm.DB { return s.db }

// Header returns the persisted position.
func (s *PgStore[B]) Header() types.Header { return s.header }

// Persist applies the stamped batch and moves the header row, in one
// transaction.
func (s *PgStore[B]) Persist(ctx context.Context, data *types.Stamped[B]) error {
	if data.Height != s.header.Height+1 || data.ParentID != s.header.HeaderID {
		logger.Fatalw("store received non-contiguous batch",
			"schema", s.schema, "worker", s.workerID,
			"batchHeight", data.Height, "batchParent", data.ParentID,
			"headHeight", s.header.Height, "headId", s.header.HeaderID)
	}
	header := data.Header()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.batch.Persist(tx, data); err != nil {
			return err
		}
		return updateHeader(tx, s.schema, s.workerID, header)
	})
	if err != nil {
		return errors.Wrapf(err, "persisting %s:%s at height %d", s.schema, s.workerID, data.Height)
	}
	s.header = header
	return nil
}

// RollBack reverts the batch at the given height and resets the header row to
// the parent header, fetched from the canonical core headers table. Returns
// the new head.
func (s *PgStore[B]) RollBack(ctx context.Context, height types.Height) (types.Header, error) {
	if height != s.header.Height {
		logger.Fatalw("store received rollback for unexpected height",
			"schema", s.schema, "worker", s.workerID,
			"height", height, "headHeight", s.header.Height)
	}
	parent, err := coreHeaderByID(s.db, s.header.ParentID)
	if err != nil {
		return types.Header{}, err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.batch.RollBack(tx, s.header); err != nil {
			return err
		}
		return updateHeader(tx, s.schema, s.workerID, parent)
	})
	if err != nil {
		return types.Header{}, errors.Wrapf(err, "rolling back %s:%s at height %d", s.schema, s.workerID, height)
	}
	s.header = parent
	return parent, nil
}

// ContainsHeader reports whether the given header is on the main chain, as
// recorded in the core headers table. The sentinels are always contained.
func (s *PgStore[B]) ContainsHeader(ctx context.Context, header types.Header) (bool, error) {
	if header.IsInitial() || header.IsGenesis() {
		return true, nil
	}
	var mainChain *bool
	stmt := `
		select main_chain
		from core.headers
		where header_id = ?;
	`
	if err := s.db.WithContext(ctx).Raw(stmt, header.HeaderID).Scan(&mainChain).Error; err != nil {
		return false, errors.Wrapf(err, "checking main chain for %s", header.HeaderID)
	}
	if mainChain == nil {
		return false, nil
	}
	return *mainChain, nil
}

// SourceStore is a PgStore whose batch store can also be read back at a
// given height, making its worker able to act as a source.
type SourceStore[B, S any] struct {
	*PgStore[B]
	sourceable SourceableBatchStore[B, S]
}

// NewSourceStore initializes the underlying PgStore.
func NewSourceStore[B, S any](db *gorm.DB, schema Schema, workerID string, batch SourceableBatchStore[B, S]) (*SourceStore[B, S], error) {
	pg, err := NewPgStore[B](db, schema, workerID, batch)
	if err != nil {
		return nil, err
	}
	return &SourceStore[B, S]{PgStore: pg, sourceable: batch}, nil
}

// GetAt reads the derived data at the given height, stamped with the main
// chain header that produced it.
func (s *SourceStore[B, S]) GetAt(ctx context.Context, height types.Height) (*types.Stamped[S], error) {
	header, err := coreHeaderAt(s.db.WithContext(ctx), height)
	if err != nil {
		return nil, err
	}
	data, err := s.sourceable.GetAt(s.db.WithContext(ctx), height)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s:%s at height %d", s.schema, s.workerID, height)
	}
	return types.StampAt(header, data), nil
}

func loadHeader(db *gorm.DB, schema, workerID string) (types.Header, error) {
	type row struct {
		Height   types.Height
		Timestamp types.Timestamp
		HeaderID string
		ParentID string
	}
	var rows []row
	stmt := `
		select height
			, timestamp
			, header_id
			, parent_id
		from ` + schema + `._header
		where worker_id = ?;
	`
	if err := db.Raw(stmt, workerID).Scan(&rows).Error; err != nil {
		return types.Header{}, errors.Wrapf(err, "loading header of %s:%s", schema, workerID)
	}
	if len(rows) == 0 {
		h := types.InitialHeader()
		stmt := `
			insert into ` + schema + `._header (worker_id, height, timestamp, header_id, parent_id)
			values (?, ?, ?, ?, ?);
		`
		if err := db.Exec(stmt, workerID, h.Height, h.Timestamp, h.HeaderID, h.ParentID).Error; err != nil {
			return types.Header{}, errors.Wrapf(err, "inserting initial header of %s:%s", schema, workerID)
		}
		return h, nil
	}
	r := rows[0]
	return types.Header{
		Height:    r.Height,
		Timestamp: r.Timestamp,
		HeaderID:  r.HeaderID,
		ParentID:  r.ParentID,
	}, nil
}

func updateHeader(tx *gorm.DB, schema, workerID string, header types.Header) error {
	stmt := `
		update ` + schema + `._header
		set height = ?
			, timestamp = ?
			, header_id = ?
			, parent_id = ?
		where worker_id = ?;
	`
	res := tx.Exec(stmt, header.Height, header.Timestamp, header.HeaderID, header.ParentID, workerID)
	if res.Error != nil {
		return errors.Wrapf(res.Error, "updating header of %s:%s", schema, workerID)
	}
	if res.RowsAffected != 1 {
		return errors.Errorf("header update of %s:%s touched %d rows", schema, workerID, res.RowsAffected)
	}
	return nil
}

// coreHeaderByID fetches a header from the canonical core headers table. The
// genesis parent resolves to the genesis sentinel without a lookup.
func coreHeaderByID(db *gorm.DB, headerID types.HeaderID) (types.Header, error) {
	if headerID == types.ZeroHeader {
		return types.GenesisHeader(), nil
	}
	var rows []coreHeaderRow
	stmt := `
		select height
			, timestamp
			, header_id
			, parent_id
		from core.headers
		where header_id = ?
		order by height desc
		limit 1;
	`
	if err := db.Raw(stmt, headerID).Scan(&rows).Error; err != nil {
		return types.Header{}, errors.Wrapf(err, "fetching core header %s", headerID)
	}
	if len(rows) == 0 {
		return types.Header{}, errors.Errorf("core header %s not found", headerID)
	}
	return rows[0].header(), nil
}

// coreHeaderAt fetches the main chain header at the given height.
func coreHeaderAt(db *gorm.DB, height types.Height) (types.Header, error) {
	var rows []coreHeaderRow
	stmt := `
		select height
			, timestamp
			, header_id
			, parent_id
		from core.headers
		where height = ?
			and main_chain
		limit 1;
	`
	if err := db.Raw(stmt, height).Scan(&rows).Error; err != nil {
		return types.Header{}, errors.Wrapf(err, "fetching core header at height %d", height)
	}
	if len(rows) == 0 {
		return types.Header{}, errors.Errorf("no main chain core header at height %d", height)
	}
	return rows[0].header(), nil
}

type coreHeaderRow struct {
	Height    types.Height
	Timestamp types.Timestamp
	HeaderID  string
	ParentID  string
}

func (r *coreHeaderRow) header() types.Header {
	return types.Header{
		Height:    r.Height,
		Timestamp: r.Timestamp,
		HeaderID:  r.HeaderID,
		ParentID:  r.ParentID,
	}
}
