package chain

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/abchrisxyz/ergowatch/core/logger"
	"github.com/abchrisxyz/ergowatch/core/types"
)

// addressCacheLimit bounds the in-memory ergo tree index. The cache is
// cleared when full and repopulated from the database on demand.
const addressCacheLimit = 5000

// Store owns the canonical core tables. Unlike worker stores, its head is
// derived from the headers table itself: the highest main chain header.
type Store struct {
	db        *gorm.DB
	header    types.Header
	addrCache *addressCache
}

type addressCache struct {
	// Highest assigned address id.
	lastID types.AddressID
	trees  map[string]types.AddressID
}

func newAddressCache(lastID types.AddressID) *addressCache {
	return &addressCache{
		lastID: lastID,
		trees:  make(map[string]types.AddressID),
	}
}

func (c *addressCache) reset(lastID types.AddressID) {
	c.lastID = lastID
	c.trees = make(map[string]types.AddressID)
}

// NewStore loads the current head from the headers table. The core schema
// must have been migrated beforehand.
func NewStore(db *gorm.DB) (*Store, error) {
	logger.Debugw("initializing core store")
	header, err := lastMainHeader(db)
	if err != nil {
		return nil, err
	}
	var lastID *int64
	if err := db.Raw("select max(id) from core.addresses;").Scan(&lastID).Error; err != nil {
		return nil, errors.Wrap(err, "reading max address id")
	}
	var last types.AddressID
	if lastID != nil {
		last = *lastID
	}
	logger.Debugw("core store position", "height", header.Height, "headerId", header.HeaderID)
	return &Store{
		db:        db,
		header:    header,
		addrCache: newAddressCache(last),
	}, nil
}

// Header returns the current head.
func (s *Store) Header() types.Header { return s.header }

// IsMainChain reports whether the given header is on the main chain.
func (s *Store) IsMainChain(ctx context.Context, header types.Header) (bool, error) {
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

// IncludeGenesisBoxes indexes the genesis outputs under a dummy header at
// height zero and returns the downstream payload.
func (s *Store) IncludeGenesisBoxes(ctx context.Context, block *types.Block) (*types.Stamped[types.CoreData], error) {
	if !s.header.IsInitial() {
		logger.Fatalw("core store received genesis boxes while not at initial state",
			"height", s.header.Height)
	}
	genesis := types.GenesisHeader()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.resolveBlock(tx, block); err != nil {
			return err
		}
		if err := insertHeader(tx, genesis, &block.Header); err != nil {
			return err
		}
		return s.insertTransactions(tx, genesis, block.Transactions)
	})
	if err != nil {
		return nil, errors.Wrap(err, "including genesis boxes")
	}
	s.header = genesis
	return types.StampAt(genesis, types.CoreData{Block: block}), nil
}

// IncludeBlock resolves and persists one block, moving the head forward.
// The passed block is enriched in place: outputs get their address ids,
// inputs get resolved to the outputs they spend.
func (s *Store) IncludeBlock(ctx context.Context, data *types.Stamped[*types.Block]) (*types.Stamped[types.CoreData], error) {
	if data.Height != s.header.Height+1 || data.ParentID != s.header.HeaderID {
		logger.Fatalw("core store received non-contiguous block",
			"blockHeight", data.Height, "blockParent", data.ParentID,
			"headHeight", s.header.Height, "headId", s.header.HeaderID)
	}
	block := data.Data
	header := data.Header()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.resolveBlock(tx, block); err != nil {
			return err
		}
		if err := insertHeader(tx, header, &block.Header); err != nil {
			return err
		}
		return s.insertTransactions(tx, header, block.Transactions)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "including block %s", header.HeaderID)
	}
	s.header = header
	return types.Wrap(data, types.CoreData{Block: block}), nil
}

// RollBack undoes the block at the given height, flips its main chain flag
// and returns the new head.
func (s *Store) RollBack(ctx context.Context, height types.Height) (types.Header, error) {
	if height != s.header.Height {
		logger.Fatalw("core store received rollback for unexpected height",
			"height", height, "headHeight", s.header.Height)
	}
	parent, err := s.headerByID(s.header.ParentID)
	if err != nil {
		return types.Header{}, err
	}
	headerID := s.header.HeaderID
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, stmt := range []string{
			"delete from core.assets where height = ?;",
			"delete from core.inputs where height = ?;",
			"delete from core.outputs where height = ?;",
			"delete from core.transactions where height = ?;",
			"delete from core.addresses where spot_height = ?;",
		} {
			if err := tx.Exec(stmt, height).Error; err != nil {
				return err
			}
		}
		return tx.Exec("update core.headers set main_chain = false where header_id = ?;", headerID).Error
	})
	if err != nil {
		return types.Header{}, errors.Wrapf(err, "rolling back block %s", headerID)
	}
	// Assigned address ids may have been freed, start over.
	var lastID *int64
	if err := s.db.Raw("select max(id) from core.addresses;").Scan(&lastID).Error; err != nil {
		return types.Header{}, errors.Wrap(err, "reading max address id")
	}
	var last types.AddressID
	if lastID != nil {
		last = *lastID
	}
	s.addrCache.reset(last)
	s.header = parent
	return parent, nil
}

// GetAt reconstructs the downstream payload for the main chain block at the
// given height, for replay to lagging cursors.
func (s *Store) GetAt(ctx context.Context, height types.Height) (*types.Stamped[types.CoreData], error) {
	db := s.db.WithContext(ctx)
	header, blockHeader, err := mainHeaderAt(db, height)
	if err != nil {
		return nil, err
	}
	txs, err := s.readTransactions(db, height)
	if err != nil {
		return nil, err
	}
	block := &types.Block{
		Header:       *blockHeader,
		Transactions: txs,
	}
	return types.StampAt(header, types.CoreData{Block: block}), nil
}
