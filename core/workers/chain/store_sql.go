package chain

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/abchrisxyz/ergowatch/core/types"
)

func lastMainHeader(db *gorm.DB) (types.Header, error) {
	var rows []headerRow
	stmt := `
		select height
			, timestamp
			, header_id
			, parent_id
		from core.headers
		where main_chain
		order by height desc
		limit 1;
	`
	if err := db.Raw(stmt).Scan(&rows).Error; err != nil {
		return types.Header{}, errors.Wrap(err, "loading last main header")
	}
	if len(rows) == 0 {
		return types.InitialHeader(), nil
	}
	return rows[0].header(), nil
}

func (s *Store) headerByID(headerID types.HeaderID) (types.Header, error) {
	if headerID == types.ZeroHeader {
		return types.GenesisHeader(), nil
	}
	var rows []headerRow
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
	if err := s.db.Raw(stmt, headerID).Scan(&rows).Error; err != nil {
		return types.Header{}, errors.Wrapf(err, "fetching header %s", headerID)
	}
	if len(rows) == 0 {
		return types.Header{}, errors.Errorf("header %s not found", headerID)
	}
	return rows[0].header(), nil
}

func insertHeader(tx *gorm.DB, header types.Header, blockHeader *types.BlockHeader) error {
	stmt := `
		insert into core.headers
			(height, timestamp, header_id, parent_id, main_chain, difficulty, vote0, vote1, vote2, version, n_bits)
		values (?, ?, ?, ?, true, ?, ?, ?, ?, ?, ?);
	`
	err := tx.Exec(stmt,
		header.Height,
		header.Timestamp,
		header.HeaderID,
		header.ParentID,
		blockHeader.Difficulty,
		blockHeader.Votes[0],
		blockHeader.Votes[1],
		blockHeader.Votes[2],
		blockHeader.Version,
		blockHeader.NBits,
	).Error
	return errors.Wrapf(err, "inserting header %s", header.HeaderID)
}

func (s *Store) insertTransactions(tx *gorm.DB, header types.Header, txs []types.Transaction) error {
	for i := range txs {
		t := &txs[i]
		stmt := "insert into core.transactions (id, header_id, height, index) values (?, ?, ?, ?);"
		if err := tx.Exec(stmt, t.ID, header.HeaderID, header.Height, t.Index).Error; err != nil {
			return errors.Wrapf(err, "inserting transaction %s", t.ID)
		}
		for j := range t.Outputs {
			if err := s.insertOutput(tx, header, &t.Outputs[j]); err != nil {
				return err
			}
		}
		for j := range t.Inputs {
			if err := insertInput(tx, header, t.ID, &t.Inputs[j]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) insertOutput(tx *gorm.DB, header types.Header, op *types.Output) error {
	stmt := `
		insert into core.outputs
			(box_id, transaction_id, header_id, height, creation_height, address_id, index, value, registers, size)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`
	err := tx.Exec(stmt,
		op.BoxID,
		op.TransactionID,
		header.HeaderID,
		header.Height,
		op.CreationHeight,
		op.AddressID,
		op.Index,
		op.Value,
		string(op.Registers.Raw()),
		op.Size,
	).Error
	if err != nil {
		return errors.Wrapf(err, "inserting output %s", op.BoxID)
	}
	for _, asset := range op.Assets {
		stmt := "insert into core.assets (box_id, token_id, amount, height) values (?, ?, ?, ?);"
		if err := tx.Exec(stmt, op.BoxID, asset.TokenID, asset.Amount, header.Height).Error; err != nil {
			return errors.Wrapf(err, "inserting asset of %s", op.BoxID)
		}
	}
	return nil
}

func insertInput(tx *gorm.DB, header types.Header, txID types.TransactionID, in *types.Input) error {
	stmt := `
		insert into core.inputs
			(box_id, transaction_id, header_id, height, index, value, address_id, creation_height, creation_timestamp)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?);
	`
	err := tx.Exec(stmt,
		in.BoxID,
		txID,
		header.HeaderID,
		header.Height,
		in.Index,
		in.Value,
		in.AddressID,
		in.CreationHeight,
		in.CreationTimestamp,
	).Error
	return errors.Wrapf(err, "inserting input %s", in.BoxID)
}

// resolveBlock assigns address ids to outputs and resolves inputs to the
// outputs they spend, looking within the block first and in the store
// otherwise.
func (s *Store) resolveBlock(tx *gorm.DB, block *types.Block) error {
	local := make(map[types.BoxID]*types.Output)
	for i := range block.Transactions {
		t := &block.Transactions[i]
		for j := range t.Outputs {
			op := &t.Outputs[j]
			addressID, err := s.internAddress(tx, op.ErgoTree, block.Header.Height)
			if err != nil {
				return err
			}
			op.AddressID = addressID
			local[op.BoxID] = op
		}
	}
	for i := range block.Transactions {
		t := &block.Transactions[i]
		for j := range t.Inputs {
			in := &t.Inputs[j]
			if op, ok := local[in.BoxID]; ok {
				in.Value = op.Value
				in.AddressID = op.AddressID
				in.ErgoTree = op.ErgoTree
				in.CreationHeight = op.CreationHeight
				in.Index = int32(j)
				continue
			}
			if err := resolveInput(tx, in, int32(j)); err != nil {
				return err
			}
		}
	}
	return nil
}

func resolveInput(tx *gorm.DB, in *types.Input, index int32) error {
	type row struct {
		Value          types.NanoERG
		AddressID      types.AddressID
		CreationHeight types.Height
		Timestamp      types.Timestamp
	}
	var rows []row
	stmt := `
		select o.value
			, o.address_id
			, o.creation_height
			, h.timestamp
		from core.outputs o
		join core.headers h on h.header_id = o.header_id
		where o.box_id = ?;
	`
	if err := tx.Raw(stmt, in.BoxID).Scan(&rows).Error; err != nil {
		return errors.Wrapf(err, "resolving input %s", in.BoxID)
	}
	if len(rows) == 0 {
		return errors.Errorf("input %s spends an unknown box", in.BoxID)
	}
	r := rows[0]
	in.Value = r.Value
	in.AddressID = r.AddressID
	in.CreationHeight = r.CreationHeight
	in.CreationTimestamp = r.Timestamp
	in.Index = index
	return nil
}

// internAddress returns the global id of the given ergo tree, assigning a
// new one on first encounter.
func (s *Store) internAddress(tx *gorm.DB, ergoTree string, height types.Height) (types.AddressID, error) {
	if id, ok := s.addrCache.trees[ergoTree]; ok {
		return id, nil
	}
	var ids []types.AddressID
	if err := tx.Raw("select id from core.addresses where ergo_tree = ?;", ergoTree).Scan(&ids).Error; err != nil {
		return 0, errors.Wrap(err, "looking up address")
	}
	var id types.AddressID
	if len(ids) > 0 {
		id = ids[0]
	} else {
		id = s.addrCache.lastID + 1
		stmt := "insert into core.addresses (id, ergo_tree, spot_height) values (?, ?, ?);"
		if err := tx.Exec(stmt, id, ergoTree, height).Error; err != nil {
			return 0, errors.Wrap(err, "inserting address")
		}
		s.addrCache.lastID = id
	}
	if len(s.addrCache.trees) >= addressCacheLimit {
		s.addrCache.trees = make(map[string]types.AddressID)
	}
	s.addrCache.trees[ergoTree] = id
	return id, nil
}

func mainHeaderAt(db *gorm.DB, height types.Height) (types.Header, *types.BlockHeader, error) {
	type row struct {
		Height     types.Height
		Timestamp  types.Timestamp
		HeaderID   string
		ParentID   string
		Difficulty decimal.Decimal
		Vote0      int16
		Vote1      int16
		Vote2      int16
		Version    int16
		NBits      int64
	}
	var rows []row
	stmt := `
		select height
			, timestamp
			, header_id
			, parent_id
			, difficulty
			, vote0
			, vote1
			, vote2
			, version
			, n_bits as n_bits
		from core.headers
		where height = ?
			and main_chain
		limit 1;
	`
	if err := db.Raw(stmt, height).Scan(&rows).Error; err != nil {
		return types.Header{}, nil, errors.Wrapf(err, "fetching main header at height %d", height)
	}
	if len(rows) == 0 {
		return types.Header{}, nil, errors.Errorf("no main chain header at height %d", height)
	}
	r := rows[0]
	header := types.Header{
		Height:    r.Height,
		Timestamp: r.Timestamp,
		HeaderID:  r.HeaderID,
		ParentID:  r.ParentID,
	}
	blockHeader := &types.BlockHeader{
		ID:         header.HeaderID,
		ParentID:   header.ParentID,
		Height:     header.Height,
		Timestamp:  header.Timestamp,
		Difficulty: r.Difficulty,
		Votes:      types.Votes{int8(r.Vote0), int8(r.Vote1), int8(r.Vote2)},
		Version:    uint8(r.Version),
		NBits:      r.NBits,
	}
	return header, blockHeader, nil
}

func (s *Store) readTransactions(db *gorm.DB, height types.Height) ([]types.Transaction, error) {
	type txRow struct {
		ID    types.TransactionID
		Index int32
	}
	var txRows []txRow
	stmt := "select id, index from core.transactions where height = ? order by index;"
	if err := db.Raw(stmt, height).Scan(&txRows).Error; err != nil {
		return nil, errors.Wrapf(err, "reading transactions at height %d", height)
	}
	txs := make([]types.Transaction, len(txRows))
	for i, tr := range txRows {
		outputs, err := readOutputs(db, tr.ID)
		if err != nil {
			return nil, err
		}
		inputs, err := readInputs(db, tr.ID)
		if err != nil {
			return nil, err
		}
		txs[i] = types.Transaction{
			ID:      tr.ID,
			Index:   tr.Index,
			Outputs: outputs,
			Inputs:  inputs,
		}
	}
	return txs, nil
}

func readOutputs(db *gorm.DB, txID types.TransactionID) ([]types.Output, error) {
	type opRow struct {
		BoxID          types.BoxID
		CreationHeight types.Height
		AddressID      types.AddressID
		Index          int32
		Value          types.NanoERG
		Registers      string
		Size           int32
	}
	var rows []opRow
	stmt := `
		select box_id
			, creation_height
			, address_id
			, index
			, value
			, registers
			, size
		from core.outputs
		where transaction_id = ?
		order by index;
	`
	if err := db.Raw(stmt, txID).Scan(&rows).Error; err != nil {
		return nil, errors.Wrapf(err, "reading outputs of %s", txID)
	}
	outputs := make([]types.Output, len(rows))
	for i, r := range rows {
		assets, err := readAssets(db, r.BoxID)
		if err != nil {
			return nil, err
		}
		outputs[i] = types.Output{
			BoxID:          r.BoxID,
			TransactionID:  txID,
			CreationHeight: r.CreationHeight,
			AddressID:      r.AddressID,
			Index:          r.Index,
			Value:          r.Value,
			Registers:      types.NewRegisters([]byte(r.Registers)),
			Assets:         assets,
			Size:           r.Size,
		}
	}
	return outputs, nil
}

func readInputs(db *gorm.DB, txID types.TransactionID) ([]types.Input, error) {
	type inRow struct {
		BoxID             types.BoxID
		Index             int32
		Value             types.NanoERG
		AddressID         types.AddressID
		CreationHeight    types.Height
		CreationTimestamp types.Timestamp
	}
	var rows []inRow
	stmt := `
		select box_id
			, index
			, value
			, address_id
			, creation_height
			, creation_timestamp
		from core.inputs
		where transaction_id = ?
		order by index;
	`
	if err := db.Raw(stmt, txID).Scan(&rows).Error; err != nil {
		return nil, errors.Wrapf(err, "reading inputs of %s", txID)
	}
	inputs := make([]types.Input, len(rows))
	for i, r := range rows {
		inputs[i] = types.Input{
			BoxID:             r.BoxID,
			Index:             r.Index,
			Value:             r.Value,
			AddressID:         r.AddressID,
			CreationHeight:    r.CreationHeight,
			CreationTimestamp: r.CreationTimestamp,
		}
	}
	return inputs, nil
}

func readAssets(db *gorm.DB, boxID types.BoxID) ([]types.Asset, error) {
	type assetRow struct {
		TokenID types.TokenID
		Amount  int64
	}
	var rows []assetRow
	stmt := "select token_id, amount from core.assets where box_id = ?;"
	if err := db.Raw(stmt, boxID).Scan(&rows).Error; err != nil {
		return nil, errors.Wrapf(err, "reading assets of %s", boxID)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	assets := make([]types.Asset, len(rows))
	for i, r := range rows {
		assets[i] = types.Asset{TokenID: r.TokenID, Amount: r.Amount}
	}
	return assets, nil
}

type headerRow struct {
	Height    types.Height
	Timestamp types.Timestamp
	HeaderID  string
	ParentID  string
}

func (r *headerRow) header() types.Header {
	return types.Header{
		Height:    r.Height,
		Timestamp: r.Timestamp,
		HeaderID:  r.HeaderID,
		ParentID:  r.ParentID,
	}
}
