package state

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/TEENet-io/bridge-indexer/agreement"
	"github.com/TEENet-io/bridge-indexer/common"
	"github.com/TEENet-io/bridge-indexer/database"
	"github.com/ethereum/go-ethereum/event"
)

const keyLastProcessedBlock = "lastProcessedBlock:"

type StateDB struct {
	db        *sql.DB
	stmtCache *database.StmtCache

	// publishes the number of transfers after a commit that created some
	transferCountFeed event.Feed
	scope             event.SubscriptionScope
}

func NewStateDB(db *sql.DB) (*StateDB, error) {
	// 1. Create the tables.
	if _, err := db.Exec(schema()); err != nil {
		return nil, err
	}

	// 2. A stmt cache + db. Statements used inside the commit transaction
	// are prepared up front so that the transaction only rebinds them.
	sc := database.NewStmtCache(db)
	for _, query := range commitQueries {
		if _, err := sc.Prepare(query); err != nil {
			sc.Clear()
			return nil, err
		}
	}

	return &StateDB{
		db:        db,
		stmtCache: sc,
	}, nil
}

func (st *StateDB) Close() {
	st.scope.Close()
	st.stmtCache.Clear()
}

// NewBatch starts an empty batch for one pipeline.
func (st *StateDB) NewBatch(network agreement.Network) *Batch {
	return NewBatch(network, st)
}

// SubscribeTransferCount delivers the total number of transfers every time a
// commit adds new ones.
func (st *StateDB) SubscribeTransferCount(ch chan<- uint64) event.Subscription {
	return st.scope.Track(st.transferCountFeed.Subscribe(ch))
}

func (st *StateDB) GetKeyedValue(key string) (string, bool, error) {
	query := `SELECT value FROM kv WHERE key = ?`
	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return "", false, err
	}

	var value string
	if err := stmt.QueryRow(key).Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}

	return value, true, nil
}

// GetLastProcessedBlock returns the last block committed by the pipeline of
// the given network.
func (st *StateDB) GetLastProcessedBlock(network agreement.Network) (uint64, bool, error) {
	value, ok, err := st.GetKeyedValue(keyLastProcessedBlock + string(network))
	if err != nil || !ok {
		return 0, false, err
	}

	n, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("stored checkpoint of %s is corrupt: %q", network, value)
	}
	return n, true, nil
}

func (st *StateDB) GetTransfer(nonce string) (*Transfer, bool, error) {
	query := `SELECT` + transferColumns + `FROM transfer WHERE nonce = ?`
	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return nil, false, err
	}

	var s sqlTransfer
	if err := s.scan(stmt.QueryRow(nonce)); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}

	t, err := s.decode()
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

func (st *StateDB) GetTransfersByStatus(status TransferStatus) ([]*Transfer, error) {
	if !status.Valid() {
		return nil, ErrStatusInvalid
	}

	query := `SELECT` + transferColumns + `FROM transfer WHERE status = ? ORDER BY blockNumber`
	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transfers := []*Transfer{}
	for rows.Next() {
		var s sqlTransfer
		if err := s.scan(rows); err != nil {
			return nil, err
		}
		t, err := s.decode()
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}

	return transfers, rows.Err()
}

func (st *StateDB) CountTransfers() (uint64, error) {
	stmt, err := st.stmtCache.Prepare(`SELECT COUNT(*) FROM transfer`)
	if err != nil {
		return 0, err
	}

	var n uint64
	if err := stmt.QueryRow().Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CountPendingUpdates is the number of updates still waiting for a transfer
// of the other chain.
func (st *StateDB) CountPendingUpdates() (uint64, error) {
	stmt, err := st.stmtCache.Prepare(`SELECT COUNT(*) FROM pendingUpdate`)
	if err != nil {
		return 0, err
	}

	var n uint64
	if err := stmt.QueryRow().Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (st *StateDB) GetPair(id string) (*Pair, bool, error) {
	return st.queryPair(`SELECT`+pairColumns+`FROM pair WHERE id = ?`, id)
}

func (st *StateDB) GetActivePairByVaraToken(token string) (*Pair, bool, error) {
	return st.queryPair(`SELECT`+pairColumns+`FROM pair WHERE varaToken = ? AND isActive = 1 ORDER BY activeSinceBlock DESC LIMIT 1`,
		common.NormalizeAddress(token))
}

func (st *StateDB) GetActivePairByEthToken(token string) (*Pair, bool, error) {
	return st.queryPair(`SELECT`+pairColumns+`FROM pair WHERE ethToken = ? AND isActive = 1 ORDER BY activeSinceBlock DESC LIMIT 1`,
		common.NormalizeAddress(token))
}

func (st *StateDB) queryPair(query string, arg string) (*Pair, bool, error) {
	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return nil, false, err
	}

	var s sqlPair
	if err := s.scan(stmt.QueryRow(arg)); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	return s.decode(), true, nil
}

func (st *StateDB) GetEthBridgeMessage(hash string) (*GearEthBridgeMessage, bool, error) {
	query := `SELECT hash, nonce, source, destination, blockNumber, timestamp FROM gearEthBridgeMessage WHERE hash = ?`
	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return nil, false, err
	}

	var (
		m  GearEthBridgeMessage
		ts int64
	)
	if err := stmt.QueryRow(hash).Scan(&m.Hash, &m.Nonce, &m.Source, &m.Destination, &m.BlockNumber, &ts); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	m.Timestamp = common.UnixMilli(ts)
	return &m, true, nil
}

func (st *StateDB) GetMerkleRoot(varaBlock uint64) (*MerkleRootInMessageQueue, bool, error) {
	query := `SELECT blockNumber, merkleRoot, timestamp, submittedAtBlock, submittedAtTxHash FROM merkleRootInMessageQueue WHERE blockNumber = ?`
	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return nil, false, err
	}

	var (
		r         MerkleRootInMessageQueue
		ts        int64
		subBlock  sql.NullInt64
		subTxHash sql.NullString
	)
	if err := stmt.QueryRow(varaBlock).Scan(&r.BlockNumber, &r.MerkleRoot, &ts, &subBlock, &subTxHash); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	r.Timestamp = common.UnixMilli(ts)
	r.SubmittedAtBlock = ptrUint64(subBlock)
	r.SubmittedAtTxHash = ptrString(subTxHash)
	return &r, true, nil
}

func (st *StateDB) GetCheckpointSlot(slot uint64) (*CheckpointSlot, bool, error) {
	query := `SELECT slot, treeHashRoot, blockNumber, timestamp FROM checkpointSlot WHERE slot = ?`
	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return nil, false, err
	}

	var (
		s  CheckpointSlot
		ts int64
	)
	if err := stmt.QueryRow(slot).Scan(&s.Slot, &s.TreeHashRoot, &s.BlockNumber, &ts); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	s.Timestamp = common.UnixMilli(ts)
	return &s, true, nil
}

// GetPrograms returns the tracked programs of every network.
func (st *StateDB) GetPrograms() ([]*Program, error) {
	return st.queryPrograms(`SELECT network, name, address, updatedAtBlock FROM program ORDER BY network, name`)
}

// GetProgramHistory returns every address the tracked programs ever had,
// current ones included.
func (st *StateDB) GetProgramHistory() ([]*Program, error) {
	return st.queryPrograms(`SELECT network, name, address, sinceBlock FROM programHistory ORDER BY network, name, sinceBlock`)
}

func (st *StateDB) queryPrograms(query string) ([]*Program, error) {
	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	programs := []*Program{}
	for rows.Next() {
		var (
			p       Program
			network string
		)
		if err := rows.Scan(&network, &p.Name, &p.Address, &p.UpdatedAtBlock); err != nil {
			return nil, err
		}
		p.Network = agreement.Network(network)
		programs = append(programs, &p)
	}
	return programs, rows.Err()
}

// SeedPrograms inserts the configured program addresses. Programs that are
// already stored keep their address since it may have been migrated since.
func (st *StateDB) SeedPrograms(programs []*Program) error {
	stmt, err := st.stmtCache.Prepare(`INSERT INTO program (network, name, address, updatedAtBlock) VALUES (?, ?, ?, ?) ON CONFLICT DO NOTHING`)
	if err != nil {
		return err
	}
	history, err := st.stmtCache.Prepare(insertProgramHistoryQuery)
	if err != nil {
		return err
	}

	for _, p := range programs {
		if !p.Network.Valid() {
			return fmt.Errorf("%w: program %s on %q", ErrNetworkInvalid, p.Name, p.Network)
		}
		address := common.NormalizeAddress(p.Address)
		res, err := stmt.Exec(string(p.Network), p.Name, address, p.UpdatedAtBlock)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}
		if _, err := history.Exec(string(p.Network), p.Name, address, p.UpdatedAtBlock); err != nil {
			return err
		}
	}
	return nil
}
