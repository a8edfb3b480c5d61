package state

import (
	"context"
	"database/sql"
	"slices"
	"strconv"

	"github.com/TEENet-io/bridge-indexer/agreement"
	"github.com/TEENet-io/bridge-indexer/common"
	"github.com/pkg/errors"
	logger "github.com/sirupsen/logrus"
)

const (
	insertTransferQuery = `INSERT INTO transfer (` + transferColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`

	// a removed pair comes back when it is added again after its removal;
	// a superseded pair never does
	insertPairQuery = `INSERT INTO pair (` + pairColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			varaTokenSymbol = excluded.varaTokenSymbol,
			varaTokenName = excluded.varaTokenName,
			varaTokenDecimals = excluded.varaTokenDecimals,
			ethTokenSymbol = excluded.ethTokenSymbol,
			ethTokenName = excluded.ethTokenName,
			ethTokenDecimals = excluded.ethTokenDecimals,
			tokenSupply = excluded.tokenSupply,
			isActive = 1,
			isRemoved = 0,
			activeSinceBlock = excluded.activeSinceBlock,
			activeToBlock = NULL
		WHERE pair.isActive = 0 AND pair.upgradedTo IS NULL AND pair.activeToBlock <= excluded.activeSinceBlock`

	insertMessageQuery = `INSERT INTO gearEthBridgeMessage (hash, nonce, source, destination, blockNumber, timestamp)
		VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`

	insertMerkleRootQuery = `INSERT INTO merkleRootInMessageQueue (blockNumber, merkleRoot, timestamp)
		VALUES (?, ?, ?) ON CONFLICT DO NOTHING`

	selectStatusQuery = `SELECT status FROM transfer WHERE nonce = ?`

	updateStatusQuery = `UPDATE transfer SET
			status = ?,
			bridgingStartedAtBlock = COALESCE(bridgingStartedAtBlock, ?),
			bridgingStartedAtTxHash = COALESCE(bridgingStartedAtTxHash, ?),
			completedAt = COALESCE(completedAt, ?),
			completedAtBlock = COALESCE(completedAtBlock, ?),
			completedAtTxHash = COALESCE(completedAtTxHash, ?)
		WHERE nonce = ? AND status = ?`

	// payment seen after the transfer already moved past Bridging
	fillBridgingQuery = `UPDATE transfer SET
			bridgingStartedAtBlock = COALESCE(bridgingStartedAtBlock, ?),
			bridgingStartedAtTxHash = COALESCE(bridgingStartedAtTxHash, ?)
		WHERE nonce = ?`

	updatePriorityQuery = `UPDATE transfer SET isPriorityFeePaid = 1 WHERE nonce = ?`

	selectPendingQuery = `SELECT status, bridgingStartedAtBlock, bridgingStartedAtTxHash,
			completedAt, completedAtBlock, completedAtTxHash, isPriorityFeePaid
		FROM pendingUpdate WHERE nonce = ?`

	upsertPendingQuery = `INSERT OR REPLACE INTO pendingUpdate (nonce, network, status,
			bridgingStartedAtBlock, bridgingStartedAtTxHash,
			completedAt, completedAtBlock, completedAtTxHash, isPriorityFeePaid)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	deletePendingQuery = `DELETE FROM pendingUpdate WHERE nonce = ?`

	updatePairQuery = `UPDATE pair SET
			isActive = 0,
			isRemoved = CASE WHEN ? THEN 1 ELSE isRemoved END,
			activeToBlock = COALESCE(activeToBlock, ?),
			upgradedTo = COALESCE(upgradedTo, ?)
		WHERE id = ?`

	updateMerkleRootQuery = `UPDATE merkleRootInMessageQueue SET submittedAtBlock = ?, submittedAtTxHash = ?
		WHERE blockNumber = ? AND submittedAtBlock IS NULL`

	upsertSlotQuery = `INSERT INTO checkpointSlot (slot, treeHashRoot, blockNumber, timestamp)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (slot) DO UPDATE SET treeHashRoot = excluded.treeHashRoot`

	upsertProgramQuery = `INSERT INTO program (network, name, address, updatedAtBlock)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (network, name) DO UPDATE SET address = excluded.address, updatedAtBlock = excluded.updatedAtBlock
		WHERE excluded.updatedAtBlock >= program.updatedAtBlock`

	insertProgramHistoryQuery = `INSERT INTO programHistory (network, name, address, sinceBlock)
		VALUES (?, ?, ?, ?) ON CONFLICT DO NOTHING`

	// the checkpoint only moves forward
	upsertCheckpointQuery = `INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
		WHERE CAST(excluded.value AS INTEGER) > CAST(kv.value AS INTEGER)`
)

var commitQueries = []string{
	insertTransferQuery, insertPairQuery, insertMessageQuery, insertMerkleRootQuery,
	selectStatusQuery, updateStatusQuery, fillBridgingQuery, updatePriorityQuery, selectPendingQuery,
	upsertPendingQuery, deletePendingQuery, updatePairQuery, updateMerkleRootQuery,
	upsertSlotQuery, upsertProgramQuery, insertProgramHistoryQuery, upsertCheckpointQuery,
}

// CommitBatch writes a batch in one transaction: first every staged insert,
// then every staged update, then the pipeline checkpoint. Any error rolls the
// whole batch back.
func (st *StateDB) CommitBatch(ctx context.Context, b *Batch) (err error) {
	tx, err := st.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin batch transaction")
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			logger.WithFields(logger.Fields{
				"network": b.network,
				"error":   rbErr,
			}).Error("failed to roll back batch")
		}
	}()

	newTransfers, err := st.applyInserts(ctx, tx, b)
	if err != nil {
		return err
	}
	if err = st.applyUpdates(ctx, tx, b); err != nil {
		return err
	}

	if b.processedBlock != nil {
		if err = st.exec(ctx, tx, upsertCheckpointQuery,
			keyLastProcessedBlock+string(b.network), strconv.FormatUint(*b.processedBlock, 10)); err != nil {
			return errors.Wrap(err, "failed to store checkpoint")
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit batch")
	}

	if newTransfers > 0 {
		st.notifyTransferCount()
	}
	return nil
}

// applyInserts is phase one. It returns the number of transfers created.
func (st *StateDB) applyInserts(ctx context.Context, tx *sql.Tx, b *Batch) (int64, error) {
	var created int64

	stmt, err := st.stmtCache.PrepareTx(ctx, tx, insertTransferQuery)
	if err != nil {
		return 0, errors.Wrap(err, "failed to prepare transfer insert")
	}
	for _, t := range b.transfers {
		s, err := new(sqlTransfer).encode(t)
		if err != nil {
			return 0, err
		}
		res, err := stmt.ExecContext(ctx, s.args()...)
		if err != nil {
			return 0, errors.Wrapf(err, "failed to insert transfer nonce=%s", t.Nonce)
		}
		n, _ := res.RowsAffected()
		created += n
	}

	for _, p := range b.pairs {
		s, err := new(sqlPair).encode(p)
		if err != nil {
			return 0, err
		}
		if err := st.exec(ctx, tx, insertPairQuery, s.args()...); err != nil {
			return 0, errors.Wrapf(err, "failed to insert pair id=%s", p.ID)
		}
	}

	for _, m := range b.messages {
		if err := st.exec(ctx, tx, insertMessageQuery,
			m.Hash, m.Nonce, m.Source, m.Destination, m.BlockNumber, common.ToUnixMilli(m.Timestamp)); err != nil {
			return 0, errors.Wrapf(err, "failed to insert message hash=%s", m.Hash)
		}
	}

	for _, r := range b.merkleRoots {
		if err := st.exec(ctx, tx, insertMerkleRootQuery, r.BlockNumber, r.MerkleRoot, common.ToUnixMilli(r.Timestamp)); err != nil {
			return 0, errors.Wrapf(err, "failed to insert merkle root block=%d", r.BlockNumber)
		}
	}

	return created, nil
}

// applyUpdates is phase two. Every update may refer to a row inserted in
// phase one of the same batch.
func (st *StateDB) applyUpdates(ctx context.Context, tx *sql.Tx, b *Batch) error {
	patches, order, err := st.withPendingUpdates(ctx, tx, b)
	if err != nil {
		return err
	}
	for _, nonce := range order {
		if err := st.applyTransferPatch(ctx, tx, b.network, patches[nonce]); err != nil {
			return err
		}
	}

	for _, id := range b.pairPatchOrder {
		pp := b.pairPatches[id]
		n, err := st.execCount(ctx, tx, updatePairQuery, pp.removed, pp.activeToBlock, nullString(pp.upgradedTo), pp.id)
		if err != nil {
			return errors.Wrapf(err, "failed to update pair id=%s", pp.id)
		}
		if n == 0 {
			logger.WithField("pair", pp.id).Warn("pair to retire is unknown")
		}
	}

	for _, s := range b.submissions {
		n, err := st.execCount(ctx, tx, updateMerkleRootQuery, s.ethBlock, s.txHash, s.varaBlock)
		if err != nil {
			return errors.Wrapf(err, "failed to mark merkle root of block %d submitted", s.varaBlock)
		}
		if n == 0 {
			logger.WithFields(logger.Fields{
				"varaBlock": s.varaBlock,
				"root":      s.root,
				"txHash":    s.txHash,
			}).Warn("submitted merkle root is not indexed or already submitted")
		}
	}

	for _, s := range b.slots {
		if err := st.exec(ctx, tx, upsertSlotQuery, s.Slot, s.TreeHashRoot, s.BlockNumber, common.ToUnixMilli(s.Timestamp)); err != nil {
			return errors.Wrapf(err, "failed to store slot %d", s.Slot)
		}
	}

	for _, p := range b.programs {
		if err := st.exec(ctx, tx, upsertProgramQuery, string(p.Network), p.Name, p.Address, p.UpdatedAtBlock); err != nil {
			return errors.Wrapf(err, "failed to store program %s", p.Name)
		}
		if err := st.exec(ctx, tx, insertProgramHistoryQuery, string(p.Network), p.Name, p.Address, p.UpdatedAtBlock); err != nil {
			return errors.Wrapf(err, "failed to store history of program %s", p.Name)
		}
	}

	return nil
}

// withPendingUpdates folds the updates waiting for the transfers of this
// batch into copies of the batch's own patches and drops them from the
// pending table. The batch is left untouched.
func (st *StateDB) withPendingUpdates(ctx context.Context, tx *sql.Tx, b *Batch) (map[string]*transferPatch, []string, error) {
	patches := make(map[string]*transferPatch, len(b.patches))
	for nonce, p := range b.patches {
		c := *p
		patches[nonce] = &c
	}
	order := slices.Clone(b.patchOrder)

	for _, t := range b.transfers {
		pending, ok, err := st.pendingUpdate(ctx, tx, t.Nonce)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			continue
		}
		if err := st.exec(ctx, tx, deletePendingQuery, t.Nonce); err != nil {
			return nil, nil, errors.Wrapf(err, "failed to drop pending update of nonce=%s", t.Nonce)
		}

		if p, ok := patches[t.Nonce]; ok {
			p.merge(pending)
		} else {
			patches[t.Nonce] = pending
			order = append(order, t.Nonce)
		}
		logger.WithFields(logger.Fields{
			"nonce":  t.Nonce,
			"status": pending.status,
		}).Debug("applying pending update")
	}
	return patches, order, nil
}

func (st *StateDB) pendingUpdate(ctx context.Context, tx *sql.Tx, nonce string) (*transferPatch, bool, error) {
	stmt, err := st.stmtCache.PrepareTx(ctx, tx, selectPendingQuery)
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to prepare pending update query")
	}

	var (
		status          string
		bridgingBlock   sql.NullInt64
		bridgingTxHash  sql.NullString
		completedAt     sql.NullInt64
		completedBlock  sql.NullInt64
		completedTxHash sql.NullString
		priority        bool
	)
	if err := stmt.QueryRowContext(ctx, nonce).Scan(&status, &bridgingBlock, &bridgingTxHash,
		&completedAt, &completedBlock, &completedTxHash, &priority); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "failed to read pending update of nonce=%s", nonce)
	}

	return &transferPatch{
		nonce:           nonce,
		status:          TransferStatus(status),
		bridgingBlock:   ptrUint64(bridgingBlock),
		bridgingTxHash:  ptrString(bridgingTxHash),
		completedAt:     ptrTime(completedAt),
		completedBlock:  ptrUint64(completedBlock),
		completedTxHash: ptrString(completedTxHash),
		priority:        priority,
	}, true, nil
}

// park stores p until the other pipeline creates the transfer. An update
// already waiting for the same nonce is merged, the earlier one wins.
func (st *StateDB) park(ctx context.Context, tx *sql.Tx, network agreement.Network, p *transferPatch) error {
	merged := *p
	earlier, ok, err := st.pendingUpdate(ctx, tx, p.nonce)
	if err != nil {
		return err
	}
	if ok {
		earlier.merge(p)
		merged = *earlier
	}

	if err := st.exec(ctx, tx, upsertPendingQuery,
		merged.nonce, string(network), string(merged.status),
		nullUint64(merged.bridgingBlock), nullString(merged.bridgingTxHash),
		nullTime(merged.completedAt), nullUint64(merged.completedBlock), nullString(merged.completedTxHash),
		merged.priority,
	); err != nil {
		return errors.Wrapf(err, "failed to park update of nonce=%s", p.nonce)
	}

	logger.WithFields(logger.Fields{
		"nonce":   p.nonce,
		"network": network,
		"status":  merged.status,
	}).Info("transfer of the other chain not indexed yet, update is pending")
	return nil
}

func (st *StateDB) applyTransferPatch(ctx context.Context, tx *sql.Tx, network agreement.Network, p *transferPatch) error {
	stmt, err := st.stmtCache.PrepareTx(ctx, tx, selectStatusQuery)
	if err != nil {
		return errors.Wrap(err, "failed to prepare status query")
	}

	var current string
	if err := stmt.QueryRowContext(ctx, p.nonce).Scan(&current); err != nil {
		if err != sql.ErrNoRows {
			return errors.Wrapf(err, "failed to read status of nonce=%s", p.nonce)
		}
		// a request of this chain always precedes its updates
		if nonceNetwork(p.nonce) == network {
			return errors.Wrapf(ErrUnresolvedNonce, "nonce=%s", p.nonce)
		}
		return st.park(ctx, tx, network, p)
	}

	from := TransferStatus(current)
	if p.status != "" {
		if CanTransition(from, p.status) {
			if err := st.exec(ctx, tx, updateStatusQuery,
				string(p.status),
				nullUint64(p.bridgingBlock), nullString(p.bridgingTxHash),
				nullTime(p.completedAt), nullUint64(p.completedBlock), nullString(p.completedTxHash),
				p.nonce, current,
			); err != nil {
				return errors.Wrapf(err, "failed to update status of nonce=%s", p.nonce)
			}
		} else {
			logger.WithFields(logger.Fields{
				"nonce":  p.nonce,
				"from":   from,
				"target": p.status,
			}).Debug("skipping status transition")

			if p.bridgingBlock != nil {
				if err := st.exec(ctx, tx, fillBridgingQuery,
					nullUint64(p.bridgingBlock), nullString(p.bridgingTxHash), p.nonce); err != nil {
					return errors.Wrapf(err, "failed to record payment of nonce=%s", p.nonce)
				}
			}
		}
	}

	if p.priority {
		if err := st.exec(ctx, tx, updatePriorityQuery, p.nonce); err != nil {
			return errors.Wrapf(err, "failed to set priority of nonce=%s", p.nonce)
		}
	}

	return nil
}

func (st *StateDB) exec(ctx context.Context, tx *sql.Tx, query string, args ...any) error {
	_, err := st.execCount(ctx, tx, query, args...)
	return err
}

func (st *StateDB) execCount(ctx context.Context, tx *sql.Tx, query string, args ...any) (int64, error) {
	stmt, err := st.stmtCache.PrepareTx(ctx, tx, query)
	if err != nil {
		return 0, err
	}
	res, err := stmt.ExecContext(ctx, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (st *StateDB) notifyTransferCount() {
	n, err := st.CountTransfers()
	if err != nil {
		logger.WithError(err).Error("failed to count transfers")
		return
	}
	st.transferCountFeed.Send(n)
}
