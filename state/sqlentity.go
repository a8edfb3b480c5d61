package state

import (
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"github.com/TEENet-io/bridge-indexer/agreement"
	"github.com/TEENet-io/bridge-indexer/common"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

type sqlTransfer struct {
	ID                      string
	Nonce                   string
	SourceNetwork           string
	DestNetwork             string
	Source                  string
	Destination             string
	Sender                  string
	Receiver                string
	Amount                  string // decimal
	Status                  string
	TxHash                  string
	BlockNumber             int64
	Timestamp               int64 // unix milliseconds
	BridgingStartedAtBlock  sql.NullInt64
	BridgingStartedAtTxHash sql.NullString
	CompletedAt             sql.NullInt64
	CompletedAtBlock        sql.NullInt64
	CompletedAtTxHash       sql.NullString
	IsPriorityFeePaid       bool
}

// encode checks the fields the db cannot check and converts them to their
// column types.
func (s *sqlTransfer) encode(t *Transfer) (*sqlTransfer, error) {
	if t.Nonce == "" {
		return nil, fmt.Errorf("%w: empty nonce", ErrTransferInvalid)
	}
	if t.Amount == nil || t.Amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: nonce=%s amount=%v", ErrTransferInvalid, t.Nonce, t.Amount)
	}
	if !t.SourceNetwork.Valid() || t.DestNetwork != t.SourceNetwork.Counterpart() {
		return nil, fmt.Errorf("%w: nonce=%s %s->%s", ErrNetworkInvalid, t.Nonce, t.SourceNetwork, t.DestNetwork)
	}
	if !t.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrStatusInvalid, t.Status)
	}

	s.ID = t.ID
	s.Nonce = t.Nonce
	s.SourceNetwork = string(t.SourceNetwork)
	s.DestNetwork = string(t.DestNetwork)
	s.Source = t.Source
	s.Destination = t.Destination
	s.Sender = t.Sender
	s.Receiver = t.Receiver
	s.Amount = t.Amount.String()
	s.Status = string(t.Status)
	s.TxHash = t.TxHash
	s.BlockNumber = int64(t.BlockNumber)
	s.Timestamp = common.ToUnixMilli(t.Timestamp)
	s.BridgingStartedAtBlock = nullUint64(t.BridgingStartedAtBlock)
	s.BridgingStartedAtTxHash = nullString(t.BridgingStartedAtTxHash)
	s.CompletedAt = nullTime(t.CompletedAt)
	s.CompletedAtBlock = nullUint64(t.CompletedAtBlock)
	s.CompletedAtTxHash = nullString(t.CompletedAtTxHash)
	s.IsPriorityFeePaid = t.IsPriorityFeePaid

	return s, nil
}

func (s *sqlTransfer) args() []any {
	return []any{
		s.ID, s.Nonce, s.SourceNetwork, s.DestNetwork, s.Source, s.Destination, s.Sender, s.Receiver,
		s.Amount, s.Status, s.TxHash, s.BlockNumber, s.Timestamp,
		s.BridgingStartedAtBlock, s.BridgingStartedAtTxHash,
		s.CompletedAt, s.CompletedAtBlock, s.CompletedAtTxHash, s.IsPriorityFeePaid,
	}
}

func (s *sqlTransfer) scan(row rowScanner) error {
	return row.Scan(
		&s.ID, &s.Nonce, &s.SourceNetwork, &s.DestNetwork, &s.Source, &s.Destination, &s.Sender, &s.Receiver,
		&s.Amount, &s.Status, &s.TxHash, &s.BlockNumber, &s.Timestamp,
		&s.BridgingStartedAtBlock, &s.BridgingStartedAtTxHash,
		&s.CompletedAt, &s.CompletedAtBlock, &s.CompletedAtTxHash, &s.IsPriorityFeePaid,
	)
}

func (s *sqlTransfer) decode() (*Transfer, error) {
	amount, ok := new(big.Int).SetString(s.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("%w: nonce=%s stored amount %q", ErrTransferInvalid, s.Nonce, s.Amount)
	}

	return &Transfer{
		ID:                      s.ID,
		Nonce:                   s.Nonce,
		SourceNetwork:           agreement.Network(s.SourceNetwork),
		DestNetwork:             agreement.Network(s.DestNetwork),
		Source:                  s.Source,
		Destination:             s.Destination,
		Sender:                  s.Sender,
		Receiver:                s.Receiver,
		Amount:                  amount,
		Status:                  TransferStatus(s.Status),
		TxHash:                  s.TxHash,
		BlockNumber:             uint64(s.BlockNumber),
		Timestamp:               common.UnixMilli(s.Timestamp),
		BridgingStartedAtBlock:  ptrUint64(s.BridgingStartedAtBlock),
		BridgingStartedAtTxHash: ptrString(s.BridgingStartedAtTxHash),
		CompletedAt:             ptrTime(s.CompletedAt),
		CompletedAtBlock:        ptrUint64(s.CompletedAtBlock),
		CompletedAtTxHash:       ptrString(s.CompletedAtTxHash),
		IsPriorityFeePaid:       s.IsPriorityFeePaid,
	}, nil
}

type sqlPair struct {
	ID                string
	VaraToken         string
	VaraTokenSymbol   string
	VaraTokenName     string
	VaraTokenDecimals int64
	EthToken          string
	EthTokenSymbol    string
	EthTokenName      string
	EthTokenDecimals  int64
	TokenSupply       string
	IsActive          bool
	IsRemoved         bool
	ActiveSinceBlock  int64
	ActiveToBlock     sql.NullInt64
	UpgradedTo        sql.NullString
}

func (s *sqlPair) encode(p *Pair) (*sqlPair, error) {
	if p.VaraToken == "" || p.EthToken == "" {
		return nil, fmt.Errorf("%w: vara=%q eth=%q", ErrPairInvalid, p.VaraToken, p.EthToken)
	}
	if !p.TokenSupply.Valid() {
		return nil, fmt.Errorf("%w: supply=%q", ErrPairInvalid, p.TokenSupply)
	}

	s.ID = p.ID
	s.VaraToken = p.VaraToken
	s.VaraTokenSymbol = p.VaraTokenSymbol
	s.VaraTokenName = p.VaraTokenName
	s.VaraTokenDecimals = int64(p.VaraTokenDecimals)
	s.EthToken = p.EthToken
	s.EthTokenSymbol = p.EthTokenSymbol
	s.EthTokenName = p.EthTokenName
	s.EthTokenDecimals = int64(p.EthTokenDecimals)
	s.TokenSupply = string(p.TokenSupply)
	s.IsActive = p.IsActive
	s.IsRemoved = p.IsRemoved
	s.ActiveSinceBlock = int64(p.ActiveSinceBlock)
	s.ActiveToBlock = nullUint64(p.ActiveToBlock)
	s.UpgradedTo = nullString(p.UpgradedTo)

	return s, nil
}

func (s *sqlPair) args() []any {
	return []any{
		s.ID, s.VaraToken, s.VaraTokenSymbol, s.VaraTokenName, s.VaraTokenDecimals,
		s.EthToken, s.EthTokenSymbol, s.EthTokenName, s.EthTokenDecimals, s.TokenSupply,
		s.IsActive, s.IsRemoved, s.ActiveSinceBlock, s.ActiveToBlock, s.UpgradedTo,
	}
}

func (s *sqlPair) scan(row rowScanner) error {
	return row.Scan(
		&s.ID, &s.VaraToken, &s.VaraTokenSymbol, &s.VaraTokenName, &s.VaraTokenDecimals,
		&s.EthToken, &s.EthTokenSymbol, &s.EthTokenName, &s.EthTokenDecimals, &s.TokenSupply,
		&s.IsActive, &s.IsRemoved, &s.ActiveSinceBlock, &s.ActiveToBlock, &s.UpgradedTo,
	)
}

func (s *sqlPair) decode() *Pair {
	return &Pair{
		ID:                s.ID,
		VaraToken:         s.VaraToken,
		VaraTokenSymbol:   s.VaraTokenSymbol,
		VaraTokenName:     s.VaraTokenName,
		VaraTokenDecimals: uint8(s.VaraTokenDecimals),
		EthToken:          s.EthToken,
		EthTokenSymbol:    s.EthTokenSymbol,
		EthTokenName:      s.EthTokenName,
		EthTokenDecimals:  uint8(s.EthTokenDecimals),
		TokenSupply:       agreement.Network(s.TokenSupply),
		IsActive:          s.IsActive,
		IsRemoved:         s.IsRemoved,
		ActiveSinceBlock:  uint64(s.ActiveSinceBlock),
		ActiveToBlock:     ptrUint64(s.ActiveToBlock),
		UpgradedTo:        ptrString(s.UpgradedTo),
	}
}

func nullUint64(v *uint64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: common.ToUnixMilli(*v), Valid: true}
}

func ptrUint64(v sql.NullInt64) *uint64 {
	if !v.Valid {
		return nil
	}
	u := uint64(v.Int64)
	return &u
}

func ptrString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func ptrTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := common.UnixMilli(v.Int64)
	return &t
}
