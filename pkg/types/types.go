package types

import (
	"time"

	"github.com/0xmhha/explorer-go/pkg/query"
)

// Header is a block header as served by the query node
type Header struct {
	BlockHashHex             string `json:"BlockHashHex"`
	Version                  uint32 `json:"Version"`
	PrevBlockHashHex         string `json:"PrevBlockHashHex"`
	TransactionMerkleRootHex string `json:"TransactionMerkleRootHex"`
	TstampSecs               int64  `json:"TstampSecs"`
	Height                   uint64 `json:"Height"`
	Nonce                    uint64 `json:"Nonce"`
	ExtraNonce               uint64 `json:"ExtraNonce"`

	// DateTime is derived from TstampSecs during normalization
	DateTime *time.Time `json:"DateTime,omitempty"`
}

// Transaction is an opaque transaction record. Only the redaction and
// ordering rules look inside it.
type Transaction map[string]interface{}

// ID returns the Base58Check transaction id, if present
func (t Transaction) ID() string {
	if id, ok := t["TransactionIDBase58Check"].(string); ok {
		return id
	}
	return ""
}

// ServerPayload is the raw response body of every query node endpoint
// consumed by the explorer. Pointer fields distinguish "absent" from zero.
type ServerPayload struct {
	Header                        *Header        `json:"Header,omitempty"`
	Transactions                  *[]Transaction `json:"Transactions,omitempty"`
	LastTransactionIDBase58Check  string         `json:"LastTransactionIDBase58Check,omitempty"`
	LastPublicKeyTransactionIndex *int64         `json:"LastPublicKeyTransactionIndex,omitempty"`
	BalanceNanos                  *uint64        `json:"BalanceNanos,omitempty"`
	Error                         string         `json:"Error,omitempty"`
}

// BlockResult is a single block header and, for full blocks, its body
type BlockResult struct {
	Header       Header        `json:"header"`
	Transactions []Transaction `json:"transactions,omitempty"`
}

// TransactionPage is one page of transactions, newest first
type TransactionPage struct {
	Transactions []Transaction `json:"transactions"`
	NextCursor   query.Cursor  `json:"nextCursor"`
	BalanceNanos *uint64       `json:"balanceNanos,omitempty"`
}

// Len returns the number of transactions on the page
func (p *TransactionPage) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Transactions)
}

// ResultPage is a normalized response. Exactly one field is set.
type ResultPage struct {
	Block        *BlockResult     `json:"block,omitempty"`
	Transactions *TransactionPage `json:"transactions,omitempty"`
}

// IsBlock reports whether the page holds a block
func (r *ResultPage) IsBlock() bool {
	return r != nil && r.Block != nil
}

// IsTransactions reports whether the page holds a transaction list
func (r *ResultPage) IsTransactions() bool {
	return r != nil && r.Transactions != nil
}

// NextCursor returns the forward cursor carried by the page. Blocks carry
// the first-page sentinel.
func (r *ResultPage) NextCursor() query.Cursor {
	if r.IsTransactions() {
		return r.Transactions.NextCursor
	}
	return query.NewCursor()
}
