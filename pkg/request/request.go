// Package request turns a query.State into exactly one query node request.
package request

import (
	"fmt"
	"net/http"

	"github.com/0xmhha/explorer-go/internal/constants"
	"github.com/0xmhha/explorer-go/pkg/query"
)

// Descriptor describes one query node request
type Descriptor struct {
	Kind      query.Kind  `json:"kind"`
	Method    string      `json:"method"`
	QueryNode string      `json:"queryNode"`
	Path      string      `json:"path"`
	Body      interface{} `json:"body,omitempty"`
}

// URL returns the absolute request URL
func (d *Descriptor) URL() string {
	return d.QueryNode + d.Path
}

// PublicKeyTransactionsRequest pages through the transactions of a public key
type PublicKeyTransactionsRequest struct {
	PublicKeyBase58Check          string `json:"PublicKeyBase58Check"`
	LastTransactionIDBase58Check  string `json:"LastTransactionIDBase58Check"`
	LastPublicKeyTransactionIndex int64  `json:"LastPublicKeyTransactionIndex"`
	Limit                         int    `json:"Limit"`
}

// MempoolTransactionsRequest pages through unconfirmed transactions
type MempoolTransactionsRequest struct {
	IsMempool                    bool   `json:"IsMempool"`
	LastTransactionIDBase58Check string `json:"LastTransactionIDBase58Check"`
	Limit                        int    `json:"Limit"`
}

// TransactionLookupRequest fetches a single transaction
type TransactionLookupRequest struct {
	TransactionIDBase58Check string `json:"TransactionIDBase58Check"`
}

// BlockByHashRequest fetches a full block by hash
type BlockByHashRequest struct {
	HashHex   string `json:"HashHex"`
	FullBlock bool   `json:"FullBlock"`
}

// BlockByHeightRequest fetches a full block by height
type BlockByHeightRequest struct {
	Height    int64 `json:"Height"`
	FullBlock bool  `json:"FullBlock"`
}

// Builder builds request descriptors with a fixed page size
type Builder struct {
	pageSize int
}

// NewBuilder creates a builder. A non-positive page size falls back to the default.
func NewBuilder(pageSize int) *Builder {
	if pageSize <= 0 {
		pageSize = constants.DefaultPageSize
	}
	return &Builder{pageSize: pageSize}
}

// PageSize returns the configured page size
func (b *Builder) PageSize() int {
	return b.pageSize
}

// Build returns the request for state. Invalid states fail with
// query.ErrInvalidQuery and never produce a descriptor.
func (b *Builder) Build(state query.State) (*Descriptor, error) {
	d := &Descriptor{
		Kind:      state.Kind,
		Method:    http.MethodPost,
		QueryNode: state.QueryNode,
	}

	switch state.Kind {
	case query.KindTip:
		d.Method = http.MethodGet
		d.Path = constants.PathTip

	case query.KindPublicKey:
		d.Path = constants.PathTransactionInfo
		d.Body = &PublicKeyTransactionsRequest{
			PublicKeyBase58Check:          state.RawQuery,
			LastTransactionIDBase58Check:  state.Cursor.LastTransactionID,
			LastPublicKeyTransactionIndex: state.Cursor.LastPublicKeyIndex,
			Limit:                         b.pageSize,
		}

	case query.KindMempool:
		d.Path = constants.PathTransactionInfo
		d.Body = &MempoolTransactionsRequest{
			IsMempool:                    true,
			LastTransactionIDBase58Check: state.Cursor.LastTransactionID,
			Limit:                        b.pageSize,
		}

	case query.KindBlockHash:
		d.Path = constants.PathBlock
		d.Body = &BlockByHashRequest{HashHex: state.RawQuery, FullBlock: true}

	case query.KindTransactionID:
		d.Path = constants.PathTransactionInfo
		d.Body = &TransactionLookupRequest{TransactionIDBase58Check: state.RawQuery}

	case query.KindBlockHeight:
		height, err := query.ParseHeight(state.RawQuery)
		if err != nil {
			return nil, fmt.Errorf("%w: block height %q", query.ErrInvalidQuery, state.RawQuery)
		}
		d.Path = constants.PathBlock
		d.Body = &BlockByHeightRequest{Height: height, FullBlock: true}

	default:
		return nil, query.ErrInvalidQuery
	}

	if state.RawQuery == "" {
		return nil, fmt.Errorf("%w: empty query", query.ErrInvalidQuery)
	}

	return d, nil
}
