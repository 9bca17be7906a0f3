// Package result normalizes query node payloads into result pages.
package result

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/0xmhha/explorer-go/pkg/query"
	"github.com/0xmhha/explorer-go/pkg/types"
)

// Redacted replaces raw operation dumps in transaction metadata
const Redacted = "redacted"

// ErrUnexpectedPayloadShape is returned for payloads with neither a block
// header nor a transaction list
var ErrUnexpectedPayloadShape = errors.New("unexpected payload shape")

// PayloadError carries the offending payload for diagnosis
type PayloadError struct {
	Payload json.RawMessage
	Err     error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, string(e.Payload))
}

func (e *PayloadError) Unwrap() error {
	return e.Err
}

// redactionPath is where the raw operation dump lives inside a transaction
var redactionPath = []string{"TransactionMetadata", "BasicTransferTxindexMetadata", "UtxoOpsDump"}

// Decode parses a raw response body and normalizes it
func Decode(raw json.RawMessage) (*types.ResultPage, error) {
	var payload types.ServerPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &PayloadError{Payload: raw, Err: fmt.Errorf("%w: %v", ErrUnexpectedPayloadShape, err)}
	}

	page, err := Normalize(&payload)
	if err != nil {
		return nil, &PayloadError{Payload: raw, Err: err}
	}
	return page, nil
}

// Normalize turns a payload into exactly one result shape. A header wins
// over a transaction list: full blocks carry both and normalize as blocks.
func Normalize(payload *types.ServerPayload) (*types.ResultPage, error) {
	if payload == nil {
		return nil, ErrUnexpectedPayloadShape
	}

	if payload.Header != nil {
		header := *payload.Header
		dt := time.Unix(header.TstampSecs, 0).UTC()
		header.DateTime = &dt

		block := &types.BlockResult{Header: header}
		if payload.Transactions != nil {
			block.Transactions = redactAll(*payload.Transactions)
		}
		return &types.ResultPage{Block: block}, nil
	}

	if payload.Transactions != nil {
		txns := reverse(redactAll(*payload.Transactions))

		next := query.NewCursor()
		next.LastTransactionID = payload.LastTransactionIDBase58Check
		if payload.LastPublicKeyTransactionIndex != nil {
			next.LastPublicKeyIndex = *payload.LastPublicKeyTransactionIndex
		}

		return &types.ResultPage{Transactions: &types.TransactionPage{
			Transactions: txns,
			NextCursor:   next,
			BalanceNanos: payload.BalanceNanos,
		}}, nil
	}

	return nil, ErrUnexpectedPayloadShape
}

// redactAll returns the transactions with their operation dumps replaced
func redactAll(txns []types.Transaction) []types.Transaction {
	out := make([]types.Transaction, 0, len(txns))
	for _, txn := range txns {
		if txn == nil {
			out = append(out, nil)
			continue
		}
		redact(txn)
		out = append(out, txn)
	}
	return out
}

func redact(txn types.Transaction) {
	node := map[string]interface{}(txn)
	last := len(redactionPath) - 1
	for _, key := range redactionPath[:last] {
		next, ok := node[key].(map[string]interface{})
		if !ok {
			return
		}
		node = next
	}
	if dump, ok := node[redactionPath[last]]; ok && !isEmpty(dump) {
		node[redactionPath[last]] = Redacted
	}
}

func isEmpty(v interface{}) bool {
	switch d := v.(type) {
	case nil:
		return true
	case string:
		return d == ""
	}
	return false
}

func reverse(txns []types.Transaction) []types.Transaction {
	for i, j := 0, len(txns)-1; i < j; i, j = i+1, j-1 {
		txns[i], txns[j] = txns[j], txns[i]
	}
	return txns
}
