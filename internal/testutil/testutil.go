package testutil

import (
	"encoding/json"
	"fmt"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// A public key and a few ids that classify the way their names say
const (
	PublicKey     = "BC1YLfKabyGY6RCZK5wjEAQ9HwkAyg9hmsJHfS"
	TestnetKey    = "tBCKVERmG9nZpHTk2AVPqknWc1Mw9HHAnqrTpW1RnXpXMQ4PsQgnmV"
	TransactionID = "3JuETA7G5EZGVAAEYpbBv3hfVTohqpxCLkXRBGTF8Xptkz3yK6ntHQ"
	BlockHash     = "00000000000c1a39cd356ed5ab7f4e1826b9cf9ab0fb92048005d3293f81ee3d"
)

// NewTestLogger creates a logger writing through t
func NewTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	return zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))
}

// TransactionsPayload builds a transaction-info response body holding n
// transactions in server order, ids prefix-0 .. prefix-(n-1).
func TransactionsPayload(prefix string, n int, lastIndex int64) json.RawMessage {
	txns := make([]map[string]interface{}, 0, n)
	for i := 0; i < n; i++ {
		txns = append(txns, map[string]interface{}{
			"TransactionIDBase58Check": fmt.Sprintf("%s-%d", prefix, i),
			"TransactionMetadata": map[string]interface{}{
				"BasicTransferTxindexMetadata": map[string]interface{}{
					"UtxoOpsDump": "raw-ops-" + prefix,
				},
			},
		})
	}

	last := ""
	if n > 0 {
		last = fmt.Sprintf("%s-%d", prefix, n-1)
	}
	return mustMarshal(map[string]interface{}{
		"Transactions":                  txns,
		"LastTransactionIDBase58Check":  last,
		"LastPublicKeyTransactionIndex": lastIndex,
		"BalanceNanos":                  uint64(1_000_000),
	})
}

// BlockPayload builds a block response body
func BlockPayload(height uint64, tstampSecs int64) json.RawMessage {
	return mustMarshal(map[string]interface{}{
		"Header": map[string]interface{}{
			"BlockHashHex": BlockHash,
			"Height":       height,
			"TstampSecs":   tstampSecs,
		},
		"Transactions": []interface{}{},
	})
}

// ErrorPayload builds a structured error body
func ErrorPayload(message string) json.RawMessage {
	return mustMarshal(map[string]string{"Error": message})
}

func mustMarshal(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
