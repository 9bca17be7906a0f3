package query

import (
	"strconv"
	"strings"
)

const (
	// TipQuery is the raw query used when no parameter names a target
	TipQuery = "tip"

	// MempoolQuery is the literal token selecting the mempool
	MempoolQuery = "mempool"

	// hexTransactionIDLength is the length of a hex (rosetta) transaction id
	hexTransactionIDLength = 64
)

var (
	publicKeyPrefixes     = []string{"BC", "tBC"}
	transactionIDPrefixes = []string{"3Ju", "CbU"}
)

// Classify maps raw input to a Kind. It is total and literal: input is not
// trimmed, and the rules are evaluated in a fixed order where the first
// match wins.
//
// A 64-character string starting with "0" matches both the block hash rule
// and the hex transaction id rule; it classifies as KindBlockHash.
func Classify(raw string) Kind {
	switch {
	case raw == "":
		return KindInvalid
	case raw == MempoolQuery:
		return KindMempool
	case hasAnyPrefix(raw, publicKeyPrefixes):
		return KindPublicKey
	case strings.HasPrefix(raw, "0"):
		return KindBlockHash
	case hasAnyPrefix(raw, transactionIDPrefixes) || len(raw) == hexTransactionIDLength:
		return KindTransactionID
	case isBlockHeight(raw):
		return KindBlockHeight
	default:
		return KindInvalid
	}
}

// ParseHeight parses a block height query.
func ParseHeight(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}

func isBlockHeight(raw string) bool {
	_, err := ParseHeight(raw)
	return err == nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
