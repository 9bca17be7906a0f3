// Package params maps between the flat external parameter set (the URL
// query string) and query.State.
package params

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/0xmhha/explorer-go/internal/constants"
	"github.com/0xmhha/explorer-go/pkg/query"
)

// External parameter keys
const (
	KeyQueryNode     = "query-node"
	KeyMempool       = "mempool"
	KeyBlockHash     = "block-hash"
	KeyBlockHeight   = "block-height"
	KeyTransactionID = "transaction-id"
	KeyPublicKey     = "public-key"
	KeyPage          = "page"
	KeyLastTxnIndex  = "last-txn-idx"
	KeyLastTxnHash   = "last-txn-hash"
)

// Params is the flat external parameter set
type Params map[string]string

// FromValues flattens url.Values, keeping the first value of every key
func FromValues(v url.Values) Params {
	p := make(Params, len(v))
	for k, vals := range v {
		if len(vals) > 0 {
			p[k] = vals[0]
		}
	}
	return p
}

// Values converts the set to url.Values
func (p Params) Values() url.Values {
	v := make(url.Values, len(p))
	for k, val := range p {
		v.Set(k, val)
	}
	return v
}

// Encode renders the set as a query string with sorted keys
func (p Params) Encode() string {
	return p.Values().Encode()
}

// Clone returns a copy of the set
func (p Params) Clone() Params {
	c := make(Params, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}

// Keys returns the keys in sorted order
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports whether both sets hold the same keys and values
func (p Params) Equal(other Params) bool {
	if len(p) != len(other) {
		return false
	}
	for k, v := range p {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

func (p Params) lookup(key string) (string, bool) {
	v, ok := p[key]
	return v, ok
}

// mempoolFlag follows the truthiness of a present query flag: any value
// other than empty, "false" or "0" selects the mempool.
func mempoolFlag(p Params) bool {
	v, ok := p.lookup(KeyMempool)
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "false", "0":
		return false
	}
	return true
}

// Decode derives a state from the external parameter set. Named kind
// parameters are checked in a fixed order and bypass free-text
// classification; with none present the state asks for the tip.
func Decode(p Params) query.State {
	state := query.TipState(constants.DefaultQueryNode)
	if node, ok := p.lookup(KeyQueryNode); ok && node != "" {
		state.QueryNode = node
	}

	switch {
	case mempoolFlag(p):
		state.Kind, state.RawQuery = query.KindMempool, query.MempoolQuery
	case has(p, KeyBlockHash):
		state.Kind, state.RawQuery = query.KindBlockHash, p[KeyBlockHash]
	case has(p, KeyBlockHeight):
		state.Kind, state.RawQuery = query.KindBlockHeight, p[KeyBlockHeight]
	case has(p, KeyTransactionID):
		state.Kind, state.RawQuery = query.KindTransactionID, p[KeyTransactionID]
	case has(p, KeyPublicKey):
		state.Kind, state.RawQuery = query.KindPublicKey, p[KeyPublicKey]
	}

	if v, ok := p.lookup(KeyLastTxnIndex); ok {
		if idx, err := strconv.ParseInt(v, 10, 64); err == nil {
			state.Cursor.LastPublicKeyIndex = idx
		}
	}
	if v, ok := p.lookup(KeyLastTxnHash); ok {
		state.Cursor.LastTransactionID = v
	}
	if v, ok := p.lookup(KeyPage); ok {
		if page, err := strconv.Atoi(v); err == nil {
			state.Page = page
		}
	}

	return state.Normalize()
}

// Encode renders a state as external parameters. The parameter name is
// chosen by the state's kind; a state without a routable kind is
// classified from its raw query first. Page and cursor fields are only
// attached for cursor-paginated kinds.
func Encode(state query.State) (Params, error) {
	kind := state.Kind
	if !kind.Routable() {
		kind = query.Classify(state.RawQuery)
	}

	p := Params{}
	if state.QueryNode != "" {
		p[KeyQueryNode] = state.QueryNode
	}

	page := state.Page
	if page < 1 {
		page = 1
	}

	switch kind {
	case query.KindTip:
	case query.KindPublicKey:
		p[KeyPublicKey] = state.RawQuery
		p[KeyLastTxnIndex] = strconv.FormatInt(state.Cursor.LastPublicKeyIndex, 10)
		if state.Cursor.LastTransactionID != "" {
			p[KeyLastTxnHash] = state.Cursor.LastTransactionID
		}
		p[KeyPage] = strconv.Itoa(page)
	case query.KindMempool:
		p[KeyMempool] = "true"
		p[KeyLastTxnHash] = state.Cursor.LastTransactionID
		if state.Cursor.LastPublicKeyIndex != query.NoPublicKeyIndex {
			p[KeyLastTxnIndex] = strconv.FormatInt(state.Cursor.LastPublicKeyIndex, 10)
		}
		p[KeyPage] = strconv.Itoa(page)
	case query.KindBlockHash:
		p[KeyBlockHash] = state.RawQuery
	case query.KindTransactionID:
		p[KeyTransactionID] = state.RawQuery
	case query.KindBlockHeight:
		p[KeyBlockHeight] = state.RawQuery
	default:
		return nil, query.ErrInvalidQuery
	}

	return p, nil
}

func has(p Params, key string) bool {
	_, ok := p[key]
	return ok
}
