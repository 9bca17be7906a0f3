package params

import (
	"strings"

	"github.com/0xmhha/explorer-go/pkg/query"
)

// ExplorerPath returns the path of the state on an external block
// explorer, or "" when the state has no such page.
func ExplorerPath(state query.State) string {
	q := strings.TrimSpace(state.RawQuery)

	switch state.Kind {
	case query.KindMempool:
		return "mempool"
	case query.KindBlockHash, query.KindBlockHeight:
		return "blocks/" + q
	case query.KindTransactionID:
		return "txn/" + q
	case query.KindPublicKey:
		return "u/" + q
	}
	return ""
}

// ExternalLink joins an explorer path onto base. An empty path or base
// yields no link.
func ExternalLink(base, path string) string {
	if base == "" || path == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + path
}
