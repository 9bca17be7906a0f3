package query

// Kind identifies the shape of an explorer query.
type Kind int

const (
	// KindInvalid is unrecognized input; it never reaches the transport
	KindInvalid Kind = iota
	// KindTip is the current chain head
	KindTip
	// KindMempool is the set of unconfirmed transactions
	KindMempool
	// KindPublicKey is a Base58Check public key ("BC" or "tBC" prefix)
	KindPublicKey
	// KindTransactionID is a transaction id (Base58Check or 64-char hex)
	KindTransactionID
	// KindBlockHash is a zero-leading block hash
	KindBlockHash
	// KindBlockHeight is a base-10 block height
	KindBlockHeight
)

var kindNames = map[Kind]string{
	KindInvalid:       "invalid",
	KindTip:           "tip",
	KindMempool:       "mempool",
	KindPublicKey:     "public-key",
	KindTransactionID: "transaction-id",
	KindBlockHash:     "block-hash",
	KindBlockHeight:   "block-height",
}

// String returns the external name of the kind
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindInvalid]
}

// MarshalText implements encoding.TextMarshaler so kinds render by name in JSON
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *Kind) UnmarshalText(text []byte) error {
	*k = ParseKind(string(text))
	return nil
}

// ParseKind maps an external name back to a Kind. Unknown names yield KindInvalid.
func ParseKind(name string) Kind {
	for k, n := range kindNames {
		if n == name {
			return k
		}
	}
	return KindInvalid
}

// Paginated reports whether the kind is served by the cursor-paginated
// transaction-info endpoint.
func (k Kind) Paginated() bool {
	return k == KindPublicKey || k == KindMempool
}

// Routable reports whether a request can be built for the kind.
func (k Kind) Routable() bool {
	return k != KindInvalid
}
