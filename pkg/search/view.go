package search

import (
	"encoding/json"
	"fmt"

	"github.com/0xmhha/explorer-go/pkg/params"
	"github.com/0xmhha/explorer-go/pkg/query"
	"github.com/0xmhha/explorer-go/pkg/types"
)

// Status is the controller state
type Status int

const (
	// StatusIdle is the state before the first cycle
	StatusIdle Status = iota
	// StatusLoading means a query node request is in flight
	StatusLoading
	// StatusSettled means the view holds the result of the latest cycle
	StatusSettled
	// StatusFailed means the latest cycle ended in an error shown to the user
	StatusFailed
)

var statusNames = map[Status]string{
	StatusIdle:    "idle",
	StatusLoading: "loading",
	StatusSettled: "settled",
	StatusFailed:  "failed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// MarshalJSON renders the status by name
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// View is a snapshot of what the explorer currently shows
type View struct {
	Status       Status            `json:"status"`
	State        query.State       `json:"state"`
	Result       *types.ResultPage `json:"result,omitempty"`
	Error        string            `json:"error,omitempty"`
	Loading      bool              `json:"loading"`
	ShowNextPage bool              `json:"showNextPage"`
	HasQuery     bool              `json:"hasQuery"`
	ExplorerPath string            `json:"explorerPath,omitempty"`
	ExternalLink string            `json:"externalLink,omitempty"`
	Params       params.Params     `json:"params,omitempty"`
	Generation   uint64            `json:"generation"`
}

// showNextPage reports whether a next page may exist: a full transaction
// page is showing, or a later page is loading.
func showNextPage(v View, pageSize int) bool {
	if v.Loading {
		return v.State.Page >= 2
	}
	return v.Result.IsTransactions() && !v.Result.IsBlock() && v.Result.Transactions.Len() >= pageSize
}
