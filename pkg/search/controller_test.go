package search

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/0xmhha/explorer-go/internal/constants"
	"github.com/0xmhha/explorer-go/internal/testutil"
	"github.com/0xmhha/explorer-go/pkg/alert"
	"github.com/0xmhha/explorer-go/pkg/client"
	"github.com/0xmhha/explorer-go/pkg/params"
	"github.com/0xmhha/explorer-go/pkg/query"
	"github.com/0xmhha/explorer-go/pkg/request"
	"github.com/0xmhha/explorer-go/pkg/router"
)

const testNode = "https://node.test"

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	ctrl      *Controller
	transport *testutil.FakeTransport
	alerts    *alert.Recorder
	router    *router.Router
}

func newFixture(t *testing.T, pageSize int, responses ...testutil.Response) *fixture {
	t.Helper()
	transport := testutil.NewFakeTransport(responses...)
	alerts := alert.NewRecorder()
	rt := router.New(nil)
	ctrl := New(Config{QueryNode: testNode, PageSize: pageSize, ExternalExplorer: "https://explorer.test/"},
		transport, rt, alerts, testutil.NewTestLogger(t))
	t.Cleanup(ctrl.Close)
	return &fixture{ctrl: ctrl, transport: transport, alerts: alerts, router: rt}
}

func publicKeyBody(t *testing.T, desc *request.Descriptor) *request.PublicKeyTransactionsRequest {
	t.Helper()
	body, ok := desc.Body.(*request.PublicKeyTransactionsRequest)
	require.True(t, ok, "unexpected body %T", desc.Body)
	return body
}

func TestController_TipWithoutParams(t *testing.T) {
	f := newFixture(t, 0, testutil.Response{Body: testutil.BlockPayload(100, 1620000000)})

	view, err := f.ctrl.HandleParams(context.Background(), params.Params{})
	require.NoError(t, err)

	last := f.transport.Last()
	require.NotNil(t, last)
	assert.Equal(t, http.MethodGet, last.Method)
	assert.Equal(t, constants.DefaultQueryNode+"/api/v1", last.URL())
	assert.Nil(t, last.Body)

	assert.Equal(t, StatusSettled, view.Status)
	assert.Equal(t, query.KindTip, view.State.Kind)
	require.True(t, view.Result.IsBlock())
	require.NotNil(t, view.Result.Block.Header.DateTime)
	assert.Equal(t, time.Unix(1620000000, 0).UTC(), *view.Result.Block.Header.DateTime)
	assert.False(t, view.HasQuery)
	assert.False(t, view.ShowNextPage)
	assert.Empty(t, view.ExplorerPath)
}

func TestController_SearchPublicKeyFirstPage(t *testing.T) {
	f := newFixture(t, 200, testutil.Response{Body: testutil.TransactionsPayload("p1", 3, 7)})

	view, err := f.ctrl.Search(context.Background(), testutil.PublicKey)
	require.NoError(t, err)

	require.Equal(t, 1, f.transport.Calls())
	last := f.transport.Last()
	assert.Equal(t, http.MethodPost, last.Method)
	assert.Equal(t, testNode+"/api/v1/transaction-info", last.URL())

	body := publicKeyBody(t, last)
	assert.Equal(t, testutil.PublicKey, body.PublicKeyBase58Check)
	assert.Equal(t, 200, body.Limit)
	assert.Equal(t, int64(-1), body.LastPublicKeyTransactionIndex)
	assert.Empty(t, body.LastTransactionIDBase58Check)

	cur := f.router.Current()
	assert.Equal(t, testutil.PublicKey, cur[params.KeyPublicKey])
	assert.Equal(t, "1", cur[params.KeyPage])
	assert.Equal(t, testNode, cur[params.KeyQueryNode])

	assert.Equal(t, StatusSettled, view.Status)
	assert.True(t, view.HasQuery)
	require.True(t, view.Result.IsTransactions())
	assert.Equal(t, "p1-2", view.Result.Transactions.Transactions[0].ID())
	assert.Equal(t, query.Cursor{LastTransactionID: "p1-2", LastPublicKeyIndex: 7}, view.State.Cursor)
	assert.Equal(t, "u/"+testutil.PublicKey, view.ExplorerPath)
	assert.Equal(t, "https://explorer.test/u/"+testutil.PublicKey, view.ExternalLink)
}

func TestController_SearchTrimsInput(t *testing.T) {
	f := newFixture(t, 0, testutil.Response{Body: testutil.BlockPayload(12, 1)})

	view, err := f.ctrl.Search(context.Background(), "  12\t")
	require.NoError(t, err)

	assert.Equal(t, "12", f.router.Current()[params.KeyBlockHeight])
	assert.Equal(t, query.KindBlockHeight, view.State.Kind)
	assert.Equal(t, "blocks/12", view.ExplorerPath)

	body, ok := f.transport.Last().Body.(*request.BlockByHeightRequest)
	require.True(t, ok)
	assert.Equal(t, int64(12), body.Height)
	assert.True(t, body.FullBlock)
}

func TestController_SearchTip(t *testing.T) {
	f := newFixture(t, 0, testutil.Response{Body: testutil.BlockPayload(1, 1)})

	view, err := f.ctrl.Search(context.Background(), "tip")
	require.NoError(t, err)

	assert.Equal(t, query.KindTip, view.State.Kind)
	assert.Equal(t, params.Params{params.KeyQueryNode: testNode}, f.router.Current())
	assert.Equal(t, http.MethodGet, f.transport.Last().Method)
}

func TestController_ShowNextPage(t *testing.T) {
	tests := []struct {
		name string
		n    int
		want bool
	}{
		{"full page", 3, true},
		{"short page", 2, false},
		{"empty page", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 3, testutil.Response{Body: testutil.TransactionsPayload("p", tt.n, 1)})

			view, err := f.ctrl.Search(context.Background(), testutil.PublicKey)
			require.NoError(t, err)
			assert.Equal(t, tt.want, view.ShowNextPage)
		})
	}
}

func TestController_ShowNextPageHiddenForBlocks(t *testing.T) {
	f := newFixture(t, 1, testutil.Response{Body: json.RawMessage(`{"Header":{"Height":1},"Transactions":[{"TransactionIDBase58Check":"a"}]}`)})

	view, err := f.ctrl.Search(context.Background(), testutil.BlockHash)
	require.NoError(t, err)
	assert.True(t, view.Result.IsBlock())
	assert.False(t, view.ShowNextPage)
}

func TestController_BackNavigationUsesCache(t *testing.T) {
	f := newFixture(t, 2,
		testutil.Response{Body: testutil.TransactionsPayload("p1", 2, 5)},
		testutil.Response{Body: testutil.TransactionsPayload("p2", 2, 9)},
	)
	ctx := context.Background()

	_, err := f.ctrl.Search(ctx, testutil.PublicKey)
	require.NoError(t, err)

	view, err := f.ctrl.NextPage(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, f.transport.Calls())
	assert.Equal(t, 2, view.State.Page)
	assert.Equal(t, "2", f.router.Current()[params.KeyPage])

	body := publicKeyBody(t, f.transport.Last())
	assert.Equal(t, "p1-1", body.LastTransactionIDBase58Check)
	assert.Equal(t, int64(5), body.LastPublicKeyTransactionIndex)

	view, err = f.ctrl.PrevPage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, f.transport.Calls())
	assert.Equal(t, 1, view.State.Page)
	assert.Equal(t, StatusSettled, view.Status)
	assert.Equal(t, "p1-1", view.Result.Transactions.Transactions[0].ID())
	assert.Equal(t, query.Cursor{LastTransactionID: "p1-1", LastPublicKeyIndex: 5}, view.State.Cursor)

	view, err = f.ctrl.NextPage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, f.transport.Calls())
	assert.Equal(t, query.Cursor{LastTransactionID: "p2-1", LastPublicKeyIndex: 9}, view.State.Cursor)

	hits, misses, _, size := f.ctrl.Cache().Stats()
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(2), misses)
	assert.Equal(t, 2, size)
}

func TestController_PrevPageFromDeepLinkStartsFromSentinel(t *testing.T) {
	f := newFixture(t, 3,
		testutil.Response{Body: testutil.TransactionsPayload("p2", 3, 7)},
		testutil.Response{Body: testutil.TransactionsPayload("p1", 3, 4)},
	)
	ctx := context.Background()

	_, err := f.ctrl.HandleParams(ctx, params.Params{
		params.KeyPublicKey:    testutil.PublicKey,
		params.KeyQueryNode:    testNode,
		params.KeyPage:         "2",
		params.KeyLastTxnIndex: "50",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(50), publicKeyBody(t, f.transport.Last()).LastPublicKeyTransactionIndex)

	view, err := f.ctrl.PrevPage(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, f.transport.Calls())

	body := publicKeyBody(t, f.transport.Last())
	assert.Equal(t, query.NoPublicKeyIndex, body.LastPublicKeyTransactionIndex)
	assert.Empty(t, body.LastTransactionIDBase58Check)

	assert.Equal(t, 1, view.State.Page)
	assert.Equal(t, "-1", f.router.Current()[params.KeyLastTxnIndex])
	assert.Equal(t, "p1-2", view.Result.Transactions.Transactions[0].ID())
}

func TestController_PrevPageToUnknownCursorRestartsAtFirstPage(t *testing.T) {
	f := newFixture(t, 3,
		testutil.Response{Body: testutil.TransactionsPayload("p3", 3, 12)},
		testutil.Response{Body: testutil.TransactionsPayload("p1", 3, 4)},
	)
	ctx := context.Background()

	_, err := f.ctrl.HandleParams(ctx, params.Params{
		params.KeyPublicKey:    testutil.PublicKey,
		params.KeyQueryNode:    testNode,
		params.KeyPage:         "3",
		params.KeyLastTxnIndex: "80",
		params.KeyLastTxnHash:  "p2-2",
	})
	require.NoError(t, err)

	view, err := f.ctrl.PrevPage(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, f.transport.Calls())

	body := publicKeyBody(t, f.transport.Last())
	assert.Equal(t, query.NoPublicKeyIndex, body.LastPublicKeyTransactionIndex)
	assert.Empty(t, body.LastTransactionIDBase58Check)
	assert.Equal(t, 1, view.State.Page)
}

func TestController_QueryChangeClearsCache(t *testing.T) {
	f := newFixture(t, 2,
		testutil.Response{Body: testutil.TransactionsPayload("p1", 2, 5)},
		testutil.Response{Body: testutil.TransactionsPayload("p2", 2, 9)},
		testutil.Response{Body: testutil.BlockPayload(10, 1)},
	)
	ctx := context.Background()

	_, err := f.ctrl.Search(ctx, testutil.PublicKey)
	require.NoError(t, err)
	_, err = f.ctrl.NextPage(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, f.ctrl.Cache().Len())

	view, err := f.ctrl.HandleParams(ctx, params.Params{params.KeyBlockHeight: "10"})
	require.NoError(t, err)

	assert.Equal(t, 3, f.transport.Calls())
	assert.Equal(t, 0, f.ctrl.Cache().Len())
	_, ok := f.ctrl.Cache().Cursor(2)
	assert.False(t, ok)
	assert.True(t, view.State.Cursor.IsStart())
	assert.Equal(t, query.KindBlockHeight, view.State.Kind)
}

func TestController_SameQueryDifferentParamsKeepsCache(t *testing.T) {
	f := newFixture(t, 2, testutil.Response{Body: testutil.TransactionsPayload("p1", 2, 5)})
	ctx := context.Background()

	_, err := f.ctrl.HandleParams(ctx, params.Params{params.KeyPublicKey: testutil.PublicKey, params.KeyQueryNode: testNode})
	require.NoError(t, err)

	_, err = f.ctrl.HandleParams(ctx, params.Params{
		params.KeyPublicKey:    testutil.PublicKey,
		params.KeyQueryNode:    testNode,
		params.KeyPage:         "1",
		params.KeyLastTxnIndex: "-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.transport.Calls())
}

func TestController_SearchResetsCacheForSameQuery(t *testing.T) {
	f := newFixture(t, 2,
		testutil.Response{Body: testutil.TransactionsPayload("p1", 2, 5)},
		testutil.Response{Body: testutil.TransactionsPayload("again", 2, 5)},
	)
	ctx := context.Background()

	_, err := f.ctrl.Search(ctx, testutil.PublicKey)
	require.NoError(t, err)
	view, err := f.ctrl.Search(ctx, testutil.PublicKey)
	require.NoError(t, err)

	assert.Equal(t, 2, f.transport.Calls())
	assert.Equal(t, "again-1", view.Result.Transactions.Transactions[0].ID())
}

func TestController_InvalidInput(t *testing.T) {
	for _, input := range []string{"", "   ", "hello", "12abc"} {
		t.Run(input, func(t *testing.T) {
			f := newFixture(t, 0)

			_, err := f.ctrl.Search(context.Background(), input)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Equal(t, 0, f.transport.Calls())
			assert.Equal(t, alert.InvalidInputMessage, f.alerts.Last())
			assert.Empty(t, f.router.Current())
		})
	}
}

func TestController_InvalidParams(t *testing.T) {
	f := newFixture(t, 0)

	view, err := f.ctrl.HandleParams(context.Background(), params.Params{params.KeyBlockHeight: "tall"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, StatusFailed, view.Status)
	assert.False(t, view.Loading)
	assert.Equal(t, alert.InvalidInputMessage, view.Error)
	assert.Equal(t, 0, f.transport.Calls())
	assert.Equal(t, []string{alert.InvalidInputMessage}, f.alerts.Messages())
}

func TestController_PrevPageOnFirstPage(t *testing.T) {
	f := newFixture(t, 2, testutil.Response{Body: testutil.TransactionsPayload("p1", 2, 5)})
	ctx := context.Background()

	before, err := f.ctrl.Search(ctx, testutil.PublicKey)
	require.NoError(t, err)

	view, err := f.ctrl.PrevPage(ctx)
	assert.ErrorIs(t, err, ErrInvalidPage)
	assert.Equal(t, alert.InvalidPageMessage, f.alerts.Last())
	assert.Equal(t, before, view)
	assert.Equal(t, "1", f.router.Current()[params.KeyPage])
	assert.Equal(t, 1, f.transport.Calls())
}

func TestController_PagingIgnoredForBlocks(t *testing.T) {
	f := newFixture(t, 0, testutil.Response{Body: testutil.BlockPayload(1, 1)})
	ctx := context.Background()

	_, err := f.ctrl.Search(ctx, testutil.BlockHash)
	require.NoError(t, err)

	_, err = f.ctrl.NextPage(ctx)
	require.NoError(t, err)
	_, err = f.ctrl.PrevPage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.transport.Calls())
	assert.Empty(t, f.alerts.Messages())
}

func TestController_TransportErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "status without body",
			err:  &client.TransportError{QueryNode: testNode, StatusCode: http.StatusBadGateway},
			want: "Error connecting to query node: " + testNode,
		},
		{
			name: "structured error body",
			err:  &client.TransportError{QueryNode: testNode, StatusCode: http.StatusBadRequest, ServerMessage: "TransactionInfo: Problem"},
			want: "TransactionInfo: Problem",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 0, testutil.Response{Err: tt.err})

			view, err := f.ctrl.Search(context.Background(), testutil.TransactionID)
			require.Error(t, err)
			assert.True(t, client.IsTransportError(err))

			assert.Equal(t, StatusFailed, view.Status)
			assert.False(t, view.Loading)
			assert.Nil(t, view.Result)
			assert.Equal(t, tt.want, view.Error)
			assert.Equal(t, tt.want, f.alerts.Last())
		})
	}
}

func TestController_UnexpectedPayload(t *testing.T) {
	f := newFixture(t, 0, testutil.Response{Body: json.RawMessage(`{"Foo":1}`)})

	view, err := f.ctrl.Search(context.Background(), testutil.TransactionID)
	require.Error(t, err)

	assert.Equal(t, StatusFailed, view.Status)
	assert.True(t, strings.HasPrefix(view.Error, "Unknown error occurred: "))
	assert.Contains(t, view.Error, `"Foo"`)
	assert.Equal(t, 0, f.ctrl.Cache().Len())
}

func TestController_RecoversAfterFailure(t *testing.T) {
	f := newFixture(t, 0,
		testutil.Response{Err: &client.TransportError{QueryNode: testNode, StatusCode: 500}},
		testutil.Response{Body: testutil.BlockPayload(3, 3)},
	)
	ctx := context.Background()

	_, err := f.ctrl.Search(ctx, "3")
	require.Error(t, err)

	view, err := f.ctrl.Search(ctx, "3")
	require.NoError(t, err)
	assert.Equal(t, StatusSettled, view.Status)
	assert.Empty(t, view.Error)
}

func TestController_SubscribeSeesLoadingThenSettled(t *testing.T) {
	f := newFixture(t, 0, testutil.Response{Body: testutil.BlockPayload(1, 1)})

	var mu sync.Mutex
	var statuses []Status
	unsubscribe := f.ctrl.Subscribe(func(v View) {
		mu.Lock()
		defer mu.Unlock()
		statuses = append(statuses, v.Status)
	})

	_, err := f.ctrl.HandleParams(context.Background(), nil)
	require.NoError(t, err)
	unsubscribe()
	_, _ = f.ctrl.Search(context.Background(), "nope")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Status{StatusLoading, StatusSettled}, statuses)
}

func TestController_BusyWhileLoading(t *testing.T) {
	started := make(chan struct{})
	gate := make(chan struct{})
	f := newFixture(t, 2, testutil.Response{
		Body:    testutil.TransactionsPayload("p2", 2, 1),
		Started: started,
		Gate:    gate,
	})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := f.ctrl.HandleParams(ctx, params.Params{params.KeyPublicKey: testutil.PublicKey, params.KeyPage: "2"})
		done <- err
	}()
	<-started

	view := f.ctrl.View()
	assert.True(t, view.Loading)
	assert.Equal(t, StatusLoading, view.Status)
	assert.True(t, view.ShowNextPage)
	assert.Nil(t, view.Result)

	_, err := f.ctrl.NextPage(ctx)
	assert.ErrorIs(t, err, ErrBusy)
	_, err = f.ctrl.PrevPage(ctx)
	assert.ErrorIs(t, err, ErrBusy)

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, 1, f.transport.Calls())
	assert.False(t, f.ctrl.View().Loading)
}

func TestController_StaleResponseDiscarded(t *testing.T) {
	started := make(chan struct{})
	gate := make(chan struct{})
	f := newFixture(t, 2,
		testutil.Response{Body: testutil.TransactionsPayload("slow", 2, 1), Started: started, Gate: gate},
		testutil.Response{Body: testutil.BlockPayload(77, 1)},
	)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := f.ctrl.HandleParams(ctx, params.Params{params.KeyPublicKey: testutil.PublicKey})
		done <- err
	}()
	<-started

	latest, err := f.ctrl.HandleParams(ctx, params.Params{params.KeyBlockHeight: "77"})
	require.NoError(t, err)

	close(gate)
	assert.ErrorIs(t, <-done, ErrStaleResponse)

	view := f.ctrl.View()
	assert.Equal(t, latest.Generation, view.Generation)
	assert.Equal(t, query.KindBlockHeight, view.State.Kind)
	require.True(t, view.Result.IsBlock())
	assert.Equal(t, uint64(77), view.Result.Block.Header.Height)
	assert.Equal(t, 0, f.ctrl.Cache().Len())
}

func TestController_SearchSupersedesInFlightCycle(t *testing.T) {
	started := make(chan struct{})
	gate := make(chan struct{})
	transport := testutil.NewFakeTransport(
		testutil.Response{Body: testutil.TransactionsPayload("slow", 2, 1), Started: started, Gate: gate},
		testutil.Response{Body: testutil.TransactionsPayload("fresh", 2, 3)},
	)
	rt := router.New(nil)
	done := make(chan error, 1)

	// Registered ahead of the controller, so it runs after Search has reset
	// the cache and before the new cycle starts.
	var (
		once   sync.Once
		oldErr error
	)
	unsubscribe := rt.Subscribe(func(context.Context, params.Params) error {
		once.Do(func() {
			close(gate)
			oldErr = <-done
		})
		return nil
	})
	defer unsubscribe()

	ctrl := New(Config{QueryNode: testNode, PageSize: 2}, transport, rt, alert.NewRecorder(), testutil.NewTestLogger(t))
	defer ctrl.Close()
	ctx := context.Background()

	go func() {
		_, err := ctrl.HandleParams(ctx, params.Params{params.KeyPublicKey: testutil.PublicKey, params.KeyQueryNode: testNode})
		done <- err
	}()
	<-started

	view, err := ctrl.Search(ctx, testutil.PublicKey)
	require.NoError(t, err)

	assert.ErrorIs(t, oldErr, ErrStaleResponse)
	assert.Equal(t, 2, transport.Calls())
	assert.Equal(t, StatusSettled, view.Status)
	assert.Equal(t, "fresh-1", view.Result.Transactions.Transactions[0].ID())
	assert.Equal(t, 1, ctrl.Cache().Len())
}

func TestController_DefaultsAndSession(t *testing.T) {
	ctrl := New(Config{}, testutil.NewFakeTransport(), nil, nil, nil)
	defer ctrl.Close()

	assert.NotEmpty(t, ctrl.ID())
	assert.NotNil(t, ctrl.Router())
	assert.Equal(t, StatusIdle, ctrl.View().Status)
	assert.Equal(t, constants.DefaultQueryNode, ctrl.View().State.QueryNode)
	assert.Equal(t, constants.DefaultPageSize, ctrl.cfg.PageSize)
}
