package client

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soroscan/pkg/core"
)

var testContractID = "C" + strings.Repeat("A", 55)

func decodeRequest(t *testing.T, r *http.Request) core.Request {
	t.Helper()
	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var req core.Request
	require.NoError(t, sonic.Unmarshal(body, &req))
	return req
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	cfg := core.DefaultConfig(url).WithRetry(1, time.Millisecond, 5*time.Millisecond)
	cfg.CircuitBreakerEnabled = false
	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_Contracts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		assert.Equal(t, "GetContracts", req.OperationName)
		assert.Equal(t, true, req.Variables["isActive"])

		w.Write([]byte(`{"data":{"contracts":[
			{"id":"1","contractId":"` + testContractID + `","name":"AMM Pool","description":"","isActive":true,"createdAt":"2026-08-20T10:00:00Z","eventCount":42},
			{"id":"2","contractId":"CB` + strings.Repeat("A", 54) + `","name":"Token","description":"wrapped asset","isActive":true,"createdAt":"2026-08-21T09:30:00Z","eventCount":7}
		]}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	active := true

	contracts, err := client.Contracts(context.Background(), &active)

	require.NoError(t, err)
	require.Len(t, contracts, 2)
	assert.Equal(t, "AMM Pool", contracts[0].Name)
	assert.Equal(t, testContractID, contracts[0].ContractID)
	assert.Equal(t, 42, contracts[0].EventCount)
	assert.Equal(t, 2026, contracts[0].CreatedAt.Year())
}

func TestClient_ContractsWithoutFilter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		_, present := req.Variables["isActive"]
		assert.False(t, present, "nil filter must not send the variable")
		w.Write([]byte(`{"data":{"contracts":[]}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	contracts, err := client.Contracts(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, contracts)
}

func TestClient_ContractNotRegistered(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"contract":null}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	contract, err := client.Contract(context.Background(), testContractID)

	require.NoError(t, err)
	assert.Nil(t, contract)
}

func TestClient_Events(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		assert.Equal(t, "GetEvents", req.OperationName)
		assert.Equal(t, testContractID, req.Variables["contractId"])
		assert.Equal(t, "swap", req.Variables["eventType"])
		assert.EqualValues(t, 10, req.Variables["first"])
		_, present := req.Variables["after"]
		assert.False(t, present)

		w.Write([]byte(`{"data":{"events":{
			"edges":[
				{"node":{"id":"7","contractId":"` + testContractID + `","contractName":"AMM Pool","eventType":"swap","ledger":54321,"eventIndex":0,"txHash":"ab12","timestamp":"2026-08-22T12:00:00Z","payload":{"amount":"125.5"},"payloadHash":"ff00","schemaVersion":null,"validationStatus":"passed"},"cursor":"Y3Vyc29yOjc="}
			],
			"pageInfo":{"hasNextPage":false,"endCursor":"Y3Vyc29yOjc="},
			"totalCount":1
		}}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	page, err := client.Events(context.Background(), EventsFilter{
		ContractID: testContractID,
		EventType:  "swap",
		First:      10,
	})

	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalCount)
	assert.False(t, page.PageInfo.HasNextPage)
	require.Len(t, page.Edges, 1)

	ev := page.Edges[0].Node
	assert.Equal(t, "7", ev.ID)
	assert.Equal(t, "swap", ev.EventType)
	assert.EqualValues(t, 54321, ev.Ledger)
	assert.Nil(t, ev.SchemaVersion)
	assert.JSONEq(t, `{"amount":"125.5"}`, string(ev.Payload))
	assert.Equal(t, []string{"swap"}, func() []string {
		var types []string
		for _, e := range page.Events() {
			types = append(types, e.EventType)
		}
		return types
	}())
}

func TestClient_AllEventsWalksPagination(t *testing.T) {
	cursor := base64.StdEncoding.EncodeToString([]byte("cursor:2"))
	var afters []any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		afters = append(afters, req.Variables["after"])

		if len(afters) == 1 {
			w.Write([]byte(`{"data":{"events":{
				"edges":[
					{"node":{"id":"1","eventType":"swap","ledger":100},"cursor":"Y3Vyc29yOjE="},
					{"node":{"id":"2","eventType":"mint","ledger":101},"cursor":"` + cursor + `"}
				],
				"pageInfo":{"hasNextPage":true,"endCursor":"` + cursor + `"},
				"totalCount":3
			}}}`))
			return
		}
		w.Write([]byte(`{"data":{"events":{
			"edges":[{"node":{"id":"3","eventType":"swap","ledger":102},"cursor":"Y3Vyc29yOjM="}],
			"pageInfo":{"hasNextPage":false,"endCursor":"Y3Vyc29yOjM="},
			"totalCount":3
		}}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	all, err := client.AllEvents(context.Background(), EventsFilter{ContractID: testContractID, First: 2})

	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []any{nil, cursor}, afters, "the second page resumes from the first page's end cursor")
	assert.Equal(t, "3", all[2].ID)
}

func TestClient_EventNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		assert.EqualValues(t, 99, req.Variables["id"])
		w.Write([]byte(`{"data":{"event":null}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	ev, err := client.Event(context.Background(), 99)

	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestClient_ContractStats(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"contractStats":{
			"contractId":"` + testContractID + `","name":"AMM Pool",
			"totalEvents":1204,"uniqueEventTypes":4,"lastActivity":"2026-08-23T18:45:00Z"
		}}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	stats, err := client.ContractStats(context.Background(), testContractID)

	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, 1204, stats.TotalEvents)
	assert.Equal(t, 4, stats.UniqueEventTypes)
	require.NotNil(t, stats.LastActivity)
	assert.Equal(t, 18, stats.LastActivity.UTC().Hour())
}

func TestClient_ContractStatsWithoutActivity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"contractStats":{
			"contractId":"` + testContractID + `","name":"Quiet",
			"totalEvents":0,"uniqueEventTypes":0,"lastActivity":null
		}}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	stats, err := client.ContractStats(context.Background(), testContractID)

	require.NoError(t, err)
	assert.Nil(t, stats.LastActivity)
}

func TestClient_EventTypes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"eventTypes":["swap","mint","burn"]}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	types, err := client.EventTypes(context.Background(), testContractID)

	require.NoError(t, err)
	assert.Equal(t, []string{"swap", "mint", "burn"}, types)
}

func TestClient_EventTimeline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		assert.Equal(t, "GetEventTimeline", req.OperationName)
		assert.Equal(t, "ONE_HOUR", req.Variables["bucketSize"])
		assert.Equal(t, []any{"swap"}, req.Variables["eventTypes"])

		w.Write([]byte(`{"data":{"eventTimeline":{
			"contractId":"` + testContractID + `","bucketSize":"ONE_HOUR",
			"since":"2026-08-23T00:00:00Z","until":"2026-08-23T02:00:00Z","totalEvents":5,
			"groups":[
				{"start":"2026-08-23T00:00:00Z","end":"2026-08-23T01:00:00Z","eventCount":3,
				 "eventTypeCounts":[{"eventType":"swap","count":3}],"events":[]},
				{"start":"2026-08-23T01:00:00Z","end":"2026-08-23T02:00:00Z","eventCount":2,
				 "eventTypeCounts":[{"eventType":"swap","count":2}],"events":[]}
			]
		}}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	timeline, err := client.EventTimeline(context.Background(), TimelineOptions{
		ContractID: testContractID,
		Bucket:     BucketOneHour,
		EventTypes: []string{"swap"},
	})

	require.NoError(t, err)
	require.NotNil(t, timeline)
	assert.Equal(t, BucketOneHour, timeline.BucketSize)
	assert.Equal(t, 5, timeline.TotalEvents)
	require.Len(t, timeline.Groups, 2)
	assert.Equal(t, 3, timeline.Groups[0].EventCount)
	assert.Equal(t, "swap", timeline.Groups[0].EventTypeCounts[0].EventType)
}

func TestClient_EventTimelineRequiresContract(t *testing.T) {
	client := newTestClient(t, "https://indexer.test/graphql")

	_, err := client.EventTimeline(context.Background(), TimelineOptions{})

	assert.Error(t, err)
}

func TestClient_RegisterContract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		assert.Equal(t, "RegisterContract", req.OperationName)
		assert.Equal(t, testContractID, req.Variables["contractId"])
		assert.Equal(t, "AMM Pool", req.Variables["name"])
		assert.Equal(t, "Main pool", req.Variables["description"])

		w.Write([]byte(`{"data":{"registerContract":{
			"id":"9","contractId":"` + testContractID + `","name":"AMM Pool",
			"description":"Main pool","isActive":true,"createdAt":"2026-08-24T08:00:00Z","eventCount":0
		}}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	reg, err := NewRegistration(testContractID).
		Name("AMM Pool").
		Description("Main pool").
		Build()
	require.NoError(t, err)

	contract, err := client.RegisterContract(context.Background(), reg)

	require.NoError(t, err)
	require.NotNil(t, contract)
	assert.Equal(t, "9", contract.ID)
	assert.True(t, contract.IsActive)
}

func TestClient_RegisterContractValidatesBeforeSending(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"data":null}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.RegisterContract(context.Background(), &Registration{
		ContractID: "not-a-contract",
		Name:       "Broken",
	})

	require.Error(t, err)
	assert.Zero(t, calls, "an invalid address must not reach the wire")
}

func TestClient_UpdateContract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		assert.Equal(t, "UpdateContract", req.OperationName)
		assert.Equal(t, false, req.Variables["isActive"])
		_, present := req.Variables["name"]
		assert.False(t, present, "unset fields stay out of the mutation")

		w.Write([]byte(`{"data":{"updateContract":{
			"id":"9","contractId":"` + testContractID + `","name":"AMM Pool",
			"description":"","isActive":false,"createdAt":"2026-08-24T08:00:00Z","eventCount":12
		}}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	inactive := false

	contract, err := client.UpdateContract(context.Background(), testContractID, ContractUpdate{IsActive: &inactive})

	require.NoError(t, err)
	require.NotNil(t, contract)
	assert.False(t, contract.IsActive)
}

func TestClient_Login(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		switch req.OperationName {
		case "Login":
			assert.Equal(t, "amm-operator", req.Variables["username"])
			w.Write([]byte(`{"data":{"login":{"accessToken":"tok1","refreshToken":"ref1"}}}`))
		case "GetContracts":
			assert.Equal(t, "Bearer tok1", r.Header.Get("Authorization"))
			w.Write([]byte(`{"data":{"contracts":[]}}`))
		default:
			t.Errorf("unexpected operation %q", req.OperationName)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	require.NoError(t, client.Login(context.Background(), "amm-operator", "hunter2"))

	creds := client.Credentials()
	require.NotNil(t, creds)
	assert.Equal(t, "tok1", creds.AccessToken)
	assert.Equal(t, "ref1", creds.RefreshToken)

	_, err := client.Contracts(context.Background(), nil)
	require.NoError(t, err)

	client.Logout()
	assert.Nil(t, client.Credentials())
}

func TestClient_LoginRejectsEmptyExchange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"login":null}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	err := client.Login(context.Background(), "amm-operator", "hunter2")

	require.Error(t, err)
	assert.True(t, core.IsErrorCode(err, core.ErrCodeBadResponse))
}

func TestClient_ApplicationErrorCarriesOperation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"contract":null},"errors":[
			{"message":"contract lookup failed","extensions":{"code":"INTERNAL_SERVER_ERROR"}}
		]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.Contract(context.Background(), testContractID)

	require.Error(t, err)
	assert.True(t, core.IsApplicationError(err))
	assert.Contains(t, err.Error(), "GetContract")
}

func TestClient_SubscribeRequiresContract(t *testing.T) {
	client := newTestClient(t, "https://indexer.test/graphql")

	_, err := client.SubscribeContractEvents(context.Background(), "")

	assert.Error(t, err)
}
