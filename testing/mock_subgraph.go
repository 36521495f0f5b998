package testing

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strconv"
	"sync"
	"uniswap-v2-crawler/subgraph"

	"github.com/gorilla/mux"
	"github.com/vektah/gqlparser/v2/ast"
)

// Request is a page request received by the mock.
type Request struct {
	Collection string
	Shape      subgraph.Shape
	First      int
	Cursor     string
	From       uint64
	To         uint64
}

type record struct {
	id    string
	block uint64
	raw   json.RawMessage
}

type failure struct {
	status int
	errors []string
}

// MockSubgraph serves the pairs and transactions collections of a subgraph
// from memory. It honours first, id_gt and the block bounds of a query and
// returns records in ascending id order.
type MockSubgraph struct {
	mu          sync.Mutex
	collections map[string][]record
	failures    []failure
	requests    []Request

	// BeforeResponse, when set, is called for every valid request before
	// the records are selected. It may add records.
	BeforeResponse func(m *MockSubgraph, req Request)

	server *httptest.Server
}

func NewMockSubgraph() *MockSubgraph {
	m := &MockSubgraph{
		collections: map[string][]record{
			subgraph.Pairs:        nil,
			subgraph.Transactions: nil,
		},
	}

	r := mux.NewRouter()
	r.HandleFunc("/", m.handleQuery).Methods(http.MethodPost)
	m.server = httptest.NewServer(r)

	return m
}

func (m *MockSubgraph) URL() string {
	return m.server.URL
}

func (m *MockSubgraph) Close() {
	m.server.Close()
}

func (m *MockSubgraph) AddPairs(pairs ...subgraph.PairSnapshot) {
	for i := range pairs {
		raw, err := json.Marshal(&pairs[i])
		if err != nil {
			panic(err)
		}
		m.AddRaw(subgraph.Pairs, pairs[i].ID, pairs[i].CreatedAtBlockNumber, raw)
	}
}

func (m *MockSubgraph) AddTransactions(transactions ...subgraph.Transaction) {
	for i := range transactions {
		raw, err := json.Marshal(&transactions[i])
		if err != nil {
			panic(err)
		}
		m.AddRaw(subgraph.Transactions, transactions[i].ID, transactions[i].BlockNumber, raw)
	}
}

// Fixture is the file format written by subgraph_copy.
type Fixture struct {
	Pairs        []subgraph.PairSnapshot `json:"pairs"`
	Transactions []subgraph.Transaction  `json:"transactions"`
}

// LoadFile adds the records of a fixture file.
func (m *MockSubgraph) LoadFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fixture Fixture
	if err := json.Unmarshal(content, &fixture); err != nil {
		return fmt.Errorf("fixture %s: %w", path, err)
	}

	m.AddPairs(fixture.Pairs...)
	m.AddTransactions(fixture.Transactions...)
	return nil
}

// AddRaw stores a record payload as is, which allows serving malformed records.
func (m *MockSubgraph) AddRaw(collection, id string, block uint64, raw json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	records := m.collections[collection]
	i := sort.Search(len(records), func(i int) bool { return records[i].id >= id })
	if i < len(records) && records[i].id == id {
		records[i] = record{id: id, block: block, raw: raw}
		return
	}
	records = append(records, record{})
	copy(records[i+1:], records[i:])
	records[i] = record{id: id, block: block, raw: raw}
	m.collections[collection] = records
}

// FailNext makes the next n requests fail with the given HTTP status.
func (m *MockSubgraph) FailNext(n int, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.failures = append(m.failures, failure{status: status})
	}
}

// FailNextWithErrors makes the next request return a GraphQL error response.
func (m *MockSubgraph) FailNextWithErrors(messages ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, failure{status: http.StatusOK, errors: messages})
}

func (m *MockSubgraph) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

func (m *MockSubgraph) handleQuery(writer http.ResponseWriter, request *http.Request) {
	body, err := io.ReadAll(request.Body)
	if err != nil {
		http.Error(writer, "Invalid request body", http.StatusBadRequest)
		return
	}

	var form struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(body, &form); err != nil {
		http.Error(writer, "Invalid json", http.StatusBadRequest)
		return
	}

	if f, ok := m.nextFailure(); ok {
		writeFailure(writer, f)
		return
	}

	field, err := subgraph.ParseQuery(form.Query)
	if err != nil {
		writeFailure(writer, failure{status: http.StatusOK, errors: []string{err.Error()}})
		return
	}

	req, err := parseRequest(field)
	if err != nil {
		writeFailure(writer, failure{status: http.StatusOK, errors: []string{err.Error()}})
		return
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	hook := m.BeforeResponse
	m.mu.Unlock()

	if hook != nil {
		hook(m, req)
	}

	records := m.selectRecords(req)

	data := map[string][]json.RawMessage{req.Collection: records}
	content, err := json.Marshal(map[string]interface{}{"data": data})
	if err != nil {
		http.Error(writer, err.Error(), http.StatusInternalServerError)
		return
	}

	writer.Header().Set("Content-Type", "application/json")
	if _, err := writer.Write(content); err != nil {
		fmt.Printf("Error returning page: %v\n", err)
	}
}

func (m *MockSubgraph) nextFailure() (failure, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.failures) == 0 {
		return failure{}, false
	}
	f := m.failures[0]
	m.failures = m.failures[1:]
	return f, true
}

func (m *MockSubgraph) selectRecords(req Request) []json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]json.RawMessage, 0, req.First)
	for _, r := range m.collections[req.Collection] {
		if len(out) == req.First {
			break
		}
		if r.id <= req.Cursor || r.block < req.From || r.block > req.To {
			continue
		}

		if req.Shape == subgraph.ShapeIDs {
			raw, _ := json.Marshal(subgraph.Identifier{ID: r.id})
			out = append(out, raw)
		} else {
			out = append(out, r.raw)
		}
	}
	return out
}

func parseRequest(field *ast.Field) (Request, error) {
	req := Request{Collection: field.Name, Shape: subgraph.ShapeFull}

	blockField, ok := subgraph.BlockField[field.Name]
	if !ok {
		return req, fmt.Errorf("unknown collection %s", field.Name)
	}

	if len(field.SelectionSet) == 1 {
		if f, ok := field.SelectionSet[0].(*ast.Field); ok && f.Name == "id" {
			req.Shape = subgraph.ShapeIDs
		}
	}

	first := field.Arguments.ForName("first")
	if first == nil {
		return req, fmt.Errorf("missing first")
	}
	n, err := strconv.Atoi(first.Value.Raw)
	if err != nil {
		return req, fmt.Errorf("invalid first %q", first.Value.Raw)
	}
	req.First = n

	where := field.Arguments.ForName("where")
	if where == nil {
		return req, fmt.Errorf("missing where")
	}
	if v := where.Value.Children.ForName("id_gt"); v != nil {
		req.Cursor = v.Raw
	}

	from := where.Value.Children.ForName(blockField + "_gte")
	to := where.Value.Children.ForName(blockField + "_lte")
	if from == nil || to == nil {
		return req, fmt.Errorf("missing block bounds on %s", blockField)
	}
	if req.From, err = strconv.ParseUint(from.Raw, 10, 64); err != nil {
		return req, fmt.Errorf("invalid %s_gte %q", blockField, from.Raw)
	}
	if req.To, err = strconv.ParseUint(to.Raw, 10, 64); err != nil {
		return req, fmt.Errorf("invalid %s_lte %q", blockField, to.Raw)
	}

	return req, nil
}

func writeFailure(writer http.ResponseWriter, f failure) {
	if len(f.errors) == 0 {
		http.Error(writer, http.StatusText(f.status), f.status)
		return
	}

	errs := make([]map[string]string, len(f.errors))
	for i := range f.errors {
		errs[i] = map[string]string{"message": f.errors[i]}
	}
	content, _ := json.Marshal(map[string]interface{}{"errors": errs})

	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(f.status)
	if _, err := writer.Write(content); err != nil {
		fmt.Printf("Error returning failure: %v\n", err)
	}
}
