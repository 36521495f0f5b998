package subgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"uniswap-v2-crawler/config"

	"github.com/pkg/errors"
)

// ErrRemoteQuery matches every failure to execute a query remotely. These
// failures are transient from the crawler's point of view.
var ErrRemoteQuery = errors.New("remote query failed")

type RemoteQueryError struct {
	Collection string
	StatusCode int
	Messages   []string
	Err        error
}

func (e *RemoteQueryError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s query", e.Collection)
	if e.StatusCode != 0 {
		fmt.Fprintf(&sb, ": status %d", e.StatusCode)
	}
	if len(e.Messages) > 0 {
		fmt.Fprintf(&sb, ": %s", strings.Join(e.Messages, "; "))
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %s", e.Err)
	}
	return sb.String()
}

func (e *RemoteQueryError) Unwrap() error { return e.Err }

func (e *RemoteQueryError) Is(target error) bool { return target == ErrRemoteQuery }

type graphQLRequest struct {
	Query string `json:"query"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []graphQLError             `json:"errors"`
}

// Client executes queries against a subgraph over HTTP.
type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

func NewClient(cfg config.SubgraphConfig) *Client {
	return &Client{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout()},
	}
}

func (c *Client) Execute(ctx context.Context, q Query) (Response, error) {
	body, err := json.Marshal(graphQLRequest{Query: q.Text})
	if err != nil {
		return nil, errors.Wrap(err, "marshal query")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &RemoteQueryError{Collection: q.Collection, Err: err}
	}
	defer res.Body.Close()

	content, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &RemoteQueryError{Collection: q.Collection, StatusCode: res.StatusCode, Err: err}
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &RemoteQueryError{
			Collection: q.Collection,
			StatusCode: res.StatusCode,
			Messages:   []string{truncate(string(content), 200)},
		}
	}

	// a successful response with an unexpected shape will not get better on retry
	var gqlRes graphQLResponse
	if err := json.Unmarshal(content, &gqlRes); err != nil {
		return nil, errors.Wrapf(ErrMalformedRecord, "%s query: response envelope: %s", q.Collection, err)
	}

	if len(gqlRes.Errors) > 0 {
		messages := make([]string, len(gqlRes.Errors))
		for i := range gqlRes.Errors {
			messages[i] = gqlRes.Errors[i].Message
		}
		return nil, &RemoteQueryError{Collection: q.Collection, StatusCode: res.StatusCode, Messages: messages}
	}

	response := make(Response, len(gqlRes.Data))
	for collection, raw := range gqlRes.Data {
		var records []json.RawMessage
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, errors.Wrapf(ErrMalformedRecord, "%s query: collection %s is not a list: %s", q.Collection, collection, err)
		}
		response[collection] = records
	}

	return response, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
