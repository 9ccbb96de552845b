package loki

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Loki answers usage counts from the service logs.
type Loki interface {
	// GetCatalogRequests24 returns how many catalog requests were served in the last 24 hours.
	GetCatalogRequests24(ctx context.Context) (int, error)
	// GetFallbacks24 returns how many of those fell back to the rankings in the last 24 hours.
	GetFallbacks24(ctx context.Context) (int, error)
}

// Log lines counted by the queries. They must match the messages the service writes.
const (
	CatalogRequestLine = "CatalogRequest"
	FallbackLine       = "Falling back to rankings"
)

type catalogLoki struct {
	httpClient  *http.Client
	lokiHost    string
	serviceName string
}

// NewLoki creates a Loki client querying logs of serviceName.
func NewLoki(lokiHost, serviceName string) Loki {
	return &catalogLoki{
		httpClient: &http.Client{
			Timeout: time.Second * 30,
		},
		lokiHost:    lokiHost,
		serviceName: serviceName,
	}
}

func (l *catalogLoki) GetCatalogRequests24(ctx context.Context) (int, error) {
	return l.countLogs(ctx, CatalogRequestLine)
}

func (l *catalogLoki) GetFallbacks24(ctx context.Context) (int, error) {
	return l.countLogs(ctx, FallbackLine)
}

func (l *catalogLoki) countLogs(ctx context.Context, search string) (int, error) {
	query := fmt.Sprintf("sum(count_over_time({service_name=\"%s\"} |= `%s` [24h]))", l.serviceName, search)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.lokiHost+"/loki/api/v1/query", nil)
	if err != nil {
		return 0, fmt.Errorf("failed to http.NewRequestWithContext: %w", err)
	}

	q := req.URL.Query()
	q.Add("query", query)
	req.URL.RawQuery = q.Encode()

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to http.Client.Do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("invalid status code: %d", resp.StatusCode)
	}

	var lokiResp Response
	if err := json.NewDecoder(resp.Body).Decode(&lokiResp); err != nil {
		return 0, fmt.Errorf("failed to json.Decoder.Decode: %w", err)
	}

	if lokiResp.Status != "success" {
		return 0, fmt.Errorf("loki response status: %s", lokiResp.Status)
	}

	if lokiResp.Data.ResultType != "vector" {
		return 0, fmt.Errorf("loki response data result type: %s", lokiResp.Data.ResultType)
	}

	// an empty vector means no matching lines
	if len(lokiResp.Data.Result) == 0 {
		return 0, nil
	}

	if len(lokiResp.Data.Result[0].Value) != 2 {
		return 0, fmt.Errorf("loki response data result value length: %d", len(lokiResp.Data.Result[0].Value))
	}

	value, ok := (lokiResp.Data.Result[0].Value[1]).(string)
	if !ok {
		return 0, fmt.Errorf("failed to assert value to string: %v", lokiResp.Data.Result[0].Value[1])
	}

	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("failed to strconv.Atoi: %w", err)
	}

	return i, nil
}

// Response is the instant query response of the Loki HTTP API.
type Response struct {
	Status string `json:"status"`
	Data   struct {
		ResultType string `json:"resultType"`
		Result     []struct {
			Metric map[string]string `json:"metric"`
			Value  []interface{}     `json:"value"`
		} `json:"result"`
	} `json:"data"`
}
