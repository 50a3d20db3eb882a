// Package client talks to the record API: a typed HTTP client, a polling
// synchronizer that never applies a stale response, and per-field edit state.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"budgetsync/internal/core"
)

// Error kinds mapped from response status codes.
var (
	ErrValidation = errors.New("request rejected")
	ErrNotFound   = errors.New("not found")
	ErrServer     = errors.New("server error")
)

// DefaultTimeout bounds every request.
const DefaultTimeout = 5 * time.Second

// API is a typed client for every endpoint. It never retries.
type API struct {
	baseURL    string
	httpClient *http.Client
}

func NewAPI(baseURL string, timeout time.Duration) *API {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &API{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type messageBody struct {
	Message string `json:"message"`
}

type budgetBody struct {
	TotalBudget float64 `json:"totalBudget"`
}

type expenseBody struct {
	Message       string             `json:"message,omitempty"`
	ExpenseAmount map[string]float64 `json:"expenseAmount"`
}

type allocationsBody struct {
	BudgetAllocations map[string]float64 `json:"budgetAllocations"`
}

func (a *API) GetTotalBudget(ctx context.Context, uid string) (float64, error) {
	var out budgetBody
	if _, err := a.do(ctx, http.MethodGet, "totalBudget/get", uid, nil, &out); err != nil {
		return 0, err
	}
	return out.TotalBudget, nil
}

func (a *API) SetTotalBudget(ctx context.Context, uid string, amount float64) (float64, error) {
	var out budgetBody
	if _, err := a.do(ctx, http.MethodPost, "totalBudget/push", uid, budgetBody{TotalBudget: amount}, &out); err != nil {
		return 0, err
	}
	return out.TotalBudget, nil
}

func (a *API) GetExpenseSnapshot(ctx context.Context, uid string) (core.Snapshot, error) {
	var out expenseBody
	if _, err := a.do(ctx, http.MethodGet, "expense/get", uid, nil, &out); err != nil {
		return core.Snapshot{}, err
	}
	return core.Snapshot(out.ExpenseAmount).Clone(), nil
}

// PushExpense merges delta server-side. Created is true when the server
// answered 201.
func (a *API) PushExpense(ctx context.Context, uid string, delta core.Delta) (core.MergeResult, error) {
	var out expenseBody
	status, err := a.do(ctx, http.MethodPost, "expense/push", uid, delta, &out)
	if err != nil {
		return core.MergeResult{}, err
	}
	return core.MergeResult{
		Snapshot: core.Snapshot(out.ExpenseAmount).Clone(),
		Created:  status == http.StatusCreated,
	}, nil
}

func (a *API) GetAllocations(ctx context.Context, uid string) (core.Allocations, error) {
	var out allocationsBody
	if _, err := a.do(ctx, http.MethodGet, "allocations/get", uid, nil, &out); err != nil {
		return core.Allocations{}, err
	}
	return core.Allocations(out.BudgetAllocations).Clone(), nil
}

func (a *API) SetAllocations(ctx context.Context, uid string, update core.Allocations) (core.Allocations, error) {
	var out allocationsBody
	if _, err := a.do(ctx, http.MethodPost, "allocations/push", uid, update, &out); err != nil {
		return core.Allocations{}, err
	}
	return core.Allocations(out.BudgetAllocations).Clone(), nil
}

func (a *API) GetOverview(ctx context.Context, uid string) (core.Overview, error) {
	var out core.Overview
	if _, err := a.do(ctx, http.MethodGet, "overview/get", uid, nil, &out); err != nil {
		return core.Overview{}, err
	}
	return out, nil
}

func (a *API) do(ctx context.Context, method, route, uid string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("%w: encode request: %v", ErrValidation, err)
		}
		body = bytes.NewReader(payload)
	}

	endpoint := a.baseURL + "/" + route + "/" + url.PathEscape(uid)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, route, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%s %s: read response: %w", method, route, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				return resp.StatusCode, fmt.Errorf("%s %s: decode response: %w", method, route, err)
			}
		}
		return resp.StatusCode, nil
	}

	var msg messageBody
	_ = json.Unmarshal(data, &msg)
	if msg.Message == "" {
		msg.Message = http.StatusText(resp.StatusCode)
	}

	kind := ErrServer
	switch {
	case resp.StatusCode == http.StatusNotFound:
		kind = ErrNotFound
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		kind = ErrValidation
	}
	return resp.StatusCode, fmt.Errorf("%s %s: %w (%d): %s", method, route, kind, resp.StatusCode, msg.Message)
}
