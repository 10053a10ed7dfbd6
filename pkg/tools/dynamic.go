package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// DynamicToolRecord is the persisted shape of one dynamically-loaded tool,
// reconciled into the registry at the start of every turn. kind=function
// records from the original system (compiled Python source at runtime)
// are promoted to HTTP-backed callables here — this core never evaluates
// tool source text at runtime (§9 Design Notes).
type DynamicToolRecord struct {
	Symbol      string                 `json:"symbol"`
	Description string                 `json:"description"`
	Scope       Scope                  `json:"scope"`
	AssignedSpecialistID string        `json:"assigned_specialist_id,omitempty"`
	Kind        string                 `json:"kind"` // "function" or "http" — both dispatch over HTTP here
	Endpoint    string                 `json:"endpoint"`
	Schema      map[string]interface{} `json:"schema"`
	Enabled     bool                   `json:"enabled"`
}

// httpDynamicTool wraps one DynamicToolRecord in a Tool that POSTs the
// keyword-argument map as a JSON body to Endpoint with a hard timeout.
type httpDynamicTool struct {
	record     DynamicToolRecord
	httpClient *http.Client
	validator  *jsonschema.Schema
}

const dynamicToolTimeout = 90 * time.Second

func newHTTPDynamicTool(record DynamicToolRecord, client *http.Client) (*httpDynamicTool, error) {
	t := &httpDynamicTool{record: record, httpClient: client}

	if len(record.Schema) > 0 {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(record.Symbol+".json", record.Schema); err != nil {
			return nil, fmt.Errorf("add schema resource for %s: %w", record.Symbol, err)
		}
		schema, err := compiler.Compile(record.Symbol + ".json")
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", record.Symbol, err)
		}
		t.validator = schema
	}

	return t, nil
}

func (t *httpDynamicTool) Symbol() string { return t.record.Symbol }

func (t *httpDynamicTool) GetInfo() Info {
	return Info{
		Symbol:      t.record.Symbol,
		Description: t.record.Description,
		Schema:      t.record.Schema,
	}
}

func (t *httpDynamicTool) Execute(ctx context.Context, args map[string]interface{}) Result {
	if t.validator != nil {
		if err := t.validator.Validate(args); err != nil {
			return Result{OK: false, Err: fmt.Sprintf("invalid arguments for %s: %v", t.record.Symbol, err)}
		}
	}

	body, err := json.Marshal(args)
	if err != nil {
		return Result{OK: false, Err: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, dynamicToolTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.record.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{OK: false, Err: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	client := t.httpClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{OK: false, Err: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{OK: false, Err: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{OK: false, Err: fmt.Sprintf("dynamic tool %s returned status %d: %s", t.record.Symbol, resp.StatusCode, string(respBody))}
	}

	return Result{OK: true, Value: string(respBody)}
}

// ReconcileDynamic registers (or re-registers) every enabled dynamic tool
// record against the registry, skipping — but never crashing the turn
// over — any record whose schema fails to compile (§4.1 "Failure").
func (r *Registry) ReconcileDynamic(ctx context.Context, records []DynamicToolRecord, client *http.Client) {
	for _, rec := range records {
		if !rec.Enabled {
			continue
		}
		tool, err := newHTTPDynamicTool(rec, client)
		if err != nil {
			slog.Warn("dynamic tool schema compile failed, skipping", "symbol", rec.Symbol, "error", err)
			continue
		}
		_ = r.Register(rec.Symbol, tool, rec.Scope, rec.AssignedSpecialistID, true)
	}
}
