package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/dgnsrekt/mintlens/internal/bridge"
	"github.com/dgnsrekt/mintlens/internal/mintinfo"
	"github.com/dgnsrekt/mintlens/internal/relay"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Options wires the bridge process into HTTP.
type Options struct {
	// Bridge answers envelope requests over HTTP and WebSocket.
	Bridge *bridge.Server
	// Fetcher is the upstream client behind Bridge, used by the strict
	// endpoint that reports failures as HTTP statuses.
	Fetcher bridge.Fetcher
	// Broker feeds the SSE activity stream. Optional.
	Broker *relay.Broker
	// Version is reported by /health and the OpenAPI document.
	Version string
}

type envelopeOutput struct {
	Body struct {
		Data  any    `json:"data,omitempty"`
		Error string `json:"error,omitempty"`
	}
}

type rawOutput struct {
	Body any
}

type mintAddressInput struct {
	MintAddress string `query:"mint-address" doc:"Token mint address or ticker symbol"`
}

func NewServer(opts Options) http.Handler {
	if opts.Version == "" {
		opts.Version = "dev"
	}

	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Mint Lens Bridge API", opts.Version)
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	router.Get("/docs/bridge", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(bridgeDocsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})

	if opts.Bridge != nil {
		router.Get("/api/v1/bridge", opts.Bridge.ServeHTTP)
	}
	if opts.Broker != nil {
		router.Get("/api/v1/events", relay.SSEHandler(opts.Broker))
	}

	registerHealthHandlers(api, opts)
	registerMintInfoHandlers(api, opts)
	registerHighlightHandlers(api)

	return router
}

func registerHealthHandlers(api huma.API, opts Options) {
	type healthOutput struct {
		Body struct {
			Status     string `json:"status"`
			Version    string `json:"version"`
			SSEClients int    `json:"sse_clients"`
			SSEDropped int64  `json:"sse_dropped"`
		}
	}

	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			out.Body.Version = opts.Version
			if opts.Broker != nil {
				out.Body.SSEClients = opts.Broker.ClientCount()
				out.Body.SSEDropped = opts.Broker.Dropped()
			}
			return out, nil
		})
}

func registerMintInfoHandlers(api huma.API, opts Options) {
	huma.Register(api, huma.Operation{OperationID: "get-mint-info", Method: http.MethodGet, Path: "/api/v1/mint-info", Summary: "Look up mint info (bridge envelope)", Tags: []string{"Mint Info"},
		Description: "Always 200 once the address is present. Upstream failures come back as {error}."},
		func(ctx context.Context, input *mintAddressInput) (*envelopeOutput, error) {
			address := strings.TrimSpace(input.MintAddress)
			if address == "" {
				return nil, huma.Error400BadRequest("mint-address is required")
			}
			if opts.Bridge == nil {
				return nil, huma.Error503ServiceUnavailable("bridge not configured")
			}
			resp := opts.Bridge.Serve(ctx, bridge.Request{Type: bridge.TypeFetchMintInfo, MintAddress: address})
			out := &envelopeOutput{}
			if resp.Error != "" {
				out.Body.Error = resp.Error
				return out, nil
			}
			data, err := decodeData(resp.Data)
			if err != nil {
				return nil, mapErr(err)
			}
			out.Body.Data = data
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-mint-info-raw", Method: http.MethodGet, Path: "/api/v1/mint-info/raw", Summary: "Look up mint info (HTTP errors)", Tags: []string{"Mint Info"},
		Description: "Returns the upstream document as-is and reports failures as HTTP statuses."},
		func(ctx context.Context, input *mintAddressInput) (*rawOutput, error) {
			if opts.Fetcher == nil {
				return nil, huma.Error503ServiceUnavailable("upstream not configured")
			}
			body, err := opts.Fetcher.FetchMintInfo(ctx, input.MintAddress)
			if err != nil {
				return nil, mapErr(err)
			}
			data, err := decodeData(body)
			if err != nil {
				return nil, mapErr(err)
			}
			return &rawOutput{Body: data}, nil
		})
}

// decodeData keeps numbers as json.Number so large integers survive.
func decodeData(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &mintinfo.CodedError{Code: mintinfo.CodeMalformed, Message: "upstream returned invalid JSON", Cause: err}
	}
	return v, nil
}

// ActivityHook publishes every served bridge request to the lookup feed.
func ActivityHook(b *relay.Broker) bridge.ServedFunc {
	return func(req bridge.Request, resp bridge.Response, took time.Duration) {
		b.PublishJSON(relay.FeedLookup, relay.LookupActivity{
			Address:    req.MintAddress,
			OK:         resp.Error == "",
			Error:      resp.Error,
			DurationMS: took.Milliseconds(),
			At:         time.Now().UTC(),
		})
	}
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *mintinfo.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case mintinfo.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case mintinfo.CodeRateLimited:
			return huma.Error429TooManyRequests(coded.Message)
		case mintinfo.CodeUpstreamNotOK, mintinfo.CodeMalformed:
			return huma.Error502BadGateway(coded.Message)
		case mintinfo.CodeUpstreamUnavailable:
			if errors.Is(err, context.DeadlineExceeded) {
				return huma.Error504GatewayTimeout(mintinfo.Message(err))
			}
			return huma.Error502BadGateway(mintinfo.Message(err))
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
