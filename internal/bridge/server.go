package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/mintlens/internal/mintinfo"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

const defaultRequestTimeout = 15 * time.Second

// ServedFunc observes every completed request.
type ServedFunc func(req Request, resp Response, took time.Duration)

// Server answers bridge requests over WebSocket and in-process.
type Server struct {
	fetcher Fetcher
	timeout time.Duration

	mu     sync.RWMutex
	served []ServedFunc
}

// NewServer wraps fetcher. timeout bounds each upstream call (0 picks 15s).
func NewServer(fetcher Fetcher, timeout time.Duration) *Server {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Server{fetcher: fetcher, timeout: timeout}
}

// OnServed registers fn to run after each request.
func (s *Server) OnServed(fn ServedFunc) {
	s.mu.Lock()
	s.served = append(s.served, fn)
	s.mu.Unlock()
}

// Serve handles one request and always returns an envelope; failures become
// {error}.
func (s *Server) Serve(ctx context.Context, req Request) Response {
	start := time.Now()
	resp := s.serve(ctx, req)
	resp.ID = req.ID

	s.mu.RLock()
	hooks := append([]ServedFunc(nil), s.served...)
	s.mu.RUnlock()
	for _, fn := range hooks {
		fn(req, resp, time.Since(start))
	}
	return resp
}

func (s *Server) serve(ctx context.Context, req Request) Response {
	if req.Type != TypeFetchMintInfo {
		return Response{Error: "unknown request type"}
	}
	if strings.TrimSpace(req.MintAddress) == "" {
		return Response{Error: "mint address is required"}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	data, err := s.fetcher.FetchMintInfo(ctx, req.MintAddress)
	if err != nil {
		slog.Debug("bridge request failed", "id", req.ID, "mint_address", req.MintAddress, "error", err)
		return Response{Error: mintinfo.Message(err)}
	}
	return Response{Data: data}
}

// ServeHTTP upgrades to WebSocket and serves requests until the peer goes
// away. Requests on one connection run concurrently; responses are written
// as they complete, in any order.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		slog.Warn("bridge upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	slog.Info("bridge client connected", "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(context.Background())
	var (
		writeMu sync.Mutex
		wg      sync.WaitGroup
	)
	defer func() {
		cancel()
		wg.Wait()
		_ = conn.Close()
		slog.Info("bridge client disconnected", "remote", r.RemoteAddr)
	}()

	for {
		data, err := wsutil.ReadClientText(conn)
		if err != nil {
			slog.Debug("bridge read loop exit", "remote", r.RemoteAddr, "error", err)
			return
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			slog.Debug("bridge dropped malformed request", "remote", r.RemoteAddr, "error", err)
			continue
		}

		wg.Add(1)
		go func(req Request) {
			defer wg.Done()
			resp := s.Serve(ctx, req)
			writeResponse(conn, &writeMu, resp)
		}(req)
	}
}

func writeResponse(conn net.Conn, mu *sync.Mutex, resp Response) {
	out, err := json.Marshal(resp)
	if err != nil {
		slog.Error("bridge marshal response failed", "id", resp.ID, "error", err)
		return
	}
	mu.Lock()
	defer mu.Unlock()
	if err := wsutil.WriteServerText(conn, out); err != nil {
		slog.Debug("bridge write failed", "id", resp.ID, "error", err)
	}
}

// Local adapts a Server for in-process callers.
type Local struct {
	srv *Server
}

func NewLocal(srv *Server) *Local {
	return &Local{srv: srv}
}

func (l *Local) FetchMintInfo(ctx context.Context, address string) (mintinfo.Result, error) {
	resp := l.srv.Serve(ctx, Request{Type: TypeFetchMintInfo, MintAddress: address})
	return decodeResponse(resp)
}
