package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/mintlens/internal/bridge"
	"github.com/dgnsrekt/mintlens/internal/mintinfo"
	"github.com/dgnsrekt/mintlens/internal/relay"
)

const upstreamBody = `{"decimals":6,"mintStats":{"supply":"123456789012345678901234"},"holderStats":{"totalHolders":42}}`

// newTestServer runs the full stack against a fake upstream that answers
// "bad" addresses with 500.
func newTestServer(t *testing.T) (*httptest.Server, *relay.Broker) {
	t.Helper()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/mint-info" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("mint-address") == "bad" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(upstreamBody))
	}))
	t.Cleanup(upstream.Close)

	fetcher := mintinfo.NewClient(upstream.URL, nil, nil)
	broker := relay.NewBroker()
	srv := bridge.NewServer(fetcher, time.Second)
	srv.OnServed(ActivityHook(broker))

	ts := httptest.NewServer(NewServer(Options{Bridge: srv, Fetcher: fetcher, Broker: broker, Version: "test"}))
	t.Cleanup(ts.Close)
	return ts, broker
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s error = %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestDocsDarkMode(t *testing.T) {
	h := NewServer(Options{})
	for _, path := range []string{"/docs", "/docs/bridge"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("%s status = %d, want %d", path, w.Code, http.StatusOK)
		}
		if !strings.Contains(w.Body.String(), `data-theme="dark"`) {
			t.Fatalf("%s missing dark theme marker", path)
		}
	}
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)
	var body struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	if code := getJSON(t, ts.URL+"/health", &body); code != http.StatusOK {
		t.Fatalf("status = %d; want 200", code)
	}
	if body.Status != "ok" || body.Version != "test" {
		t.Fatalf("body = %+v", body)
	}
}

func TestMintInfoEnvelope(t *testing.T) {
	ts, _ := newTestServer(t)

	var ok struct {
		Data struct {
			Decimals  json.Number `json:"decimals"`
			MintStats struct {
				Supply string `json:"supply"`
			} `json:"mintStats"`
		} `json:"data"`
		Error string `json:"error"`
	}
	if code := getJSON(t, ts.URL+"/api/v1/mint-info?mint-address=good", &ok); code != http.StatusOK {
		t.Fatalf("status = %d; want 200", code)
	}
	if ok.Error != "" || ok.Data.Decimals != "6" || ok.Data.MintStats.Supply != "123456789012345678901234" {
		t.Fatalf("body = %+v", ok)
	}

	var failed map[string]any
	if code := getJSON(t, ts.URL+"/api/v1/mint-info?mint-address=bad", &failed); code != http.StatusOK {
		t.Fatalf("status = %d; want 200 with error envelope", code)
	}
	if failed["error"] != mintinfo.MsgNotOK {
		t.Fatalf("error = %v; want %q", failed["error"], mintinfo.MsgNotOK)
	}
	if _, has := failed["data"]; has {
		t.Fatal("error envelope also carries data")
	}
}

func TestMintInfoRequiresAddress(t *testing.T) {
	ts, _ := newTestServer(t)
	if code := getJSON(t, ts.URL+"/api/v1/mint-info?mint-address=%20", nil); code != http.StatusBadRequest {
		t.Fatalf("status = %d; want 400", code)
	}
}

func TestMintInfoRawMapsErrors(t *testing.T) {
	ts, _ := newTestServer(t)
	tests := []struct {
		query string
		want  int
	}{
		{"mint-address=good", http.StatusOK},
		{"mint-address=bad", http.StatusBadGateway},
		{"mint-address=", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if code := getJSON(t, ts.URL+"/api/v1/mint-info/raw?"+tt.query, nil); code != tt.want {
			t.Errorf("raw?%s status = %d; want %d", tt.query, code, tt.want)
		}
	}
}

func TestHighlight(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Post(ts.URL+"/api/v1/highlight", "application/json",
		strings.NewReader(`{"html":"<p>gm CA: 7DdHyxLZQuudndfrX3ZD and $BONK</p>"}`))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d; want 200", resp.StatusCode)
	}
	var body struct {
		HTML  string `json:"html"`
		Marks []struct {
			Kind string `json:"kind"`
			Text string `json:"text"`
		} `json:"marks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Marks) != 2 || body.Marks[0].Kind != "address" || body.Marks[1].Text != "$BONK" {
		t.Fatalf("marks = %+v", body.Marks)
	}
	if strings.Count(body.HTML, `class="sol-highlight"`) != 2 {
		t.Fatalf("html = %s", body.HTML)
	}
}

func TestBridgeOverWebSocketPublishesActivity(t *testing.T) {
	ts, broker := newTestServer(t)
	id, events := broker.Subscribe()
	defer broker.Unsubscribe(id)

	client := bridge.NewClient("ws://" + strings.TrimPrefix(ts.URL, "http://") + "/api/v1/bridge")
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := client.FetchMintInfo(ctx, "good")
	if err != nil {
		t.Fatalf("FetchMintInfo() error = %v", err)
	}
	if got := res.Decimals(9); got != 6 {
		t.Fatalf("Decimals() = %d; want 6", got)
	}

	select {
	case ev := <-events:
		if ev.Feed != relay.FeedLookup || !strings.Contains(ev.Payload, `"address":"good"`) || !strings.Contains(ev.Payload, `"ok":true`) {
			t.Fatalf("event = %+v", ev)
		}
	case <-ctx.Done():
		t.Fatal("no lookup activity published")
	}
}
