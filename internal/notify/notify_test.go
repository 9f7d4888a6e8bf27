package notify

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func okResponse() *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("ok")),
		Header:     make(http.Header),
	}
}

func TestNotifyPostsTradeIntent(t *testing.T) {
	ctx := context.Background()

	var received *http.Request
	var receivedBody string

	client := &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			received = r
			rawBody, err := io.ReadAll(r.Body)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			receivedBody = string(rawBody)
			return okResponse(), nil
		}),
	}

	n := New("http://example.com/mintlens", client)
	msg := Message{Title: "Trade intent", Tags: []string{"buy", "simulated"}, Body: "Buy 0.5 SOL (simulated)"}
	if err := n.Notify(ctx, msg); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	if got, want := received.Method, http.MethodPost; got != want {
		t.Fatalf("method = %q; want %q", got, want)
	}
	if got, want := received.URL.Path, "/mintlens"; got != want {
		t.Fatalf("path = %q; want %q", got, want)
	}
	if got, want := received.Header.Get("Content-Type"), "text/plain"; got != want {
		t.Fatalf("content-type = %q; want %q", got, want)
	}
	if got, want := received.Header.Get("Title"), "Trade intent"; got != want {
		t.Fatalf("title = %q; want %q", got, want)
	}
	if got, want := received.Header.Get("Tags"), "buy,simulated"; got != want {
		t.Fatalf("tags = %q; want %q", got, want)
	}
	if got, want := receivedBody, msg.Body; got != want {
		t.Fatalf("body = %q; want %q", got, want)
	}
}

func TestSendDefaultsTitle(t *testing.T) {
	var title string
	client := &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			title = r.Header.Get("Title")
			return okResponse(), nil
		}),
	}
	if err := Send(context.Background(), client, "http://example.com/n", "hello"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if title != defaultTitle {
		t.Fatalf("title = %q; want %q", title, defaultTitle)
	}
}

func TestSendReturnsErrorForServerError(t *testing.T) {
	ctx := context.Background()

	client := &http.Client{
		Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusInternalServerError,
				Body:       io.NopCloser(strings.NewReader("server failure")),
				Header:     make(http.Header),
			}, nil
		}),
	}

	err := New("http://example.com/notifications", client).Notify(ctx, Message{Body: "x"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "ntfy notification failed") {
		t.Fatalf("error = %q; want to contain %q", err, "ntfy notification failed")
	}
}

func TestDisabledNotifierIsNoop(t *testing.T) {
	called := false
	client := &http.Client{
		Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			called = true
			return okResponse(), nil
		}),
	}
	n := New("  ", client)
	if n.Enabled() {
		t.Fatal("Enabled() = true; want false")
	}
	if err := n.Notify(context.Background(), Message{Body: "x"}); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if called {
		t.Fatal("disabled notifier made a request")
	}
	var nilNotifier *Notifier
	if err := nilNotifier.Notify(context.Background(), Message{}); err != nil {
		t.Fatalf("nil Notify() error = %v", err)
	}
}

func TestSendDisallowsMissingEndpoint(t *testing.T) {
	ctx := context.Background()
	err := Send(ctx, http.DefaultClient, "", "x")
	if err == nil {
		t.Fatal("expected error for missing endpoint")
	}
}
