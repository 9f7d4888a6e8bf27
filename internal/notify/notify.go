package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTitle   = "mintlens"
	defaultTimeout = 5 * time.Second
)

// Message is one ntfy notification.
type Message struct {
	Title string
	Tags  []string
	Body  string
}

// Notifier posts messages to a single ntfy topic URL. A Notifier with no
// endpoint drops everything silently.
type Notifier struct {
	endpoint string
	client   *http.Client
}

func New(endpoint string, client *http.Client) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Notifier{endpoint: strings.TrimSpace(endpoint), client: client}
}

// Enabled reports whether an endpoint is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && n.endpoint != ""
}

// Notify sends m. It is a no-op when the notifier is disabled.
func (n *Notifier) Notify(ctx context.Context, m Message) error {
	if !n.Enabled() {
		return nil
	}
	return post(ctx, n.client, n.endpoint, m)
}

// Send posts a plain message to endpoint.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	return post(ctx, client, endpoint, Message{Body: message})
}

func post(ctx context.Context, client *http.Client, endpoint string, m Message) error {
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(m.Body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain")
	title := m.Title
	if title == "" {
		title = defaultTitle
	}
	req.Header.Set("Title", title)
	if len(m.Tags) > 0 {
		req.Header.Set("Tags", strings.Join(m.Tags, ","))
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
