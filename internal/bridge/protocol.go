package bridge

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dgnsrekt/mintlens/internal/mintinfo"
)

// TypeFetchMintInfo is the only request type the bridge serves.
const TypeFetchMintInfo = "fetchMintInfo"

// Request is one cross-context call. ID is the correlation token echoed by
// the response.
type Request struct {
	ID          int64  `json:"id"`
	Type        string `json:"type"`
	MintAddress string `json:"mintAddress,omitempty"`
}

// Response carries exactly one of Data or Error.
type Response struct {
	ID    int64           `json:"id"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// RemoteError is a bridge envelope {error: ...} surfaced as a Go error.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return "bridge: remote error: " + e.Message }

// IsRemote reports whether err came back as a bridge error envelope.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

// Fetcher performs the actual network call behind the bridge.
type Fetcher interface {
	FetchMintInfo(ctx context.Context, address string) (json.RawMessage, error)
}

// Lookup is what the content side needs from the bridge.
type Lookup interface {
	FetchMintInfo(ctx context.Context, address string) (mintinfo.Result, error)
}

// decodeResponse turns an envelope into a result or an error.
func decodeResponse(resp Response) (mintinfo.Result, error) {
	if resp.Error != "" {
		return nil, &RemoteError{Message: resp.Error}
	}
	if len(resp.Data) == 0 {
		return nil, &RemoteError{Message: "empty response"}
	}
	return mintinfo.Decode(resp.Data)
}
