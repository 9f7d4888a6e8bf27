package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/mintlens/internal/dom"
	"github.com/dgnsrekt/mintlens/internal/highlight"
)

func registerHighlightHandlers(api huma.API) {
	type highlightOutput struct {
		Body struct {
			HTML      string           `json:"html"`
			Visited   int              `json:"visited"`
			Rewritten int              `json:"rewritten"`
			Marks     []highlight.Mark `json:"marks"`
		}
	}

	huma.Register(api, huma.Operation{OperationID: "highlight", Method: http.MethodPost, Path: "/api/v1/highlight", Summary: "Mark addresses and tickers in an HTML fragment", Tags: []string{"Highlight"}},
		func(ctx context.Context, input *struct {
			Body struct {
				HTML string `json:"html" required:"true" maxLength:"1048576" doc:"HTML fragment; it is parsed into a document body"`
			}
		}) (*highlightOutput, error) {
			doc, err := dom.ParseString(input.Body.HTML)
			if err != nil {
				return nil, huma.Error400BadRequest("html could not be parsed", err)
			}
			res := highlight.NewScanner(nil).Scan(doc, doc.Body())

			out := &highlightOutput{}
			out.Body.HTML = doc.String()
			out.Body.Visited = res.Visited
			out.Body.Rewritten = res.Rewritten
			out.Body.Marks = res.Marks
			if out.Body.Marks == nil {
				out.Body.Marks = []highlight.Mark{}
			}
			return out, nil
		})
}
