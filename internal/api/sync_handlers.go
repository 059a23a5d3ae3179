package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (s *Server) registerSyncRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "syncMemes",
		Method:      http.MethodPost,
		Path:        "/api/v1/sync",
		Summary:     "Sync library",
		Description: "Copies a library's images from one context into the library of the same name in another, skipping duplicates",
		Tags:        []string{"Sync"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleSync)
}

// SyncRequest names the source, target and library.
type SyncRequest struct {
	Source  string `json:"source" minLength:"1" doc:"Source context; p<digits> means a private chat"`
	Target  string `json:"target" minLength:"1" doc:"Target context; p<digits> means a private chat"`
	Keyword string `json:"keyword" minLength:"1" doc:"Library name in the source context"`
}

// SyncInput wraps the sync request for Huma.
type SyncInput struct {
	Body SyncRequest
}

func (s *Server) handleSync(ctx context.Context, input *SyncInput) (*ReplyOutput, error) {
	r := s.services.Memes.SyncMemes(ctx, input.Body.Source, input.Body.Target, input.Body.Keyword)
	if !r.OK() {
		return nil, replyError(r)
	}
	s.logger.Info("sync via api",
		"source", input.Body.Source,
		"target", input.Body.Target,
		"keyword", input.Body.Keyword,
	)
	return &ReplyOutput{Body: r}, nil
}
