package api

import (
	"context"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/crypto/blake2b"

	"github.com/feiju-bot/feiju/internal/domain"
)

func (s *Server) registerImageRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getImage",
		Method:      http.MethodGet,
		Path:        "/api/v1/images/{id}",
		Summary:     "Get image",
		Description: "Returns stored image bytes; supports If-None-Match",
		Tags:        []string{"Images"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetImage)

	huma.Register(s.api, huma.Operation{
		OperationID: "getStats",
		Method:      http.MethodGet,
		Path:        "/api/v1/stats",
		Summary:     "Store statistics",
		Description: "Counts contexts, libraries, names and images",
		Tags:        []string{"Images"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetStats)
}

// GetImageInput selects an image.
type GetImageInput struct {
	ID          int64  `path:"id" minimum:"1" doc:"Image id"`
	IfNoneMatch string `header:"If-None-Match" doc:"ETag from a previous response"`
}

// ImageOutput returns image bytes or 304.
type ImageOutput struct {
	Status       int
	ContentType  string `header:"Content-Type"`
	ETag         string `header:"ETag"`
	CacheControl string `header:"Cache-Control"`
	Body         []byte
}

// StatsOutput wraps the store statistics for Huma.
type StatsOutput struct {
	Body domain.Stats
}

func (s *Server) handleGetImage(ctx context.Context, input *GetImageInput) (*ImageOutput, error) {
	img, err := s.services.Memes.Image(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	etag := imageETag(img.Data)
	if etagMatches(input.IfNoneMatch, etag) {
		return &ImageOutput{Status: http.StatusNotModified, ETag: etag}, nil
	}

	return &ImageOutput{
		Status:       http.StatusOK,
		ContentType:  mimetype.Detect(img.Data).String(),
		ETag:         etag,
		CacheControl: "private, max-age=86400",
		Body:         img.Data,
	}, nil
}

func (s *Server) handleGetStats(ctx context.Context, _ *struct{}) (*StatsOutput, error) {
	stats, err := s.services.Memes.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &StatsOutput{Body: stats}, nil
}

// imageETag is a strong validator over the image bytes.
func imageETag(data []byte) string {
	sum := blake2b.Sum256(data)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

func imageURL(id int64) string {
	return "/api/v1/images/" + strconv.FormatInt(id, 10)
}
