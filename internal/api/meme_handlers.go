package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/danielgtaylor/huma/v2"
	"github.com/gabriel-vasile/mimetype"

	"github.com/feiju-bot/feiju/internal/domain"
	"github.com/feiju-bot/feiju/internal/media/images"
	"github.com/feiju-bot/feiju/internal/search"
	"github.com/feiju-bot/feiju/internal/service"
)

func (s *Server) registerMemeRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getMeme",
		Method:      http.MethodGet,
		Path:        "/api/v1/contexts/{context}/meme",
		Summary:     "Get meme",
		Description: "Returns a random image from the library whose name is the longest prefix of q",
		Tags:        []string{"Memes"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetMeme)

	huma.Register(s.api, huma.Operation{
		OperationID: "listContexts",
		Method:      http.MethodGet,
		Path:        "/api/v1/contexts",
		Summary:     "List contexts",
		Description: "Lists every context that has at least one library",
		Tags:        []string{"Libraries"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListContexts)

	huma.Register(s.api, huma.Operation{
		OperationID: "listLibraries",
		Method:      http.MethodGet,
		Path:        "/api/v1/contexts/{context}/libraries",
		Summary:     "List libraries",
		Description: "Lists the libraries of a context with their names and image counts",
		Tags:        []string{"Libraries"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListLibraries)

	huma.Register(s.api, huma.Operation{
		OperationID: "listLibraryImages",
		Method:      http.MethodGet,
		Path:        "/api/v1/contexts/{context}/libraries/{name}/images",
		Summary:     "List library images",
		Description: "Lists the images of a library with format, dimensions and a BlurHash placeholder",
		Tags:        []string{"Libraries"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListLibraryImages)

	huma.Register(s.api, huma.Operation{
		OperationID:   "addLibraryImage",
		Method:        http.MethodPost,
		Path:          "/api/v1/contexts/{context}/libraries/{name}/images",
		Summary:       "Add image",
		Description:   "Downloads an image and stores it under name unless a near-duplicate is already there",
		Tags:          []string{"Libraries"},
		DefaultStatus: http.StatusCreated,
		Security:      []map[string][]string{{"bearer": {}}},
	}, s.handleAddLibraryImage)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteLibraryImage",
		Method:      http.MethodDelete,
		Path:        "/api/v1/contexts/{context}/libraries/{name}/images",
		Summary:     "Delete image",
		Description: "Downloads an image and removes the first stored image within the duplicate threshold of it",
		Tags:        []string{"Libraries"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleDeleteLibraryImage)

	huma.Register(s.api, huma.Operation{
		OperationID: "suggestNames",
		Method:      http.MethodGet,
		Path:        "/api/v1/contexts/{context}/suggest",
		Summary:     "Suggest names",
		Description: "Returns library names resembling q",
		Tags:        []string{"Memes"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleSuggest)
}

// === DTOs ===

// GetMemeInput selects a meme by trigger text.
type GetMemeInput struct {
	Context string `path:"context" doc:"Context id"`
	Q       string `query:"q" required:"true" minLength:"1" doc:"Trigger text"`
}

// RawImageOutput streams stored image bytes.
type RawImageOutput struct {
	ContentType  string `header:"Content-Type"`
	ETag         string `header:"ETag"`
	CacheControl string `header:"Cache-Control"`
	MatchedName  string `header:"X-Matched-Name"`
	Body         []byte
}

// ContextInput names a context.
type ContextInput struct {
	Context string `path:"context" doc:"Context id"`
}

// ContextsResponse lists contexts.
type ContextsResponse struct {
	Contexts []string `json:"contexts" doc:"Context ids"`
}

// ContextsOutput wraps the contexts response for Huma.
type ContextsOutput struct {
	Body ContextsResponse
}

// LibrariesResponse lists libraries.
type LibrariesResponse struct {
	Libraries []*domain.Library `json:"libraries" doc:"Libraries in creation order"`
}

// LibrariesOutput wraps the libraries response for Huma.
type LibrariesOutput struct {
	Body LibrariesResponse
}

// LibraryInput names a library by one of its names.
type LibraryInput struct {
	Context string `path:"context" doc:"Context id"`
	Name    string `path:"name" doc:"Any name bound to the library"`
}

// ImageInfo describes a stored image.
type ImageInfo struct {
	ID       int64  `json:"id" doc:"Image id"`
	Hash     string `json:"hash" doc:"Perceptual hash"`
	Size     int    `json:"size" doc:"Size in bytes"`
	Format   string `json:"format,omitempty" doc:"Image format"`
	MIMEType string `json:"mime_type,omitempty" doc:"MIME type"`
	Width    int    `json:"width,omitempty" doc:"Width in pixels"`
	Height   int    `json:"height,omitempty" doc:"Height in pixels"`
	Frames   int    `json:"frames,omitempty" doc:"Frame count"`
	Animated bool   `json:"animated" doc:"Whether the image has more than one frame"`
	BlurHash string `json:"blur_hash,omitempty" doc:"BlurHash placeholder"`
	URL      string `json:"url" doc:"Raw image location"`
}

// LibraryImagesResponse lists the images of a library.
type LibraryImagesResponse struct {
	Name   string      `json:"name" doc:"Folded library name"`
	Images []ImageInfo `json:"images" doc:"Images in insertion order"`
}

// LibraryImagesOutput wraps the images response for Huma.
type LibraryImagesOutput struct {
	Body LibraryImagesResponse
}

// AddImageRequest names the image to download.
type AddImageRequest struct {
	URL   string `json:"url" format:"uri" minLength:"1" doc:"Image URL"`
	Force bool   `json:"force,omitempty" doc:"Skip duplicate detection"`
}

// AddImageInput wraps the add request for Huma.
type AddImageInput struct {
	Context string `path:"context" doc:"Context id"`
	Name    string `path:"name" doc:"Library name; created when missing"`
	Body    AddImageRequest
}

// DeleteImageInput names the image to delete by URL.
type DeleteImageInput struct {
	Context string `path:"context" doc:"Context id"`
	Name    string `path:"name" doc:"Library name"`
	URL     string `query:"url" required:"true" minLength:"1" doc:"URL of the image to match"`
}

// ReplyOutput returns a service reply.
type ReplyOutput struct {
	Body service.Reply
}

// SuggestInput asks for names resembling q.
type SuggestInput struct {
	Context string `path:"context" doc:"Context id"`
	Q       string `query:"q" required:"true" minLength:"1" doc:"Text to match"`
	Limit   int    `query:"limit" default:"5" minimum:"1" maximum:"50" doc:"Maximum suggestions"`
}

// SuggestResponse lists suggestions.
type SuggestResponse struct {
	Suggestions []search.Suggestion `json:"suggestions" doc:"Best matches first"`
}

// SuggestOutput wraps the suggest response for Huma.
type SuggestOutput struct {
	Body SuggestResponse
}

// === Handlers ===

func (s *Server) handleGetMeme(ctx context.Context, input *GetMemeInput) (*RawImageOutput, error) {
	r := s.services.Memes.GetMeme(ctx, input.Q, input.Context)
	if !r.OK() {
		return nil, replyError(r)
	}
	return &RawImageOutput{
		ContentType:  mimetype.Detect(r.Image).String(),
		ETag:         imageETag(r.Image),
		CacheControl: "no-store",
		MatchedName:  url.PathEscape(r.MatchedName),
		Body:         r.Image,
	}, nil
}

func (s *Server) handleListContexts(ctx context.Context, _ *struct{}) (*ContextsOutput, error) {
	contexts, err := s.services.Memes.ListContexts(ctx)
	if err != nil {
		return nil, err
	}
	if contexts == nil {
		contexts = []string{}
	}
	return &ContextsOutput{Body: ContextsResponse{Contexts: contexts}}, nil
}

func (s *Server) handleListLibraries(ctx context.Context, input *ContextInput) (*LibrariesOutput, error) {
	libs, err := s.services.Memes.ListLibraries(ctx, input.Context)
	if err != nil {
		return nil, err
	}
	if libs == nil {
		libs = []*domain.Library{}
	}
	return &LibrariesOutput{Body: LibrariesResponse{Libraries: libs}}, nil
}

func (s *Server) handleListLibraryImages(ctx context.Context, input *LibraryInput) (*LibraryImagesOutput, error) {
	refs, err := s.services.Memes.ListImages(ctx, input.Name, input.Context)
	if err != nil {
		return nil, err
	}

	infos := make([]ImageInfo, 0, len(refs))
	for _, ref := range refs {
		info := ImageInfo{
			ID:   ref.ID,
			Hash: ref.Hash,
			Size: ref.Size,
			URL:  imageURL(ref.ID),
		}

		img, err := s.services.Memes.Image(ctx, ref.ID)
		if err != nil {
			s.logger.Warn("image vanished while listing", "image_id", ref.ID, "error", err)
			continue
		}
		if probe, err := images.Probe(img.Data); err == nil {
			info.Format = probe.Format
			info.MIMEType = probe.MIMEType
			info.Width = probe.Width
			info.Height = probe.Height
			info.Frames = probe.Frames
			info.Animated = probe.Animated()
		} else {
			s.logger.Debug("probe failed", "image_id", ref.ID, "error", err)
		}
		if hash, err := images.ComputeBlurHash(img.Data); err == nil {
			info.BlurHash = hash
		}
		infos = append(infos, info)
	}

	return &LibraryImagesOutput{
		Body: LibraryImagesResponse{
			Name:   foldedName(input.Name),
			Images: infos,
		},
	}, nil
}

func (s *Server) handleAddLibraryImage(ctx context.Context, input *AddImageInput) (*ReplyOutput, error) {
	r := s.services.Memes.AddMeme(ctx, input.Name, input.Body.URL, input.Context, input.Body.Force)
	if !r.OK() {
		return nil, replyError(r)
	}
	return &ReplyOutput{Body: r}, nil
}

func (s *Server) handleDeleteLibraryImage(ctx context.Context, input *DeleteImageInput) (*ReplyOutput, error) {
	r := s.services.Memes.DeleteMeme(ctx, input.Name, input.URL, input.Context)
	if !r.OK() {
		return nil, replyError(r)
	}
	return &ReplyOutput{Body: r}, nil
}

func (s *Server) handleSuggest(ctx context.Context, input *SuggestInput) (*SuggestOutput, error) {
	suggestions, err := s.services.Memes.Suggest(ctx, input.Context, input.Q, input.Limit)
	if err != nil {
		return nil, err
	}
	if suggestions == nil {
		suggestions = []search.Suggestion{}
	}
	return &SuggestOutput{Body: SuggestResponse{Suggestions: suggestions}}, nil
}
