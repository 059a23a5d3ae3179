package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/feiju-bot/feiju/internal/normalize"
)

func (s *Server) registerAliasRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listAliases",
		Method:      http.MethodGet,
		Path:        "/api/v1/contexts/{context}/aliases/{name}",
		Summary:     "List aliases",
		Description: "Lists every name bound to the library name resolves to",
		Tags:        []string{"Aliases"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListAliases)

	huma.Register(s.api, huma.Operation{
		OperationID: "addAlias",
		Method:      http.MethodPost,
		Path:        "/api/v1/contexts/{context}/aliases",
		Summary:     "Add alias",
		Description: "Makes two names resolve to the same library, merging libraries when both exist",
		Tags:        []string{"Aliases"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleAddAlias)

	huma.Register(s.api, huma.Operation{
		OperationID: "removeAlias",
		Method:      http.MethodDelete,
		Path:        "/api/v1/contexts/{context}/aliases/{name}",
		Summary:     "Remove alias",
		Description: "Unbinds a name unless it is the last name of its library",
		Tags:        []string{"Aliases"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleRemoveAlias)
}

// AliasesResponse lists the names of a library.
type AliasesResponse struct {
	Name    string   `json:"name" doc:"Folded name that was looked up"`
	Aliases []string `json:"aliases" doc:"Names in binding order"`
}

// AliasesOutput wraps the aliases response for Huma.
type AliasesOutput struct {
	Body AliasesResponse
}

// AddAliasRequest names the two names to join.
type AddAliasRequest struct {
	Name  string `json:"name" minLength:"1" doc:"Existing name; its library survives a merge"`
	Alias string `json:"alias" minLength:"1" doc:"New or second name"`
}

// AddAliasInput wraps the add alias request for Huma.
type AddAliasInput struct {
	Context string `path:"context" doc:"Context id"`
	Body    AddAliasRequest
}

func (s *Server) handleListAliases(ctx context.Context, input *LibraryInput) (*AliasesOutput, error) {
	names, err := s.services.Aliases.Names(ctx, input.Name, input.Context)
	if err != nil {
		return nil, err
	}
	return &AliasesOutput{
		Body: AliasesResponse{
			Name:    foldedName(input.Name),
			Aliases: names,
		},
	}, nil
}

func (s *Server) handleAddAlias(ctx context.Context, input *AddAliasInput) (*ReplyOutput, error) {
	r := s.services.Aliases.AddAlias(ctx, input.Body.Name, input.Body.Alias, input.Context)
	if !r.OK() {
		return nil, replyError(r)
	}
	return &ReplyOutput{Body: r}, nil
}

func (s *Server) handleRemoveAlias(ctx context.Context, input *LibraryInput) (*ReplyOutput, error) {
	r := s.services.Aliases.RemoveAlias(ctx, input.Name, input.Context)
	if !r.OK() {
		return nil, replyError(r)
	}
	return &ReplyOutput{Body: r}, nil
}

func foldedName(name string) string {
	return normalize.Name(name)
}
