package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/feiju-bot/feiju/internal/command"
	"github.com/feiju-bot/feiju/internal/service"

	domainerrors "github.com/feiju-bot/feiju/internal/errors"
)

func (s *Server) registerEventRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "dispatchEvent",
		Method:      http.MethodPost,
		Path:        "/api/v1/events",
		Summary:     "Dispatch chat message",
		Description: "Runs an inbound chat message through the command router and returns what the bot should send back",
		Tags:        []string{"Events"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleDispatchEvent)
}

// QuotedMessage is the message an event replies to.
type QuotedMessage struct {
	SenderID string `json:"sender_id" doc:"Sender of the quoted message"`
	Message  string `json:"message" doc:"Quoted payload: JSON segment array or legacy CQ text"`
}

// EventRequest is an inbound chat message.
type EventRequest struct {
	GroupID string         `json:"group_id,omitempty" doc:"Group id; empty for private messages"`
	UserID  string         `json:"user_id" minLength:"1" doc:"Sender user id"`
	Message string         `json:"message" doc:"Message payload: JSON segment array or legacy CQ text"`
	Reply   *QuotedMessage `json:"reply,omitempty" doc:"Message being replied to"`
}

// EventInput wraps the event request for Huma.
type EventInput struct {
	Body EventRequest
}

// EventResponse is the router's answer.
type EventResponse struct {
	Handled     bool                `json:"handled" doc:"Whether the message was a command"`
	Command     string              `json:"command,omitempty" doc:"Command the message was routed to"`
	Silent      bool                `json:"silent,omitempty" doc:"Command recognised but nothing should be sent"`
	Outcome     service.Outcome     `json:"outcome,omitempty" doc:"Operation outcome"`
	Text        string              `json:"text,omitempty" doc:"Text to send"`
	Image       []byte              `json:"image,omitempty" doc:"Image to send, base64 encoded"`
	ImageID     int64               `json:"image_id,omitempty" doc:"Stored id of the image"`
	MatchedName string              `json:"matched_name,omitempty" doc:"Library name the trigger matched"`
	Sync        *service.SyncReport `json:"sync,omitempty" doc:"Sync counts"`
}

// EventOutput wraps the event response for Huma.
type EventOutput struct {
	Body EventResponse
}

func (s *Server) handleDispatchEvent(ctx context.Context, input *EventInput) (*EventOutput, error) {
	msg, err := toCommandMessage(input.Body)
	if err != nil {
		return nil, err
	}

	resp := s.services.Commands.Handle(ctx, msg)
	return &EventOutput{
		Body: EventResponse{
			Handled:     resp.Handled(),
			Command:     string(resp.Command),
			Silent:      resp.Silent,
			Outcome:     resp.Outcome,
			Text:        resp.Text,
			Image:       resp.Image,
			ImageID:     resp.ImageID,
			MatchedName: resp.MatchedName,
			Sync:        resp.Sync,
		},
	}, nil
}

// toCommandMessage decodes the payloads of an event.
func toCommandMessage(req EventRequest) (command.Message, error) {
	payload, err := command.DecodePayload(req.Message)
	if err != nil {
		return command.Message{}, domainerrors.Validation(err.Error())
	}

	msg := command.Message{
		ContextID: command.ContextOf(req.GroupID, req.UserID),
		SenderID:  req.UserID,
		Private:   req.GroupID == "",
		Text:      payload.PlainText(),
	}

	if req.Reply != nil {
		quoted, err := command.DecodePayload(req.Reply.Message)
		if err != nil {
			return command.Message{}, domainerrors.Validation("reply: " + err.Error())
		}
		msg.Quote = &command.Quote{SenderID: req.Reply.SenderID, Payload: quoted}
	}
	return msg, nil
}
