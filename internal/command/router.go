// Package command turns inbound chat messages into meme library operations.
//
// The messaging layer hands a Message to Router.Handle and sends back
// whatever Response it gets. Messages that are not commands come back
// unhandled so other plugins can see them.
package command

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/feiju-bot/feiju/internal/domain"
	"github.com/feiju-bot/feiju/internal/search"
	"github.com/feiju-bot/feiju/internal/service"
	"github.com/feiju-bot/feiju/internal/validation"
)

// Kind names the command a message was routed to.
type Kind string

// Commands.
const (
	KindNone        Kind = ""
	KindGet         Kind = "get"
	KindAdd         Kind = "add"
	KindDelete      Kind = "delete"
	KindAliasAdd    Kind = "alias_add"
	KindAliasRemove Kind = "alias_remove"
	KindAliasList   Kind = "alias_list"
	KindSync        Kind = "sync"
	KindHelp        Kind = "help"
)

const (
	prefixAdd         = "添加"
	prefixDelete      = "删除"
	prefixAliasAdd    = "添加别名"
	prefixAliasRemove = "删除别名"
	prefixAliasList   = "查看别名"
	prefixSync        = "同步"
	commandHelp       = "有啥花活"
	forceFlag         = "--force"
)

var getPattern = regexp.MustCompile(`^来[只个点](.+)$`)

// MemeManager is the part of the meme service the router drives.
type MemeManager interface {
	GetMeme(ctx context.Context, text, contextID string) service.Reply
	AddMeme(ctx context.Context, name, url, contextID string, force bool) service.Reply
	DeleteMeme(ctx context.Context, name, url, contextID string) service.Reply
	SyncMemes(ctx context.Context, rawSource, rawTarget, keyword string) service.Reply
	Suggest(ctx context.Context, contextID, text string, limit int) ([]search.Suggestion, error)
}

// AliasManager is the part of the alias service the router drives.
type AliasManager interface {
	AddAlias(ctx context.Context, nameA, nameB, contextID string) service.Reply
	RemoveAlias(ctx context.Context, name, contextID string) service.Reply
	ListAliases(ctx context.Context, name, contextID string) service.Reply
}

// Message is an inbound chat message.
type Message struct {
	ContextID string
	SenderID  string
	Private   bool
	Text      string
	Quote     *Quote
}

// Quote is the message a command replies to.
type Quote struct {
	SenderID string
	Payload  Payload
}

// ContextOf returns the library context for a conversation: the group id in
// groups, a private key per user otherwise.
func ContextOf(groupID, userID string) string {
	if groupID != "" {
		return groupID
	}
	return domain.PrivateContext(userID)
}

// Response is the router's answer to a message.
type Response struct {
	Command Kind `json:"command"`
	// Silent marks a recognised command that deliberately sends nothing.
	Silent bool `json:"silent,omitempty"`
	service.Reply
}

// Handled reports whether the message was a command.
func (r Response) Handled() bool { return r.Command != KindNone }

// Options configures a Router.
type Options struct {
	SelfID       string
	Superusers   []string
	SuggestLimit int
	Logger       *slog.Logger
}

// Router dispatches chat commands.
type Router struct {
	memes      MemeManager
	aliases    AliasManager
	validator  *validation.Validator
	selfID     string
	superusers map[string]bool
	suggest    int
	logger     *slog.Logger
}

// NewRouter creates a router.
func NewRouter(memes MemeManager, aliases AliasManager, opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := opts.SuggestLimit
	if limit <= 0 {
		limit = search.DefaultSuggestLimit
	}
	supers := make(map[string]bool, len(opts.Superusers))
	for _, id := range opts.Superusers {
		supers[id] = true
	}
	return &Router{
		memes:      memes,
		aliases:    aliases,
		validator:  validation.New(),
		selfID:     opts.SelfID,
		superusers: supers,
		suggest:    limit,
		logger:     logger,
	}
}

type addArgs struct {
	Name     string `json:"name" validate:"memename"`
	ImageURL string `json:"image_url" validate:"required,url"`
}

type syncArgs struct {
	Source  string `json:"source" validate:"contexttoken"`
	Target  string `json:"target" validate:"contexttoken"`
	Keyword string `json:"keyword" validate:"memename"`
}

// Handle routes msg. Alias and sync commands are checked before the plain
// add and delete prefixes they share.
func (r *Router) Handle(ctx context.Context, msg Message) Response {
	text := strings.TrimSpace(msg.Text)

	switch {
	case strings.HasPrefix(text, "/"+prefixSync) || strings.HasPrefix(text, prefixSync):
		return r.handleSync(ctx, msg, text)
	case strings.HasPrefix(text, prefixAliasAdd):
		return r.handleAliasAdd(ctx, msg, strings.TrimPrefix(text, prefixAliasAdd))
	case strings.HasPrefix(text, prefixAliasRemove):
		rest := strings.TrimSpace(strings.TrimPrefix(text, prefixAliasRemove))
		return respond(KindAliasRemove, r.aliases.RemoveAlias(ctx, rest, msg.ContextID))
	case getPattern.MatchString(text):
		return r.handleGet(ctx, msg, strings.TrimSpace(getPattern.FindStringSubmatch(text)[1]))
	case strings.HasPrefix(text, prefixAliasList):
		rest := strings.TrimSpace(strings.TrimPrefix(text, prefixAliasList))
		return respond(KindAliasList, r.aliases.ListAliases(ctx, rest, msg.ContextID))
	case strings.HasPrefix(text, prefixAdd):
		return r.handleAdd(ctx, msg, strings.TrimPrefix(text, prefixAdd))
	case strings.HasPrefix(text, prefixDelete):
		return r.handleDelete(ctx, msg, strings.TrimSpace(strings.TrimPrefix(text, prefixDelete)))
	case isCommand(text, commandHelp):
		return respond(KindHelp, service.Reply{Outcome: service.OutcomeOK, Text: helpText})
	default:
		return Response{}
	}
}

func (r *Router) handleGet(ctx context.Context, msg Message, raw string) Response {
	reply := r.memes.GetMeme(ctx, raw, msg.ContextID)
	if reply.Outcome != service.OutcomeNotFound {
		return respond(KindGet, reply)
	}

	suggestions, err := r.memes.Suggest(ctx, msg.ContextID, raw, r.suggest)
	if err != nil {
		r.logger.Warn("suggest failed", "context", msg.ContextID, "text", raw, "error", err)
		return respond(KindGet, reply)
	}
	if len(suggestions) > 0 {
		names := make([]string, len(suggestions))
		for i, s := range suggestions {
			names[i] = s.Name
		}
		reply.Text += msgSuggestions(names)
	}
	return respond(KindGet, reply)
}

func (r *Router) handleAdd(ctx context.Context, msg Message, rest string) Response {
	name := strings.TrimSpace(rest)
	force := strings.Contains(name, forceFlag)
	if force {
		name = strings.TrimSpace(strings.ReplaceAll(name, forceFlag, ""))
	}
	if name == "" || msg.Quote == nil {
		return silent(KindAdd)
	}

	args := addArgs{Name: name, ImageURL: msg.Quote.Payload.ImageURL()}
	if err := r.validator.Validate(args); err != nil {
		r.logger.Debug("add command ignored", "context", msg.ContextID, "error", err)
		return silent(KindAdd)
	}

	return respond(KindAdd, r.memes.AddMeme(ctx, args.Name, args.ImageURL, msg.ContextID, force))
}

func (r *Router) handleDelete(ctx context.Context, msg Message, name string) Response {
	if name == "" {
		return silent(KindDelete)
	}
	switch {
	case msg.Quote == nil:
		return respond(KindDelete, textReply(service.OutcomeInvalid, msgDeleteWhich))
	case r.selfID == "" || msg.Quote.SenderID != r.selfID:
		return respond(KindDelete, textReply(service.OutcomeForbidden, msgDeleteNotMine))
	case !msg.Quote.Payload.HasImage():
		return respond(KindDelete, textReply(service.OutcomeInvalid, msgDeleteNoImage))
	}

	url := msg.Quote.Payload.ImageURL()
	if url == "" {
		return respond(KindDelete, textReply(service.OutcomeInvalid, msgDeleteNoURL))
	}
	return respond(KindDelete, r.memes.DeleteMeme(ctx, name, url, msg.ContextID))
}

func (r *Router) handleAliasAdd(ctx context.Context, msg Message, rest string) Response {
	args := strings.Fields(rest)
	if len(args) != 2 {
		return respond(KindAliasAdd, textReply(service.OutcomeInvalid, msgAliasAddUsage))
	}
	return respond(KindAliasAdd, r.aliases.AddAlias(ctx, args[0], args[1], msg.ContextID))
}

// handleSync runs a cross-context copy. It is only offered to superusers in
// private chat; group messages are ignored.
func (r *Router) handleSync(ctx context.Context, msg Message, text string) Response {
	if !msg.Private {
		return silent(KindSync)
	}
	if !r.superusers[msg.SenderID] {
		r.logger.Warn("sync refused", "sender", msg.SenderID)
		return respond(KindSync, textReply(service.OutcomeForbidden, msgNotSuperuser))
	}

	text = strings.TrimPrefix(strings.TrimPrefix(text, "/"), prefixSync)
	parts := strings.Fields(text)
	if len(parts) < 3 {
		return respond(KindSync, textReply(service.OutcomeInvalid, msgSyncUsage))
	}

	args := syncArgs{Source: parts[0], Target: parts[1], Keyword: strings.Join(parts[2:], " ")}
	if err := r.validator.Validate(args); err != nil {
		r.logger.Debug("sync arguments rejected", "error", err)
		return respond(KindSync, textReply(service.OutcomeInvalid, msgSyncUsage))
	}

	return respond(KindSync, r.memes.SyncMemes(ctx, args.Source, args.Target, args.Keyword))
}

// isCommand matches cmd or /cmd, alone or followed by arguments.
func isCommand(text, cmd string) bool {
	text = strings.TrimPrefix(text, "/")
	if !strings.HasPrefix(text, cmd) {
		return false
	}
	rest := text[len(cmd):]
	return rest == "" || strings.TrimLeft(rest, " \t\n") != rest
}

func respond(kind Kind, reply service.Reply) Response {
	return Response{Command: kind, Reply: reply}
}

func silent(kind Kind) Response {
	return Response{Command: kind, Silent: true}
}

func textReply(outcome service.Outcome, text string) service.Reply {
	return service.Reply{Outcome: outcome, Text: text}
}
