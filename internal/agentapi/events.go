package agentapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Wire event types consumed from the inference stream.
const (
	TypeCreated         = "response.created"
	TypeInProgress      = "response.in_progress"
	TypeOutputItemAdded = "response.output_item.added"
	TypeOutputItemDone  = "response.output_item.done"
	TypeOutputTextDelta = "response.output_text.delta"
	TypeCompleted       = "response.completed"
	TypeFailed          = "response.failed"
	TypeError           = "error"
)

// ErrMalformedEvent wraps payloads that are not valid event JSON.
var ErrMalformedEvent = errors.New("agentapi: malformed event")

// Event is one decoded stream event. The set of implementations is closed:
// anything the decoder does not know becomes Unrecognized.
type Event interface {
	// Type returns the wire type string.
	Type() string
	isEvent()
}

// Created opens a response and carries the continuation identifiers.
type Created struct {
	ResponseID     string
	ConversationID string
}

// InProgress signals the model is working.
type InProgress struct{}

// OutputItemAdded signals a new output item (tool call or message) started.
type OutputItemAdded struct {
	Item Item
}

// OutputItemDone signals an output item finished.
type OutputItemDone struct {
	Item Item
}

// OutputTextDelta carries a fragment of generated text.
type OutputTextDelta struct {
	Delta string
}

// Completed ends the response. FinalText, when non-empty, is the whole
// output and supersedes accumulated deltas.
type Completed struct {
	FinalText string
}

// Failed ends the response with an error.
type Failed struct {
	Error APIError
}

// ErrorEvent is a standalone error (type "error" or any type starting with
// "error"). It does not end the stream by itself.
type ErrorEvent struct {
	RawType string
	APIError
}

// Unrecognized preserves an event kind the decoder does not model.
type Unrecognized struct {
	RawType string
	Raw     json.RawMessage
}

func (Created) Type() string         { return TypeCreated }
func (InProgress) Type() string      { return TypeInProgress }
func (OutputItemAdded) Type() string { return TypeOutputItemAdded }
func (OutputItemDone) Type() string  { return TypeOutputItemDone }
func (OutputTextDelta) Type() string { return TypeOutputTextDelta }
func (Completed) Type() string       { return TypeCompleted }
func (Failed) Type() string          { return TypeFailed }
func (e ErrorEvent) Type() string    { return e.RawType }
func (e Unrecognized) Type() string  { return e.RawType }

func (Created) isEvent()         {}
func (InProgress) isEvent()      {}
func (OutputItemAdded) isEvent() {}
func (OutputItemDone) isEvent()  {}
func (OutputTextDelta) isEvent() {}
func (Completed) isEvent()       {}
func (Failed) isEvent()          {}
func (ErrorEvent) isEvent()      {}
func (Unrecognized) isEvent()    {}

// APIError is the structured error reported by the service.
type APIError struct {
	Code    string
	Message string
	Status  int
}

// String renders the error with whatever structure is present so substring
// classification can see the code and status.
func (e APIError) String() string {
	var parts []string
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status %d", e.Status))
	}
	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}
	msg := e.Message
	if msg == "" {
		msg = "unknown error"
	}
	if len(parts) == 0 {
		return msg
	}
	return strings.Join(parts, " ") + ": " + msg
}

// ItemKind groups output item types.
type ItemKind int

const (
	ItemOther ItemKind = iota
	ItemMessage
	ItemDocSearch
	ItemWebSearch
	ItemFunction
)

// Item is an output item: a tool call or a message.
type Item struct {
	ItemType string
	Name     string
	Query    string
	Status   string
	Error    string
}

// Kind maps the item type to a known group.
func (it Item) Kind() ItemKind {
	switch it.ItemType {
	case "mcp_call", "file_search_call":
		return ItemDocSearch
	case "web_search_call", "bing_grounding_call":
		return ItemWebSearch
	case "function_call":
		return ItemFunction
	case "message":
		return ItemMessage
	default:
		return ItemOther
	}
}

// IsTool reports whether the item is a tool call.
func (it Item) IsTool() bool {
	switch it.Kind() {
	case ItemDocSearch, ItemWebSearch, ItemFunction:
		return true
	}
	return false
}

// Failed reports whether the item finished with an error.
func (it Item) Failed() bool {
	return it.Error != "" || it.Status == "failed"
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

type wireEvent struct {
	Type     string          `json:"type"`
	Delta    string          `json:"delta"`
	Item     *wireItem       `json:"item"`
	Response *wireResponse   `json:"response"`
	Code     flexString      `json:"code"`
	Message  string          `json:"message"`
	Status   flexInt         `json:"status"`
	Error    json.RawMessage `json:"error"`
}

type wireItem struct {
	Type   string          `json:"type"`
	Name   string          `json:"name"`
	Status string          `json:"status"`
	Query  string          `json:"query"`
	Action *struct {
		Query string `json:"query"`
	} `json:"action"`
	Error json.RawMessage `json:"error"`
}

type wireResponse struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Conversation   json.RawMessage `json:"conversation"`
	OutputText     string          `json:"output_text"`
	Status         string          `json:"status"`
	Error          *wireError      `json:"error"`
}

type wireError struct {
	Code       flexString `json:"code"`
	Message    string     `json:"message"`
	Status     flexInt    `json:"status"`
	StatusCode flexInt    `json:"status_code"`
}

// DecodeEvent decodes one stream payload into its Event variant.
func DecodeEvent(raw []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	switch {
	case w.Type == TypeCreated:
		ev := Created{}
		if w.Response != nil {
			ev.ResponseID = w.Response.ID
			ev.ConversationID = w.Response.conversationID()
		}
		return ev, nil

	case w.Type == TypeInProgress:
		return InProgress{}, nil

	case w.Type == TypeOutputItemAdded && w.Item != nil:
		return OutputItemAdded{Item: w.Item.item()}, nil

	case w.Type == TypeOutputItemDone && w.Item != nil:
		return OutputItemDone{Item: w.Item.item()}, nil

	case w.Type == TypeOutputTextDelta:
		return OutputTextDelta{Delta: w.Delta}, nil

	case w.Type == TypeCompleted:
		ev := Completed{}
		if w.Response != nil {
			ev.FinalText = w.Response.OutputText
		}
		return ev, nil

	case w.Type == TypeFailed:
		return Failed{Error: w.Response.apiError()}, nil

	case strings.HasPrefix(w.Type, TypeError):
		ev := ErrorEvent{RawType: w.Type, APIError: APIError{
			Code:    string(w.Code),
			Message: w.Message,
			Status:  int(w.Status),
		}}
		if ev.Message == "" {
			ev.Message = rawErrorText(w.Error)
		}
		if ev.Message == "" {
			ev.Message = string(raw)
		}
		return ev, nil
	}

	return Unrecognized{RawType: w.Type, Raw: json.RawMessage(append([]byte(nil), raw...))}, nil
}

func (r *wireResponse) conversationID() string {
	if r.ConversationID != "" {
		return r.ConversationID
	}
	if len(r.Conversation) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(r.Conversation, &id); err == nil {
		return id
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(r.Conversation, &obj); err == nil {
		return obj.ID
	}
	return ""
}

func (r *wireResponse) apiError() APIError {
	if r == nil {
		return APIError{Message: "unknown error"}
	}
	if r.Error == nil {
		msg := "unknown error"
		if r.Status != "" {
			msg = "response status: " + r.Status
		}
		return APIError{Message: msg}
	}
	status := int(r.Error.Status)
	if status == 0 {
		status = int(r.Error.StatusCode)
	}
	return APIError{Code: string(r.Error.Code), Message: r.Error.Message, Status: status}
}

func (w *wireItem) item() Item {
	it := Item{
		ItemType: w.Type,
		Name:     w.Name,
		Status:   w.Status,
		Query:    w.Query,
		Error:    rawErrorText(w.Error),
	}
	if it.Query == "" && w.Action != nil {
		it.Query = w.Action.Query
	}
	return it
}

// rawErrorText flattens an error field that may be a string, an object with
// a message, or null.
func rawErrorText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Code    flexString `json:"code"`
		Message string     `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		if obj.Code != "" {
			return fmt.Sprintf("%s: %s", obj.Code, obj.Message)
		}
		return obj.Message
	}
	return string(raw)
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexInt accepts a JSON number or numeric string.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexInt(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	*f = flexInt(n)
	return nil
}
