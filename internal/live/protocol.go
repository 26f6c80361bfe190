package live

import (
	"encoding/json"
	"fmt"
)

// Op is an inbound handler name.
type Op int

// Inbound operations.
const (
	OpInvalid Op = iota
	OpInit
	OpQuery
	OpAll
	OpGet
	OpWatch
	OpStop
)

var opNames = map[Op]string{
	OpInit:  "init",
	OpQuery: "query",
	OpAll:   "all",
	OpGet:   "get",
	OpWatch: "watch",
	OpStop:  "stop",
}

// ParseOp converts a handler name to an Op.
func ParseOp(name string) (Op, bool) {
	for op, n := range opNames {
		if n == name {
			return op, true
		}
	}
	return OpInvalid, false
}

func (o Op) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Outbound handler names.
const (
	HandlerSession = "session"
	HandlerList    = "list"
	HandlerItem    = "item"
	HandlerRemove  = "remove"
	HandlerError   = "error"
)

// Frame is one decoded inbound message.
type Frame struct {
	Handler  string `json:"handler"`
	Resource string `json:"resource,omitempty"`
	Params   Params `json:"params,omitempty"`
	// Since overrides the connection's last-seen value for one watch.
	Since json.RawMessage `json:"since,omitempty"`
}

// DecodeFrame parses raw as a Frame. Params is never nil on success.
func DecodeFrame(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	if f.Params == nil {
		f.Params = Params{}
	}
	return f, nil
}

// SessionFrame announces the connection id.
type SessionFrame struct {
	Handler string `json:"handler"`
	ID      string `json:"id"`
}

// ListFrame carries the result of query and all.
type ListFrame struct {
	Handler  string `json:"handler"`
	Resource string `json:"resource"`
	Items    []any  `json:"items"`
}

// ItemFrame carries one record or bus message. ID is omitted for get.
type ItemFrame struct {
	Handler  string `json:"handler"`
	Resource string `json:"resource"`
	ID       any    `json:"id,omitempty"`
	Data     any    `json:"data"`
}

// ErrorFrame reports a failed request against a resource.
type ErrorFrame struct {
	Handler  string       `json:"handler"`
	Resource string       `json:"resource"`
	Params   ErrorPayload `json:"params"`
}

func newSessionFrame(id string) SessionFrame {
	return SessionFrame{Handler: HandlerSession, ID: id}
}

func newListFrame(resource string, items []any) ListFrame {
	if items == nil {
		items = []any{}
	}
	return ListFrame{Handler: HandlerList, Resource: resource, Items: items}
}

func newItemFrame(resource string, id, data any) ItemFrame {
	return ItemFrame{Handler: HandlerItem, Resource: resource, ID: id, Data: data}
}

func newRemoveFrame(resource string, id, data any) ItemFrame {
	return ItemFrame{Handler: HandlerRemove, Resource: resource, ID: id, Data: data}
}

func newErrorFrame(resource string, err error) ErrorFrame {
	return ErrorFrame{Handler: HandlerError, Resource: resource, Params: PayloadFor(err)}
}
