// Package bridge connects the daemon to the browser extension and to UI
// clients over a WebSocket.
//
// All traffic is JSON frames. The extension pushes tab lifecycle events and
// answers browser-primitive requests; UI clients send commands and receive
// refresh notifications. One connection may play both roles.
package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/runnerr0/tabsentry/internal/tabs"
)

// Kind identifies the frame type.
type Kind string

const (
	KindHello    Kind = "hello"
	KindEvent    Kind = "event"
	KindCommand  Kind = "command"
	KindResponse Kind = "response"
	KindRequest  Kind = "request"
	KindResult   Kind = "result"
	KindNotify   Kind = "notify"
)

// RoleBrowser is the hello role of the connection serving browser primitives.
const RoleBrowser = "browser"

// Browser primitive request names.
const (
	MethodQueryTabs = "queryTabs"
	MethodCreateTab = "createTab"
	MethodRemoveTab = "removeTab"
	MethodSetBadge  = "setBadge"
)

// Tab lifecycle event names.
const (
	EventTabCreated         = "tabCreated"
	EventTabUpdated         = "tabUpdated"
	EventTabActivated       = "tabActivated"
	EventTabRemoved         = "tabRemoved"
	EventWindowFocusChanged = "windowFocusChanged"
)

// TopicRefresh is broadcast after every closed-tab history change.
const TopicRefresh = "refresh"

// CodeInvalidReference marks a result error about a tab that no longer exists.
const CodeInvalidReference = "invalid_reference"

// Frame is one message on the wire. Name carries the event type, command
// name, request method or notify topic depending on Kind.
type Frame struct {
	Kind    Kind            `json:"kind"`
	ID      string          `json:"id,omitempty"`
	Name    string          `json:"name,omitempty"`
	Role    string          `json:"role,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
	Code    string          `json:"code,omitempty"`
}

// NewFrame builds a frame with payload marshaled to JSON.
func NewFrame(kind Kind, name string, payload interface{}) (*Frame, error) {
	f := &Frame{Kind: kind, Name: name}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
		}
		f.Payload = data
	}
	return f, nil
}

// ParsePayload decodes the payload into v. An absent payload leaves v as is.
func (f *Frame) ParsePayload(v interface{}) error {
	if len(f.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(f.Payload, v); err != nil {
		return fmt.Errorf("parse %s payload: %w", f.Kind, err)
	}
	return nil
}

// Event is a tab lifecycle notification from the extension. Fields are
// filled according to Type.
type Event struct {
	Type     string     `json:"-"`
	TabID    tabs.TabID `json:"tabId,omitempty"`
	WindowID int64      `json:"windowId,omitempty"`
	Status   string     `json:"status,omitempty"`
	URL      string     `json:"url,omitempty"`
	Title    string     `json:"title,omitempty"`
	Pinned   bool       `json:"pinned,omitempty"`
}

// StatusComplete is the tabUpdated status sent once a page finished loading.
const StatusComplete = "complete"

type createTabParams struct {
	URL string `json:"url"`
}

type removeTabParams struct {
	TabID tabs.TabID `json:"tabId"`
}

type setBadgeParams struct {
	Text string `json:"text"`
}
