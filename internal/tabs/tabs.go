// Package tabs holds the browser tab types shared by the tracker, the
// policy engine and the browser bridge, plus the error kinds every
// component classifies failures with.
package tabs

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

// TabID is the browser's opaque, process-local tab identifier.
type TabID int64

// WindowNone is the window id browsers report when focus leaves every window.
const WindowNone int64 = -1

// Tab is a snapshot of one open tab as reported by the browser.
type Tab struct {
	ID       TabID  `json:"id"`
	WindowID int64  `json:"windowId"`
	URL      string `json:"url,omitempty"`
	Title    string `json:"title,omitempty"`
	Pinned   bool   `json:"pinned,omitempty"`
	Active   bool   `json:"active,omitempty"`
}

// Query filters a tab enumeration the same way a browser tab query does.
// The zero value matches every tab in every window.
type Query struct {
	CurrentWindow bool  `json:"currentWindow,omitempty"`
	WindowID      int64 `json:"windowId,omitempty"`
	Active        bool  `json:"active,omitempty"`
}

// Browser is the set of tab-management primitives the daemon needs.
// Every call is a suspension point: other events may run before it returns.
type Browser interface {
	QueryTabs(ctx context.Context, q Query) ([]Tab, error)
	CreateTab(ctx context.Context, url string) error
	RemoveTab(ctx context.Context, id TabID) error
	SetBadge(ctx context.Context, text string) error
}

// Opener is the slice of Browser needed to restore a closed tab.
type Opener interface {
	CreateTab(ctx context.Context, url string) error
}

var (
	// ErrTransientIO marks a persisted-store read or write failure.
	ErrTransientIO = errors.New("transient store failure")
	// ErrInvalidReference marks an operation on a tab that no longer exists.
	ErrInvalidReference = errors.New("tab no longer exists")
	// ErrMalformedURL marks a URL that could not be parsed.
	ErrMalformedURL = errors.New("malformed url")
	// ErrNoListener marks a notification nobody was listening for.
	ErrNoListener = errors.New("no listener")
	// ErrNoBrowser means no browser connection can serve a primitive.
	ErrNoBrowser = errors.New("no browser connected")
)

// Hostname returns the host part of rawURL, or ErrMalformedURL when it is
// not an absolute URL. Absolute URLs without a host (file:, data:) yield "".
func Hostname(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() {
		return "", ErrMalformedURL
	}
	return u.Hostname(), nil
}

// DisplayTitle returns title, or the URL host when title is empty. URLs
// that fail to parse are returned literally.
func DisplayTitle(rawURL, title string) string {
	if strings.TrimSpace(title) != "" {
		return title
	}
	host, err := Hostname(rawURL)
	if err != nil || host == "" {
		return rawURL
	}
	return host
}
