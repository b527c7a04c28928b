// Package destination implements the messaging backends an item fans out
// to. Each adapter renders with backend-specific escaping, sends and edits
// messages, and absorbs rate limits with a fixed cooldown.
package destination

import (
	"context"
	"errors"

	"feedrelay/internal/model"
)

// EditOutcome is the result of an edit call.
type EditOutcome int

// Edit outcomes the delivery state machine distinguishes.
const (
	// EditOK means the message now carries the new text (including the
	// "nothing changed" case, which backends report as a distinct error).
	EditOK EditOutcome = iota
	// EditNotFound means the message no longer exists at the destination.
	EditNotFound
	// EditFailed means a non-retryable failure; the caller should leave
	// persisted state untouched and retry next poll.
	EditFailed
)

// ErrSendFailed is returned when a destination rejects a send for a
// non-retryable reason. Callers must not persist state for the item.
var ErrSendFailed = errors.New("send failed")

// Adapter is the capability set every destination backend provides.
type Adapter interface {
	// Name returns the configured destination name, used as the key for
	// persisted delivery statuses.
	Name() string

	// Render produces the destination-ready text: template literals keep
	// their structure, interpolated values are escaped for the backend's
	// formatting language.
	Render(tmpl string, args map[string]any) (string, error)

	// Send delivers text and returns the destination-assigned message ref.
	Send(ctx context.Context, text string) (string, error)

	// Edit replaces the text of an existing message.
	Edit(ctx context.Context, ref, text string) (EditOutcome, error)

	// Override returns an adapter with per-subscription tweaks applied.
	// The receiver is not modified.
	Override(o model.DestinationOverride) Adapter
}
