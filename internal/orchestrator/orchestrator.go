// Package orchestrator is the drafting engine: it watches tracked peers for
// silence, generates reply drafts, and drives each draft through the
// operator's approve / rephrase / reject workflow on the control channel.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/scribe/internal/config"
	"github.com/nextlevelbuilder/scribe/internal/control"
	"github.com/nextlevelbuilder/scribe/internal/debounce"
	"github.com/nextlevelbuilder/scribe/internal/network"
	"github.com/nextlevelbuilder/scribe/internal/providers"
)

// ControlClient is the slice of the control channel the engine publishes
// drafts through.
type ControlClient interface {
	SendMessageWithButtons(ctx context.Context, chatID int64, text string, rows [][]control.Button) (int, error)
	EditMessageText(ctx context.Context, chatID int64, messageID int, text string) error
	AnswerCallbackQuery(ctx context.Context, callbackID, text string) error
}

// Generator produces a reply candidate from conversation context, scanning
// an ordered model list until one succeeds.
type Generator interface {
	GenerateWithFallback(ctx context.Context, models []string, systemPrompt string, history []providers.ChatMessage) (string, error)
}

// draft is a generated reply awaiting operator disposition, keyed in the
// draft table by its approve callback token.
type draft struct {
	targetID int64
	text     string
}

// pendingRephrase carries a published draft's location and history snapshot
// so a rephrase can regenerate from the same context.
type pendingRephrase struct {
	chatID    int64
	messageID int
	history   []providers.ChatMessage
}

// Orchestrator owns the shared drafting state. A single mutex guards the
// draft and pending-rephrase tables; critical sections are map operations
// only and the lock is never held across network I/O.
type Orchestrator struct {
	cfg      *config.Config
	network  network.Client
	controlc ControlClient
	gen      Generator
	tracer   trace.Tracer

	// users is the tracked-user registry, immutable after New.
	users map[int64]config.TrackedUser

	timers *debounce.Map[network.Peer]

	// background counts debounce-fired pipeline runs for shutdown join.
	background sync.WaitGroup

	mu      sync.Mutex
	drafts  map[string]draft          // approve token → draft
	pending map[int64]pendingRephrase // target id → rephrase context
	selfID  int64
}

// New wires the engine. The control handler methods (HandleButtonPress,
// HandleTextMessage) satisfy control.Handler.
func New(cfg *config.Config, net network.Client, ctl ControlClient, gen Generator) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		network:  net,
		controlc: ctl,
		gen:      gen,
		tracer:   otel.Tracer("scribe/orchestrator"),
		users:    cfg.UsersByID(),
		timers:   debounce.New[network.Peer](),
		drafts:   make(map[string]draft),
		pending:  make(map[int64]pendingRephrase),
	}
}

// SetSelfID records the operator's own network identity, resolved at login.
func (o *Orchestrator) SetSelfID(id int64) {
	o.mu.Lock()
	o.selfID = id
	o.mu.Unlock()
}

// OnNetworkEvent handles one inbound message from the messaging network.
// Messages from tracked peers re-arm that peer's silence timer; everything
// else is ignored. When the timer fires the draft pipeline runs with the
// history visible at fire time.
func (o *Orchestrator) OnNetworkEvent(evt network.Event) {
	user, ok := o.users[evt.Peer.ID]
	if !ok {
		return
	}

	slog.Debug("message from tracked user, debouncing",
		"user", user.Name,
		"peer_id", evt.Peer.ID,
	)

	delay := time.Duration(o.cfg.Settings.DebounceSeconds) * time.Second
	peer := evt.Peer

	o.timers.Trigger(peer, delay, func() {
		o.background.Add(1)
		defer o.background.Done()

		slog.Info("silence detected, generating draft",
			"user", user.Name,
			"peer_id", peer.ID,
		)

		if err := o.produceDraft(context.Background(), peer, user, "", nil); err != nil {
			slog.Error("draft pipeline failed", "user", user.Name, "error", err)
		}
	})
}

// Stop cancels armed silence timers and waits for debounce-fired pipeline
// runs to finish. Drafts already published stay pending; there is nothing to
// cancel on the control side.
func (o *Orchestrator) Stop() {
	o.timers.Stop()
	o.background.Wait()
}

// ErrDraftNotFound means a button press referenced a draft that was already
// consumed or overwritten. Stale presses are expected and handled, not bugs.
var ErrDraftNotFound = errors.New("draft not found")

// Callback token actions.
const (
	actionApprove  = "approve"
	actionRephrase = "rephrase"
	actionReject   = "reject"
)

// token builds the callback token "<action>:<target_id>". The approve token
// doubles as the draft-table key.
func token(action string, targetID int64) string {
	return action + ":" + strconv.FormatInt(targetID, 10)
}

// parseToken splits a callback token "<action>:<target_id>".
func parseToken(data string) (action string, targetID int64, err error) {
	action, idStr, ok := strings.Cut(data, ":")
	if !ok {
		return "", 0, fmt.Errorf("malformed callback token %q", data)
	}
	targetID, err = strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("callback token %q: bad target id: %w", data, err)
	}
	return action, targetID, nil
}
