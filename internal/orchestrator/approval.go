package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/scribe/internal/control"
	"github.com/nextlevelbuilder/scribe/internal/network"
	"github.com/nextlevelbuilder/scribe/internal/providers"
)

const rephrasePrompt = "🔄 *Rephrase Mode*\n\nPlease send me the guidance for rephrasing (e.g., \"the name of user is John\")"

// HandleButtonPress dispatches one approve/rephrase/reject press from the
// control channel. The press is acknowledged before the outcome is known so
// the operator's client stops spinning either way.
func (o *Orchestrator) HandleButtonPress(ctx context.Context, press control.ButtonPress) {
	if press.FromID != o.cfg.Control.OperatorID {
		slog.Debug("button press from non-operator ignored", "from_id", press.FromID)
		return
	}

	if err := o.controlc.AnswerCallbackQuery(ctx, press.CallbackID, ""); err != nil {
		slog.Warn("answer callback failed", "error", err)
	}

	action, targetID, err := parseToken(press.Data)
	if err != nil {
		slog.Warn("button press rejected", "error", err)
		return
	}

	switch action {
	case actionApprove:
		err = o.approve(ctx, press, targetID)
	case actionRephrase:
		err = o.startRephrase(ctx, press)
	case actionReject:
		err = o.reject(ctx, press, targetID)
	default:
		slog.Warn("unknown button action", "action", action, "target_id", targetID)
		return
	}
	if err != nil {
		slog.Error("button press failed", "action", action, "target_id", targetID, "error", err)
	}
}

// approve removes the draft, dispatches its text to the target conversation,
// and rewrites the bubble to show what was sent. Removing the draft first
// makes concurrent presses on a stale bubble lose cleanly.
func (o *Orchestrator) approve(ctx context.Context, press control.ButtonPress, targetID int64) error {
	o.mu.Lock()
	d, ok := o.drafts[press.Data]
	if ok {
		delete(o.drafts, press.Data)
		delete(o.pending, targetID)
	}
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("target %d: %w", targetID, ErrDraftNotFound)
	}

	if err := o.network.SendText(ctx, network.UserPeer(d.targetID), d.text); err != nil {
		return fmt.Errorf("send approved draft to %d: %w", d.targetID, err)
	}

	slog.Info("draft approved and sent", "target_id", d.targetID)

	if err := o.controlc.EditMessageText(ctx, press.ChatID, press.MessageID, d.text); err != nil {
		return fmt.Errorf("edit bubble after send: %w", err)
	}
	return nil
}

// startRephrase rewrites the bubble into a guidance request. The draft and
// rephrase context stay in place until guidance arrives.
func (o *Orchestrator) startRephrase(ctx context.Context, press control.ButtonPress) error {
	if err := o.controlc.EditMessageText(ctx, press.ChatID, press.MessageID, rephrasePrompt); err != nil {
		return fmt.Errorf("edit bubble for rephrase: %w", err)
	}
	return nil
}

// reject drops the draft and its rephrase context and marks the bubble.
func (o *Orchestrator) reject(ctx context.Context, press control.ButtonPress, targetID int64) error {
	o.mu.Lock()
	delete(o.drafts, token(actionApprove, targetID))
	delete(o.pending, targetID)
	o.mu.Unlock()

	slog.Info("draft rejected", "target_id", targetID)

	if err := o.controlc.EditMessageText(ctx, press.ChatID, press.MessageID, "❌ *Rejected*"); err != nil {
		return fmt.Errorf("edit bubble after reject: %w", err)
	}
	return nil
}

// HandleTextMessage treats operator text as rephrase guidance. The guidance
/// fans out to every target with a pending rephrase context: each one is
// popped and its pipeline re-run with the captured history plus the new
// guidance. Failures are reported back on the control channel per target.
func (o *Orchestrator) HandleTextMessage(ctx context.Context, msg control.TextMessage) {
	if msg.Text == "" || msg.FromID != o.cfg.Control.OperatorID {
		return
	}

	type job struct {
		targetID int64
		history  []providers.ChatMessage
	}

	o.mu.Lock()
	jobs := make([]job, 0, len(o.pending))
	for id, p := range o.pending {
		jobs = append(jobs, job{targetID: id, history: p.history})
		delete(o.pending, id)
	}
	o.mu.Unlock()

	if len(jobs) == 0 {
		slog.Debug("operator text with no pending rephrase, ignoring")
		return
	}

	slog.Info("applying rephrase guidance", "targets", len(jobs))

	for _, j := range jobs {
		user, ok := o.users[j.targetID]
		if !ok {
			o.reportFailure(ctx, msg.ChatID, fmt.Errorf("target %d is no longer tracked", j.targetID))
			continue
		}
		if err := o.produceDraft(ctx, network.UserPeer(j.targetID), user, msg.Text, j.history); err != nil {
			slog.Error("rephrase failed", "user", user.Name, "error", err)
			o.reportFailure(ctx, msg.ChatID, err)
		}
	}
}

func (o *Orchestrator) reportFailure(ctx context.Context, chatID int64, cause error) {
	text := fmt.Sprintf("❌ Failed to regenerate: %v", cause)
	if _, err := o.controlc.SendMessageWithButtons(ctx, chatID, text, nil); err != nil {
		slog.Error("report failure to operator", "error", err)
	}
}
