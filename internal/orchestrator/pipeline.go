package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nextlevelbuilder/scribe/internal/config"
	"github.com/nextlevelbuilder/scribe/internal/control"
	"github.com/nextlevelbuilder/scribe/internal/network"
	"github.com/nextlevelbuilder/scribe/internal/providers"
)

// produceDraft runs the full pipeline for one peer: assemble history, build
// the prompt, generate a candidate, publish the bubble on the control
// channel, then record the draft and rephrase context. State is recorded
// only after the bubble is published, so a failed publish leaves no orphan
// entries.
//
// history may be pre-captured (rephrase path); when nil it is fetched fresh
// from the network. guidance is empty for first drafts.
func (o *Orchestrator) produceDraft(ctx context.Context, peer network.Peer, user config.TrackedUser, guidance string, history []providers.ChatMessage) error {
	draftID := uuid.NewString()
	rephrased := guidance != ""

	ctx, span := o.tracer.Start(ctx, "orchestrator.produceDraft")
	defer span.End()
	span.SetAttributes(
		attribute.String("draft.id", draftID),
		attribute.Int64("draft.target_id", peer.ID),
		attribute.Bool("draft.rephrased", rephrased),
	)

	if history == nil {
		var err error
		history, err = o.fetchHistory(ctx, peer)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("fetch history for %d: %w", peer.ID, err)
		}
	}
	if len(history) == 0 {
		slog.Warn("no usable message history, skipping draft",
			"draft_id", draftID,
			"user", user.Name,
		)
		return nil
	}

	text, err := o.gen.GenerateWithFallback(ctx, o.cfg.AI.Models, buildSystemPrompt(o.cfg.AI.BaseSystemPrompt, user.SystemPrompt, guidance), history)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("generate draft for %s: %w", user.Name, err)
	}

	rows := [][]control.Button{{
		{Label: "✅ Approve", Data: token(actionApprove, peer.ID)},
		{Label: "🔄 Rephrase", Data: token(actionRephrase, peer.ID)},
		{Label: "❌ Reject", Data: token(actionReject, peer.ID)},
	}}

	messageID, err := o.controlc.SendMessageWithButtons(ctx, o.cfg.Control.OperatorID, formatDraftBubble(user.Name, text, rephrased), rows)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("publish draft bubble for %s: %w", user.Name, err)
	}

	o.mu.Lock()
	o.drafts[token(actionApprove, peer.ID)] = draft{targetID: peer.ID, text: text}
	o.pending[peer.ID] = pendingRephrase{
		chatID:    o.cfg.Control.OperatorID,
		messageID: messageID,
		history:   history,
	}
	o.mu.Unlock()

	slog.Info("draft published",
		"draft_id", draftID,
		"user", user.Name,
		"rephrased", rephrased,
		"message_id", messageID,
	)
	return nil
}

// fetchHistory pulls the recent conversation with peer and converts it to
// chat messages, oldest first. The operator's own messages become assistant
// turns; empty texts are skipped.
func (o *Orchestrator) fetchHistory(ctx context.Context, peer network.Peer) ([]providers.ChatMessage, error) {
	msgs, err := o.network.History(ctx, peer, o.cfg.Settings.HistoryLimit)
	if err != nil {
		return nil, err
	}

	history := make([]providers.ChatMessage, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Text == "" {
			continue
		}
		role := "user"
		if m.FromMe {
			role = "assistant"
		}
		history = append(history, providers.ChatMessage{Role: role, Content: m.Text})
	}
	return history, nil
}

// buildSystemPrompt layers the per-user persona over the base prompt and
// appends operator guidance when rephrasing.
func buildSystemPrompt(base, userPrompt, guidance string) string {
	prompt := base
	if userPrompt != "" {
		prompt += "\n\n" + userPrompt
	}
	if guidance != "" {
		prompt += "\n\nAdditional guidance: " + guidance
	}
	return prompt
}

// formatDraftBubble renders the control-channel draft message.
func formatDraftBubble(name, text string, rephrased bool) string {
	if rephrased {
		return fmt.Sprintf("*AI Draft Suggestion for @%s*\n_(Rephrased)_\n\n%s", name, text)
	}
	return fmt.Sprintf("*AI Draft Suggestion for @%s*\n\n%s", name, text)
}
