// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"dealgate/platform/consent"
	"dealgate/platform/llm"
	"dealgate/platform/security"
)

const chatSystemPrompt = `You are an underwriting assistant for commercial real estate deals.
Answer questions about the deal you are given. Be precise with numbers.
If the deal data does not contain the answer, say so; never invent figures.`

const summarySystemPrompt = `You are an underwriting analyst.
Write a concise summary of the deal: asset, pricing, income, debt, and the
top risks. Plain prose, no markdown headers.`

const insightsSystemPrompt = `You are an underwriting analyst.
Identify notable strengths, weaknesses, and anomalies in the deal figures.
Ground every observation in a specific number.`

// ChatRequest is the body of POST /api/deals/{id}/chat.
type ChatRequest struct {
	Message             string        `json:"message"`
	ConversationHistory []ChatMessage `json:"conversationHistory,omitempty"`
}

// ChatMessage is one prior turn in the conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the reply body for the chat endpoint.
type ChatResponse struct {
	Response string   `json:"response"`
	Context  []string `json:"context"`
	Model    string   `json:"model"`
	Warning  string   `json:"warning,omitempty"`
}

// Chat handles POST /api/deals/{id}/chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, ReasonValidationFailed, "message is required")
		return
	}

	g, ok := h.guard(w, r, "chat", consent.FeatureChatAssistant, req.Message)
	if !ok {
		return
	}
	dealID := dealVar(r)

	prompt := buildChatPrompt(dealID, g.check.SanitizedInput, req.ConversationHistory)
	resp, err := h.callLLM(r, "chat", llm.CompletionRequest{
		Prompt:       prompt,
		SystemPrompt: chatSystemPrompt,
	})
	if err != nil {
		h.providerError(w, g.caller, "chat", err)
		return
	}

	h.finish(g.caller, "chat", dealID, chatSystemPrompt, prompt, resp.Content, resp.Model, security.ExpectChat, g.check, []string{"message", "conversationHistory"})

	writeJSON(w, http.StatusOK, ChatResponse{
		Response: resp.Content,
		Context:  []string{"deal:" + dealID},
		Model:    resp.Model,
		Warning:  g.check.Warning,
	})
}

// Summarize handles POST /api/deals/{id}/summarize.
func (h *Handler) Summarize(w http.ResponseWriter, r *http.Request) {
	g, ok := h.guard(w, r, "summarize", consent.FeatureInsights, "")
	if !ok {
		return
	}
	dealID := dealVar(r)

	prompt := fmtDealPrompt(dealID, "Summarize this deal for an investment committee.")
	resp, err := h.callLLM(r, "summarize", llm.CompletionRequest{
		Prompt:       prompt,
		SystemPrompt: summarySystemPrompt,
	})
	if err != nil {
		h.providerError(w, g.caller, "summarize", err)
		return
	}

	h.finish(g.caller, "summarize", dealID, summarySystemPrompt, prompt, resp.Content, resp.Model, security.ExpectChat, g.check, nil)
	writeJSON(w, http.StatusOK, map[string]string{
		"summary": resp.Content,
		"model":   resp.Model,
	})
}

// Insights handles POST /api/deals/{id}/insights.
func (h *Handler) Insights(w http.ResponseWriter, r *http.Request) {
	g, ok := h.guard(w, r, "insights", consent.FeatureInsights, "")
	if !ok {
		return
	}
	dealID := dealVar(r)

	prompt := fmtDealPrompt(dealID, "List the notable strengths, weaknesses, and anomalies in this deal.")
	resp, err := h.callLLM(r, "insights", llm.CompletionRequest{
		Prompt:       prompt,
		SystemPrompt: insightsSystemPrompt,
	})
	if err != nil {
		h.providerError(w, g.caller, "insights", err)
		return
	}

	h.finish(g.caller, "insights", dealID, insightsSystemPrompt, prompt, resp.Content, resp.Model, security.ExpectChat, g.check, nil)
	writeJSON(w, http.StatusOK, map[string]string{
		"insights": resp.Content,
		"model":    resp.Model,
	})
}

func buildChatPrompt(dealID, message string, history []ChatMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Deal %s\n\n", dealID)
	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, m := range history {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
		b.WriteString("\n")
	}
	b.WriteString("User: ")
	b.WriteString(message)
	return b.String()
}
