package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"mpesa-capture/internal/api/middleware"
	"mpesa-capture/internal/host"
	"mpesa-capture/internal/notify"
	"mpesa-capture/internal/pending"
)

// MessageReceiver accepts one raw inbound message. The dispatch
// coordinator satisfies this.
type MessageReceiver interface {
	HandleMessage(ctx context.Context, sender, body string) error
}

// ActionReceiver accepts one tapped notification action. The notifier
// satisfies this.
type ActionReceiver interface {
	HandleAction(ctx context.Context, a notify.Action) error
}

// MessagesHandler handles inbound-message endpoints.
type MessagesHandler struct {
	receiver MessageReceiver
	log      zerolog.Logger
}

// NewMessagesHandler creates a new messages handler.
func NewMessagesHandler(receiver MessageReceiver, log zerolog.Logger) *MessagesHandler {
	return &MessagesHandler{receiver: receiver, log: log}
}

// Receive handles POST /api/messages
func (h *MessagesHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Sender  string `json:"sender"`
		Message string `json:"message"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Message == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Message is required")
		return
	}

	if err := h.receiver.HandleMessage(r.Context(), req.Sender, req.Message); err != nil {
		h.log.Error().Err(err).Msg("Failed to handle inbound message")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to handle message")
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// PendingHandler handles pending-transaction endpoints.
type PendingHandler struct {
	store pending.Store
	log   zerolog.Logger
}

// NewPendingHandler creates a new pending handler.
func NewPendingHandler(store pending.Store, log zerolog.Logger) *PendingHandler {
	return &PendingHandler{store: store, log: log}
}

// List handles GET /api/pending
func (h *PendingHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.List(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list pending transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list pending transactions")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": records,
		"count":        len(records),
	})
}

// Remove handles DELETE /api/pending/{code}
func (h *PendingHandler) Remove(w http.ResponseWriter, r *http.Request, code string) {
	found, err := h.store.RemoveByCode(r.Context(), code)
	if err != nil {
		h.log.Error().Err(err).Str("code", code).Msg("Failed to remove pending transaction")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to remove pending transaction")
		return
	}
	if !found {
		middleware.WriteError(w, http.StatusNotFound, "Transaction not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"removed": true, "transactionCode": code})
}

// Clear handles POST /api/pending/clear
func (h *PendingHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Clear(r.Context()); err != nil {
		h.log.Error().Err(err).Msg("Failed to clear pending transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to clear pending transactions")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// ActionsHandler handles notification-action endpoints.
type ActionsHandler struct {
	receiver ActionReceiver
	log      zerolog.Logger
}

// NewActionsHandler creates a new actions handler.
func NewActionsHandler(receiver ActionReceiver, log zerolog.Logger) *ActionsHandler {
	return &ActionsHandler{receiver: receiver, log: log}
}

// Handle handles POST /api/actions
func (h *ActionsHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var action notify.Action

	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if action.Record.Code == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Transaction code is required")
		return
	}

	if err := h.receiver.HandleAction(r.Context(), action); err != nil {
		if errors.Is(err, notify.ErrUnknownAction) {
			middleware.WriteError(w, http.StatusBadRequest, "Unknown action kind")
			return
		}
		h.log.Error().Err(err).Str("code", action.Record.Code).Msg("Failed to handle notification action")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to handle action")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status":          "handled",
		"transactionCode": action.Record.Code,
	})
}

// MethodInvoker executes one host-invoked operation. The host bridge
// satisfies this.
type MethodInvoker interface {
	Handle(ctx context.Context, method string, args json.RawMessage) (any, error)
}

// ChannelController is the live-channel lifecycle. *host.Channel
// satisfies this.
type ChannelController interface {
	Attach(h host.NotificationFunc)
	Detach()
}

// HostHandler exposes the host boundary over HTTP: bridge invocations
// plus live-channel attach/detach for an out-of-process host.
type HostHandler struct {
	bridge  MethodInvoker
	channel ChannelController
	log     zerolog.Logger
}

// NewHostHandler creates a new host-boundary handler.
func NewHostHandler(bridge MethodInvoker, channel ChannelController, log zerolog.Logger) *HostHandler {
	return &HostHandler{bridge: bridge, channel: channel, log: log}
}

// Invoke handles POST /api/host/invoke
func (h *HostHandler) Invoke(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method string          `json:"method"`
		Args   json.RawMessage `json:"args"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Method == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Method is required")
		return
	}

	result, err := h.bridge.Handle(r.Context(), req.Method, req.Args)
	if err != nil {
		if errors.Is(err, host.ErrUnknownMethod) || errors.Is(err, host.ErrCodeRequired) {
			middleware.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error().Err(err).Str("method", req.Method).Msg("Host invocation failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to handle host invocation")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"result": result})
}

// Attach handles POST /api/host/attach
func (h *HostHandler) Attach(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CallbackURL string `json:"callbackUrl"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	u, err := url.Parse(req.CallbackURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		middleware.WriteError(w, http.StatusBadRequest, "Callback URL must be http or https")
		return
	}

	h.channel.Attach(host.NewWebhook(req.CallbackURL, h.log).Notify)
	h.log.Info().Str("callback_url", req.CallbackURL).Msg("Host attached via webhook")
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "attached"})
}

// Detach handles POST /api/host/detach
func (h *HostHandler) Detach(w http.ResponseWriter, r *http.Request) {
	h.channel.Detach()
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "detached"})
}
