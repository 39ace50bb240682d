package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/convodesk/convodesk/dialog"
	"github.com/convodesk/convodesk/types"
	"go.uber.org/zap"
)

// DialogHandler exposes the dialog lifecycle over HTTP.
type DialogHandler struct {
	manager *dialog.Manager
	logger  *zap.Logger
}

// NewDialogHandler creates a DialogHandler.
func NewDialogHandler(manager *dialog.Manager, logger *zap.Logger) *DialogHandler {
	return &DialogHandler{
		manager: manager,
		logger:  logger.With(zap.String("component", "dialog_handler")),
	}
}

// CreateDialogRequest opens a new dialog for a customer. An optional initial
// message is processed as the dialog's first turn.
type CreateDialogRequest struct {
	Customer       dialog.CustomerInfo `json:"customer"`
	Priority       string              `json:"priority,omitempty"`
	InitialMessage string              `json:"initial_message,omitempty"`
}

// SendMessageRequest carries one user turn.
type SendMessageRequest struct {
	Text string `json:"text"`
}

// CloseDialogRequest optionally records why a dialog was closed.
type CloseDialogRequest struct {
	Reason string `json:"reason,omitempty"`
}

// HandleCreate handles POST /api/v1/dialogs.
func (h *DialogHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateDialogRequest
	if DecodeJSONBody(w, r, &req, h.logger) != nil {
		return
	}

	d, err := h.manager.CreateDialog(r.Context(), req.Customer, dialog.Priority(req.Priority), req.InitialMessage)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteCreated(w, r, d)
}

// HandleList handles GET /api/v1/dialogs.
func (h *DialogHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	all, err := h.manager.ListDialogs(r.Context())
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, all)
}

// HandleGet handles GET /api/v1/dialogs/{id}.
func (h *DialogHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	d, err := h.manager.GetDialog(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, d)
}

// HandleSendMessage handles POST /api/v1/dialogs/{id}/messages.
func (h *DialogHandler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if DecodeJSONBody(w, r, &req, h.logger) != nil {
		return
	}

	result, err := h.manager.SendMessage(r.Context(), r.PathValue("id"), req.Text)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, result)
}

// HandleGetMessages handles GET /api/v1/dialogs/{id}/messages.
func (h *DialogHandler) HandleGetMessages(w http.ResponseWriter, r *http.Request) {
	messages, summary, err := h.manager.GetHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, map[string]any{
		"messages": messages,
		"summary":  summary,
	})
}

// HandleClose handles POST /api/v1/dialogs/{id}/close. The body is optional;
// when present it may carry a close reason.
func (h *DialogHandler) HandleClose(w http.ResponseWriter, r *http.Request) {
	var req CloseDialogRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, "malformed request body").WithHTTPStatus(400), h.logger)
		return
	}

	id := r.PathValue("id")
	if err := h.manager.CloseDialog(r.Context(), id, req.Reason); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, map[string]string{"id": id, "status": string(dialog.StatusClosed)})
}

// HandleDelete handles DELETE /api/v1/dialogs/{id}. Open dialogs are only
// deleted when the force query parameter is set.
func (h *DialogHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	if err := h.manager.DeleteDialog(r.Context(), r.PathValue("id"), force); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusNoContent, nil)
}

// Register wires the dialog routes onto mux.
func (h *DialogHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/dialogs", h.HandleCreate)
	mux.HandleFunc("GET /api/v1/dialogs", h.HandleList)
	mux.HandleFunc("GET /api/v1/dialogs/{id}", h.HandleGet)
	mux.HandleFunc("GET /api/v1/dialogs/{id}/messages", h.HandleGetMessages)
	mux.HandleFunc("POST /api/v1/dialogs/{id}/messages", h.HandleSendMessage)
	mux.HandleFunc("POST /api/v1/dialogs/{id}/close", h.HandleClose)
	mux.HandleFunc("DELETE /api/v1/dialogs/{id}", h.HandleDelete)
}
