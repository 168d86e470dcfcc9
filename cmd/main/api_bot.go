package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/CTAG07/Pizzabot/pkg/corpus"
)

// maxImportBytes bounds the body of a legacy import request.
const maxImportBytes = 64 << 20

// BotAPI holds the dependencies for the message and model API handlers.
type BotAPI struct {
	bot    *Bot
	logger *slog.Logger
}

// NewBotAPI creates a new instance of the BotAPI.
func NewBotAPI(bot *Bot, logger *slog.Logger) *BotAPI {
	return &BotAPI{
		bot:    bot,
		logger: logger,
	}
}

// RegisterRoutes sets up the routing for the /api/channels, /api/reply and
// /api/model endpoints.
func (a *BotAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/channels/", a.handleChannel)
	mux.HandleFunc("/api/reply", a.handleReply)
	mux.HandleFunc("/api/model/stats", a.handleModelStats)
	mux.HandleFunc("/api/model/dump", a.handleModelDump)
	mux.HandleFunc("/api/model/rebuild", a.handleRebuild)
}

// MessageRequest is the JSON body of an observed chat message.
type MessageRequest struct {
	Text  string `json:"text"`
	Self  bool   `json:"self"`
	Reply *bool  `json:"reply,omitempty"`
}

// ReplyRequest is the JSON body for generating a reply without learning.
type ReplyRequest struct {
	Text string `json:"text"`
}

// ReplyResponse carries a generated reply.
type ReplyResponse struct {
	Reply string `json:"reply"`
}

// handleChannel routes /api/channels/{id}/messages and /api/channels/{id}/legacy.
func (a *BotAPI) handleChannel(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/channels/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" {
		respondWithError(w, http.StatusNotFound, "Unknown channel resource")
		return
	}
	channel := parts[0]

	switch parts[1] {
	case "messages":
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		a.postMessage(w, r, channel)
	case "legacy":
		switch r.Method {
		case http.MethodGet:
			a.exportLegacy(w, r, channel)
		case http.MethodPost:
			a.importLegacy(w, r, channel)
		default:
			w.Header().Set("Allow", "GET, POST")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	default:
		respondWithError(w, http.StatusNotFound, "Unknown channel resource")
	}
}

func (a *BotAPI) postMessage(w http.ResponseWriter, r *http.Request, channel string) {
	if !requireScope(w, r, scopeBotWrite) {
		return
	}

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}

	reply, ok, err := a.bot.HandleMessage(r.Context(), channel, req.Text, req.Self)
	if err != nil {
		a.logger.Error("Failed to handle message", "channel", channel, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to store message")
		return
	}
	if !ok || (req.Reply != nil && !*req.Reply) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondWithJSON(w, http.StatusOK, ReplyResponse{Reply: reply})
}

func (a *BotAPI) handleReply(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !requireScope(w, r, scopeBotRead) {
		return
	}

	var req ReplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}

	reply, ok := a.bot.Reply(req.Text)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondWithJSON(w, http.StatusOK, ReplyResponse{Reply: reply})
}

func (a *BotAPI) handleModelStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !requireScope(w, r, scopeBotRead) {
		return
	}
	respondWithJSON(w, http.StatusOK, a.bot.Stats())
}

func (a *BotAPI) handleModelDump(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !requireScope(w, r, scopeBotRead) {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="model.json"`)
	if err := a.bot.Dump(w); err != nil {
		// Headers are already sent; all that is left is to log.
		a.logger.Error("Failed to dump model", "error", err)
	}
}

func (a *BotAPI) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !requireScope(w, r, scopeBotWrite) {
		return
	}

	stats, err := a.bot.Rebuild(r.Context())
	if err != nil {
		a.logger.Error("Failed to rebuild model", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to rebuild model")
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

func (a *BotAPI) importLegacy(w http.ResponseWriter, r *http.Request, channel string) {
	if !requireScope(w, r, scopeBotWrite) {
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		respondWithError(w, http.StatusRequestEntityTooLarge, "Failed to read request body")
		return
	}

	stats, err := a.bot.ImportLegacy(r.Context(), channel, data)
	if err != nil {
		a.logger.Error("Failed to import legacy file", "channel", channel, "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, corpus.ErrIngestion) {
			status = http.StatusBadRequest
		}
		respondWithError(w, status, "Failed to import legacy file")
		return
	}
	a.logger.Info("Legacy file imported via API", "channel", channel, "messages", stats.Messages, "context", stats.Context)
	respondWithJSON(w, http.StatusOK, stats)
}

func (a *BotAPI) exportLegacy(w http.ResponseWriter, r *http.Request, channel string) {
	if !requireScope(w, r, scopeBotRead) {
		return
	}
	journal := a.bot.Journal()
	if journal == nil {
		respondWithError(w, http.StatusNotFound, "The message journal is disabled")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := journal.ExportLegacy(r.Context(), sanitizeChannel(channel), w, a.bot.config.LegacyMagic); err != nil {
		a.logger.Error("Failed to export legacy file", "channel", channel, "error", err)
	}
}
