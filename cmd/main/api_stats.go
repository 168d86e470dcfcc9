package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/CTAG07/Pizzabot/pkg/corpus"
	"github.com/CTAG07/Pizzabot/pkg/markov"
)

// StatsSummary provides a high-level overview of the bot.
type StatsSummary struct {
	Model   markov.ModelStats    `json:"model"`
	Journal *corpus.JournalStats `json:"journal,omitempty"`
	Uptime  time.Duration        `json:"uptime"`
}

// StatsAPI holds the dependencies for the statistics handlers.
type StatsAPI struct {
	bot     *Bot
	started time.Time
	logger  *slog.Logger
}

func NewStatsAPI(bot *Bot, logger *slog.Logger) *StatsAPI {
	return &StatsAPI{
		bot:     bot,
		started: time.Now(),
		logger:  logger,
	}
}

// RegisterRoutes sets up the routing for all /api/stats endpoints.
func (a *StatsAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/stats/summary", a.handleSummary)
	mux.HandleFunc("/api/stats/channels", a.handleChannels)
}

func (a *StatsAPI) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !requireScope(w, r, scopeStatsRead) {
		return
	}

	summary := StatsSummary{
		Model:  a.bot.Stats(),
		Uptime: time.Since(a.started),
	}
	if journal := a.bot.Journal(); journal != nil {
		stats, err := journal.Stats(r.Context())
		if err != nil {
			a.logger.Error("Failed to get journal stats", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to retrieve journal stats")
			return
		}
		summary.Journal = &stats
	}
	respondWithJSON(w, http.StatusOK, summary)
}

// handleChannels lists the channels stored in the journal.
func (a *StatsAPI) handleChannels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !requireScope(w, r, scopeStatsRead) {
		return
	}

	journal := a.bot.Journal()
	if journal == nil {
		respondWithJSON(w, http.StatusOK, []string{})
		return
	}
	channels, err := journal.Channels(r.Context())
	if err != nil {
		a.logger.Error("Failed to list channels", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to list channels")
		return
	}
	respondWithJSON(w, http.StatusOK, channels)
}
