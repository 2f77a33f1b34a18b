/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the operator HTTP surface: station and ad catalog
// CRUD, ledger inspection, scheduler status, and manual rolls. Reporting
// reads come from the ledger; the API never mutates it directly.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/gjallar/internal/audit"
	"github.com/friendsincode/gjallar/internal/auth"
	"github.com/friendsincode/gjallar/internal/ledger"
	"github.com/friendsincode/gjallar/internal/models"
	"github.com/friendsincode/gjallar/internal/station"
)

// StationManager is the slice of the station manager the API needs.
type StationManager interface {
	Instance(stationID string) (*station.Instance, bool)
	TriggerManual(stationID, requestedBy string) error
}

// API exposes HTTP handlers.
type API struct {
	db        *gorm.DB
	jwtSecret []byte
	manager   StationManager
	auditSvc  *audit.Service
	logger    zerolog.Logger
}

// New creates the API router wrapper.
func New(db *gorm.DB, jwtSecret []byte, manager StationManager, auditSvc *audit.Service, logger zerolog.Logger) *API {
	return &API{
		db:        db,
		jwtSecret: jwtSecret,
		manager:   manager,
		auditSvc:  auditSvc,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts API routes on the provided router.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		r.Group(func(pr chi.Router) {
			pr.Use(auth.Middleware(a.jwtSecret))

			pr.Route("/stations", func(r chi.Router) {
				r.Get("/", a.handleStationsList)
				r.Post("/", a.handleStationsCreate)

				r.Route("/{stationID}", func(r chi.Router) {
					r.Get("/", a.handleStationsGet)
					r.Put("/", a.handleStationsUpdate)

					r.Get("/status", a.handleStationStatus)
					r.Get("/attempts", a.handleAttemptsList)
					r.Get("/counters", a.handleCountersGet)
					r.Post("/roll", a.handleManualRoll)

					r.Route("/ads", func(r chi.Router) {
						r.Get("/", a.handleAdsList)
						r.Post("/", a.handleAdsCreate)

						r.Route("/{adID}", func(r chi.Router) {
							r.Get("/", a.handleAdsGet)
							r.Put("/", a.handleAdsUpdate)
							r.Delete("/", a.handleAdsDelete)
						})
					})
				})
			})

			pr.Get("/audit", a.handleAuditList)
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleStationsList(w http.ResponseWriter, r *http.Request) {
	var stations []models.Station
	if err := a.db.WithContext(r.Context()).Order("name ASC").Find(&stations).Error; err != nil {
		a.logger.Error().Err(err).Msg("list stations failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, stations)
}

type stationRequest struct {
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	Timezone         string   `json:"timezone"`
	Enabled          *bool    `json:"enabled"`
	FeedPath         string   `json:"feed_path"`
	ScheduledURL     string   `json:"scheduled_url"`
	InstantURL       string   `json:"instant_url"`
	IdentPath        string   `json:"ident_path"`
	LedgerPath       string   `json:"ledger_path"`
	LectureBlacklist []string `json:"lecture_blacklist"`
	LectureWhitelist []string `json:"lecture_whitelist"`
}

func (a *API) handleStationsCreate(w http.ResponseWriter, r *http.Request) {
	var req stationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Name == "" || req.FeedPath == "" || req.ScheduledURL == "" || req.InstantURL == "" || req.LedgerPath == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	st := models.NewStation(req.Name)
	st.Description = req.Description
	if req.Timezone != "" {
		st.Timezone = req.Timezone
	}
	st.FeedPath = req.FeedPath
	st.ScheduledURL = req.ScheduledURL
	st.InstantURL = req.InstantURL
	st.IdentPath = req.IdentPath
	st.LedgerPath = req.LedgerPath
	st.LectureBlacklist = req.LectureBlacklist
	st.LectureWhitelist = req.LectureWhitelist
	if req.Enabled != nil {
		st.Enabled = *req.Enabled
	}

	if err := a.db.WithContext(r.Context()).Create(st).Error; err != nil {
		a.logger.Error().Err(err).Msg("create station failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	// Workers for a new station start on the next process restart.
	writeJSON(w, http.StatusCreated, st)
}

func (a *API) loadStation(w http.ResponseWriter, r *http.Request) (*models.Station, bool) {
	id := chi.URLParam(r, "stationID")
	var st models.Station
	if err := a.db.WithContext(r.Context()).First(&st, "id = ?", id).Error; err != nil {
		writeError(w, http.StatusNotFound, "station_not_found")
		return nil, false
	}
	return &st, true
}

func (a *API) handleStationsGet(w http.ResponseWriter, r *http.Request) {
	st, ok := a.loadStation(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) handleStationsUpdate(w http.ResponseWriter, r *http.Request) {
	st, ok := a.loadStation(w, r)
	if !ok {
		return
	}

	var req stationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	if req.Name != "" {
		st.Name = req.Name
	}
	if req.Description != "" {
		st.Description = req.Description
	}
	if req.Timezone != "" {
		st.Timezone = req.Timezone
	}
	if req.FeedPath != "" {
		st.FeedPath = req.FeedPath
	}
	if req.ScheduledURL != "" {
		st.ScheduledURL = req.ScheduledURL
	}
	if req.InstantURL != "" {
		st.InstantURL = req.InstantURL
	}
	if req.IdentPath != "" {
		st.IdentPath = req.IdentPath
	}
	if req.LedgerPath != "" {
		st.LedgerPath = req.LedgerPath
	}
	if req.LectureBlacklist != nil {
		st.LectureBlacklist = req.LectureBlacklist
	}
	if req.LectureWhitelist != nil {
		st.LectureWhitelist = req.LectureWhitelist
	}
	if req.Enabled != nil {
		st.Enabled = *req.Enabled
	}

	if err := a.db.WithContext(r.Context()).Save(st).Error; err != nil {
		a.logger.Error().Err(err).Msg("update station failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) handleStationStatus(w http.ResponseWriter, r *http.Request) {
	st, ok := a.loadStation(w, r)
	if !ok {
		return
	}

	inst, running := a.manager.Instance(st.ID)
	status := map[string]any{
		"station_id": st.ID,
		"name":       st.Name,
		"enabled":    st.Enabled,
		"running":    running,
	}
	if running {
		state := inst.Scheduler.StateSnapshot()
		status["phase"] = state.Phase()
		status["hour_start"] = state.HourStart()

		if doc, err := inst.Store.Snapshot(); err == nil {
			status["pending"] = len(doc.Pending)
			status["confirmed"] = len(doc.Confirmed)
			status["unconfirmed"] = len(doc.Unconfirmed)
		}
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *API) handleAttemptsList(w http.ResponseWriter, r *http.Request) {
	st, ok := a.loadStation(w, r)
	if !ok {
		return
	}
	inst, running := a.manager.Instance(st.ID)
	if !running {
		writeError(w, http.StatusConflict, "station_not_running")
		return
	}

	attempts, err := inst.Store.Attempts(ledger.Status(r.URL.Query().Get("status")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_status")
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (a *API) handleCountersGet(w http.ResponseWriter, r *http.Request) {
	st, ok := a.loadStation(w, r)
	if !ok {
		return
	}
	inst, running := a.manager.Instance(st.ID)
	if !running {
		writeError(w, http.StatusConflict, "station_not_running")
		return
	}

	doc, err := inst.Store.Snapshot()
	if err != nil {
		a.logger.Error().Err(err).Msg("ledger snapshot failed")
		writeError(w, http.StatusInternalServerError, "ledger_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"hourly_confirmed":    doc.Hourly,
		"daily_confirmed":     doc.Daily,
		"confirmed_ad_totals": doc.Totals,
	})
}

func (a *API) handleManualRoll(w http.ResponseWriter, r *http.Request) {
	st, ok := a.loadStation(w, r)
	if !ok {
		return
	}

	requestedBy := ""
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		requestedBy = claims.UserID
	}

	if err := a.manager.TriggerManual(st.ID, requestedBy); err != nil {
		writeError(w, http.StatusConflict, "roll_not_queued")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

type adRequest struct {
	Name      string              `json:"name"`
	Enabled   *bool               `json:"enabled"`
	MediaPath string              `json:"media_path"`
	Days      []int               `json:"days"`
	Hours     []int               `json:"hours"`
	Times     []models.LegacyTime `json:"times"`
}

func (a *API) handleAdsList(w http.ResponseWriter, r *http.Request) {
	st, ok := a.loadStation(w, r)
	if !ok {
		return
	}

	var ads []models.Ad
	if err := a.db.WithContext(r.Context()).Where("station_id = ?", st.ID).Order("name ASC").Find(&ads).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, ads)
}

func (a *API) handleAdsCreate(w http.ResponseWriter, r *http.Request) {
	st, ok := a.loadStation(w, r)
	if !ok {
		return
	}

	var req adRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Name == "" || req.MediaPath == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	ad := models.NewAd(st.ID, req.Name, req.MediaPath)
	ad.Days = req.Days
	ad.Hours = req.Hours
	ad.Times = req.Times
	if req.Enabled != nil {
		ad.Enabled = *req.Enabled
	}

	if err := a.db.WithContext(r.Context()).Create(ad).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	// Next decision pass loads a fresh catalog snapshot; no restart needed.
	writeJSON(w, http.StatusCreated, ad)
}

func (a *API) loadAd(w http.ResponseWriter, r *http.Request, stationID string) (*models.Ad, bool) {
	id := chi.URLParam(r, "adID")
	var ad models.Ad
	if err := a.db.WithContext(r.Context()).First(&ad, "id = ? AND station_id = ?", id, stationID).Error; err != nil {
		writeError(w, http.StatusNotFound, "ad_not_found")
		return nil, false
	}
	return &ad, true
}

func (a *API) handleAdsGet(w http.ResponseWriter, r *http.Request) {
	st, ok := a.loadStation(w, r)
	if !ok {
		return
	}
	ad, ok := a.loadAd(w, r, st.ID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ad)
}

func (a *API) handleAdsUpdate(w http.ResponseWriter, r *http.Request) {
	st, ok := a.loadStation(w, r)
	if !ok {
		return
	}
	ad, ok := a.loadAd(w, r, st.ID)
	if !ok {
		return
	}

	var req adRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	if req.Name != "" {
		ad.Name = req.Name
	}
	if req.MediaPath != "" {
		ad.MediaPath = req.MediaPath
	}
	if req.Days != nil {
		ad.Days = req.Days
	}
	if req.Hours != nil {
		ad.Hours = req.Hours
	}
	if req.Times != nil {
		ad.Times = req.Times
	}
	if req.Enabled != nil {
		ad.Enabled = *req.Enabled
	}

	if err := a.db.WithContext(r.Context()).Save(ad).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, ad)
}

func (a *API) handleAdsDelete(w http.ResponseWriter, r *http.Request) {
	st, ok := a.loadStation(w, r)
	if !ok {
		return
	}
	ad, ok := a.loadAd(w, r, st.ID)
	if !ok {
		return
	}

	if err := a.db.WithContext(r.Context()).Delete(ad).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAuditList(w http.ResponseWriter, r *http.Request) {
	filters := audit.QueryFilters{}

	if v := r.URL.Query().Get("station_id"); v != "" {
		filters.StationID = &v
	}
	if v := r.URL.Query().Get("kind"); v != "" {
		kind := models.AuditKind(v)
		filters.Kind = &kind
	}
	if v := r.URL.Query().Get("since"); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			filters.Since = &ts
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filters.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filters.Offset = n
		}
	}

	entries, total, err := a.auditSvc.Query(r.Context(), filters)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "total": total})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
