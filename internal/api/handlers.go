// Package api exposes the HTTP surface of the timetrack service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"example.com/timetrack/internal/auth"
	"example.com/timetrack/internal/domain"
	"example.com/timetrack/internal/identity"
	"example.com/timetrack/internal/remote"
	"example.com/timetrack/internal/service"
	"example.com/timetrack/internal/store"
	"example.com/timetrack/internal/timeutil"
)

// Handler coordinates HTTP requests with the stores and services.
type Handler struct {
	activities *service.Activities
	categories *service.Categories
	identity   *identity.Service
}

// NewHandler builds a Handler.
func NewHandler(activities *service.Activities, categories *service.Categories, identity *identity.Service) *Handler {
	return &Handler{activities: activities, categories: categories, identity: identity}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/auth/signup", h.signUp)
	mux.HandleFunc("/v1/auth/login", h.login)
	mux.HandleFunc("/v1/auth/logout", h.logout)
	mux.HandleFunc("/v1/auth/me", h.me)
	mux.HandleFunc("/v1/activities", h.activitiesRoot)
	mux.HandleFunc("/v1/activities/", h.activitiesSub)
	mux.HandleFunc("/v1/categories", h.categoriesRoot)
	mux.HandleFunc("/v1/categories/", h.categoryByID)
	mux.HandleFunc("/healthz", healthz)
}

// AuthSkipper reports the endpoints the bearer-token middleware must leave
// alone: health, metrics, and the credential endpoints themselves.
func AuthSkipper(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/metrics", "/v1/auth/signup", "/v1/auth/login":
		return true
	}
	return false
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// storeFor binds a per-request activity store to the authenticated caller.
func (h *Handler) storeFor(r *http.Request) (*store.ActivityStore, *domain.User, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		return nil, nil, false
	}
	user := &domain.User{ID: claims.Subject, Email: claims.Email}
	session := store.NewSessionStore(h.identity)
	session.SetUser(user)
	return store.NewActivityStore(h.activities, session), user, true
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User        userView  `json:"user"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type userView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *Handler) signUp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	user, session, err := h.identity.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{
		User:        toUserView(user),
		AccessToken: session.AccessToken,
		ExpiresAt:   session.ExpiresAt,
	})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	user, session, err := h.identity.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		User:        toUserView(user),
		AccessToken: session.AccessToken,
		ExpiresAt:   session.ExpiresAt,
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if _, ok := auth.FromContext(r.Context()); !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	session := store.NewSessionStore(h.identity)
	session.Logout(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	writeJSON(w, http.StatusOK, userView{ID: claims.Subject, Email: claims.Email})
}

func (h *Handler) activitiesRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listActivities(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) activitiesSub(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/activities/")
	switch {
	case rest == "start" && r.Method == http.MethodPost:
		h.startActivity(w, r)
	case rest == "pending" && r.Method == http.MethodGet:
		h.pendingActivity(w, r)
	case strings.HasSuffix(rest, "/finish") && r.Method == http.MethodPost:
		h.finishActivity(w, r, strings.TrimSuffix(rest, "/finish"))
	case rest != "" && !strings.Contains(rest, "/") && r.Method == http.MethodPatch:
		h.updateActivity(w, r, rest)
	case rest != "" && !strings.Contains(rest, "/") && r.Method == http.MethodDelete:
		h.deleteActivity(w, r, rest)
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown activity route")
	}
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	st, _, ok := h.storeFor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	month := r.URL.Query().Get("month")
	if month != "" {
		if _, err := time.Parse("2006-01", month); err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "month must be YYYY-MM")
			return
		}
	}

	activities := st.GetActivities(r.Context())
	if key := st.Err(); key != "" {
		writeStoreError(w, key)
		return
	}

	activities = service.FilterMonth(activities, month)
	service.SortByCreatedDesc(activities)

	items := make([]activityView, 0, len(activities))
	for _, a := range activities {
		items = append(items, toActivityView(a))
	}
	writeJSON(w, http.StatusOK, listActivitiesResponse{Items: items, Month: month})
}

type startActivityRequest struct {
	Description string          `json:"description"`
	CategoryID  *string         `json:"category_id"`
	Tags        json.RawMessage `json:"tags"`
}

func (h *Handler) startActivity(w http.ResponseWriter, r *http.Request) {
	st, _, ok := h.storeFor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	var req startActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "description is required")
		return
	}

	created := st.StartRecordingActivity(r.Context(), req.Description, req.CategoryID, req.Tags)
	if created == nil {
		if key := st.Err(); key != "" {
			writeStoreError(w, key)
			return
		}
		// A pending activity already exists for this user.
		writeError(w, http.StatusConflict, "already_tracking", "an activity is already being recorded")
		return
	}
	writeJSON(w, http.StatusCreated, toActivityView(*created))
}

func (h *Handler) pendingActivity(w http.ResponseWriter, r *http.Request) {
	st, _, ok := h.storeFor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	st.LoadPendingActivity(r.Context())
	if key := st.Err(); key != "" {
		writeStoreError(w, key)
		return
	}

	tracking := st.TrackingActivity()
	if tracking == nil {
		writeJSON(w, http.StatusOK, pendingActivityResponse{})
		return
	}
	view := toActivityView(*tracking)
	writeJSON(w, http.StatusOK, pendingActivityResponse{Activity: &view})
}

type finishActivityRequest struct {
	Description *string         `json:"description"`
	CategoryID  *string         `json:"category_id"`
	Tags        json.RawMessage `json:"tags"`
}

func (h *Handler) finishActivity(w http.ResponseWriter, r *http.Request, id string) {
	st, _, ok := h.storeFor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	updates := remote.Row{}
	if r.ContentLength != 0 {
		var req finishActivityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
		if req.Description != nil {
			updates["description"] = *req.Description
		}
		if req.CategoryID != nil {
			updates["category_id"] = *req.CategoryID
		}
		if req.Tags != nil {
			updates["tags"] = req.Tags
		}
	}

	finished := st.FinishRecordingActivity(r.Context(), id, updates)
	if finished == nil {
		if key := st.Err(); key == store.KeyFinishFailed {
			writeError(w, http.StatusNotFound, "not_found", "no pending activity with that id")
			return
		} else if key != "" {
			writeStoreError(w, key)
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", "finish failed")
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(*finished))
}

func (h *Handler) updateActivity(w http.ResponseWriter, r *http.Request, id string) {
	st, _, ok := h.storeFor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	var fields remote.Row
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	if !st.UpdateActivityByID(r.Context(), id, fields) {
		writeError(w, http.StatusBadRequest, "update_failed", "activity update failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteActivity(w http.ResponseWriter, r *http.Request, id string) {
	st, _, ok := h.storeFor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	if !st.DeleteActivityByID(r.Context(), id) {
		writeError(w, http.StatusBadRequest, "delete_failed", "activity delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createCategoryRequest struct {
	Name string `json:"name"`
}

func (h *Handler) categoriesRoot(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	switch r.Method {
	case http.MethodGet:
		categories, err := h.categories.ByUser(r.Context(), claims.Subject)
		if err != nil {
			writeStoreError(w, remote.Classify(err))
			return
		}
		items := make([]categoryView, 0, len(categories))
		for _, c := range categories {
			items = append(items, toCategoryView(c))
		}
		writeJSON(w, http.StatusOK, listCategoriesResponse{Items: items})
	case http.MethodPost:
		var req createCategoryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			writeError(w, http.StatusBadRequest, "validation_failed", "name is required")
			return
		}
		created, err := h.categories.Insert(r.Context(), domain.Category{UserID: claims.Subject, Name: req.Name})
		if err != nil {
			writeStoreError(w, remote.Classify(err))
			return
		}
		writeJSON(w, http.StatusCreated, toCategoryView(*created))
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) categoryByID(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/categories/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not_found", "unknown category route")
		return
	}
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	deleted, err := h.categories.Delete(r.Context(), id, claims.Subject)
	if err != nil {
		writeStoreError(w, remote.Classify(err))
		return
	}
	if deleted == nil {
		writeError(w, http.StatusNotFound, "not_found", "category not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// activityView exposes full details about an activity.
type activityView struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Description string          `json:"description"`
	CategoryID  *string         `json:"category_id"`
	Tags        json.RawMessage `json:"tags,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  *time.Time      `json:"finished_at"`
	CreatedAt   time.Time       `json:"created_at"`
	Duration    string          `json:"duration"`
}

type listActivitiesResponse struct {
	Items []activityView `json:"items"`
	Month string         `json:"month,omitempty"`
}

type pendingActivityResponse struct {
	Activity *activityView `json:"activity"`
}

type categoryView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type listCategoriesResponse struct {
	Items []categoryView `json:"items"`
}

func toActivityView(a domain.Activity) activityView {
	return activityView{
		ID:          a.ID,
		UserID:      a.UserID,
		Description: a.Description,
		CategoryID:  a.CategoryID,
		Tags:        a.Tags,
		StartedAt:   a.StartedAt,
		FinishedAt:  a.FinishedAt,
		CreatedAt:   a.CreatedAt,
		Duration:    timeutil.FormatDuration(a.StartedAt, a.FinishedAt),
	}
}

func toCategoryView(c domain.Category) categoryView {
	return categoryView{ID: c.ID, Name: c.Name, CreatedAt: c.CreatedAt}
}

func toUserView(u *domain.User) userView {
	return userView{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt}
}

// writeStoreError converts a friendly message key into the HTTP error shape.
func writeStoreError(w http.ResponseWriter, key string) {
	writeError(w, statusForKey(key), key, "")
}

func statusForKey(key string) int {
	switch key {
	case remote.KeyAlreadyTracking, remote.KeyUniqueViolation:
		return http.StatusConflict
	case remote.KeyDailyLimitReached, remote.KeyCategoriesLimitReached:
		return http.StatusTooManyRequests
	case remote.KeyNotNullViolation, remote.KeyForeignKeyViolation, remote.KeyCheckViolation:
		return http.StatusBadRequest
	case remote.KeyNetworkFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, identity.ErrPasswordTooShort):
		writeError(w, http.StatusBadRequest, "validation_failed", "password too short")
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
	case remote.IsCode(err, remote.CodeUniqueViolation):
		writeError(w, http.StatusConflict, "email_taken", "an account with that email already exists")
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
