// Package handlers exposes the engine API over HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/truthlayer-systems/truthfeed/internal/analytics"
	"github.com/truthlayer-systems/truthfeed/internal/delivery"
	"github.com/truthlayer-systems/truthfeed/internal/httputil"
	"github.com/truthlayer-systems/truthfeed/internal/integrity"
	"github.com/truthlayer-systems/truthfeed/internal/logging"
	"github.com/truthlayer-systems/truthfeed/internal/models"
	"github.com/truthlayer-systems/truthfeed/internal/repository"
	"github.com/truthlayer-systems/truthfeed/internal/service"
	"github.com/truthlayer-systems/truthfeed/internal/subscription"
	"github.com/truthlayer-systems/truthfeed/internal/trust"
)

type Handler struct {
	engine    *service.Engine
	subs      *subscription.Manager
	trust     *trust.Aggregator
	integrity *integrity.Manager
	analytics *analytics.Service
	polls     *delivery.PollStore
	streams   *delivery.StreamHub
	logger    *logging.Logger
}

func NewHandler(engine *service.Engine, subs *subscription.Manager, tr *trust.Aggregator, im *integrity.Manager, an *analytics.Service, polls *delivery.PollStore, streams *delivery.StreamHub, logger *logging.Logger) *Handler {
	return &Handler{
		engine:    engine,
		subs:      subs,
		trust:     tr,
		integrity: im,
		analytics: an,
		polls:     polls,
		streams:   streams,
		logger:    logger,
	}
}

// HealthCheck handles health check requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Feeds dispatches /api/v1/feeds/{type}[/{subject}]/{resource} where resource
// is one of events, rss, analytics, verify. The subject segment is optional;
// two trailing segments mean a global feed.
func (h *Handler) Feeds(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/feeds/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	var key models.FeedKey
	var resource string
	switch len(parts) {
	case 2:
		key = models.FeedKey{FeedType: parts[0]}
		resource = parts[1]
	case 3:
		key = models.FeedKey{FeedType: parts[0], SubjectID: parts[1]}
		resource = parts[2]
	default:
		httputil.WriteError(w, http.StatusNotFound, "not found")
		return
	}
	if key.FeedType == "" {
		httputil.WriteError(w, http.StatusBadRequest, "feed type required")
		return
	}

	switch resource {
	case "events":
		switch r.Method {
		case http.MethodPost:
			h.appendEvent(w, r, key)
		case http.MethodGet:
			h.listEvents(w, r, key)
		default:
			httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	case "rss":
		if r.Method != http.MethodGet {
			httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.feedRSS(w, r, key)
	case "analytics":
		if r.Method != http.MethodGet {
			httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.feedAnalytics(w, r, key)
	case "verify":
		if r.Method != http.MethodPost {
			httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.verifyFeed(w, r, key)
	default:
		httputil.WriteError(w, http.StatusNotFound, "not found")
	}
}

func (h *Handler) appendEvent(w http.ResponseWriter, r *http.Request, key models.FeedKey) {
	var req models.AppendEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	event, err := h.engine.AppendEvent(r.Context(), key, &req)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "append event",
			logging.Feed(key.String()), logging.Error(err))
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, event)
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request, key models.FeedKey) {
	since := parseInt64(r.URL.Query().Get("since"), 0)
	limit := parseInt(r.URL.Query().Get("limit"), 100)

	events, err := h.engine.Events(r.Context(), key, since, limit)
	if err != nil {
		if errors.Is(err, repository.ErrFeedNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "feed not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "list events",
			logging.Feed(key.String()), logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []*models.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"feed":   key,
		"events": events,
	})
}

func (h *Handler) feedAnalytics(w http.ResponseWriter, r *http.Request, key models.FeedKey) {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -7)
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "invalid from timestamp")
			return
		}
		from = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "invalid to timestamp")
			return
		}
		to = t
	}

	stats, err := h.analytics.FeedStats(r.Context(), key, from, to)
	if err != nil {
		if errors.Is(err, repository.ErrFeedNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "feed not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "feed analytics",
			logging.Feed(key.String()), logging.Error(err))
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) verifyFeed(w http.ResponseWriter, r *http.Request, key models.FeedKey) {
	ok, err := h.engine.VerifyFeed(r.Context(), key)
	if err != nil {
		if errors.Is(err, repository.ErrFeedNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "feed not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "verify feed",
			logging.Feed(key.String()), logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "verification failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"feed":     key,
		"verified": ok,
	})
}

// Subscriptions dispatches /api/v1/subscriptions[/{id}[/events]].
func (h *Handler) Subscriptions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/subscriptions")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if parts[0] == "" {
		if r.Method != http.MethodPost {
			httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.createSubscription(w, r)
		return
	}

	id := parts[0]
	switch {
	case len(parts) == 1 && r.Method == http.MethodDelete:
		h.deleteSubscription(w, r, id)
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.getSubscription(w, r, id)
	case len(parts) == 2 && parts[1] == "events" && r.Method == http.MethodGet:
		h.pollSubscription(w, r, id)
	default:
		httputil.WriteError(w, http.StatusNotFound, "not found")
	}
}

func (h *Handler) createSubscription(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, err := h.subs.Subscribe(r.Context(), &req)
	if err != nil {
		if errors.Is(err, subscription.ErrInvalidFilter) {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "create subscription", logging.Error(err))
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, sub)
}

func (h *Handler) deleteSubscription(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.subs.Unsubscribe(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "subscription not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "delete subscription",
			logging.SubscriptionID(id), logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to unsubscribe")
		return
	}
	h.polls.Drop(id)
	h.streams.Detach(id)
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "unsubscribed"})
}

func (h *Handler) getSubscription(w http.ResponseWriter, r *http.Request, id string) {
	sub, err := h.subs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "subscription not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get subscription",
			logging.SubscriptionID(id), logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load subscription")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sub)
}

// pollSubscription drains the poll buffer for a poll-mode subscription.
func (h *Handler) pollSubscription(w http.ResponseWriter, r *http.Request, id string) {
	sub, err := h.subs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "subscription not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "poll subscription",
			logging.SubscriptionID(id), logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load subscription")
		return
	}
	if sub.DeliveryMode != models.DeliveryPoll {
		httputil.WriteError(w, http.StatusBadRequest, "subscription is not in poll mode")
		return
	}

	events := h.polls.Drain(id)
	if events == nil {
		events = []*models.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"subscription_id": id,
		"events":          events,
	})
}

// Subjects dispatches /api/v1/subjects/{id}/{resource}.
func (h *Handler) Subjects(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/subjects/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) < 2 || parts[0] == "" {
		httputil.WriteError(w, http.StatusNotFound, "not found")
		return
	}
	subjectID := parts[0]

	switch parts[1] {
	case "trust-score":
		if r.Method != http.MethodGet {
			httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.trustScore(w, r, subjectID)
	case "attestations":
		if r.Method != http.MethodPost {
			httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.createAttestation(w, r, subjectID)
	case "validations":
		if r.Method != http.MethodPost {
			httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.createValidation(w, r, subjectID)
	case "integrity":
		if len(parts) == 3 && parts[2] == "verify" {
			if r.Method != http.MethodPost {
				httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
				return
			}
			h.verifyChain(w, r, subjectID)
			return
		}
		if r.Method != http.MethodGet {
			httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.chainState(w, r, subjectID)
	default:
		httputil.WriteError(w, http.StatusNotFound, "not found")
	}
}

func (h *Handler) trustScore(w http.ResponseWriter, r *http.Request, subjectID string) {
	record, err := h.trust.Get(r.Context(), subjectID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "trust score",
			logging.Subject(subjectID), logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to compute trust score")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) createAttestation(w http.ResponseWriter, r *http.Request, subjectID string) {
	var req models.CreateAttestationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	att, err := h.trust.RecordAttestation(r.Context(), subjectID, &req)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, att)
}

func (h *Handler) createValidation(w http.ResponseWriter, r *http.Request, subjectID string) {
	var req models.CreateValidationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	val, err := h.trust.RecordValidation(r.Context(), subjectID, &req)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, val)
}

func (h *Handler) chainState(w http.ResponseWriter, r *http.Request, subjectID string) {
	state, err := h.integrity.State(r.Context(), subjectID)
	if err != nil {
		if errors.Is(err, repository.ErrSubjectNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "subject not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "chain state",
			logging.Subject(subjectID), logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load chain state")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, state)
}

func (h *Handler) verifyChain(w http.ResponseWriter, r *http.Request, subjectID string) {
	ok, err := h.integrity.Verify(r.Context(), subjectID)
	if err != nil {
		if errors.Is(err, repository.ErrSubjectNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "subject not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "verify chain",
			logging.Subject(subjectID), logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "verification failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"subject_id": subjectID,
		"verified":   ok,
	})
}

// StreamAttach upgrades /ws/subscriptions/{id} to a websocket and binds it as
// the subscription's live stream connection.
func (h *Handler) StreamAttach(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/ws/subscriptions/")
	if id == "" || strings.Contains(id, "/") {
		httputil.WriteError(w, http.StatusNotFound, "not found")
		return
	}

	sub, err := h.subs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "subscription not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "stream attach",
			logging.SubscriptionID(id), logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load subscription")
		return
	}
	if sub.DeliveryMode != models.DeliveryStream {
		httputil.WriteError(w, http.StatusBadRequest, "subscription is not in stream mode")
		return
	}

	if err := h.streams.Attach(w, r, id); err != nil {
		h.logger.ErrorContext(r.Context(), "websocket upgrade",
			logging.SubscriptionID(id), logging.Error(err))
	}
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func parseInt64(s string, def int64) int64 {
	if s == "" {
		return def
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return def
	}
	return n
}
