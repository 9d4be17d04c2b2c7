package handlers

import (
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/truthlayer-systems/truthfeed/internal/httputil"
	"github.com/truthlayer-systems/truthfeed/internal/logging"
	"github.com/truthlayer-systems/truthfeed/internal/models"
	"github.com/truthlayer-systems/truthfeed/internal/repository"
)

type rssDocument struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	LastBuildDate string    `xml:"lastBuildDate"`
	Items         []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	GUID        string `xml:"guid"`
	PubDate     string `xml:"pubDate"`
	Description string `xml:"description"`
}

// feedRSS renders the most recent events of a feed as an RSS 2.0 document,
// one item per event with confidence, integrity proof and anchor reference in
// the description.
func (h *Handler) feedRSS(w http.ResponseWriter, r *http.Request, key models.FeedKey) {
	limit := parseInt(r.URL.Query().Get("limit"), 50)

	events, err := h.engine.Events(r.Context(), key, 0, limit)
	if err != nil {
		if errors.Is(err, repository.ErrFeedNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "feed not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "feed rss",
			logging.Feed(key.String()), logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to build feed")
		return
	}

	base := "http://" + r.Host
	doc := rssDocument{
		Version: "2.0",
		Channel: rssChannel{
			Title:         fmt.Sprintf("Truth Feed: %s", key),
			Link:          fmt.Sprintf("%s/api/v1/feeds/%s/events", base, key),
			Description:   fmt.Sprintf("Verified %s events", key.FeedType),
			LastBuildDate: time.Now().UTC().Format(time.RFC1123Z),
		},
	}

	for _, ev := range events {
		anchor := ev.AnchorReference
		if anchor == "" {
			anchor = "pending"
		}
		item := rssItem{
			Title:   fmt.Sprintf("%s #%d", ev.EventType, ev.SequenceNumber),
			Link:    fmt.Sprintf("%s/api/v1/feeds/%s/events?since=%d&limit=1", base, key, ev.SequenceNumber-1),
			GUID:    ev.ID,
			PubDate: ev.CreatedAt.Format(time.RFC1123Z),
			Description: fmt.Sprintf(
				"type=%s subject=%s confidence=%.2f proof=%s anchor=%s",
				ev.EventType, ev.SubjectID, ev.ConfidenceScore, ev.IntegrityProof, anchor),
		}
		doc.Channel.Items = append(doc.Channel.Items, item)
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(xml.Header)); err != nil {
		return
	}
	if err := xml.NewEncoder(w).Encode(doc); err != nil {
		h.logger.ErrorContext(r.Context(), "encode rss",
			logging.Feed(key.String()), logging.Error(err))
	}
}
