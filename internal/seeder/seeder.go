// Package seeder generates synthetic compliance events and pushes them into a
// running engine, for demos and load checks.
package seeder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/truthlayer-systems/truthfeed/internal/models"
)

// Config controls the seeding run.
type Config struct {
	BaseURL   string
	Count     int
	Subjects  int
	FeedTypes []string
	Interval  time.Duration
}

// DefaultConfig returns a small local seeding run.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:  "http://localhost:8090",
		Count:    100,
		Subjects: 5,
		FeedTypes: []string{
			models.FeedComplianceEvents,
			models.FeedRegulatoryUpdate,
			models.FeedAuditActivity,
		},
	}
}

// Runner handles the event seeding execution.
type Runner struct {
	Config     *Config
	HTTPClient *http.Client
}

// NewRunner creates a new seeder runner.
func NewRunner(config *Config) *Runner {
	return &Runner{
		Config: config,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

var eventTypes = map[string][]string{
	models.FeedComplianceEvents: {"control_passed", "control_failed", "evidence_collected", "policy_updated"},
	models.FeedRegulatoryUpdate: {"regulation_published", "guidance_issued", "deadline_changed"},
	models.FeedAuditActivity:    {"audit_started", "finding_raised", "finding_resolved", "audit_closed"},
}

// Run executes the seeding process.
func (r *Runner) Run() error {
	gofakeit.Seed(time.Now().UnixNano())

	subjects := make([]string, r.Config.Subjects)
	for i := range subjects {
		subjects[i] = fmt.Sprintf("org-%s", gofakeit.UUID()[:8])
	}

	log.Printf("Starting event seeder:")
	log.Printf("  Base URL: %s", r.Config.BaseURL)
	log.Printf("  Event count: %d", r.Config.Count)
	log.Printf("  Subjects: %d", len(subjects))
	log.Printf("  Feed types: %v", r.Config.FeedTypes)

	successCount := 0
	failCount := 0

	for i := 0; i < r.Config.Count; i++ {
		feedType := r.Config.FeedTypes[rand.Intn(len(r.Config.FeedTypes))]
		subject := subjects[rand.Intn(len(subjects))]

		if err := r.sendEvent(feedType, subject); err != nil {
			failCount++
			log.Printf("Failed to send event: %v", err)
		} else {
			successCount++
		}

		if r.Config.Interval > 0 {
			time.Sleep(r.Config.Interval)
		}
	}

	log.Printf("Seeding complete: %d sent, %d failed", successCount, failCount)
	if failCount > 0 {
		return fmt.Errorf("%d of %d events failed", failCount, r.Config.Count)
	}
	return nil
}

func (r *Runner) sendEvent(feedType, subject string) error {
	types := eventTypes[feedType]
	req := models.AppendEventRequest{
		EventType:       types[rand.Intn(len(types))],
		ConfidenceScore: 0.5 + rand.Float64()*0.5,
		Payload: map[string]interface{}{
			"framework":   gofakeit.RandomString([]string{"SOC2", "ISO27001", "GDPR", "HIPAA", "PCI-DSS"}),
			"control_id":  fmt.Sprintf("CTRL-%03d", rand.Intn(200)),
			"description": gofakeit.Sentence(8),
			"reporter":    gofakeit.Email(),
			"region":      gofakeit.RandomString([]string{"eu-west", "us-east", "ap-south"}),
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/v1/feeds/%s/%s/events", r.Config.BaseURL, feedType, subject)
	resp, err := r.HTTPClient.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("server returned %d for %s", resp.StatusCode, url)
	}
	return nil
}
