package master

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

// Defaults for the master directory
const (
	DefaultURL      = "http://cncnet.org/master-announce"
	DefaultInterval = 60 * time.Second
	Version         = "2"
	requestTimeout  = 10 * time.Second
)

// Status is what the announcer publishes on every heartbeat
type Status struct {
	Name        string
	Port        int
	Clients     int
	MaxClients  int
	HasPassword bool
}

// StatusSource reports the relay's current status
type StatusSource interface {
	Status() Status
}

// Announcer periodically registers the relay with the master directory
type Announcer struct {
	url      string
	interval time.Duration
	source   StatusSource
	client   *http.Client
}

// NewAnnouncer creates an announcer. Empty url and zero interval fall back to
// DefaultURL and DefaultInterval.
func NewAnnouncer(masterURL string, interval time.Duration, source StatusSource) *Announcer {
	if masterURL == "" {
		masterURL = DefaultURL
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Announcer{
		url:      masterURL,
		interval: interval,
		source:   source,
		client:   &http.Client{Timeout: requestTimeout},
	}
}

// Run announces immediately and then on every tick until ctx is cancelled.
// Failed announcements are logged and retried on the next tick.
func (a *Announcer) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		if err := a.Announce(ctx); err != nil && ctx.Err() == nil {
			log.WithField("master", a.url).Warnf("Master announce failed: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Announce sends a single heartbeat to the master directory
func (a *Announcer) Announce(ctx context.Context) error {
	u, err := a.heartbeatURL(a.source.Status())
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build announce request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach master: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("master returned %s", resp.Status)
	}

	log.WithField("master", a.url).Debug("Announced to master")
	return nil
}

func (a *Announcer) heartbeatURL(st Status) (string, error) {
	u, err := url.Parse(a.url)
	if err != nil {
		return "", fmt.Errorf("invalid master url %q: %w", a.url, err)
	}

	password := "0"
	if st.HasPassword {
		password = "1"
	}

	q := u.Query()
	q.Set("version", Version)
	q.Set("name", st.Name)
	q.Set("port", strconv.Itoa(st.Port))
	q.Set("clients", strconv.Itoa(st.Clients))
	q.Set("maxclients", strconv.Itoa(st.MaxClients))
	q.Set("password", password)
	u.RawQuery = q.Encode()

	return u.String(), nil
}
