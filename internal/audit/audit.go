// Package audit publishes security incidents and provisioning outcomes as
// JSON events on NATS.
package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/fivetwenty-io/capi-deployer/internal/constants"
	"github.com/fivetwenty-io/capi-deployer/pkg/capi"
)

// Subject suffixes appended to the configured prefix.
const (
	SubjectSecurity     = "security"
	SubjectProvisioning = "provisioning"
)

// Provisioning outcomes.
const (
	OutcomeCreated   = "created"
	OutcomeForbidden = "forbidden"
	OutcomeFailed    = "failed"
)

// Static errors for err113 compliance.
var (
	ErrNATSURLRequired = errors.New("NATS URL is required")
)

// Publisher sends a message on a subject. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// SecurityIncident records a denied or failed authorization.
type SecurityIncident struct {
	Time       time.Time `json:"time"`
	UserID     string    `json:"user_id"`
	UserName   string    `json:"user_name,omitempty"`
	SpaceGUID  string    `json:"space_guid"`
	Action     string    `json:"action"`
	StatusCode int       `json:"status_code"`
	Reason     string    `json:"reason"`
}

// ProvisioningEvent records one creation attempt for a service instance.
type ProvisioningEvent struct {
	Time      time.Time `json:"time"`
	Name      string    `json:"name"`
	Offering  string    `json:"offering"`
	Plan      string    `json:"plan"`
	SpaceGUID string    `json:"space_guid"`
	Outcome   string    `json:"outcome"`
	Error     string    `json:"error,omitempty"`
}

// Auditor publishes events under a subject prefix. A nil *Auditor discards
// every event, and publish failures are logged but never returned.
type Auditor struct {
	publisher Publisher
	prefix    string
	logger    capi.Logger
	now       func() time.Time
	closer    func()
}

// Option configures an Auditor.
type Option func(*Auditor)

// WithLogger sets the logger used for publish failures.
func WithLogger(logger capi.Logger) Option {
	return func(a *Auditor) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *Auditor) {
		a.now = now
	}
}

// New creates an Auditor on an existing publisher. An empty prefix uses
// constants.DefaultAuditSubject.
func New(publisher Publisher, prefix string, opts ...Option) *Auditor {
	if prefix == "" {
		prefix = constants.DefaultAuditSubject
	}

	auditor := &Auditor{
		publisher: publisher,
		prefix:    prefix,
		logger:    capi.NoopLogger(),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(auditor)
	}

	return auditor
}

// Connect dials the NATS server at url and returns an Auditor publishing on
// it. Close drains the connection.
func Connect(url, prefix string, opts ...Option) (*Auditor, error) {
	if url == "" {
		return nil, ErrNATSURLRequired
	}

	conn, err := nats.Connect(url, nats.Name("capi-deployer"))
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}

	auditor := New(conn, prefix, opts...)
	auditor.closer = func() {
		_ = conn.Drain()
	}

	return auditor, nil
}

// Subject returns the full subject for a suffix.
func (a *Auditor) Subject(suffix string) string {
	return a.prefix + "." + suffix
}

// SecurityIncident publishes incident on <prefix>.security.
func (a *Auditor) SecurityIncident(incident SecurityIncident) {
	if a == nil {
		return
	}

	if incident.Time.IsZero() {
		incident.Time = a.now().UTC()
	}

	a.publish(SubjectSecurity, incident)
}

// Provisioning publishes event on <prefix>.provisioning.
func (a *Auditor) Provisioning(event ProvisioningEvent) {
	if a == nil {
		return
	}

	if event.Time.IsZero() {
		event.Time = a.now().UTC()
	}

	a.publish(SubjectProvisioning, event)
}

// Close releases the underlying connection when the Auditor owns one.
func (a *Auditor) Close() {
	if a == nil || a.closer == nil {
		return
	}

	a.closer()
}

func (a *Auditor) publish(suffix string, event interface{}) {
	subject := a.Subject(suffix)

	data, err := json.Marshal(event)
	if err != nil {
		a.logger.Error("encoding audit event", map[string]interface{}{
			"subject": subject,
			"error":   err.Error(),
		})

		return
	}

	err = a.publisher.Publish(subject, data)
	if err != nil {
		a.logger.Warn("publishing audit event", map[string]interface{}{
			"subject": subject,
			"error":   err.Error(),
		})
	}
}
