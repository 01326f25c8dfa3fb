package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidRunStatusTransition = errors.New("core: invalid run status transition")
	ErrInvalidRunConclusion       = errors.New("core: invalid run conclusion")
	ErrRunNotFound                = errors.New("core: run not found")
	ErrTenantNotFound             = errors.New("core: tenant not found")
)

// Tenant is an organizational unit owning end-user email domains. Tenants are
// looked up, never created, by this gateway; provisioning is external.
type Tenant struct {
	ID        int64
	Domain    string
	Name      string
	CreatedAt time.Time
}

// Credential is the canonical normalized OAuth token record for one
// (product, tenant, token type) triple. ManagingOrgID is always the single
// primary organization configured at startup, regardless of which tenant
// authenticated.
type Credential struct {
	ID                string
	ManagingOrgID     int64
	Product           string
	TenantID          int64
	TokenType         string
	AccessToken       string
	RefreshToken      string
	ExpiresIn         int64
	ExpiresAt         *time.Time
	RefreshExpiresIn  int64
	RefreshExpiresAt  *time.Time
	Endpoint          string
	ExternalAccountID string
	ItemID            string
	UserEmail         string
	LastUpdatedAt     time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CredentialKey is the natural key used for idempotent upserts.
type CredentialKey struct {
	ManagingOrgID int64
	Product       string
	TenantID      int64
	TokenType     string
}

func (c Credential) Key() CredentialKey {
	return CredentialKey{
		ManagingOrgID: c.ManagingOrgID,
		Product:       strings.TrimSpace(strings.ToLower(c.Product)),
		TenantID:      c.TenantID,
		TokenType:     strings.TrimSpace(strings.ToLower(c.TokenType)),
	}
}

func (k CredentialKey) Validate() error {
	if k.ManagingOrgID <= 0 {
		return fmt.Errorf("core: managing org id is required")
	}
	if strings.TrimSpace(k.Product) == "" {
		return fmt.Errorf("core: product is required")
	}
	if k.TenantID <= 0 {
		return fmt.Errorf("core: tenant id is required")
	}
	if strings.TrimSpace(k.TokenType) == "" {
		return fmt.Errorf("core: token type is required")
	}
	return nil
}

type RunStatus string

const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusCompleted  RunStatus = "completed"
)

type RunConclusion string

const (
	RunConclusionSuccess   RunConclusion = "success"
	RunConclusionFailure   RunConclusion = "failure"
	RunConclusionCancelled RunConclusion = "cancelled"
)

// JobRun is the durable record of one execution of a named scheduled job.
// Conclusion is set if and only if Status is RunStatusCompleted.
type JobRun struct {
	RunID       string
	JobName     string
	Status      RunStatus
	Conclusion  RunConclusion
	StartedAt   time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (r *JobRun) Terminal() bool {
	return r != nil && r.Status == RunStatusCompleted
}

// MarkInProgress transitions a queued run to in_progress.
func (r *JobRun) MarkInProgress(now time.Time) error {
	if r == nil {
		return nil
	}
	if !runTransitionAllowed(r.Status, RunStatusInProgress) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidRunStatusTransition, r.Status, RunStatusInProgress)
	}
	r.Status = RunStatusInProgress
	r.UpdatedAt = now
	return nil
}

// Complete transitions a run to completed with the given conclusion and
// stamps CompletedAt. A completed run cannot be completed again.
func (r *JobRun) Complete(conclusion RunConclusion, now time.Time) error {
	if r == nil {
		return nil
	}
	switch conclusion {
	case RunConclusionSuccess, RunConclusionFailure, RunConclusionCancelled:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRunConclusion, conclusion)
	}
	if !runTransitionAllowed(r.Status, RunStatusCompleted) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidRunStatusTransition, r.Status, RunStatusCompleted)
	}
	completedAt := now
	r.Status = RunStatusCompleted
	r.Conclusion = conclusion
	r.CompletedAt = &completedAt
	r.UpdatedAt = now
	return nil
}

func runTransitionAllowed(current, next RunStatus) bool {
	allowed := map[RunStatus]map[RunStatus]struct{}{
		RunStatusQueued: {
			RunStatusInProgress: {},
			RunStatusCompleted:  {},
		},
		RunStatusInProgress: {
			RunStatusCompleted: {},
		},
		RunStatusCompleted: {},
	}
	_, ok := allowed[current][next]
	return ok
}

// JobSpec names a scheduled job and its fixed firing interval. The full set
// is fixed at process start and does not change at runtime.
type JobSpec struct {
	Name     string
	Interval time.Duration
}

func (s JobSpec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("core: job name is required")
	}
	if s.Interval <= 0 {
		return fmt.Errorf("core: job %q interval must be positive", s.Name)
	}
	return nil
}

// RawProviderToken is the tagged union of everything any supported provider
// returns from its token endpoint. Providers populate only the fields their
// response shape carries; the normalizer absorbs the divergence.
type RawProviderToken struct {
	AccessToken      string
	TokenType        string
	RefreshToken     string
	ExpiresIn        int64
	RefreshExpiresIn int64
	Scope            string

	// Team-scoped providers (chat/collaboration class).
	TeamID     string
	TeamName   string
	WebhookURL string

	// Multi-credential providers return a delegated end-user sub-credential
	// alongside the service-level one.
	AuthedUser *AuthedUserToken

	// Endpoint carries a provider-specific base URL when the token response
	// itself names one (e.g. a datacenter-scoped API endpoint).
	Endpoint string

	// ItemID carries a provider-side object handle returned alongside the
	// token (e.g. a linked-item id).
	ItemID string

	// Extra carries callback parameters beyond code/state (e.g. a realm id).
	Extra map[string]string

	Raw map[string]any
}

type AuthedUserToken struct {
	AccessToken string
	TokenType   string
}

// Identity is the result of a provider's "who am I" follow-up call.
type Identity struct {
	AccountID string
	Email     string
	// Domain is set when the provider reports the organization domain
	// directly instead of (or in addition to) a user email.
	Domain   string
	TeamName string
}

// CallbackEvent is the inbound OAuth callback payload.
type CallbackEvent struct {
	Code  string
	State string
	Extra map[string]string
}
