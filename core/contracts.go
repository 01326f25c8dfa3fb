package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Provider is one vendor integration: consent-URL issuance, the
// authorization-code exchange, the optional identity follow-up, and the
// normalization of its raw token shape into canonical credentials.
type Provider interface {
	Product() string
	Capabilities() ProviderCapabilities
	ConsentURL(state string) string
	Exchange(ctx context.Context, event CallbackEvent) (RawProviderToken, error)
	Identity(ctx context.Context, token RawProviderToken) (Identity, error)
	Normalize(now time.Time, token RawProviderToken, identity Identity) []CredentialSeed
}

// ProviderCapabilities describes the structural quirks the normalizer and
// coordinator must absorb for a provider.
type ProviderCapabilities struct {
	HasRefreshToken   bool
	HasRefreshExpiry  bool
	NeedsIdentityCall bool
	TeamScoped        bool
	MultiCredential   bool
	FormPostCallback  bool
}

// CredentialSeed is a normalized credential before tenant resolution: the
// coordinator stamps tenant, managing org, and timestamps.
type CredentialSeed struct {
	Product           string
	TokenType         string
	AccessToken       string
	RefreshToken      string
	ExpiresIn         int64
	RefreshExpiresIn  int64
	Endpoint          string
	ExternalAccountID string
	ItemID            string
	UserEmail         string
}

// TenantDirectory is the external tenant catalog, looked up by exact domain.
type TenantDirectory interface {
	FindByDomain(ctx context.Context, domain string) (Tenant, error)
}

// TenantResolver maps a free-text identifier (typically an email domain) to a
// known tenant. Resolution failure is terminal for the enclosing exchange.
type TenantResolver interface {
	Resolve(ctx context.Context, identifier string) (Tenant, error)
}

// CredentialStore persists canonical credentials into the primary relational
// store, keyed by (managing org, product, tenant, token type).
type CredentialStore interface {
	Upsert(ctx context.Context, credential Credential) (Credential, error)
	GetByKey(ctx context.Context, key CredentialKey) (Credential, error)
}

// SecondaryIndex mirrors stored credentials into a schema-flexible secondary
// store. Mirroring is advisory: failures are reported, never rolled back.
type SecondaryIndex interface {
	Upsert(ctx context.Context, credential Credential) error
}

// RunRecordStore owns the durable JobRun table.
type RunRecordStore interface {
	Create(ctx context.Context, run JobRun) (JobRun, error)
	GetByRunID(ctx context.Context, runID string) (JobRun, error)
	Update(ctx context.Context, run JobRun) (JobRun, error)
}

// RunHandle identifies one engine-tracked execution.
type RunHandle struct {
	RunID   string
	JobName string
}

// JobBody is the unit of work the execution engine runs for one firing.
type JobBody func(ctx context.Context) error

// ExecutionEngine is the external saga collaborator: it owns running job
// bodies (and any retry machinery, out of scope here) and can list the run
// handles it knows about. It is not required to be able to stop in-flight
// work.
type ExecutionEngine interface {
	Start(ctx context.Context, handle RunHandle, body JobBody) error
	List(ctx context.Context, max int) ([]RunHandle, error)
}

// JobExecutor is the domain-logic collaborator behind named jobs; the
// internals of each job are external to this gateway.
type JobExecutor interface {
	Execute(ctx context.Context, jobName string) error
}

// JobDispatcher starts one execution of a named job and returns an opaque
// run identifier. Dispatch is fire-and-forget: it never waits for the body.
type JobDispatcher interface {
	Dispatch(ctx context.Context, jobName string) (string, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
