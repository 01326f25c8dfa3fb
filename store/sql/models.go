package sqlstore

import (
	"time"

	"github.com/goliatone/go-tokengate/core"
	"github.com/uptrace/bun"
)

type tenantRecord struct {
	bun.BaseModel `bun:"table:tenants,alias:t"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Domain    string    `bun:"domain,notnull"`
	Name      string    `bun:"name,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func (r *tenantRecord) toDomain() core.Tenant {
	if r == nil {
		return core.Tenant{}
	}
	return core.Tenant{
		ID:        r.ID,
		Domain:    r.Domain,
		Name:      r.Name,
		CreatedAt: r.CreatedAt,
	}
}

type credentialRecord struct {
	bun.BaseModel `bun:"table:api_tokens,alias:at"`

	ID                string     `bun:"id,pk"`
	ManagingOrgID     int64      `bun:"managing_org_id,notnull"`
	Product           string     `bun:"product,notnull"`
	TenantID          int64      `bun:"tenant_id,notnull"`
	TokenType         string     `bun:"token_type,notnull"`
	AccessToken       string     `bun:"access_token,notnull"`
	RefreshToken      string     `bun:"refresh_token"`
	ExpiresIn         int64      `bun:"expires_in"`
	ExpiresAt         *time.Time `bun:"expires_at,nullzero"`
	RefreshExpiresIn  int64      `bun:"refresh_expires_in"`
	RefreshExpiresAt  *time.Time `bun:"refresh_expires_at,nullzero"`
	Endpoint          string     `bun:"endpoint"`
	ExternalAccountID string     `bun:"external_account_id"`
	ItemID            string     `bun:"item_id"`
	UserEmail         string     `bun:"user_email"`
	LastUpdatedAt     time.Time  `bun:"last_updated_at,notnull"`
	CreatedAt         time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *credentialRecord) toDomain() core.Credential {
	if r == nil {
		return core.Credential{}
	}
	return core.Credential{
		ID:                r.ID,
		ManagingOrgID:     r.ManagingOrgID,
		Product:           r.Product,
		TenantID:          r.TenantID,
		TokenType:         r.TokenType,
		AccessToken:       r.AccessToken,
		RefreshToken:      r.RefreshToken,
		ExpiresIn:         r.ExpiresIn,
		ExpiresAt:         r.ExpiresAt,
		RefreshExpiresIn:  r.RefreshExpiresIn,
		RefreshExpiresAt:  r.RefreshExpiresAt,
		Endpoint:          r.Endpoint,
		ExternalAccountID: r.ExternalAccountID,
		ItemID:            r.ItemID,
		UserEmail:         r.UserEmail,
		LastUpdatedAt:     r.LastUpdatedAt,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func newCredentialRecord(credential core.Credential) *credentialRecord {
	return &credentialRecord{
		ID:                credential.ID,
		ManagingOrgID:     credential.ManagingOrgID,
		Product:           credential.Product,
		TenantID:          credential.TenantID,
		TokenType:         credential.TokenType,
		AccessToken:       credential.AccessToken,
		RefreshToken:      credential.RefreshToken,
		ExpiresIn:         credential.ExpiresIn,
		ExpiresAt:         credential.ExpiresAt,
		RefreshExpiresIn:  credential.RefreshExpiresIn,
		RefreshExpiresAt:  credential.RefreshExpiresAt,
		Endpoint:          credential.Endpoint,
		ExternalAccountID: credential.ExternalAccountID,
		ItemID:            credential.ItemID,
		UserEmail:         credential.UserEmail,
		LastUpdatedAt:     credential.LastUpdatedAt,
		CreatedAt:         credential.CreatedAt,
		UpdatedAt:         credential.UpdatedAt,
	}
}

type runRecord struct {
	bun.BaseModel `bun:"table:job_runs,alias:jr"`

	ID          string     `bun:"id,pk"`
	RunID       string     `bun:"run_id,notnull"`
	JobName     string     `bun:"job_name,notnull"`
	Status      string     `bun:"status,notnull"`
	Conclusion  string     `bun:"conclusion"`
	StartedAt   time.Time  `bun:"started_at,notnull"`
	CompletedAt *time.Time `bun:"completed_at,nullzero"`
	CreatedAt   time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *runRecord) toDomain() core.JobRun {
	if r == nil {
		return core.JobRun{}
	}
	return core.JobRun{
		RunID:       r.RunID,
		JobName:     r.JobName,
		Status:      core.RunStatus(r.Status),
		Conclusion:  core.RunConclusion(r.Conclusion),
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}
