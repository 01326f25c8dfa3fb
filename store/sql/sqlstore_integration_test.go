package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-tokengate/core"
	gatewaymigrations "github.com/goliatone/go-tokengate/migrations"
	sqlstore "github.com/goliatone/go-tokengate/store/sql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-tokengate-tests"
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:tokengate-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = gatewaymigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != gatewaymigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, gatewaymigrations.WithValidationTargets(gatewaymigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}

func newFactory(t *testing.T) (*sqlstore.RepositoryFactory, func()) {
	t.Helper()
	client, cleanup := newSQLiteClient(t)
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		cleanup()
		t.Fatalf("new repository factory: %v", err)
	}
	return factory, cleanup
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, table := range []string{"tenants", "api_tokens", "job_runs"} {
		var tableName string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(context.Background(), &tableName); err != nil {
			t.Fatalf("query sqlite master for %s: %v", table, err)
		}
		if tableName != table {
			t.Fatalf("expected %s table, got %q", table, tableName)
		}
	}
}

func TestCredentialUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	if err := factory.TenantStore().Seed(ctx, core.Tenant{ID: 1, Domain: "acme.com", Name: "Acme"}); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}

	first, err := factory.CredentialStore().Upsert(ctx, core.Credential{
		ManagingOrgID: 1,
		Product:       "github",
		TenantID:      1,
		TokenType:     "bearer",
		AccessToken:   "token-v1",
		LastUpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if first.ID == "" {
		t.Fatalf("expected generated id")
	}

	second, err := factory.CredentialStore().Upsert(ctx, core.Credential{
		ManagingOrgID: 1,
		Product:       "GitHub",
		TenantID:      1,
		TokenType:     "Bearer",
		AccessToken:   "token-v2",
		RefreshToken:  "refresh-v2",
		LastUpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected the same row, got %q and %q", first.ID, second.ID)
	}
	if second.AccessToken != "token-v2" {
		t.Fatalf("expected last write to win, got %q", second.AccessToken)
	}

	var count int
	if err := factory.DB().NewRaw(
		"SELECT COUNT(*) FROM api_tokens WHERE managing_org_id = ? AND product = ? AND tenant_id = ?",
		1, "github", 1,
	).Scan(ctx, &count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single row after repeated upserts, got %d", count)
	}

	fetched, err := factory.CredentialStore().GetByKey(ctx, core.CredentialKey{
		ManagingOrgID: 1, Product: "github", TenantID: 1, TokenType: "bearer",
	})
	if err != nil {
		t.Fatalf("get by key: %v", err)
	}
	if fetched.RefreshToken != "refresh-v2" {
		t.Fatalf("unexpected refresh token %q", fetched.RefreshToken)
	}
}

func TestCredentialUpsertKeepsTokenTypesDistinct(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	if err := factory.TenantStore().Seed(ctx, core.Tenant{ID: 1, Domain: "acme.com"}); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
	for _, tokenType := range []string{"bot", "user"} {
		if _, err := factory.CredentialStore().Upsert(ctx, core.Credential{
			ManagingOrgID: 1,
			Product:       "slack",
			TenantID:      1,
			TokenType:     tokenType,
			AccessToken:   "token-" + tokenType,
			LastUpdatedAt: time.Now().UTC(),
		}); err != nil {
			t.Fatalf("upsert %s: %v", tokenType, err)
		}
	}

	var count int
	if err := factory.DB().NewRaw(
		"SELECT COUNT(*) FROM api_tokens WHERE product = ?", "slack",
	).Scan(ctx, &count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected distinct rows per token type, got %d", count)
	}
}

func TestTenantStoreFindByDomain(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	if err := factory.TenantStore().Seed(ctx, core.Tenant{ID: 7, Domain: "acme.com", Name: "Acme"}); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}

	tenant, err := factory.TenantStore().FindByDomain(ctx, " ACME.com ")
	if err != nil {
		t.Fatalf("find by domain: %v", err)
	}
	if tenant.ID != 7 || tenant.Name != "Acme" {
		t.Fatalf("unexpected tenant %+v", tenant)
	}

	if _, err := factory.TenantStore().FindByDomain(ctx, "unknown.io"); !errors.Is(err, core.ErrTenantNotFound) {
		t.Fatalf("expected ErrTenantNotFound, got %v", err)
	}
}

func TestRunStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	started := time.Now().UTC().Truncate(time.Second)
	created, err := factory.RunStore().Create(ctx, core.JobRun{
		RunID:     "run-1",
		JobName:   "sync-repos",
		Status:    core.RunStatusQueued,
		StartedAt: started,
	})
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	if created.Status != core.RunStatusQueued {
		t.Fatalf("unexpected status %s", created.Status)
	}

	run, err := factory.RunStore().GetByRunID(ctx, "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if err := run.MarkInProgress(time.Now().UTC()); err != nil {
		t.Fatalf("mark in progress: %v", err)
	}
	if _, err := factory.RunStore().Update(ctx, run); err != nil {
		t.Fatalf("update run: %v", err)
	}

	if err := run.Complete(core.RunConclusionSuccess, time.Now().UTC()); err != nil {
		t.Fatalf("complete run: %v", err)
	}
	if _, err := factory.RunStore().Update(ctx, run); err != nil {
		t.Fatalf("update completed run: %v", err)
	}

	final, err := factory.RunStore().GetByRunID(ctx, "run-1")
	if err != nil {
		t.Fatalf("get final run: %v", err)
	}
	if final.Status != core.RunStatusCompleted || final.Conclusion != core.RunConclusionSuccess {
		t.Fatalf("unexpected final run %+v", final)
	}
	if final.CompletedAt == nil {
		t.Fatalf("expected completed_at to be stamped")
	}
}

func TestRunStoreListByStatus(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	for i := 0; i < 3; i++ {
		status := core.RunStatusInProgress
		if i == 2 {
			status = core.RunStatusCompleted
		}
		if _, err := factory.RunStore().Create(ctx, core.JobRun{
			RunID:     fmt.Sprintf("run-%d", i),
			JobName:   "sync-configs",
			Status:    status,
			StartedAt: time.Now().UTC(),
		}); err != nil {
			t.Fatalf("create run %d: %v", i, err)
		}
	}

	inProgress, err := factory.RunStore().ListByStatus(ctx, core.RunStatusInProgress, 10)
	if err != nil {
		t.Fatalf("list in-progress: %v", err)
	}
	if len(inProgress) != 2 {
		t.Fatalf("expected 2 in-progress runs, got %d", len(inProgress))
	}

	if _, err := factory.RunStore().GetByRunID(ctx, "run-missing"); !errors.Is(err, core.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}
