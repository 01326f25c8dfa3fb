package sqlstore

import "github.com/goliatone/go-tokengate/core"

var (
	_ core.CredentialStore = (*CredentialStore)(nil)
	_ core.TenantDirectory = (*TenantStore)(nil)
	_ core.RunRecordStore  = (*RunStore)(nil)
)
