package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const tenantYAML = `
snowflake:
  account: xy12345.eu-west-1
  username: validator
  warehouse: ANALYTICS_WH
runtime:
  workers: 4
  query_timeout: 90s
tenants:
  - name: acme
    regions: [uk, eu]
    source_databases: [acme_uk, acme_eu]
    tables:
      encounters:
        key_columns: [encounter_id]
        parent_query: FROM acme_prod_union.encounters
        parent_key_columns: [encounter_id]
    comparisons:
      - name: waits
        dashboard_table: overview_weekly
        left_query: SELECT 1
        right_query: SELECT 2
        operator: "<="
    lineage:
      encounters: [overview_weekly]
`

func TestConfigUnmarshal(t *testing.T) {
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(tenantYAML), &cfg))

	require.Len(t, cfg.Tenants, 1)
	acme := cfg.Tenants[0]
	assert.Equal(t, "acme", acme.Name)
	assert.Equal(t, []string{"uk", "eu"}, acme.Regions)
	assert.Equal(t, []string{"encounter_id"}, acme.Tables["encounters"].KeyColumns)
	assert.Equal(t, "<=", acme.Comparisons[0].Operator)
	assert.Equal(t, []string{"overview_weekly"}, acme.Lineage["encounters"])
	assert.Equal(t, 4, cfg.Runtime.Workers)
}

func TestApplyDefaults(t *testing.T) {
	tenant := Tenant{Name: "acme", BaseDatabase: "warehouse.base"}
	tenant.ApplyDefaults()

	assert.Equal(t, "acme_prod_union", tenant.UnionDatabase)
	assert.Equal(t, "warehouse.base", tenant.BaseDatabase)
	assert.Equal(t, "acme_dashboard_tables", tenant.DashboardDatabase)
}

func TestTenantLookup(t *testing.T) {
	cfg := Config{Tenants: []Tenant{{Name: "Acme"}, {Name: "globex"}}}

	tenant, ok := cfg.Tenant("acme")
	require.True(t, ok)
	assert.Equal(t, "Acme", tenant.Name)

	_, ok = cfg.Tenant("initech")
	assert.False(t, ok)
}

func TestTimeouts(t *testing.T) {
	assert.Equal(t, 90*time.Second, Runtime{QueryTimeout: "90s"}.QueryTimeoutDuration())
	assert.Equal(t, DefaultQueryTimeout, Runtime{}.QueryTimeoutDuration())
	assert.Equal(t, DefaultQueryTimeout, Runtime{QueryTimeout: "soon"}.QueryTimeoutDuration())
	assert.Equal(t, DefaultConnectTimeout, Snowflake{}.ConnectTimeout())
	assert.Equal(t, 10*time.Second, Snowflake{Timeout: "10s"}.ConnectTimeout())
}
