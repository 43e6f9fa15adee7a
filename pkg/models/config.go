package models

import (
	"strings"
	"time"
)

const (
	DefaultConnectTimeout = 30 * time.Second
	DefaultQueryTimeout   = 5 * time.Minute
)

// Config is the top-level dashcheck configuration file.
type Config struct {
	Snowflake    Snowflake    `yaml:"snowflake"`
	Runtime      Runtime      `yaml:"runtime"`
	Notification Notification `yaml:"notification"`
	Tenants      []Tenant     `yaml:"tenants" validate:"required,min=1,dive"`
}

type Snowflake struct {
	Account   string `yaml:"account" validate:"required"`
	Username  string `yaml:"username" validate:"required"`
	Password  string `yaml:"password"`
	Role      string `yaml:"role"`
	Warehouse string `yaml:"warehouse"`
	Database  string `yaml:"database"`
	Schema    string `yaml:"schema"`
	Timeout   string `yaml:"timeout"` // Connection timeout, e.g. "30s"
}

// Runtime holds execution settings shared by every tenant in a run.
type Runtime struct {
	Workers      int    `yaml:"workers" validate:"gte=0,lte=64"`
	QueryTimeout string `yaml:"query_timeout"` // e.g. "5m"
	LogLevel     string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogFormat    string `yaml:"log_format" validate:"omitempty,oneof=text json"`
}

// Notification configures where the rendered report is posted.
type Notification struct {
	SlackWebhookURL string `yaml:"slack_webhook_url" validate:"omitempty,url"`
	Channel         string `yaml:"channel"`
	Username        string `yaml:"username"`
	IconEmoji       string `yaml:"icon_emoji"`
	Send            bool   `yaml:"send"`
}

// Tenant describes one client whose pipeline is validated. Regions and
// SourceDatabases are index-aligned: region i is produced by database i.
type Tenant struct {
	Name              string   `yaml:"name" validate:"required"`
	Regions           []string `yaml:"regions" validate:"required,min=1,dive,required"`
	SourceDatabases   []string `yaml:"source_databases" validate:"required,min=1,dive,required"`
	UnionDatabase     string   `yaml:"union_database"`
	BaseDatabase      string   `yaml:"base_database"`
	DashboardDatabase string   `yaml:"dashboard_database"`

	Tables        map[string]PrimaryParent `yaml:"tables" validate:"dive"`
	Definitions   []Definition             `yaml:"definitions" validate:"dive"`
	Statistics    []Statistic              `yaml:"statistics" validate:"dive"`
	Cumulative    []CumulativeStatistic    `yaml:"cumulative" validate:"dive"`
	Invariants    []InvariantStatistic     `yaml:"invariants" validate:"dive"`
	BusinessLogic []BusinessLogicCheck     `yaml:"business_logic" validate:"dive"`
	Comparisons   []DashboardComparison    `yaml:"comparisons" validate:"dive"`

	// Lineage maps an entity to the entities that consume it directly.
	Lineage map[string][]string `yaml:"lineage"`
}

// PrimaryParent maps a base table to the union-side source it is built from.
// An empty ParentQuery marks the table as structurally excluded from the
// parent comparisons (2.1 and 2.2); 2.3 still runs.
type PrimaryParent struct {
	KeyColumns       []string `yaml:"key_columns" validate:"required,min=1,dive,required"`
	ParentQuery      string   `yaml:"parent_query"`
	ParentKeyColumns []string `yaml:"parent_key_columns" validate:"dive,required"`
}

// Definition is a maintained look-up table checked by 2.4. When ProdQuery is
// empty the look-up table is expected to carry a look_up_inclusion_flag
// column and any row with a null flag is an uncategorised value.
type Definition struct {
	Name           string   `yaml:"name" validate:"required"`
	LookUpDatabase string   `yaml:"look_up_database" validate:"required"`
	LookUpTable    string   `yaml:"look_up_table" validate:"required"`
	LookUpColumn   string   `yaml:"look_up_column" validate:"required"`
	ProdQuery      string   `yaml:"prod_query"`
	ProdColumn     string   `yaml:"prod_column" validate:"required_with=ProdQuery"`
	Exclusions     []string `yaml:"exclusions"`
}

// Statistic is a summed dashboard column reconciled against base tables (3.2).
type Statistic struct {
	Name           string `yaml:"name" validate:"required"`
	DashboardTable string `yaml:"dashboard_table" validate:"required"`
	BaseQuery      string `yaml:"base_query" validate:"required"`
	// OverlapQuery returns (entity id, pathway_name) rows used to discount
	// entities counted under more than one pathway.
	OverlapQuery string `yaml:"overlap_query"`
}

// CumulativeStatistic is a running total reconciled per region (3.3).
type CumulativeStatistic struct {
	Name           string `yaml:"name" validate:"required"`
	DashboardTable string `yaml:"dashboard_table" validate:"required"`
	DashboardQuery string `yaml:"dashboard_query" validate:"required"`
	BaseQuery      string `yaml:"base_query" validate:"required"`
}

// InvariantStatistic must hold the same value under every pathway (3.4).
type InvariantStatistic struct {
	Name           string `yaml:"name" validate:"required"`
	DashboardTable string `yaml:"dashboard_table" validate:"required"`
	BaseQuery      string `yaml:"base_query" validate:"required"`
}

type BusinessLogicCheck struct {
	Name           string `yaml:"name" validate:"required"`
	DashboardTable string `yaml:"dashboard_table" validate:"required"`
	LogicQuery     string `yaml:"logic_query" validate:"required"`
	BaseQuery      string `yaml:"base_query" validate:"required"`
}

type DashboardComparison struct {
	Name           string `yaml:"name" validate:"required"`
	DashboardTable string `yaml:"dashboard_table" validate:"required"`
	LeftQuery      string `yaml:"left_query" validate:"required"`
	RightQuery     string `yaml:"right_query" validate:"required"`
	Operator       string `yaml:"operator" validate:"required"`
}

// ApplyDefaults fills the per-tenant database names that follow the
// <tenant>_<layer> naming convention.
func (t *Tenant) ApplyDefaults() {
	if t.UnionDatabase == "" {
		t.UnionDatabase = t.Name + "_prod_union"
	}
	if t.BaseDatabase == "" {
		t.BaseDatabase = t.Name + "_base_tables"
	}
	if t.DashboardDatabase == "" {
		t.DashboardDatabase = t.Name + "_dashboard_tables"
	}
}

// Tenant returns the tenant with the given name, matched case-insensitively.
func (c *Config) Tenant(name string) (Tenant, bool) {
	for _, t := range c.Tenants {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return Tenant{}, false
}

// ConnectTimeout returns the parsed connection timeout or the default.
func (s Snowflake) ConnectTimeout() time.Duration {
	return durationOr(s.Timeout, DefaultConnectTimeout)
}

// QueryTimeoutDuration returns the per-query timeout or the default.
func (r Runtime) QueryTimeoutDuration() time.Duration {
	return durationOr(r.QueryTimeout, DefaultQueryTimeout)
}

func durationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
