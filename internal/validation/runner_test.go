package validation

import (
	"context"
	"errors"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"dashcheck/internal/ledger"
	"dashcheck/internal/observability"
	"dashcheck/internal/testutil"
	"dashcheck/internal/warehouse"
	apperrors "dashcheck/pkg/errors"
	"dashcheck/pkg/models"
)

func acmeTenant() models.Tenant {
	t := models.Tenant{
		Name:            "acme",
		Regions:         []string{"uk", "eu"},
		SourceDatabases: []string{"acme_uk", "acme_eu"},
		Tables: map[string]models.PrimaryParent{
			"encounters": {
				KeyColumns:       []string{"encounter_id"},
				ParentQuery:      "FROM acme_prod_union.encounters",
				ParentKeyColumns: []string{"encounter_id"},
			},
		},
		Lineage: map[string][]string{
			"encounters": {"overview_weekly"},
		},
	}
	t.ApplyDefaults()
	return t
}

// stageOne scripts a clean stage 1 for acme with a single encounters table.
func stageOne(m *testutil.MockWarehouse, euUnion int64) {
	stageOneCounts(m, 100, euUnion)
}

// stageOneCounts scripts stage 1 with the given union counts for uk (source
// 100) and eu (source 50).
func stageOneCounts(m *testutil.MockWarehouse, ukUnion, euUnion int64) {
	m.On("information_schema.TABLES", "UPPER('acme_uk')").ReturnStrings("TABLE_NAME", "encounters")
	m.On("information_schema.TABLES", "UPPER('acme_eu')").ReturnStrings("TABLE_NAME", "encounters")
	m.On("SELECT COUNT(*) AS COUNT FROM acme_uk.encounters").ReturnCount(100)
	m.On("SELECT COUNT(*) AS COUNT FROM acme_eu.encounters").ReturnCount(50)
	m.On("FROM acme_prod_union.encounters WHERE region = 'uk'").ReturnCount(ukUnion)
	m.On("FROM acme_prod_union.encounters WHERE region = 'eu'").ReturnCount(euUnion)
	m.On("FROM acme_prod_union.encounters WHERE region IS NULL").ReturnCount(0)
}

func TestStage1Clean(t *testing.T) {
	m := testutil.NewMockWarehouse()
	stageOne(m, 50)
	metrics := observability.NewMetrics()

	l, err := NewRunner(m, WithMetrics(metrics)).Stage1(context.Background(), acmeTenant(), ledger.New("acme"))
	require.NoError(t, err)

	assert.Equal(t, 0, l.Len())
	assert.False(t, l.HasFailures())

	series, err := promtest.GatherAndCount(metrics.Registry(), "dashcheck_checks_total")
	require.NoError(t, err)
	assert.Equal(t, 2, series)
}

func TestStage1RegionMismatch(t *testing.T) {
	m := testutil.NewMockWarehouse()
	stageOne(m, 49)

	l, err := NewRunner(m).Stage1(context.Background(), acmeTenant(), ledger.New("acme"))
	require.NoError(t, err)

	rec, ok := l.Get("encounters")
	require.True(t, ok)
	assert.Equal(t, "acme_prod_union", rec.Database)

	require.Len(t, rec.Findings, 1)
	f, ok := rec.Finding("1.1")
	require.True(t, ok)
	assert.Equal(t, ledger.KindFailure, f.Kind)
	assert.Contains(t, f.Message, "FAILURE: Check 1.1 - Table encounters for region: eu")
	assert.Contains(t, f.Message, "expected 50 rows")
	assert.Contains(t, f.Message, "actual 49 rows")
}

func TestStage1EveryFailingRegionKept(t *testing.T) {
	m := testutil.NewMockWarehouse()
	stageOneCounts(m, 99, 49)

	l, err := NewRunner(m, WithWorkers(4)).Stage1(context.Background(), acmeTenant(), ledger.New("acme"))
	require.NoError(t, err)

	rec, ok := l.Get("encounters")
	require.True(t, ok)

	uk, ok := rec.Finding("1.1")
	require.True(t, ok)
	assert.Contains(t, uk.Message, "for region: uk")

	eu, ok := rec.Finding("1.1.eu")
	require.True(t, ok)
	assert.Contains(t, eu.Message, "for region: eu")

	_, ok = rec.Finding("1.1.uk")
	assert.False(t, ok)
}

func TestStage1SingleRegionKey(t *testing.T) {
	m := testutil.NewMockWarehouse()
	stageOne(m, 49)
	tenant := acmeTenant()
	tenant.Regions = []string{"eu"}
	tenant.SourceDatabases = []string{"acme_eu"}

	l, err := NewRunner(m).Stage1(context.Background(), tenant, ledger.New("acme"))
	require.NoError(t, err)

	failures := l.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "1.1", failures[0].Key)
}

func TestStage1MisalignedRegions(t *testing.T) {
	m := testutil.NewMockWarehouse()
	tenant := acmeTenant()
	tenant.SourceDatabases = []string{"acme_uk"}

	_, err := NewRunner(m).Stage1(context.Background(), tenant, ledger.New("acme"))
	require.Error(t, err)
	assert.True(t, apperrors.IsConfiguration(err))
	assert.Zero(t, m.QueryCount())
}

// stageTwo scripts acme's base tables: encounters (mapped) and AUDIT_LOG
// (unmapped). dup controls whether encounter b is duplicated.
func stageTwo(m *testutil.MockWarehouse, dup bool) {
	m.On("information_schema.TABLES", "UPPER('acme_base_tables')").ReturnStrings("TABLE_NAME", "AUDIT_LOG", "ENCOUNTERS")
	m.On("information_schema.COLUMNS", "UPPER('encounters')").ReturnStrings("COLUMN_NAME", "ENCOUNTER_ID", "REGION")
	m.On("SELECT COUNT(DISTINCT CAST(encounter_id AS VARCHAR)) AS COUNT FROM acme_base_tables.encounters").ReturnCount(3)
	m.On("SELECT COUNT(DISTINCT CAST(encounter_id AS VARCHAR)) AS COUNT FROM acme_prod_union.encounters").ReturnCount(3)
	m.On("SELECT DISTINCT CAST(encounter_id AS VARCHAR) AS PK FROM acme_base_tables.encounters").ReturnStrings("PK", "a", "b", "c")
	m.On("SELECT DISTINCT CAST(encounter_id AS VARCHAR) AS PK FROM acme_prod_union.encounters").ReturnStrings("PK", "a", "b", "c")

	dups := warehouse.NewResult([]string{"PK", "COUNTER"})
	if dup {
		dups.Rows = append(dups.Rows, warehouse.Row{warehouse.Text("b"), warehouse.Int(2)})
	}
	m.On("HAVING COUNT(*) > 1").Return(dups)
}

func TestStage2(t *testing.T) {
	m := testutil.NewMockWarehouse()
	stageTwo(m, true)
	m.On("SELECT DISTINCT name FROM acme_sandbox.roles_look_up").ReturnStrings("name", "nurse", "doctor")
	m.On("SELECT DISTINCT role_name FROM acme_prod_union.roles").ReturnStrings("role_name", "nurse", "doctor", "porter")

	tenant := acmeTenant()
	tenant.Definitions = []models.Definition{{
		Name:           "roles",
		LookUpDatabase: "acme_sandbox",
		LookUpTable:    "roles_look_up",
		LookUpColumn:   "name",
		ProdQuery:      "SELECT DISTINCT role_name FROM acme_prod_union.roles",
		ProdColumn:     "role_name",
	}}

	l, err := NewRunner(m).Stage2(context.Background(), tenant, ledger.New("acme"))
	require.NoError(t, err)

	failures := l.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "encounters", failures[0].Entity)
	assert.Equal(t, "2.3", failures[0].Key)
	assert.Contains(t, failures[0].Message, "Primary key constraint broken - primary key duplicates")
	assert.Contains(t, failures[0].Message, "1 duplicated key value(s)")

	audit, ok := l.Get("AUDIT_LOG")
	require.True(t, ok)
	f, ok := audit.Finding("2.0")
	require.True(t, ok)
	assert.Equal(t, ledger.KindNotChecked, f.Kind)
	assert.Contains(t, f.Message, "has not been checked for stage two checks")

	roles, ok := l.Get("roles")
	require.True(t, ok)
	f, ok = roles.Finding("2.4")
	require.True(t, ok)
	assert.Equal(t, ledger.KindWarning, f.Kind)
	assert.Contains(t, f.Message, "WARNING: Check 2.4 - Definition roles")
	assert.Contains(t, f.Message, "porter")

	assert.Equal(t, []string{"AUDIT_LOG", "encounters", "roles"}, l.Entities())
}

func TestStage2WithoutParentIsNotChecked(t *testing.T) {
	m := testutil.NewMockWarehouse()
	stageTwo(m, false)
	tenant := acmeTenant()
	tenant.Tables = map[string]models.PrimaryParent{
		"encounters": {KeyColumns: []string{"encounter_id"}},
	}

	l, err := NewRunner(m).Stage2(context.Background(), tenant, ledger.New("acme"))
	require.NoError(t, err)

	rec, ok := l.Get("encounters")
	require.True(t, ok)
	for _, key := range []string{"2.1", "2.2"} {
		f, ok := rec.Finding(key)
		require.True(t, ok, key)
		assert.Equal(t, ledger.KindNotChecked, f.Kind)
	}
	_, ok = rec.Finding("2.3")
	assert.False(t, ok)
	assert.False(t, l.HasFailures())
}

func TestStage2MappedTableMissing(t *testing.T) {
	m := testutil.NewMockWarehouse()
	m.On("information_schema.TABLES", "UPPER('acme_base_tables')").ReturnStrings("TABLE_NAME", "AUDIT_LOG")

	_, err := NewRunner(m).Stage2(context.Background(), acmeTenant(), ledger.New("acme"))
	require.Error(t, err)
	assert.True(t, apperrors.IsConfiguration(err))
	assert.Equal(t, 1, m.QueryCount())
}

func TestStage2MissingKeyColumn(t *testing.T) {
	m := testutil.NewMockWarehouse()
	m.On("information_schema.TABLES", "UPPER('acme_base_tables')").ReturnStrings("TABLE_NAME", "ENCOUNTERS")
	m.On("information_schema.COLUMNS").ReturnStrings("COLUMN_NAME", "ID", "REGION")

	_, err := NewRunner(m).Stage2(context.Background(), acmeTenant(), ledger.New("acme"))
	require.Error(t, err)
	assert.True(t, apperrors.IsConfiguration(err))
	assert.Contains(t, err.Error(), "encounter_id")
}

func TestStage3Counters(t *testing.T) {
	m := testutil.NewMockWarehouse()
	m.On("logic_one").ReturnValue(warehouse.Int(1))
	m.On("base_one").ReturnValue(warehouse.Int(1))
	m.On("logic_two").ReturnValue(warehouse.Int(5))
	m.On("base_two").ReturnValue(warehouse.Int(6))
	m.On("left_q").ReturnValue(warehouse.Int(10))
	m.On("right_q").ReturnValue(warehouse.Int(3))

	tenant := acmeTenant()
	tenant.BusinessLogic = []models.BusinessLogicCheck{
		{Name: "referral rate", DashboardTable: "overview_weekly", LogicQuery: "SELECT logic_one", BaseQuery: "SELECT base_one"},
		{Name: "discharge rate", DashboardTable: "overview_weekly", LogicQuery: "SELECT logic_two", BaseQuery: "SELECT base_two"},
	}
	tenant.Comparisons = []models.DashboardComparison{
		{Name: "waits below cap", DashboardTable: "waits", LeftQuery: "SELECT left_q", RightQuery: "SELECT right_q", Operator: "<"},
	}

	l, err := NewRunner(m).Stage3(context.Background(), tenant, ledger.New("acme"))
	require.NoError(t, err)

	failures := l.Failures()
	require.Len(t, failures, 2)

	assert.Equal(t, "overview_weekly", failures[0].Entity)
	assert.Equal(t, "3.5.2", failures[0].Key)
	assert.Contains(t, failures[0].Message, "business logic check failed - discharge rate")
	assert.Equal(t, "acme_dashboard_tables", failures[0].Database)

	assert.Equal(t, "waits", failures[1].Entity)
	assert.Equal(t, "3.6.1", failures[1].Key)
	assert.Contains(t, failures[1].Message, "10 < 3")
}

func TestExecuteKeepsCompletedResultsOnError(t *testing.T) {
	m := testutil.NewMockWarehouse()
	m.On("logic_one").ReturnValue(warehouse.Int(1))
	m.On("base_one").ReturnValue(warehouse.Int(2))
	m.On("logic_two").Fail(errors.New("connection reset by peer"))
	m.On("logic_three").ReturnValue(warehouse.Int(1))
	m.On("base_three").ReturnValue(warehouse.Int(2))

	tenant := acmeTenant()
	tenant.BusinessLogic = []models.BusinessLogicCheck{
		{Name: "one", DashboardTable: "a", LogicQuery: "SELECT logic_one", BaseQuery: "SELECT base_one"},
		{Name: "two", DashboardTable: "b", LogicQuery: "SELECT logic_two", BaseQuery: "SELECT base_two"},
		{Name: "three", DashboardTable: "c", LogicQuery: "SELECT logic_three", BaseQuery: "SELECT base_three"},
	}

	l, err := NewRunner(m).Stage3(context.Background(), tenant, ledger.New("acme"))
	require.Error(t, err)
	assert.True(t, apperrors.IsCollaborator(err))

	assert.Equal(t, []string{"a"}, l.Entities())
	for _, q := range m.GetExecutedQueries() {
		assert.NotContains(t, q.Query, "logic_three")
	}
}

func TestConcurrentRunMatchesSequential(t *testing.T) {
	defer goleak.VerifyNone(t)

	script := func() *testutil.MockWarehouse {
		m := testutil.NewMockWarehouse()
		m.Delay = 2 * time.Millisecond
		stageOne(m, 49)
		stageTwo(m, true)
		return m
	}

	sequential, err := NewRunner(script()).Run(context.Background(), acmeTenant(), ledger.New("acme"), 1, 2)
	require.NoError(t, err)

	concurrent, err := NewRunner(script(), WithWorkers(4)).Run(context.Background(), acmeTenant(), ledger.New("acme"), 1, 2)
	require.NoError(t, err)

	assert.Equal(t, sequential.Records(), concurrent.Records())
}

func TestRunTenantsStampsLineage(t *testing.T) {
	m := testutil.NewMockWarehouse()
	stageOne(m, 49)
	set := ledger.NewSet()

	err := NewRunner(m).RunTenants(context.Background(), []models.Tenant{acmeTenant()}, set, 1)
	require.NoError(t, err)

	require.Len(t, set.Ledgers(), 1)
	rec, ok := set.Ledgers()[0].Get("encounters")
	require.True(t, ok)
	assert.Equal(t, []string{"overview_weekly"}, rec.Dependencies)
	assert.True(t, set.HasFailures())
}

func TestRunCanceled(t *testing.T) {
	m := testutil.NewMockWarehouse()
	stageOne(m, 50)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(m).Run(ctx, acmeTenant(), ledger.New("acme"))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeCanceled, apperrors.GetErrorCode(err))
}

func TestParseStages(t *testing.T) {
	stages, err := ParseStages("")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, stages)

	stages, err = ParseStages("3, 1,3")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, stages)

	_, err = ParseStages("4")
	assert.Error(t, err)
}
