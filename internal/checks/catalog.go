package checks

// Info describes one entry of the check catalog.
type Info struct {
	ID          string
	Stage       int
	Name        string
	Description string
}

// Catalog lists every check in execution order.
var Catalog = []Info{
	{"1.1", 1, "RegionRowCount", "Regional source row count equals the union table's rows for that region"},
	{"1.2", 1, "NullRegions", "Union table has no rows with a null region"},
	{"2.1", 2, "PrimaryKeyCount", "Distinct primary key count of a base table equals its parent's"},
	{"2.2", 2, "PrimaryKeySet", "Base and parent primary key sets are equal"},
	{"2.3", 2, "PrimaryKeyUniqueness", "No primary key value is duplicated in a base table"},
	{"2.4", 2, "DefinitionCoverage", "Definition look-up tables cover every live production value"},
	{"3.1", 3, "PathwaySum", "\"Select all\" equals the sum of the pathways, less shared entities"},
	{"3.2", 3, "DashboardSum", "Dashboard statistic sum equals the base-computed value (runs 3.1)"},
	{"3.3", 3, "CumulativeTotal", "Cumulative statistic summed over regions equals the base total"},
	{"3.4", 3, "PathwayInvariant", "Pathway-invariant statistic is identical for every pathway and equals base"},
	{"3.5", 3, "BusinessLogic", "Business logic query equals the base query"},
	{"3.6", 3, "DashboardComparison", "Two dashboard queries satisfy the configured comparison"},
}

// Lookup returns the catalog entry for id.
func Lookup(id string) (Info, bool) {
	for _, c := range Catalog {
		if c.ID == id {
			return c, true
		}
	}
	return Info{}, false
}
