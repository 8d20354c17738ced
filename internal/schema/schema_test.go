package schema

import "testing"

func TestCanonicalCatalogColumn(t *testing.T) {
	tests := []struct {
		header string
		want   CatalogColumn
		ok     bool
	}{
		{"Rule ID", CatRuleID, true},
		{"  ruleid ", CatRuleID, true},
		{"Rule Category", CatRuleType, true},
		{"rule category", CatRuleType, true},
		{"Rule  Type", CatRuleType, true},
		{"Sub-Entity", CatSubEntity, true},
		{"sub entity", CatSubEntity, true},
		{"Ingest+UI/Ui Only", CatIngestUIOnly, true},
		{"Interface( Batch, API) ingestion Error Message", CatBatchErrorMessage, true},
		{"UI Error Message Under Field", CatUIFieldErrorMessage, true},
		{"Ｒｕｌｅ ＩＤ", CatRuleID, true}, // full-width
		{"Owner", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, ok := CanonicalCatalogColumn(tt.header)
			if ok != tt.ok || got != tt.want {
				t.Errorf("CanonicalCatalogColumn(%q) = (%q, %v), want (%q, %v)", tt.header, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestCanonicalRequestColumn(t *testing.T) {
	tests := []struct {
		header string
		want   RequestColumn
	}{
		{"RuleID", ReqRuleID},
		{"Rule Type", ReqRuleType},
		{"ZoneApplied", ReqZone},
		{"Source Owner", ReqSourceOwner},
		{"SourceOwnerName", ReqSourceOwner},
		{" Ticket ", ReqTicket},
	}

	for _, tt := range tests {
		got, ok := CanonicalRequestColumn(tt.header)
		if !ok || got != tt.want {
			t.Errorf("CanonicalRequestColumn(%q) = (%q, %v), want %q", tt.header, got, ok, tt.want)
		}
	}
}

func TestTableContracts(t *testing.T) {
	if n := len(ValidationRules.Columns); n != 24 {
		t.Errorf("validation_rules columns = %d, want 24", n)
	}
	if n := len(RuleExtensions.Columns); n != 16 {
		t.Errorf("des_validation_rules_extn columns = %d, want 16", n)
	}
	if n := len(ValidationRules.CompareColumns()); n != 23 {
		t.Errorf("validation_rules compare columns = %d, want 23", n)
	}
	if n := len(RuleExtensions.CompareColumns()); n != 15 {
		t.Errorf("des_validation_rules_extn compare columns = %d, want 15", n)
	}
	if ValidationRules.Columns[0].Name != ValidationRules.PrimaryKey {
		t.Errorf("first rules column = %q, want primary key", ValidationRules.Columns[0].Name)
	}

	c, ok := ValidationRules.Column("ENDORSEMENT_DATE")
	if !ok || c.Type != TypeDate {
		t.Errorf("Column(ENDORSEMENT_DATE) = %+v, %v", c, ok)
	}
}

func TestVersionPattern(t *testing.T) {
	re := ValidationRules.VersionPattern()

	m := re.FindStringSubmatch("load_validation_rules_data_ver_3_5_12.csv")
	if m == nil || m[1] != "3" || m[2] != "5" || m[3] != "12" {
		t.Fatalf("unexpected match: %v", m)
	}
	if re.MatchString("load_des_validation_rules_extn_data_ver_3_5_1.csv") {
		t.Error("rules pattern must not match extension files")
	}
	if re.MatchString("load_validation_rules_data_ver_3_5_1.csv.bak") {
		t.Error("pattern must be anchored at the end")
	}
	if got := RuleExtensions.FileName("3_5_1", "xml"); got != "load_des_validation_rules_extn_data_ver_3_5_1.xml" {
		t.Errorf("FileName = %q", got)
	}
}
