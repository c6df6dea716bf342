package ids

import "testing"

func TestSanitizeComponent(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"MyApp_cor_001":  "myapp-cor-001",
		"  Weird name! ": "weird-name",
		"a--b__c":        "a-b-c",
		"---":            "",
	}
	for in, want := range cases {
		if got := SanitizeComponent(in); got != want {
			t.Fatalf("SanitizeComponent(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOrderKeyStableAndDistinct(t *testing.T) {
	t.Parallel()

	a := OrderKey("MyApp_cor_001", 0)
	if a != OrderKey("MyApp_cor_001", 0) {
		t.Fatalf("OrderKey not stable")
	}
	if a == OrderKey("MyApp_cor_001", 1) {
		t.Fatalf("cycle must change the key")
	}
	if a == OrderKey("MyApp_cor_002", 0) {
		t.Fatalf("test id must change the key")
	}
	if len(a) != 64 {
		t.Fatalf("expected sha256 hex, got %q", a)
	}
}
