package extract

import "testing"

func TestLookupKnownResource(t *testing.T) {
	r, err := Lookup("policies")
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if r.Table != "raw_policies" {
		t.Errorf("expected table raw_policies, got %q", r.Table)
	}
	if r.Endpoint != "Policies/LastModifiedCreated" {
		t.Errorf("unexpected endpoint %q", r.Endpoint)
	}
	if len(r.IDFields) != 2 || r.IDFields[0] != "EntityID" || r.IDFields[1] != "PolicyId" {
		t.Errorf("unexpected ID fields %v", r.IDFields)
	}
}

func TestLookupUnknownResource(t *testing.T) {
	if _, err := Lookup("spaceships"); err == nil {
		t.Fatal("expected error for unknown resource")
	}
}

func TestExpandEndpoint(t *testing.T) {
	quotes, err := Lookup("quotes")
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if got := quotes.ExpandEndpoint("P-42"); got != "Policies/P-42/Quotes" {
		t.Errorf("ExpandEndpoint = %q", got)
	}

	fees, err := Lookup("fees")
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if got := fees.ExpandEndpoint("LOC-1"); got != "Locations/LOC-1/Fees" {
		t.Errorf("ExpandEndpoint = %q", got)
	}
}

func TestDefaultOrderRespectsDependencies(t *testing.T) {
	order := DefaultOrder()
	if len(order) != len(All()) {
		t.Fatalf("expected %d resources in order, got %d", len(All()), len(order))
	}

	position := make(map[string]int, len(order))
	for i, r := range order {
		if _, dup := position[r.Name]; dup {
			t.Fatalf("resource %q appears twice", r.Name)
		}
		position[r.Name] = i
	}

	for _, r := range All() {
		for _, dep := range r.DependsOn {
			if position[dep] >= position[r.Name] {
				t.Errorf("%q must come after its dependency %q", r.Name, dep)
			}
		}
	}
}
