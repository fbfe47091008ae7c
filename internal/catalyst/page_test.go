package catalyst

import "testing"

func TestParsePageBareArray(t *testing.T) {
	page, err := parsePage([]byte(`[{"EntityID": "1"}, {"EntityID": "2"}]`))
	if err != nil {
		t.Fatalf("parsePage returned error: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(page.Items))
	}
	if page.PageNumber != 0 || page.PagesTotal != 0 {
		t.Errorf("expected no pagination metadata, got page %d/%d", page.PageNumber, page.PagesTotal)
	}
	if page.Last() {
		t.Error("page without metadata must not report last")
	}
}

func TestParsePageDataEnvelope(t *testing.T) {
	body := `{"Data": [{"EntityID": "1"}], "PageNumber": 2, "PagesTotal": 5, "TotalItems": 42}`
	page, err := parsePage([]byte(body))
	if err != nil {
		t.Fatalf("parsePage returned error: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(page.Items))
	}
	if page.PageNumber != 2 || page.PagesTotal != 5 || page.TotalItems != 42 {
		t.Errorf("unexpected metadata: %+v", page)
	}
	if page.Last() {
		t.Error("page 2 of 5 must not report last")
	}
}

func TestParsePageItemsEnvelope(t *testing.T) {
	body := `{"items": [{"EntityID": "1"}, {"EntityID": "2"}], "PageNumber": 3, "PagesTotal": 3}`
	page, err := parsePage([]byte(body))
	if err != nil {
		t.Fatalf("parsePage returned error: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(page.Items))
	}
	if !page.Last() {
		t.Error("final page must report last")
	}
}

func TestParsePageSingleObject(t *testing.T) {
	page, err := parsePage([]byte(`{"EntityID": "7", "Name": "Acme"}`))
	if err != nil {
		t.Fatalf("parsePage returned error: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(page.Items))
	}
	if page.Items[0]["EntityID"] != "7" {
		t.Errorf("unexpected item: %v", page.Items[0])
	}
}

func TestParsePageSingleObjectUnderData(t *testing.T) {
	page, err := parsePage([]byte(`{"Data": {"EntityID": "9"}}`))
	if err != nil {
		t.Fatalf("parsePage returned error: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(page.Items))
	}
}

func TestParsePageEmpty(t *testing.T) {
	for _, body := range []string{`[]`, `{"Data": []}`, `{"items": []}`, `{"Data": null}`} {
		page, err := parsePage([]byte(body))
		if err != nil {
			t.Fatalf("parsePage(%s) returned error: %v", body, err)
		}
		if !page.Empty() {
			t.Errorf("parsePage(%s) expected empty page", body)
		}
	}
}

func TestParsePageMalformed(t *testing.T) {
	for _, body := range []string{`"just a string"`, `42`, `{not json`, `[1, 2, 3]`} {
		if _, err := parsePage([]byte(body)); err == nil {
			t.Errorf("parsePage(%s) expected error", body)
		}
	}
}
