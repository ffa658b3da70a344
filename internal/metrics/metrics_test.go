package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read scrape: %v", err)
	}
	return string(body)
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveMerge("majority", 3, 2*time.Millisecond)
	ObserveSubmission(4, 1)
	ObserveExport("conll", nil)
	ObserveExport("pdf", errors.New("no chromium"))

	body := scrape(t)
	for _, want := range []string{
		`nercollab_merges_total{policy="majority"}`,
		`nercollab_merged_annotations_total{policy="majority"}`,
		`nercollab_merge_duration_seconds_bucket{policy="majority"`,
		`nercollab_submissions_total`,
		`nercollab_submitted_spans_total{result="rejected"}`,
		`nercollab_exports_total{format="pdf",result="error"}`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("scrape missing %s", want)
		}
	}
}
