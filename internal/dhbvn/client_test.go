package dhbvn

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const sampleXML = `<?xml version="1.0"?>
<RESULT EVENT_CONTROL="130404">
  <RESULTS CHILDCONTROLID="125681" AC_ID="163944" SECCONTROLID="0">
    <Rowset>
      <FEEDER>67aa</FEEDER>
      <AREA>Sector 16</AREA>
      <START_TIME>16-Apr-2025 10:24:00</START_TIME>
      <EXPECTED_RESTORATION_TIME>16-Apr-2025 12:44:00</EXPECTED_RESTORATION_TIME>
      <ADDRESS> breakdown </ADDRESS>
    </Rowset>
    <Rowset>
      <FEEDER>55b</FEEDER>
      <AREA>Industrial Area</AREA>
      <START_TIME>16-Apr-2025 09:00:00</START_TIME>
      <EXPECTED_RESTORATION_TIME>16-Apr-2025 11:30:00</EXPECTED_RESTORATION_TIME>
      <ADDRESS>maintenance</ADDRESS>
    </Rowset>
    <Rowset>
      <FEEDER>12c</FEEDER>
      <AREA>Old City</AREA>
      <START_TIME>16-Apr-2025 06:00:00</START_TIME>
      <EXPECTED_RESTORATION_TIME>16-Apr-2025 08:00:00</EXPECTED_RESTORATION_TIME>
      <ADDRESS>expired</ADDRESS>
    </Rowset>
    <Rowset>
      <FEEDER></FEEDER>
      <AREA>Missing Feeder</AREA>
      <START_TIME>16-Apr-2025 10:00:00</START_TIME>
      <EXPECTED_RESTORATION_TIME>16-Apr-2025 14:00:00</EXPECTED_RESTORATION_TIME>
    </Rowset>
  </RESULTS>
</RESULT>`

// fixedNow pins the expiry filter between the sample's restoration times.
var fixedNow = time.Date(2025, time.April, 16, 10, 30, 0, 0, IST)

func testClient(baseURL string) *Client {
	c := NewClient(baseURL, Headers{FormID: "11996", Token: "secret"})
	c.now = func() time.Time { return fixedNow }
	return c
}

func TestParseISTTime(t *testing.T) {
	got, err := ParseISTTime("16-Apr-2025 10:24:00")
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2025, time.April, 16, 10, 24, 0, 0, IST)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}

	if _, err := ParseISTTime("not a date"); err == nil {
		t.Error("expected error for malformed input")
	}
}

func TestDecodeOutages(t *testing.T) {
	records, err := testClient("").decodeOutages([]byte(sampleXML))
	if err != nil {
		t.Fatal(err)
	}

	// The expired row and the row missing its feeder are dropped.
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	// Sorted by area, then feeder.
	if records[0].Area != "Industrial Area" || records[1].Area != "Sector 16" {
		t.Errorf("unexpected sort order: %q, %q", records[0].Area, records[1].Area)
	}

	if records[1].Reason != "breakdown" {
		t.Errorf("expected trimmed reason %q, got %q", "breakdown", records[1].Reason)
	}
}

func TestDecodeOutages_BadStructure(t *testing.T) {
	if _, err := testClient("").decodeOutages([]byte(`<RESULT></RESULT>`)); err == nil {
		t.Error("expected error for response without RESULTS")
	}
	if _, err := testClient("").decodeOutages([]byte(`not xml at all`)); err == nil {
		t.Error("expected error for non-XML body")
	}
}

func TestFetchOutages(t *testing.T) {
	var gotPayload struct {
		InputXML   string `json:"inputxml"`
		DocVersion string `json:"DocVersion"`
	}
	var gotFormID string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFormID = r.Header.Get("formid")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotPayload)
		_, _ = w.Write([]byte(sampleXML))
	}))
	defer srv.Close()

	records, err := testClient(srv.URL).FetchOutages(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Errorf("expected 2 records, got %d", len(records))
	}

	if gotFormID != "11996" {
		t.Errorf("formid header not forwarded, got %q", gotFormID)
	}
	inner, err := base64.StdEncoding.DecodeString(gotPayload.InputXML)
	if err != nil {
		t.Fatalf("inputxml is not base64: %v", err)
	}
	if !strings.Contains(string(inner), `Value="10"`) {
		t.Errorf("request envelope missing district value: %s", inner)
	}
	if gotPayload.DocVersion != "1" {
		t.Errorf("expected DocVersion 1, got %q", gotPayload.DocVersion)
	}
}

func TestFetchOutages_ErrorsAreNotEmptyResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL).FetchOutages(context.Background(), 10); err == nil {
		t.Error("expected error for upstream failure")
	}

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer empty.Close()

	if _, err := testClient(empty.URL).FetchOutages(context.Background(), 10); err == nil {
		t.Error("expected error for empty body")
	}
}
