package dhbvn

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"dhbvn-alerts/internal/models"
)

const apiPath = "/api/AppsavyServices/GetRelationalDataA"

// requestTemplate is the portal's form request envelope. The inner Parent
// Value carries the district ID.
const requestTemplate = `<?xml version="1.0"?><Request VERSION="2" LANGUAGE_ID="1" LOCATION=""><Company Company_Id="93" /><Project Project_Id="304" /><User User_Id="Anonymous" /><IUVLogin IUVLogin_Id="Anonymous" /><ROLE ROLE_ID="1595" /><Event Control_Id="130404" /><Child Control_Id="125681" Report="HTML" AC_ID="163944"><Parent Control_Id="130402" Value="%d" Data_Form_Id=""/></Child></Request>`

// Headers carries the opaque auth headers the portal expects on every call.
type Headers struct {
	FormID     string
	Login      string
	SourceType string
	Version    string
	Token      string
	RoleID     string
}

// Client scrapes the DHBVN outage-reporting API for one district at a time.
type Client struct {
	baseURL    string
	headers    Headers
	httpClient *http.Client

	// now is swapped in tests to pin the expiry filter.
	now func() time.Time
}

// NewClient creates a portal client. baseURL is the portal origin without
// a trailing slash.
func NewClient(baseURL string, headers Headers) *Client {
	return &Client{
		baseURL: baseURL,
		headers: headers,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: time.Now,
	}
}

// portalResponse mirrors the portal's XML envelope far enough to reach the
// outage rowset.
type portalResponse struct {
	XMLName xml.Name `xml:"RESULT"`
	Results []struct {
		Rows []portalRow `xml:"Rowset"`
	} `xml:"RESULTS"`
}

type portalRow struct {
	Feeder          string `xml:"FEEDER"`
	Area            string `xml:"AREA"`
	StartTime       string `xml:"START_TIME"`
	RestorationTime string `xml:"EXPECTED_RESTORATION_TIME"`
	Address         string `xml:"ADDRESS"`
}

// FetchOutages returns the current outage records for a district. A nil
// error with an empty slice means the portal reported no outages; any fetch
// or decode problem is returned as an error so the caller never confuses
// failure with a genuinely empty result.
func (c *Client) FetchOutages(ctx context.Context, districtID int) ([]models.OutageRecord, error) {
	payload, err := json.Marshal(map[string]string{
		"inputxml":   base64.StdEncoding.EncodeToString(fmt.Appendf(nil, requestTemplate, districtID)),
		"DocVersion": "1",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	req.Header.Set("formid", c.headers.FormID)
	req.Header.Set("appsavylogin", c.headers.Login)
	req.Header.Set("sourcetype", c.headers.SourceType)
	req.Header.Set("version", c.headers.Version)
	req.Header.Set("token", c.headers.Token)
	req.Header.Set("ROLEID", c.headers.RoleID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", apiPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("portal returned %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("empty response from portal")
	}

	records, err := c.decodeOutages(body)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// decodeOutages parses the XML envelope, drops rows missing required
// fields, drops outages whose expected restoration already passed, and
// sorts by area then feeder for a stable order across polls.
func (c *Client) decodeOutages(body []byte) ([]models.OutageRecord, error) {
	var parsed portalResponse
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode portal xml: %w", err)
	}
	if len(parsed.Results) == 0 {
		return nil, fmt.Errorf("unexpected portal response structure")
	}

	now := c.now()
	records := make([]models.OutageRecord, 0, len(parsed.Results[0].Rows))
	for _, row := range parsed.Results[0].Rows {
		if row.Area == "" || row.Feeder == "" || row.StartTime == "" || row.RestorationTime == "" {
			continue
		}
		restoration, err := ParseISTTime(row.RestorationTime)
		if err != nil || !restoration.After(now) {
			continue
		}
		records = append(records, models.OutageRecord{
			Area:            row.Area,
			Feeder:          row.Feeder,
			StartTime:       row.StartTime,
			RestorationTime: row.RestorationTime,
			Reason:          strings.TrimSpace(row.Address),
		})
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Area != records[j].Area {
			return records[i].Area < records[j].Area
		}
		return records[i].Feeder < records[j].Feeder
	})
	return records, nil
}
