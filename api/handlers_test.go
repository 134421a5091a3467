/*
handlers_test.go - Tests for API handlers

Tests for:
- Sprint CRUD and sprint-day suggestion
- Daily updates with defaulted sprint day
- Compensation compute, milestones, save, export/import, email
- Error mapping (400 / 404)
*/
package api

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/sprint-engine/compensation"
	"github.com/warp/sprint-engine/notify"
	"github.com/warp/sprint-engine/sprint"
	"github.com/warp/sprint-engine/store/sqlite"
	"go.uber.org/zap"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type recordingMailer struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (m *recordingMailer) Send(_ context.Context, msg notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

type testServer struct {
	handler *Handler
	router  http.Handler
	mailer  *recordingMailer
}

// Wednesday of the first sprint week.
var testNow = time.Date(2025, time.January, 8, 10, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	mailer := &recordingMailer{}
	h := NewHandler(store, mailer, zap.NewNop())
	h.MailFrom = "sprints@example.com"
	h.Now = func() time.Time { return testNow }

	return &testServer{
		handler: h,
		router:  NewRouter(h, []string{"http://localhost:3000"}),
		mailer:  mailer,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (ts *testServer) createSprint(t *testing.T, id string) SprintDTO {
	t.Helper()
	start := "2025-01-06"
	rec := ts.do(t, http.MethodPost, "/api/sprints", CreateSprintRequest{
		ID:         id,
		Title:      "Acme onboarding",
		ClientName: "Acme",
		StartDate:  &start,
		Weeks:      2,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[SprintDTO](t, rec)
}

func ptr[T any](v T) *T { return &v }

func exampleInputs() CompensationInputDTO {
	return CompensationInputDTO{
		SprintID:            "acme-1",
		TotalProjectValue:   10000,
		UpfrontFraction:     0.4,
		EquitySplitFraction: 0.5,
		MissOutcome:         string(compensation.MissReduced50),
		Milestones: []MilestoneDTO{
			{ID: "m-1", Summary: "Launch, public beta", Multiplier: ptr(2.0), Date: "2025-03-01"},
			{ID: "m-2", Summary: "Pending", Multiplier: nil, Date: "2025-04-01"},
		},
	}
}

// =============================================================================
// SPRINT TESTS
// =============================================================================

func TestSprints_CreateGetListDelete(t *testing.T) {
	ts := newTestServer(t)

	// GIVEN: A created sprint
	created := ts.createSprint(t, "acme-1")
	assert.Equal(t, 10, created.TotalDays)
	require.NotNil(t, created.StartDate)
	assert.Equal(t, "2025-01-06", *created.StartDate)

	// WHEN/THEN: It can be read and listed
	rec := ts.do(t, http.MethodGet, "/api/sprints/acme-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Acme onboarding", decode[SprintDTO](t, rec).Title)

	rec = ts.do(t, http.MethodGet, "/api/sprints", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]SprintDTO](t, rec), 1)

	// WHEN: Deleted
	rec = ts.do(t, http.MethodDelete, "/api/sprints/acme-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// THEN: It is gone
	rec = ts.do(t, http.MethodGet, "/api/sprints/acme-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(t, http.MethodDelete, "/api/sprints/acme-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateSprint_Validation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/sprints", CreateSprintRequest{Title: " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "title", decode[ErrorResponse](t, rec).Field)

	rec = ts.do(t, http.MethodPost, "/api/sprints", CreateSprintRequest{Title: "x", StartDate: ptr("not a date")})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/sprints", map[string]any{"title": "x", "unknown": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown fields are rejected")
}

func TestCreateSprint_Defaults(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/sprints", CreateSprintRequest{Title: "Unscheduled"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	dto := decode[SprintDTO](t, rec)
	assert.NotEmpty(t, dto.ID)
	assert.Equal(t, 2, dto.Weeks)
	assert.Nil(t, dto.StartDate)
}

func TestGetSprintDay(t *testing.T) {
	ts := newTestServer(t)
	ts.createSprint(t, "acme-1")

	tests := []struct {
		name string
		path string
		want int
	}{
		{"defaults to now", "/api/sprints/acme-1/sprint-day", 3},
		{"following monday", "/api/sprints/acme-1/sprint-day?date=2025-01-13", 6},
		{"clamped to sprint length", "/api/sprints/acme-1/sprint-day?date=2025-03-01", 10},
		{"before start", "/api/sprints/acme-1/sprint-day?date=2024-12-30", 1},
		{"far future date", "/api/sprints/acme-1/sprint-day?date=9999-12-31", 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodGet, tt.path, nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			dto := decode[SprintDayDTO](t, rec)
			assert.Equal(t, tt.want, dto.SprintDay)
			assert.Equal(t, 10, dto.TotalDays)
		})
	}

	rec := ts.do(t, http.MethodGet, "/api/sprints/acme-1/sprint-day?date=soon", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// DAILY UPDATE TESTS
// =============================================================================

func TestDailyUpdates(t *testing.T) {
	ts := newTestServer(t)
	ts.createSprint(t, "acme-1")

	// GIVEN: An update posted without a sprint day
	rec := ts.do(t, http.MethodPost, "/api/sprints/acme-1/updates", CreateDailyUpdateRequest{
		Body:  "Shipped the importer",
		Links: []sprint.Link{{URL: "https://example.com/pr/1", Label: "PR"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// THEN: The day is derived from the clock
	created := decode[DailyUpdateDTO](t, rec)
	assert.Equal(t, 3, created.SprintDay)

	// AND: An explicit day outside the sprint is rejected
	rec = ts.do(t, http.MethodPost, "/api/sprints/acme-1/updates", CreateDailyUpdateRequest{SprintDay: 11, Body: "late"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/sprints/acme-1/updates", CreateDailyUpdateRequest{SprintDay: 1, Body: "kickoff"})
	require.Equal(t, http.StatusCreated, rec.Code)

	// WHEN: Listing
	rec = ts.do(t, http.MethodGet, "/api/sprints/acme-1/updates", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	updates := decode[[]DailyUpdateDTO](t, rec)

	// THEN: Ordered by sprint day
	require.Len(t, updates, 2)
	assert.Equal(t, "kickoff", updates[0].Body)
	assert.Equal(t, "Shipped the importer", updates[1].Body)
	assert.Len(t, updates[1].Links, 1)

	rec = ts.do(t, http.MethodGet, "/api/sprints/nope/updates", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// COMPENSATION TESTS
// =============================================================================

func TestCompute(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/compensation/compute", exampleInputs())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[ComputeResponse](t, rec)

	b := resp.Breakdown
	assert.InDelta(t, 4000, b.UpfrontAmount, 1e-9)
	assert.InDelta(t, 3000, b.EquityAmount, 1e-9)
	assert.InDelta(t, 3000, b.DeferredAmount, 1e-9)
	assert.InDelta(t, 10000, b.UpfrontAmount+b.EquityAmount+b.DeferredAmount, 1e-9)

	require.Len(t, resp.Milestones, 2)
	first := resp.Milestones[0]
	require.NotNil(t, first.TotalCost)
	assert.InDelta(t, 6000, *first.DeferredPayout, 1e-9)
	assert.InDelta(t, 6000, *first.EquityPayout, 1e-9)
	assert.InDelta(t, 16000, *first.TotalCost, 1e-9)

	assert.Nil(t, resp.Milestones[1].TotalCost, "no payout without a multiplier")
	assert.InDelta(t, 2, resp.TotalMultiplier, 1e-9)
	assert.InDelta(t, 6000, resp.MilestoneBonusAmount, 1e-9)
	assert.Equal(t, "Reduced to 50%", resp.MissOutcomeLabel)
}

func TestCompute_ClampsFractions(t *testing.T) {
	ts := newTestServer(t)

	in := exampleInputs()
	in.UpfrontFraction = 0.05
	in.EquitySplitFraction = 0.95
	rec := ts.do(t, http.MethodPost, "/api/compensation/compute", in)
	require.Equal(t, http.StatusOK, rec.Code)

	b := decode[ComputeResponse](t, rec).Breakdown
	assert.InDelta(t, 0.2, b.UpfrontFraction, 1e-9)
	assert.InDelta(t, 0.8, b.EquitySplitFraction, 1e-9)
}

func TestAddMilestone(t *testing.T) {
	ts := newTestServer(t)

	// GIVEN: One existing milestone
	existing := []MilestoneDTO{{ID: "m-1", Summary: "Launch", Multiplier: ptr(1.0), Date: "2025-03-01"}}

	// WHEN: Adding a valid one
	rec := ts.do(t, http.MethodPost, "/api/compensation/milestones", AddMilestoneRequest{
		Milestones: existing,
		Summary:    "  Series A  ",
		Multiplier: 1.5,
		Date:       "2025-06-01",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[AddMilestoneResponse](t, rec)

	// THEN: It is appended with a fresh id
	require.Len(t, resp.Milestones, 2)
	assert.Equal(t, "m-1", resp.Milestones[0].ID)
	assert.Equal(t, "Series A", resp.Milestone.Summary)
	assert.NotEmpty(t, resp.Milestone.ID)
	assert.Equal(t, resp.Milestone, resp.Milestones[1])

	rejections := []struct {
		name  string
		req   AddMilestoneRequest
		field string
	}{
		{"blank summary", AddMilestoneRequest{Multiplier: 1, Date: "2025-06-01"}, "summary"},
		{"zero multiplier", AddMilestoneRequest{Summary: "x", Date: "2025-06-01"}, "multiplier"},
		{"bad date", AddMilestoneRequest{Summary: "x", Multiplier: 1, Date: "someday"}, "date"},
	}
	for _, tt := range rejections {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/compensation/milestones", tt.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.field, decode[ErrorResponse](t, rec).Field)
		})
	}
}

func TestSaveAndListCompensationPlans(t *testing.T) {
	ts := newTestServer(t)
	ts.createSprint(t, "acme-1")

	// GIVEN: A valid plan
	in := exampleInputs()
	in.Milestones = in.Milestones[:1]

	// WHEN: Saved twice
	rec := ts.do(t, http.MethodPost, "/api/sprints/acme-1/compensation", SaveCompensationRequest{Label: "first", Inputs: in})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	in.TotalProjectValue = 20000
	rec = ts.do(t, http.MethodPost, "/api/sprints/acme-1/compensation", SaveCompensationRequest{Inputs: in})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// THEN: Listing returns newest first
	rec = ts.do(t, http.MethodGet, "/api/sprints/acme-1/compensation", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	plans := decode[[]SavedPlanDTO](t, rec)
	require.Len(t, plans, 2)
	assert.InDelta(t, 20000, plans[0].Snapshot.Inputs.TotalProjectValue, 1e-9)
	assert.Nil(t, plans[0].Snapshot.Label)
	require.NotNil(t, plans[1].Snapshot.Label)
	assert.Equal(t, "first", *plans[1].Snapshot.Label)
	assert.InDelta(t, 6000, plans[1].Snapshot.Outputs.MilestoneBonusAmount, 1e-9)
}

func TestSaveCompensationPlan_Rejections(t *testing.T) {
	ts := newTestServer(t)
	ts.createSprint(t, "acme-1")

	// A milestone without a multiplier cannot be saved.
	rec := ts.do(t, http.MethodPost, "/api/sprints/acme-1/compensation", SaveCompensationRequest{Inputs: exampleInputs()})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "multiplier", decode[ErrorResponse](t, rec).Field)

	rec = ts.do(t, http.MethodPost, "/api/sprints/missing/compensation", SaveCompensationRequest{Inputs: exampleInputs()})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportImportRoundTrip(t *testing.T) {
	ts := newTestServer(t)

	// GIVEN: An exported plan
	in := exampleInputs()
	rec := ts.do(t, http.MethodPost, "/api/compensation/export", in)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="compensation-acme-1.csv"`)
	csvBody := rec.Body.String()
	assert.Contains(t, csvBody, `"$10,000.00"`)

	// WHEN: Importing it back as a raw body
	req := httptest.NewRequest(http.MethodPost, "/api/compensation/import", strings.NewReader(csvBody))
	req.Header.Set("Content-Type", "text/csv")
	rec = httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[ImportResponse](t, rec)

	// THEN: The calculator state is restored
	assert.InDelta(t, 10000, resp.Inputs.TotalProjectValue, 1e-9)
	assert.InDelta(t, 0.4, resp.Inputs.UpfrontFraction, 1e-9)
	assert.InDelta(t, 0.5, resp.Inputs.EquitySplitFraction, 1e-9)
	assert.Equal(t, string(compensation.MissReduced50), resp.Inputs.MissOutcome)
	assert.Equal(t, "acme-1", resp.Inputs.SprintID)

	// AND: Only the row with a multiplier qualifies
	assert.Equal(t, 1, resp.MilestonesImported)
	require.Len(t, resp.Inputs.Milestones, 1)
	assert.Equal(t, "Launch, public beta", resp.Inputs.Milestones[0].Summary)
}

func TestImportCSV_Multipart(t *testing.T) {
	ts := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "plan.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte("Field,Value\nTotal Project Value,\"$2,500.00\"\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/compensation/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[ImportResponse](t, rec)
	assert.InDelta(t, 2500, resp.Inputs.TotalProjectValue, 1e-9)
	assert.Equal(t, []string{compensation.LabelTotalProjectValue}, resp.Applied)
	assert.InDelta(t, 0.5, resp.Inputs.UpfrontFraction, 1e-9, "untouched fields keep defaults")
}

func TestImportCSV_BasedOnSavedPlan(t *testing.T) {
	ts := newTestServer(t)
	ts.createSprint(t, "acme-1")

	in := exampleInputs()
	in.Milestones = in.Milestones[:1]
	rec := ts.do(t, http.MethodPost, "/api/sprints/acme-1/compensation", SaveCompensationRequest{Inputs: in})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Only the total is present; everything else comes from the saved plan.
	req := httptest.NewRequest(http.MethodPost, "/api/compensation/import?sprint_id=acme-1",
		strings.NewReader("Field,Value\nTotal Project Value,\"$50,000\"\n"))
	rec = httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[ImportResponse](t, rec)
	assert.InDelta(t, 50000, resp.Inputs.TotalProjectValue, 1e-9)
	assert.InDelta(t, 0.4, resp.Inputs.UpfrontFraction, 1e-9)
	require.Len(t, resp.Inputs.Milestones, 1)
	assert.Equal(t, "m-1", resp.Inputs.Milestones[0].ID)
}

func TestImportCSV_EmptyFile(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/compensation/import", strings.NewReader("  \n"))
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Could not import CSV", decode[ErrorResponse](t, rec).Error)
}

func TestEmailCompensation(t *testing.T) {
	ts := newTestServer(t)

	// WHEN: Emailing a plan to two recipients
	rec := ts.do(t, http.MethodPost, "/api/compensation/email", EmailRequest{
		Recipients: "ana@example.com; bo@example.com",
		Label:      "Offer v2",
		Inputs:     exampleInputs(),
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	// THEN: One message reaches the mailer
	require.Len(t, ts.mailer.sent, 1)
	msg := ts.mailer.sent[0]
	assert.Equal(t, "sprints@example.com", msg.From)
	assert.Equal(t, []string{"ana@example.com", "bo@example.com"}, msg.To)
	assert.Contains(t, msg.Subject, "acme-1")
	assert.Contains(t, msg.Body, "Total Project Value: $10,000.00")

	// AND: Bad recipients are a client error
	rec = ts.do(t, http.MethodPost, "/api/compensation/email", EmailRequest{Recipients: "not-an-address", Inputs: exampleInputs()})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, ts.mailer.sent, 1)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
