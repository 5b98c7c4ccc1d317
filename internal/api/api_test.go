package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jask/aquaflow/internal/database/dbtest"
	"github.com/jask/aquaflow/internal/database/repository"
	"github.com/jask/aquaflow/internal/llm"
	"github.com/jask/aquaflow/internal/metrics"
	"github.com/jask/aquaflow/internal/ratelimit"
	"github.com/jask/aquaflow/internal/realtime"
	"github.com/jask/aquaflow/internal/service"
	"github.com/jask/aquaflow/internal/storage"
)

const testSecret = "test-secret"

type testServer struct {
	*httptest.Server
	hub     *realtime.Hub
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := dbtest.Open(t)
	store, err := storage.NewFS(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	profiles := repository.NewProfileRepo(db)
	now := time.Now().UTC()
	for _, p := range []repository.Profile{
		{UserID: "admin-1", Name: "Admin", Email: "admin@aquaflow.example", Role: repository.RoleAdmin},
		{UserID: "cust-1", Name: "Pat", Email: "pat@example.com", Role: repository.RoleCustomer},
	} {
		p.CreatedAt, p.UpdatedAt = now, now
		require.NoError(t, profiles.Upsert(ctx, p))
	}

	hub := realtime.NewHub(64)
	m := metrics.New()
	svc := service.New(service.Deps{
		DB:            db,
		Store:         store,
		Hub:           hub,
		LLM:           llm.NewHeuristicProvider(),
		Metrics:       m,
		Logger:        zap.NewNop(),
		FollowUpAfter: 72 * time.Hour,
	})
	s := New(Options{
		Services:    svc,
		Hub:         hub,
		Metrics:     m,
		Limiter:     ratelimit.New(0.001, 2, time.Minute),
		Logger:      zap.NewNop(),
		JWTSecret:   testSecret,
		CORSOrigins: []string{"https://portal.example"},
	})
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(func() {
		s.closeStreams()
		ts.Close()
	})
	return &testServer{Server: ts, hub: hub, metrics: m}
}

func token(t *testing.T, sub string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (ts *testServer) do(t *testing.T, method, path, user string, body any) *http.Response {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, user))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func submitBody() map[string]any {
	return map[string]any{
		"customer_name":       "Pat Customer",
		"service_address":     "12 Lakeshore Rd",
		"contact_info":        "pat@example.com",
		"problem_category":    "leak_repair",
		"property_type":       "Residential",
		"is_homeowner":        "Yes",
		"problem_description": "Kitchen sink drips constantly",
		"preferred_timing":    "this week",
	}
}

func (ts *testServer) submit(t *testing.T, user string) repository.Request {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/api/requests/submit", user, submitBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out struct {
		Message string             `json:"message"`
		Request repository.Request `json:"request"`
	}
	decodeBody(t, resp, &out)
	require.Equal(t, "Quote request submitted successfully.", out.Message)
	return out.Request
}

func TestPublicRoutes(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/intake/categories", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cat struct {
		Categories []struct {
			Key string `json:"key"`
		} `json:"categories"`
	}
	decodeBody(t, resp, &cat)
	require.NotEmpty(t, cat.Categories)

	resp = ts.do(t, http.MethodGet, "/api/nope", "", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAuthentication(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/api/requests", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var body errorBody
	decodeBody(t, resp, &body)
	require.Equal(t, "unauthenticated", body.Error)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "cust-1"}).SignedString([]byte("other"))
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/requests", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+forged)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "admin-1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	resp, err = http.Get(ts.URL + "/api/requests?access_token=" + unsigned)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/requests?access_token=" + token(t, "cust-1"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSubmitAndVisibility(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	created := ts.submit(t, "cust-1")
	require.Equal(t, "new", created.Status)

	resp := ts.do(t, http.MethodGet, "/api/requests/"+created.ID, "cust-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/requests/"+created.ID, "cust-2", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var list []repository.Request
	resp = ts.do(t, http.MethodGet, "/api/requests", "cust-2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &list)
	require.Empty(t, list)

	resp = ts.do(t, http.MethodGet, "/api/requests", "admin-1", nil)
	decodeBody(t, resp, &list)
	require.Len(t, list, 1)
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	created := ts.submit(t, "cust-1")

	bad := submitBody()
	bad["contact_info"] = "not-an-email"
	resp := ts.do(t, http.MethodPost, "/api/requests/submit", "cust-1", bad)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body errorBody
	decodeBody(t, resp, &body)
	require.Contains(t, body.Error, "contact_info")

	resp = ts.do(t, http.MethodPatch, "/api/requests/"+created.ID+"/status", "cust-1", map[string]any{"status": "scheduled"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.do(t, http.MethodPatch, "/api/requests/"+created.ID+"/status", "admin-1", map[string]any{"status": "completed"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/requests/submit", strings.NewReader("{"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token(t, "cust-1"))
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	raw.Body.Close()
	require.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestQuoteFlowOverHTTP(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	created := ts.submit(t, "cust-1")

	resp := ts.do(t, http.MethodPost, "/api/requests/"+created.ID+"/quotes", "admin-1", map[string]any{
		"details":            "Replace trap",
		"quote_amount_cents": 25000,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var q repository.Quote
	decodeBody(t, resp, &q)

	path := "/api/requests/" + created.ID + "/quotes/" + q.ID + "/accept"
	resp = ts.do(t, http.MethodPost, path, "cust-2", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, path, "cust-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, path, "cust-1", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = ts.do(t, http.MethodDelete, "/api/requests/"+created.ID+"/quotes/"+q.ID, "admin-1", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var got repository.Request
	resp = ts.do(t, http.MethodGet, "/api/requests/"+created.ID, "cust-1", nil)
	decodeBody(t, resp, &got)
	require.Equal(t, "accepted", got.Status)
}

func TestInvoiceRequiresCompletedJob(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	created := ts.submit(t, "cust-1")

	items := map[string]any{
		"request_id":  created.ID,
		"labor_items": []map[string]any{{"description": "Labour", "quantity": 1, "unit_cents": 10000}},
	}
	resp := ts.do(t, http.MethodPost, "/api/invoices", "admin-1", items)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/invoices", "admin-1", map[string]any{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/invoices", "cust-1", items)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestFollowUpQuestionsRateLimited(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	body := map[string]any{
		"category":            "other",
		"problem_description": "weird noise",
		"clarifyingAnswers":   []map[string]string{{"question": "What is wrong?", "answer": "Something strange"}},
	}
	resp := ts.do(t, http.MethodPost, "/api/requests/gpt-follow-up", "", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		AdditionalQuestions []string `json:"additionalQuestions"`
	}
	decodeBody(t, resp, &out)
	require.NotNil(t, out.AdditionalQuestions)

	resp = ts.do(t, http.MethodPost, "/api/requests/gpt-follow-up", "", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = ts.do(t, http.MethodPost, "/api/requests/gpt-follow-up", "", body)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestUploadAndDownload(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	created := ts.submit(t, "cust-1")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("request_id", created.ID))
	fw, err := mw.CreateFormFile("attachment", "leak photo.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("drip drip"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/requests/attachments", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token(t, "cust-1"))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out struct {
		Attachments []repository.Attachment `json:"attachments"`
	}
	decodeBody(t, resp, &out)
	require.Len(t, out.Attachments, 1)
	a := out.Attachments[0]

	dl := ts.do(t, http.MethodGet, "/api/storage-object/"+a.ID, "cust-1", nil)
	require.Equal(t, http.StatusOK, dl.StatusCode)
	require.Contains(t, dl.Header.Get("Content-Disposition"), "inline")
	data, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	require.Equal(t, "drip drip", string(data))

	dl = ts.do(t, http.MethodGet, "/api/storage-object/"+a.ID, "cust-2", nil)
	require.Equal(t, http.StatusNotFound, dl.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/requests", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://portal.example")
	req.Header.Set("Access-Control-Request-Method", "GET")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "https://portal.example", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestMetricsUseRoutePattern(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	created := ts.submit(t, "cust-1")
	ts.do(t, http.MethodGet, "/api/requests/"+created.ID, "cust-1", nil)

	resp := ts.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `route="/api/requests/{id}`)
	require.NotContains(t, string(body), created.ID)
}

func TestEventStreamReplaysVisibleEvents(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.hub.Publish(realtime.Event{Table: "requests", Action: realtime.ActionInsert, ID: "r-other", OwnerID: "cust-2"})
	ts.hub.Publish(realtime.Event{Table: "requests", Action: realtime.ActionInsert, ID: "r-mine", OwnerID: "cust-1"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events?cursor=0&access_token="+token(t, "cust-1"), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	sc := bufio.NewScanner(resp.Body)
	var data string
	for sc.Scan() {
		if line := sc.Text(); strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	require.NotEmpty(t, data)
	var ev realtime.Event
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	require.Equal(t, "r-mine", ev.ID)
	require.EqualValues(t, 2, ev.Seq)
}

func TestEventStreamRejectsBadCursor(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/api/events?cursor=-4", "cust-1", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebSocketStream(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.hub.Publish(realtime.Event{Table: "quotes", Action: realtime.ActionInsert, ID: "q-1", RequestID: "r-1", OwnerID: "cust-1"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws?access_token=" + token(t, "admin-1")
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	var ev realtime.Event
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	require.Equal(t, "q-1", ev.ID)

	ts.hub.Publish(realtime.Event{Table: "requests", Action: realtime.ActionUpdate, ID: "r-1", OwnerID: "cust-1"})
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	require.Equal(t, "requests", ev.Table)
	require.Equal(t, realtime.ActionUpdate, ev.Action)
}

func TestStatusForMapsErrors(t *testing.T) {
	t.Parallel()
	cases := map[error]int{
		&service.ValidationError{Msg: "x"}: http.StatusBadRequest,
		service.ErrForbidden:               http.StatusForbidden,
		service.ErrNotFound:                http.StatusNotFound,
		service.ErrConflict:                http.StatusConflict,
		service.ErrTriageUnavailable:       http.StatusBadGateway,
		io.ErrUnexpectedEOF:                http.StatusInternalServerError,
	}
	for err, want := range cases {
		require.Equal(t, want, statusFor(err), err.Error())
	}
}
