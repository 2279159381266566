package handlers

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"carbonledger/auth"
	"carbonledger/config"
	"carbonledger/db"
	"carbonledger/middleware"
	"carbonledger/models"
	"carbonledger/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

type testServer struct {
	handler http.Handler
	store   *db.MemoryDB
	tokens  map[string]string
}

func newTestServer(t *testing.T, uploads config.UploadsConfig) *testServer {
	t.Helper()
	ctx := context.Background()
	store := db.NewMemoryDB()
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)

	tokens := map[string]string{}
	for _, u := range []models.User{
		{UserID: "alice", Name: "Alice", Email: "alice@example.com", Role: models.RoleUser, IsActive: true},
		{UserID: "bob", Name: "Bob", Email: "bob@example.com", Role: models.RoleNGO, IsActive: true},
		{UserID: "admin", Name: "Admin", Email: "admin@example.com", Role: models.RoleAdmin, IsActive: true},
		{UserID: "vera", Name: "Vera", Email: "vera@example.com", Role: models.RoleVerifier, IsActive: true},
	} {
		u := u
		require.NoError(t, store.CreateUser(ctx, &u))
		token, err := jwtManager.GenerateToken(&u)
		require.NoError(t, err)
		tokens[u.UserID] = token
	}

	logger := zap.NewNop()
	audit := services.NewAuditLogger(store, logger)
	dir := services.NewDirectory(store, nil, logger)
	fd := NewFieldDataHandler(services.NewFieldDataService(store, dir, audit, logger), uploads, logger, false)
	users := NewUserHandler(services.NewUserService(store, dir, nil, audit, logger), uploads.MaxBodySize, logger, false)

	mux := http.NewServeMux()
	RegisterRoutes(mux, fd, users, middleware.AuthMiddleware(jwtManager, dir, logger))
	return &testServer{handler: mux, store: store, tokens: tokens}
}

func defaultUploads() config.UploadsConfig {
	return config.Default().Uploads
}

func (s *testServer) do(t *testing.T, method, path, user string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+s.tokens[user])
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) doJSON(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	return s.do(t, method, path, user, r, "application/json")
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Errors  []string        `json:"errors"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

type recordJSON struct {
	ID          string          `json:"id"`
	PlotID      string          `json:"plotId"`
	Status      string          `json:"status"`
	GPSLatitude float64         `json:"gpsLatitude"`
	Photos      *models.Photos  `json:"photos"`
	SubmittedBy *models.UserRef `json:"submittedBy"`
	VerifiedBy  *models.UserRef `json:"verifiedBy"`
}

type submitData struct {
	FieldData recordJSON         `json:"fieldData"`
	Processed services.Processed `json:"processed"`
}

type listData struct {
	FieldData []recordJSON `json:"fieldData"`
	Count     int          `json:"count"`
}

type multipartFile struct {
	field, name, contentType string
	data                     []byte
}

func multipartBody(t *testing.T, fields map[string]string, files ...multipartFile) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+f.field+`"; filename="`+f.name+`"`)
		h.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func submission(plot string) map[string]any {
	return map[string]any{
		"plotId":         plot,
		"collectionDate": "2024-01-01",
		"gpsLatitude":    9.1,
		"gpsLongitude":   76.3,
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, defaultUploads())

	rec := s.do(t, http.MethodGet, "/health", "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode(t, rec).Success)
}

func TestRequiresAuthentication(t *testing.T) {
	s := newTestServer(t, defaultUploads())

	rec := s.doJSON(t, http.MethodGet, "/api/field-data/my-data", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Authentication required", decode(t, rec).Message)
}

func TestCreate_MissingFields(t *testing.T) {
	s := newTestServer(t, defaultUploads())

	rec := s.doJSON(t, http.MethodPost, "/api/field-data", "alice", map[string]any{"plotId": "MG-1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	env := decode(t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, "Missing required fields: collectionDate, gpsLatitude, gpsLongitude", env.Message)
	assert.Equal(t, []string{"collectionDate", "gpsLatitude", "gpsLongitude"}, env.Errors)
}

func TestCreate_InvalidBody(t *testing.T) {
	s := newTestServer(t, defaultUploads())

	rec := s.do(t, http.MethodPost, "/api/field-data", "alice", strings.NewReader(`[1,2]`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", decode(t, rec).Message)
}

func TestCreate_URLEncoded(t *testing.T) {
	s := newTestServer(t, defaultUploads())

	form := "plotId=MG-2&collectionDate=2024-01-01&gpsLatitude=9.1&gpsLongitude=76.3&dbh=12"
	rec := s.do(t, http.MethodPost, "/api/field-data", "alice", strings.NewReader(form), "application/x-www-form-urlencoded")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var data submitData
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &data))
	assert.Equal(t, "MG-2", data.FieldData.PlotID)
	assert.InDelta(t, 9.1, data.FieldData.GPSLatitude, 1e-9)
}

func TestDraftThenSubmit(t *testing.T) {
	s := newTestServer(t, defaultUploads())

	rec := s.doJSON(t, http.MethodPost, "/api/field-data/draft", "alice", map[string]any{"plotId": "MG-1", "plotNotes": "partial"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	env := decode(t, rec)
	assert.Equal(t, "Draft saved successfully", env.Message)
	var draft submitData
	require.NoError(t, json.Unmarshal(env.Data, &draft))
	assert.Equal(t, "draft", draft.FieldData.Status)

	body, ct := multipartBody(t, map[string]string{
		"plotId":         "MG-1",
		"collectionDate": "2024-01-01",
		"gpsLatitude":    "9.1",
		"gpsLongitude":   "76.3",
		"species":        "avicennia-marina",
	},
		multipartFile{field: "photoNorth", name: "n.png", contentType: "image/png", data: []byte("abc")},
		multipartFile{field: "photoAdditional", name: "a.jpg", contentType: "image/jpeg", data: []byte("x")},
	)
	rec = s.do(t, http.MethodPost, "/api/field-data/submit", "alice", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	env = decode(t, rec)
	assert.Equal(t, "Field data saved successfully", env.Message)
	var submitted submitData
	require.NoError(t, json.Unmarshal(env.Data, &submitted))
	assert.Equal(t, draft.FieldData.ID, submitted.FieldData.ID)
	assert.Equal(t, "submitted", submitted.FieldData.Status)
	assert.Equal(t, "data:image/png;base64,YWJj", submitted.FieldData.Photos.North)
	assert.Equal(t, services.PhotoSummary{North: true, Additional: 1}, submitted.Processed.Photos)
	require.NotNil(t, submitted.FieldData.SubmittedBy)
	assert.Equal(t, "alice@example.com", submitted.FieldData.SubmittedBy.Email)

	rec = s.doJSON(t, http.MethodGet, "/api/field-data/my-data", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var mine listData
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &mine))
	assert.Equal(t, 1, mine.Count)
}

func TestSubmit_UploadLimits(t *testing.T) {
	s := newTestServer(t, defaultUploads())

	body, ct := multipartBody(t, nil, multipartFile{field: "avatar", name: "a.png", contentType: "image/png", data: []byte("a")})
	rec := s.do(t, http.MethodPost, "/api/field-data/submit", "alice", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Unexpected file field: avatar", decode(t, rec).Message)

	body, ct = multipartBody(t, nil,
		multipartFile{field: "photoNorth", name: "1.png", contentType: "image/png", data: []byte("1")},
		multipartFile{field: "photoNorth", name: "2.png", contentType: "image/png", data: []byte("2")},
	)
	rec = s.do(t, http.MethodPost, "/api/field-data/submit", "alice", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Too many files for photoNorth (max 1)", decode(t, rec).Message)

	body, ct = multipartBody(t, nil, multipartFile{field: "photoNorth", name: "n.png", contentType: "image/png", data: []byte("n")})
	rec = s.do(t, http.MethodPost, "/api/field-data", "alice", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBodyTooLarge(t *testing.T) {
	uploads := defaultUploads()
	uploads.MaxBodySize = 64
	s := newTestServer(t, uploads)

	big := map[string]any{"plotNotes": strings.Repeat("x", 256)}
	rec := s.doJSON(t, http.MethodPost, "/api/field-data/draft", "alice", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestListAll_Authorization(t *testing.T) {
	s := newTestServer(t, defaultUploads())

	rec := s.doJSON(t, http.MethodPost, "/api/field-data", "alice", submission("P1"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.doJSON(t, http.MethodGet, "/api/field-data", "alice", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.doJSON(t, http.MethodGet, "/api/field-data?status=submitted", "vera", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var all listData
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &all))
	assert.Equal(t, 1, all.Count)

	rec = s.doJSON(t, http.MethodGet, "/api/field-data?startDate=garbage", "admin", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUpdateVerifyDelete(t *testing.T) {
	s := newTestServer(t, defaultUploads())

	rec := s.doJSON(t, http.MethodPost, "/api/field-data", "alice", submission("P1"))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created submitData
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &created))
	path := "/api/field-data/" + created.FieldData.ID

	rec = s.doJSON(t, http.MethodGet, "/api/field-data/nope", "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Field data not found", decode(t, rec).Message)

	rec = s.doJSON(t, http.MethodGet, path, "bob", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.doJSON(t, http.MethodPut, path, "bob", map[string]any{"dbh": 3})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Not authorized to update this field data", decode(t, rec).Message)

	rec = s.doJSON(t, http.MethodPut, path, "alice", map[string]any{"dbh": "3"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Field data updated successfully", decode(t, rec).Message)

	rec = s.doJSON(t, http.MethodPut, path+"/verify", "alice", map[string]any{})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.doJSON(t, http.MethodPut, path+"/verify", "vera", map[string]any{"status": "rejected", "verificationNotes": "blurry"})
	require.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, "Field data rejected successfully", env.Message)
	var verified struct {
		FieldData recordJSON `json:"fieldData"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &verified))
	require.NotNil(t, verified.FieldData.VerifiedBy)
	assert.Equal(t, "Vera", verified.FieldData.VerifiedBy.Name)

	rec = s.doJSON(t, http.MethodPut, path+"/verify", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Field data verified successfully", decode(t, rec).Message)

	rec = s.doJSON(t, http.MethodDelete, path, "bob", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.doJSON(t, http.MethodDelete, path, "alice", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Field data deleted successfully", decode(t, rec).Message)

	rec = s.doJSON(t, http.MethodGet, path, "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExport(t *testing.T) {
	s := newTestServer(t, defaultUploads())

	for _, plot := range []string{"P1", "P2"} {
		rec := s.doJSON(t, http.MethodPost, "/api/field-data", "alice", submission(plot))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := s.doJSON(t, http.MethodGet, "/api/field-data/export", "alice", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.doJSON(t, http.MethodGet, "/api/field-data/export?format=pdf", "admin", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.doJSON(t, http.MethodGet, "/api/field-data/export?format=csv", "vera", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	rows, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, exportHeader, rows[0])
	assert.Equal(t, "P2", rows[1][1])
	assert.Equal(t, "alice@example.com", rows[1][4])

	rec = s.doJSON(t, http.MethodGet, "/api/field-data/export?format=xlsx", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	f, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer f.Close()
	sheetRows, err := f.GetRows(exportSheet)
	require.NoError(t, err)
	require.Len(t, sheetRows, 3)
	assert.Equal(t, "Record ID", sheetRows[0][0])
	assert.Equal(t, "P1", sheetRows[2][1])
}

func TestUsers(t *testing.T) {
	s := newTestServer(t, defaultUploads())

	rec := s.doJSON(t, http.MethodGet, "/api/users", "vera", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.doJSON(t, http.MethodGet, "/api/users", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Users []models.User `json:"users"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &list))
	assert.Len(t, list.Users, 4)

	rec = s.doJSON(t, http.MethodGet, "/api/users/bob", "alice", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.doJSON(t, http.MethodGet, "/api/users/nobody", "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "User not found", decode(t, rec).Message)

	rec = s.doJSON(t, http.MethodPut, "/api/users/bob/role", "admin", map[string]string{"role": "owner"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid role. Must be one of: user, ngo, admin, verifier", decode(t, rec).Message)

	rec = s.doJSON(t, http.MethodPut, "/api/users/bob/role", "admin", map[string]string{"role": "verifier"})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated struct {
		User models.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &updated))
	assert.Equal(t, models.RoleVerifier, updated.User.Role)

	// The new role applies to bob's existing token.
	rec = s.doJSON(t, http.MethodGet, "/api/field-data", "bob", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.doJSON(t, http.MethodPut, "/api/users/bob/toggle-status", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "User deactivated successfully", decode(t, rec).Message)

	rec = s.doJSON(t, http.MethodGet, "/api/field-data/my-data", "bob", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWriteServiceError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)

	rec := httptest.NewRecorder()
	responder{logger: zap.NewNop()}.writeServiceError(rec, req, errors.New("dial tcp: refused"), "Failed to retrieve field data")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, "Failed to retrieve field data", env.Message)
	assert.Equal(t, "Internal server error", env.Error)

	rec = httptest.NewRecorder()
	responder{logger: zap.NewNop(), development: true}.writeServiceError(rec, req, errors.New("dial tcp: refused"), "Failed")
	assert.Equal(t, "dial tcp: refused", decode(t, rec).Error)
}

func TestUpdate_DraftConflict(t *testing.T) {
	s := newTestServer(t, defaultUploads())

	var ids []string
	for _, plot := range []string{"MG-1", "MG-2"} {
		rec := s.doJSON(t, http.MethodPost, "/api/field-data/draft", "alice", map[string]any{"plotId": plot})
		require.Equal(t, http.StatusCreated, rec.Code)
		var res submitData
		require.NoError(t, json.Unmarshal(decode(t, rec).Data, &res))
		ids = append(ids, res.FieldData.ID)
	}

	rec := s.doJSON(t, http.MethodPut, "/api/field-data/"+ids[1], "alice", map[string]any{"plotId": "MG-1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "A draft already exists for this plot", decode(t, rec).Message)

	rec = s.doJSON(t, http.MethodGet, "/api/field-data/my-data?status=draft", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var mine listData
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &mine))
	assert.Equal(t, 2, mine.Count)
}
