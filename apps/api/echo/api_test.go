package echoapi

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/marksheet"
	"github.com/trezcool/academia/storage/database/inmem"
	testutil "github.com/trezcool/academia/tests"
)

const (
	mathID    = "5f1d7f3e9b1e8a3c4d5e6fa1"
	scienceID = "5f1d7f3e9b1e8a3c4d5e6fa2"
)

func seedSchool(t *testing.T, db core.DocumentStore) {
	t.Helper()
	testutil.InsertDocs(t, db, "students",
		core.Document{core.IDKey: student, core.TenantKey: tenant, "name": "Ada Lovelace", "rollNo": 7},
	)
	testutil.InsertDocs(t, db, "subjects",
		core.Document{core.IDKey: mathID, core.TenantKey: tenant, "name": "Math"},
		core.Document{core.IDKey: scienceID, core.TenantKey: tenant, "name": "Science"},
	)
	testutil.InsertDocs(t, db, "marks",
		core.Document{
			core.TenantKey: tenant,
			"subjectId":    mathID,
			"maxMarks":     100,
			"studentMarks": map[string]interface{}{student: map[string]interface{}{"marks": 75}},
		},
	)
}

func TestServer_home(t *testing.T) {
	app, _, _ := setup(t)
	req, rec := newRequest(http.MethodGet, "/")
	app.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Academia API!", rec.Body.String())
}

func TestServer_health(t *testing.T) {
	app, _, _ := setup(t)
	runHTTPTests(t, app, []httpTest{
		{
			name:     "ok",
			method:   http.MethodGet,
			path:     "/health",
			wantCode: http.StatusOK,
			wantData: marchallObj(t, HealthResponse{Status: "ok", Build: "test"}),
		},
	})
}

func TestServer_metrics(t *testing.T) {
	app, _, _ := setup(t)
	req, rec := newRequest(http.MethodGet, "/")
	app.ServeHTTP(rec, req)

	req, rec = newRequest(http.MethodGet, "/metrics")
	app.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "academia_http_requests_total")
}

// closedStore answers every query the way a store does after losing its client for good.
type closedStore struct {
	*inmemdb.DB
}

func (closedStore) Find(context.Context, string, core.Filter, ...core.FindOptions) ([]core.Document, error) {
	return nil, core.NewShutdownError("querying data_field_keys: client is disconnected")
}

func TestServer_shutdownOnClosedStore(t *testing.T) {
	app, conf := newTestServer(t, closedStore{inmemdb.Open()})
	teacher := getToken(t, conf, tenant, RoleTeacher)

	req, rec := newAuthRequest(http.MethodGet, "/v1/data-field-keys", teacher)
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	select {
	case <-app.ShutdownSignal():
	default:
		t.Fatal("shutdown was not signalled")
	}
}

func TestAuth(t *testing.T) {
	app, _, conf := setup(t)
	noTenant := getToken(t, conf, "", RoleAdmin)
	teacher := getToken(t, conf, tenant, RoleTeacher)

	runHTTPTests(t, app, []httpTest{
		{
			name:     "missing token",
			method:   http.MethodGet,
			path:     "/v1/data-field-keys",
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		},
		{
			name:     "invalid token",
			method:   http.MethodGet,
			path:     "/v1/data-field-keys",
			token:    "not.a.jwt",
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "no tenant",
			method:   http.MethodGet,
			path:     "/v1/data-field-keys",
			token:    noTenant,
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "token is not bound to a management"}),
		},
		{
			name:     "not admin",
			method:   http.MethodPost,
			path:     "/v1/data-field-keys/refresh",
			token:    teacher,
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
	})
}

func TestFieldsAPI_noData(t *testing.T) {
	app, _, conf := setup(t)
	admin := getToken(t, conf, tenant, RoleAdmin)
	noData := marchallObj(t, noDataResponse())

	runHTTPTests(t, app, []httpTest{
		{
			name:     "list",
			method:   http.MethodGet,
			path:     "/v1/data-field-keys",
			token:    admin,
			wantCode: http.StatusOK,
			wantData: noData,
		},
		{
			name:     "refresh",
			method:   http.MethodPost,
			path:     "/v1/data-field-keys/refresh",
			token:    admin,
			wantCode: http.StatusOK,
			wantData: noData,
		},
	})
}

func TestFieldsAPI(t *testing.T) {
	app, db, conf := setup(t)
	seedSchool(t, db)
	admin := getToken(t, conf, tenant, RoleAdmin)
	teacher := getToken(t, conf, tenant, RoleTeacher)

	// refresh
	req, rec := newAuthRequest(http.MethodPost, "/v1/data-field-keys/refresh", admin)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var count CountResponse
	unmarshall(t, rec.Body.Bytes(), &count)
	assert.Greater(t, count.Count, 0)

	// list
	req, rec = newAuthRequest(http.MethodGet, "/v1/data-field-keys", teacher)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing FieldsResponse
	unmarshall(t, rec.Body.Bytes(), &listing)
	assert.False(t, listing.NoData)
	assert.NotEmpty(t, listing.Fields)

	var placeholder string
	for _, f := range listing.Fields {
		if f.DBFieldPath == "rollNo" {
			placeholder = f.PlaceholderKey
		}
	}
	require.NotEmpty(t, placeholder, "rollNo was not discovered")

	runHTTPTests(t, app, []httpTest{
		{
			name:     "update field",
			method:   http.MethodPatch,
			path:     "/v1/data-field-keys",
			body:     []byte(`{"placeholderKey": "` + placeholder + `", "label": "Roll Number"}`),
			token:    admin,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, SuccessResponse{Success: "Field updated."}),
		},
		{
			name:     "update field without selector",
			method:   http.MethodPatch,
			path:     "/v1/data-field-keys",
			body:     []byte(`{"label": "Roll Number"}`),
			token:    admin,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "update unknown field",
			method:   http.MethodPatch,
			path:     "/v1/data-field-keys",
			body:     []byte(`{"placeholderKey": "{{nope}}", "label": "Nope"}`),
			token:    admin,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "field key not found"}),
		},
		{
			name:     "refresh without db validation",
			method:   http.MethodPost,
			path:     "/v1/data-field-keys/refresh",
			body:     []byte(`{"validateFromDb": false}`),
			token:    admin,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "field catalog can only be built from the database"}),
		},
		{
			name:     "custom keys",
			method:   http.MethodPost,
			path:     "/v1/data-field-keys/custom-keys",
			body:     []byte(`{"keyName": "Results", "keys": [{"name": "grade", "keyType": "manual"}]}`),
			token:    admin,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, CountResponse{Count: 1}),
		},
		{
			name:     "invalid custom keys",
			method:   http.MethodPost,
			path:     "/v1/data-field-keys/custom-keys",
			body:     []byte(`{"keyName": "Results", "keys": []}`),
			token:    admin,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "custom key over a discovered field",
			method:   http.MethodPost,
			path:     "/v1/data-field-keys/custom-keys",
			body:     []byte(`{"keyName": "Roll", "keys": [{"name": "no", "keyType": "manual"}]}`),
			token:    admin,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"keys[0].name": "placeholder is already used by another field"}),
		},
	})

	req, rec = newAuthRequest(http.MethodGet, "/v1/data-field-keys", teacher)
	app.ServeHTTP(rec, req)
	listing = FieldsResponse{}
	unmarshall(t, rec.Body.Bytes(), &listing)
	for _, f := range listing.Fields {
		if f.PlaceholderKey == placeholder {
			assert.Equal(t, "Roll Number", f.Label)
		}
	}
}

func TestFieldsAPI_keySets(t *testing.T) {
	app, _, conf := setup(t)
	admin := getToken(t, conf, tenant, RoleAdmin)

	body := []byte(`{"keyName": "Term 1", "manualFields": [{"key": "remarks", "label": "Remarks"}]}`)
	req, rec := newAuthRequest(http.MethodPost, "/v1/data-field-keys/key-sets", admin, body)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created IDResponse
	unmarshall(t, rec.Body.Bytes(), &created)
	require.NotEmpty(t, created.ID)

	runHTTPTests(t, app, []httpTest{
		{
			name:     "invalid",
			method:   http.MethodPost,
			path:     "/v1/data-field-keys/key-sets",
			body:     []byte(`{"keyName": "  "}`),
			token:    admin,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"keyName": "this field is required"}`),
		},
		{
			name:     "update",
			method:   http.MethodPut,
			path:     "/v1/data-field-keys/key-sets/" + created.ID,
			body:     []byte(`{"keyName": "Term 1 (final)"}`),
			token:    admin,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, IDResponse{ID: created.ID}),
		},
		{
			name:     "list custom",
			method:   http.MethodGet,
			path:     "/v1/data-field-keys?custom=true",
			token:    admin,
			wantCode: http.StatusOK,
		},
		{
			name:     "delete",
			method:   http.MethodDelete,
			path:     "/v1/data-field-keys/key-sets/" + created.ID,
			token:    admin,
			wantCode: http.StatusNoContent,
		},
		{
			name:     "delete again",
			method:   http.MethodDelete,
			path:     "/v1/data-field-keys/key-sets/" + created.ID,
			token:    admin,
			wantCode: http.StatusNotFound,
		},
	})
}

func TestRecordsAPI(t *testing.T) {
	app, _, conf := setup(t)
	admin := getToken(t, conf, tenant, RoleAdmin)
	teacher := getToken(t, conf, tenant, RoleTeacher)

	req, rec := newAuthRequest(http.MethodPost, "/v1/records/subjects", admin, []byte(`{"name": "Math", "code": "MTH"}`))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var subject map[string]interface{}
	unmarshall(t, rec.Body.Bytes(), &subject)
	id, _ := subject[core.IDKey].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, tenant, subject[core.TenantKey])

	path := "/v1/records/subjects/" + id
	runHTTPTests(t, app, []httpTest{
		{
			name:     "create invalid",
			method:   http.MethodPost,
			path:     "/v1/records/subjects",
			body:     []byte(`{"code": "SCI"}`),
			token:    admin,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"name": "this field is required"}`),
		},
		{
			name:     "create malformed",
			method:   http.MethodPost,
			path:     "/v1/records/subjects",
			body:     []byte(`[1, 2]`),
			token:    admin,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "request body must be a JSON object"}),
		},
		{
			name:     "create as teacher",
			method:   http.MethodPost,
			path:     "/v1/records/subjects",
			body:     []byte(`{"name": "Art"}`),
			token:    teacher,
			wantCode: http.StatusForbidden,
		},
		{
			name:     "unknown kind",
			method:   http.MethodGet,
			path:     "/v1/records/teachers",
			token:    teacher,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "unknown record kind"}),
		},
		{
			name:     "list bad limit",
			method:   http.MethodGet,
			path:     "/v1/records/subjects?limit=many",
			token:    teacher,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"limit": "must be a number"}`),
		},
		{
			name:     "update",
			method:   http.MethodPatch,
			path:     path,
			body:     []byte(`{"code": "MATH"}`),
			token:    admin,
			wantCode: http.StatusOK,
		},
		{
			name:     "delete",
			method:   http.MethodDelete,
			path:     path,
			token:    admin,
			wantCode: http.StatusNoContent,
		},
		{
			name:     "get deleted",
			method:   http.MethodGet,
			path:     path,
			token:    teacher,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "record not found"}),
		},
	})
}

func TestRecordsAPI_list(t *testing.T) {
	app, db, conf := setup(t)
	seedSchool(t, db)
	teacher := getToken(t, conf, tenant, RoleTeacher)

	req, rec := newAuthRequest(http.MethodGet, "/v1/records/subjects?ordering=-name&limit=1", teacher)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var docs []map[string]interface{}
	unmarshall(t, rec.Body.Bytes(), &docs)
	require.Len(t, docs, 1)
	assert.Equal(t, "Science", docs[0]["name"])
}

func TestMarksheetsAPI(t *testing.T) {
	app, db, conf := setup(t)
	seedSchool(t, db)
	admin := getToken(t, conf, tenant, RoleAdmin)
	teacher := getToken(t, conf, tenant, RoleTeacher)

	def := marksheet.TemplateDef{
		Name:      "Term 1",
		ClassName: "Grade 5",
		Slots:     []marksheet.Slot{{Name: "Math", MaxMarks: 100}, {Name: "Science", MaxMarks: 100}},
	}
	req, rec := newAuthRequest(http.MethodPost, "/v1/marksheet-templates", teacher, marchallObj(t, def))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req, rec = newAuthRequest(http.MethodPost, "/v1/marksheet-templates", admin, marchallObj(t, def))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var tmpl marksheet.Template
	unmarshall(t, rec.Body.Bytes(), &tmpl)
	require.NotEmpty(t, tmpl.ID)

	msReq := marksheet.Request{TemplateID: tmpl.ID, StudentID: student}

	t.Run("preview", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/marksheets/preview", teacher, marchallObj(t, msReq))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var preview marksheet.Preview
		unmarshall(t, rec.Body.Bytes(), &preview)
		require.Len(t, preview.Slots, 2)
		require.NotNil(t, preview.Slots[0].Score)
		assert.Equal(t, 75.0, preview.Slots[0].Score.Obtained)
		assert.Equal(t, marksheet.StrategyName, preview.Slots[0].Strategy)
		assert.Nil(t, preview.Slots[1].Score)
	})

	t.Run("generate unfilled", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/marksheets", teacher, marchallObj(t, msReq))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"overrides.Science": marksheet.ErrUnfilledSlots.Error()}),
		}, rec)
	})

	t.Run("generate unknown template", func(t *testing.T) {
		body := marchallObj(t, marksheet.Request{TemplateID: "5f1d7f3e9b1e8a3c4d5e6fff", StudentID: student})
		req, rec := newAuthRequest(http.MethodPost, "/v1/marksheets", teacher, body)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "marksheet template not found"}),
		}, rec)
	})

	var ms marksheet.Marksheet
	t.Run("generate", func(t *testing.T) {
		body := marchallObj(t, marksheet.GenerateRequest{Request: msReq, Overrides: map[string]float64{"science": 60}})
		req, rec := newAuthRequest(http.MethodPost, "/v1/marksheets", teacher, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		unmarshall(t, rec.Body.Bytes(), &ms)
		assert.Equal(t, "Ada Lovelace", ms.StudentName)
		assert.Equal(t, 135.0, ms.Obtained)
		assert.Equal(t, 200.0, ms.Maximum)
		assert.Equal(t, 67.5, ms.Percentage)
		require.Len(t, ms.Rows, 2)
		assert.Equal(t, marksheet.SourceOverride, ms.Rows[1].Source)
	})
	require.NotEmpty(t, ms.ID)

	runHTTPTests(t, app, []httpTest{
		{
			name:     "retrieve",
			method:   http.MethodGet,
			path:     "/v1/marksheets/" + ms.ID,
			token:    teacher,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, ms),
		},
		{
			name:     "list by student",
			method:   http.MethodGet,
			path:     "/v1/marksheets?studentId=" + student,
			token:    teacher,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, []marksheet.Marksheet{ms}),
		},
		{
			name:     "retrieve unknown",
			method:   http.MethodGet,
			path:     "/v1/marksheets/5f1d7f3e9b1e8a3c4d5e6fff",
			token:    teacher,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "marksheet not found"}),
		},
	})

	t.Run("export", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/marksheets/"+ms.ID+"/export", teacher)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, mimeXLSX, rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "marksheet-"+ms.ID+".xlsx")
		assert.NotZero(t, rec.Body.Len())
	})

	t.Run("delete template", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/marksheet-templates/"+tmpl.ID, admin)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}
