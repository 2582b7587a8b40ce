package echoapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/fieldkey"
	"github.com/trezcool/academia/core/marksheet"
	"github.com/trezcool/academia/core/record"
	logsvc "github.com/trezcool/academia/services/logger"
	"github.com/trezcool/academia/services/metrics"
	"github.com/trezcool/academia/storage/database/inmem"
)

const (
	tenant  = "tenant-1"
	student = "5f1d7f3e9b1e8a3c4d5e6f70"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func testConfig() *core.Config {
	return &core.Config{
		AppName:   "Academia",
		Build:     "test",
		TestMode:  true,
		SecretKey: "secret",
		Server: core.ServerConfig{
			JWTExpirationDelta: 10 * time.Minute,
			DisableReqLogs:     true,
		},
		Discovery: core.DiscoveryConfig{
			PrimaryCollection:  "students",
			ScoreCollection:    "marks",
			CategoryCollection: "subjects",
			PrimarySample:      100,
			ScoreSample:        50,
			CategorySample:     50,
		},
		Marksheet: core.MarksheetConfig{
			TemplateCollection: "marksheet_templates",
			Collection:         "marksheets",
		},
		CatalogCollection: "data_field_keys",
	}
}

func setup(t *testing.T) (*Server, *inmemdb.DB, *core.Config) {
	t.Helper()
	db := inmemdb.Open()
	app, conf := newTestServer(t, db)
	return app, db, conf
}

func newTestServer(t *testing.T, db core.DocumentStore) (*Server, *core.Config) {
	t.Helper()
	conf := testConfig()

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	fieldkey.InitValidators(validate, translator)

	app := NewServer(Deps{
		Conf:         conf,
		Logger:       logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf),
		Store:        db,
		Validate:     validate,
		Translator:   translator,
		Metrics:      metrics.New(),
		FieldSvc:     fieldkey.NewService(db, fieldkey.NewDiscoverer(db, conf), validate, conf),
		MarksheetSvc: marksheet.NewService(db, validate, conf),
		RecordSvc:    record.NewService(db, conf),
	})
	return app, conf
}

func getToken(t *testing.T, conf *core.Config, managementID string, roles ...string) string {
	t.Helper()
	token, err := GenerateToken(conf, NewClaims(conf, "user-1", managementID, roles...))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func unmarshall(t *testing.T, data []byte, obj interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, obj); err != nil {
		t.Fatalf("unmarshall() failed: %v; data %s", err, data)
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, app http.Handler, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
