package api

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"eCard/internal/auth"
	"eCard/internal/card"
	"eCard/internal/config"
	"eCard/internal/database"
	"eCard/internal/errcode"
	"eCard/internal/profile"
	"eCard/internal/tasks"
)

type fakeQueue struct {
	tasks []*asynq.Task
	err   error
}

func (q *fakeQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: fmt.Sprintf("task-%d", len(q.tasks))}, nil
}

type apiFixture struct {
	db          *gorm.DB
	router      *gin.Engine
	storage     *fakeStorage
	queue       *fakeQueue
	authService *auth.AuthService
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(context.Background(), db, "auto"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestAuthService(t *testing.T) *auth.AuthService {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	svc, err := auth.NewAuthService(privPEM, pubPEM, 15*time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}
	return svc
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	renderer, err := card.NewRenderer("")
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}

	f := &apiFixture{
		db:          newTestDB(t),
		storage:     newFakeStorage(),
		queue:       &fakeQueue{},
		authService: newTestAuthService(t),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.router = NewRouter(logger)
	RegisterRoutes(f.router, Dependencies{
		DB:          f.db,
		Queue:       f.queue,
		AuthService: f.authService,
		Storage:     f.storage,
		Renderer:    renderer,
		API: config.APIConfig{
			PublicBaseURL:  "http://localhost:3000",
			InternalSecret: "s3cret",
		},
		ExportMaxRetry: tasks.DefaultExportMaxRetry,
		Logger:         logger,
	})
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return out
}

type loginBody struct {
	Message     string       `json:"message"`
	User        auth.Account `json:"user"`
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
}

// signup 注册并登录，返回用户 id 与访问令牌。
func (f *apiFixture) signup(t *testing.T, name, password string) (uint, string) {
	t.Helper()
	w := f.do(t, http.MethodPost, "/auth/register", gin.H{"name": name, "password": password}, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("register %s: %d %s", name, w.Code, w.Body.String())
	}
	w = f.do(t, http.MethodPost, "/auth/login", gin.H{"name": name, "password": password}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: %d %s", name, w.Code, w.Body.String())
	}
	body := decode[loginBody](t, w)
	return body.User.ID, body.AccessToken
}

func TestAliceEndToEnd(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/auth/register", gin.H{"name": "alice", "password": "secret1"}, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", w.Code, w.Body.String())
	}
	registered := decode[struct {
		Message string       `json:"message"`
		User    auth.Account `json:"user"`
	}](t, w)
	if registered.User.Name != "alice" || registered.User.ID == 0 {
		t.Fatalf("unexpected register body %+v", registered)
	}
	if strings.Contains(w.Body.String(), "password") {
		t.Fatalf("register response must not expose password data: %s", w.Body.String())
	}

	w = f.do(t, http.MethodPost, "/auth/login", gin.H{"name": "alice", "password": "secret1"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login: %d %s", w.Code, w.Body.String())
	}
	login := decode[loginBody](t, w)
	if login.User.ID != registered.User.ID || login.AccessToken == "" || login.TokenType != "Bearer" {
		t.Fatalf("unexpected login body %+v", login)
	}
	if w.Result().Cookies()[0].Name != refreshTokenCookieName {
		t.Fatalf("expected refresh cookie")
	}

	w = f.do(t, http.MethodPost, "/profile/save", gin.H{
		"userId": login.User.ID,
		"name":   "alice",
		"skills": []string{"Go", "Rust"},
	}, login.AccessToken)
	if w.Code != http.StatusOK {
		t.Fatalf("save: %d %s", w.Code, w.Body.String())
	}
	saved := decode[struct {
		Message string          `json:"message"`
		User    profile.Profile `json:"user"`
	}](t, w)
	if saved.Message != "Saved" || saved.User.Name != "alice" {
		t.Fatalf("unexpected save body %+v", saved)
	}

	w = f.do(t, http.MethodGet, "/profile?name=alice", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get profile: %d %s", w.Code, w.Body.String())
	}
	got := decode[profile.Profile](t, w)
	if strings.Join(got.Skills, ",") != "Go,Rust" {
		t.Fatalf("unexpected skills %v", got.Skills)
	}
	if got.Profession != "" || got.PhotoURL != "" || got.ResumeURL != "" || got.PortfolioURL != "" ||
		len(got.Projects) != 0 || got.Socials != (profile.Socials{}) {
		t.Fatalf("optional fields should be empty: %+v", got)
	}
	if strings.Contains(w.Body.String(), "$2a$") {
		t.Fatalf("profile must not expose the password hash")
	}
}

func TestRegisterValidationAndConflict(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/auth/register", gin.H{"name": "", "password": "x"}, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	f.signup(t, "alice", "secret1")
	w = f.do(t, http.MethodPost, "/auth/register", gin.H{"name": "alice", "password": "other"}, "")
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	if body := decode[gin.H](t, w); body["message"] != "Username already taken" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestRegisterOverlongPasswordIsBadRequest(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/auth/register", gin.H{"name": "longpw", "password": strings.Repeat("p", 73)}, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", w.Code, w.Body.String())
	}
	if body := decode[gin.H](t, w); body["message"] != auth.PasswordTooLongMessage {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newAPIFixture(t)
	f.signup(t, "alice", "secret1")

	wrongPassword := f.do(t, http.MethodPost, "/auth/login", gin.H{"name": "alice", "password": "nope"}, "")
	unknownUser := f.do(t, http.MethodPost, "/auth/login", gin.H{"name": "mallory", "password": "nope"}, "")

	if wrongPassword.Code != http.StatusUnauthorized || unknownUser.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401s, got %d and %d", wrongPassword.Code, unknownUser.Code)
	}
	if wrongPassword.Body.String() != unknownUser.Body.String() {
		t.Fatalf("bodies differ: %q vs %q", wrongPassword.Body.String(), unknownUser.Body.String())
	}
	if body := decode[gin.H](t, unknownUser); body["message"] != auth.InvalidCredentialsMessage {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestGetProfileErrors(t *testing.T) {
	f := newAPIFixture(t)

	cases := []struct {
		name    string
		path    string
		want    int
		message string
	}{
		{"no query", "/profile", http.StatusBadRequest, "ID or Name required"},
		{"unknown name", "/profile?name=ghost", http.StatusNotFound, "User not found"},
		{"unknown id", "/profile?id=42", http.StatusNotFound, "User not found"},
		{"bad id", "/profile?id=abc", http.StatusBadRequest, "invalid id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(t, http.MethodGet, tc.path, nil, "")
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, w.Code)
			}
			if body := decode[gin.H](t, w); body["message"] != tc.message {
				t.Fatalf("unexpected body %v", body)
			}
		})
	}
}

func TestSaveProfileAuthorization(t *testing.T) {
	f := newAPIFixture(t)
	aliceID, aliceToken := f.signup(t, "alice", "secret1")
	bobID, _ := f.signup(t, "bob", "secret2")

	w := f.do(t, http.MethodPost, "/profile/save", gin.H{"userId": aliceID}, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	w = f.do(t, http.MethodPost, "/profile/save", gin.H{"name": "alice"}, aliceToken)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without userId, got %d", w.Code)
	}
	if body := decode[gin.H](t, w); body["message"] != "User ID is required" {
		t.Fatalf("unexpected body %v", body)
	}

	w = f.do(t, http.MethodPost, "/profile/save", gin.H{"userId": bobID, "profession": "Hacker"}, aliceToken)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for another user's profile, got %d", w.Code)
	}

	w = f.do(t, http.MethodPost, "/profile/save", gin.H{"userId": fmt.Sprint(aliceID), "name": "bob"}, aliceToken)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 on rename collision, got %d", w.Code)
	}
}

func TestSaveProfileOverwritesAllFields(t *testing.T) {
	f := newAPIFixture(t)
	id, token := f.signup(t, "alice", "secret1")

	w := f.do(t, http.MethodPost, "/profile/save", gin.H{
		"userId":     id,
		"profession": "Engineer",
		"portfolio":  "https://alice.dev",
		"socials":    gin.H{"mail": "a@b.com", "myspace": "ignored"},
		"projects":   []gin.H{{"name": "eCard", "description": "https://ecard.dev"}},
	}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("first save: %d %s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodPost, "/profile/save", gin.H{"userId": id}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("second save: %d %s", w.Code, w.Body.String())
	}

	got := decode[profile.Profile](t, f.do(t, http.MethodGet, fmt.Sprintf("/profile?id=%d", id), nil, ""))
	if got.Name != "alice" {
		t.Fatalf("empty name must keep the current name, got %q", got.Name)
	}
	if got.Profession != "" || got.PortfolioURL != "" || got.Socials.Mail != "" || len(got.Projects) != 0 {
		t.Fatalf("save must overwrite omitted fields: %+v", got)
	}
}

func TestCardEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	id, token := f.signup(t, "alice", "secret1")
	f.do(t, http.MethodPost, "/profile/save", gin.H{
		"userId":  id,
		"skills":  []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"},
		"socials": gin.H{"mail": "a@b.com"},
	}, token)

	w := f.do(t, http.MethodGet, "/cards/alice", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get card: %d %s", w.Code, w.Body.String())
	}
	faces := decode[cardResponse](t, w)
	if len(faces.Front.SkillsShown) != card.MaxFrontSkills {
		t.Fatalf("expected %d skills, got %d", card.MaxFrontSkills, len(faces.Front.SkillsShown))
	}
	if faces.Front.ContactIcons[0].Href != "mailto:a@b.com" {
		t.Fatalf("unexpected icon %+v", faces.Front.ContactIcons[0])
	}
	if faces.Back.QRTarget != card.FallbackQRTarget {
		t.Fatalf("expected fallback qr target, got %q", faces.Back.QRTarget)
	}

	w = f.do(t, http.MethodGet, "/cards/alice/qr.png", nil, "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("qr: %d %s", w.Code, w.Header().Get("Content-Type"))
	}

	w = f.do(t, http.MethodGet, "/share/alice", nil, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "alice's eCard") {
		t.Fatalf("share page: %d", w.Code)
	}

	p := decode[profile.Profile](t, f.do(t, http.MethodGet, "/profile?name=alice", nil, ""))
	w = f.do(t, http.MethodGet, "/s/"+p.ShareID, nil, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/s/"+p.ShareID) {
		t.Fatalf("share by id: %d", w.Code)
	}

	if w = f.do(t, http.MethodGet, "/cards/ghost", nil, ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown card, got %d", w.Code)
	}
	if w = f.do(t, http.MethodGet, "/profile1.png", nil, ""); w.Code != http.StatusOK {
		t.Fatalf("placeholder: %d", w.Code)
	}
}

func TestCardUsesPresignedPhotoForAssetKey(t *testing.T) {
	f := newAPIFixture(t)
	id, token := f.signup(t, "alice", "secret1")
	key := fmt.Sprintf("user-assets/%d/me.png", id)
	f.do(t, http.MethodPost, "/profile/save", gin.H{"userId": id, "photo": key}, token)

	faces := decode[cardResponse](t, f.do(t, http.MethodGet, "/cards/alice", nil, ""))
	if faces.Front.Photo != "https://example.invalid/"+key {
		t.Fatalf("expected presigned photo url, got %q", faces.Front.Photo)
	}
}

func TestExportLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	_, token := f.signup(t, "alice", "secret1")
	_, bobToken := f.signup(t, "bob", "secret2")

	w := f.do(t, http.MethodPost, "/cards/export", gin.H{"face": "side"}, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid face, got %d", w.Code)
	}
	w = f.do(t, http.MethodPost, "/cards/export", gin.H{"face": "back", "pixelRatio": 9}, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid pixel ratio, got %d", w.Code)
	}

	w = f.do(t, http.MethodPost, "/cards/export", gin.H{"face": "back"}, token)
	if w.Code != http.StatusAccepted {
		t.Fatalf("create export: %d %s", w.Code, w.Body.String())
	}
	accepted := decode[struct {
		ExportID uint   `json:"export_id"`
		TaskID   string `json:"task_id"`
	}](t, w)
	if len(f.queue.tasks) != 1 || f.queue.tasks[0].Type() != tasks.TypeCardExport {
		t.Fatalf("expected one card export task, got %d", len(f.queue.tasks))
	}
	payload, err := tasks.ParseCardExportPayload(f.queue.tasks[0])
	if err != nil || payload.ExportID != accepted.ExportID {
		t.Fatalf("unexpected payload %+v err=%v", payload, err)
	}

	var row database.CardExport
	if err := f.db.First(&row, accepted.ExportID).Error; err != nil {
		t.Fatalf("load row: %v", err)
	}
	if row.PixelRatio != 2 || row.Status != database.ExportStatusPending || row.TaskID != accepted.TaskID {
		t.Fatalf("unexpected row %+v", row)
	}

	path := fmt.Sprintf("/exports/%d", accepted.ExportID)
	if w = f.do(t, http.MethodGet, path, nil, token); w.Code != http.StatusOK {
		t.Fatalf("get export: %d", w.Code)
	}
	if w = f.do(t, http.MethodGet, path, nil, bobToken); w.Code != http.StatusNotFound {
		t.Fatalf("other users must not see the export, got %d", w.Code)
	}
	if w = f.do(t, http.MethodGet, path+"/download-link", nil, token); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 before completion, got %d", w.Code)
	}

	if err := f.db.Model(&row).Updates(map[string]any{
		"status":     database.ExportStatusCompleted,
		"object_key": "card-exports/1/x-back.png",
	}).Error; err != nil {
		t.Fatalf("complete row: %v", err)
	}

	w = f.do(t, http.MethodGet, path+"/download-link", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("download link: %d %s", w.Code, w.Body.String())
	}
	link := decode[gin.H](t, w)
	if link["filename"] != "alice-eCard-Back.png" {
		t.Fatalf("unexpected filename %v", link["filename"])
	}
	if !strings.Contains(f.storage.params["response-content-disposition"], "alice-eCard-Back.png") {
		t.Fatalf("content disposition not set: %v", f.storage.params)
	}
}

func TestExportEnqueueFailureMarksRowFailed(t *testing.T) {
	f := newAPIFixture(t)
	_, token := f.signup(t, "alice", "secret1")
	f.queue.err = fmt.Errorf("redis down")

	w := f.do(t, http.MethodPost, "/cards/export", gin.H{"face": "front"}, token)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}

	var row database.CardExport
	if err := f.db.Last(&row).Error; err != nil {
		t.Fatalf("load row: %v", err)
	}
	if row.Status != database.ExportStatusFailed {
		t.Fatalf("expected failed, got %q", row.Status)
	}
}

func TestInternalCardDataInlinesPhoto(t *testing.T) {
	f := newAPIFixture(t)
	id, token := f.signup(t, "alice", "secret1")
	key := fmt.Sprintf("user-assets/%d/me.png", id)
	f.storage.objects[key] = storedObject{data: pngHeader, contentType: "image/png"}
	f.do(t, http.MethodPost, "/profile/save", gin.H{"userId": id, "photo": key}, token)

	path := fmt.Sprintf("/internal/cards/%d", id)
	if w := f.do(t, http.MethodGet, path, nil, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without secret, got %d", w.Code)
	}

	get := func() card.RenderData {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("X-Internal-Secret", "s3cret")
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("internal card data: %d %s", w.Code, w.Body.String())
		}
		return decode[card.RenderData](t, w)
	}

	data := get()
	if !strings.HasPrefix(data.Profile.PhotoURL, "data:image/png;base64,") || len(data.Warnings) != 0 {
		t.Fatalf("expected inlined photo, got %q warnings=%v", data.Profile.PhotoURL, data.Warnings)
	}

	delete(f.storage.objects, key)
	data = get()
	if data.Profile.PhotoURL != "" || len(data.Warnings) != 1 || data.Warnings[0].Code != errcode.ResourceMissing {
		t.Fatalf("expected resource missing warning, got %+v", data)
	}
}
