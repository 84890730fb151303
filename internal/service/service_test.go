package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"giveaway/internal/api/api"
	"giveaway/internal/auth"
	"giveaway/internal/dto"
	"giveaway/internal/model"
	"giveaway/internal/repo"
	"giveaway/internal/service"
	"giveaway/internal/storage"
)

const testSecret = "test-secret"

// fakeRepo is an in-memory Repository honoring the same ordering and
// uniqueness rules as the SQL implementation.
type fakeRepo struct {
	giveaways map[int]*model.Giveaway
	entries   map[int]*model.Entry
	admins    map[string]*model.Admin

	nextGiveawayID int
	nextEntryID    int
	nextAdminID    int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		giveaways:      map[int]*model.Giveaway{},
		entries:        map[int]*model.Entry{},
		admins:         map[string]*model.Admin{},
		nextGiveawayID: 1,
		nextEntryID:    1,
		nextAdminID:    1,
	}
}

func (r *fakeRepo) CreateGiveaway(_ context.Context, g *model.Giveaway) (int64, error) {
	g.ID = r.nextGiveawayID
	r.nextGiveawayID++
	g.CreatedAt = time.Now()
	cp := *g
	r.giveaways[g.ID] = &cp
	return int64(g.ID), nil
}

func (r *fakeRepo) GetGiveawayByID(_ context.Context, id int64) (*model.Giveaway, error) {
	g, ok := r.giveaways[int(id)]
	if !ok {
		return nil, repo.ErrGiveawayNotFound
	}
	cp := *g
	return &cp, nil
}

func (r *fakeRepo) UpdateGiveaway(_ context.Context, g *model.Giveaway) error {
	existing, ok := r.giveaways[g.ID]
	if !ok {
		return repo.ErrGiveawayNotFound
	}
	cp := *g
	cp.CreatedAt = existing.CreatedAt
	r.giveaways[g.ID] = &cp
	return nil
}

func (r *fakeRepo) DeleteGiveawayTx(_ context.Context, id int64) error {
	if _, ok := r.giveaways[int(id)]; !ok {
		return repo.ErrGiveawayNotFound
	}
	for eid, e := range r.entries {
		if e.GiveawayID == int(id) {
			delete(r.entries, eid)
		}
	}
	delete(r.giveaways, int(id))
	return nil
}

func (r *fakeRepo) ListActiveGiveaways(_ context.Context, now time.Time) ([]model.Giveaway, error) {
	var out []model.Giveaway
	for _, g := range r.giveaways {
		if !g.EndDate.Before(now) {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndDate.Before(out[j].EndDate) })
	return out, nil
}

func (r *fakeRepo) ListPastGiveaways(_ context.Context, now time.Time, limit int) ([]model.Giveaway, error) {
	var out []model.Giveaway
	for _, g := range r.giveaways {
		if g.EndDate.Before(now) {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndDate.After(out[j].EndDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeRepo) CountEntries(_ context.Context, giveawayID int64) (int, error) {
	count := 0
	for _, e := range r.entries {
		if e.GiveawayID == int(giveawayID) {
			count++
		}
	}
	return count, nil
}

func (r *fakeRepo) CreateEntryTx(_ context.Context, e *model.Entry, now time.Time) (int64, error) {
	g, ok := r.giveaways[e.GiveawayID]
	if !ok {
		return 0, repo.ErrGiveawayNotFound
	}
	if g.EndDate.Before(now) {
		return 0, repo.ErrGiveawayClosed
	}
	for _, existing := range r.entries {
		if existing.GiveawayID == e.GiveawayID &&
			strings.EqualFold(existing.Email, e.Email) {
			return 0, repo.ErrDuplicateEntry
		}
	}
	e.ID = r.nextEntryID
	r.nextEntryID++
	e.CreatedAt = now
	cp := *e
	r.entries[e.ID] = &cp
	return int64(e.ID), nil
}

func (r *fakeRepo) GetEntryByID(_ context.Context, id int64) (*model.Entry, error) {
	e, ok := r.entries[int(id)]
	if !ok {
		return nil, repo.ErrEntryNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *fakeRepo) DeleteEntry(_ context.Context, id int64) error {
	if _, ok := r.entries[int(id)]; !ok {
		return repo.ErrEntryNotFound
	}
	delete(r.entries, int(id))
	return nil
}

func (r *fakeRepo) ListEntriesByGiveaway(_ context.Context, giveawayID int64) ([]model.Entry, error) {
	var out []model.Entry
	for _, e := range r.entries {
		if e.GiveawayID == int(giveawayID) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *fakeRepo) GetAdminByUsername(_ context.Context, username string) (*model.Admin, error) {
	a, ok := r.admins[username]
	if !ok {
		return nil, repo.ErrAdminNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *fakeRepo) CreateAdmin(_ context.Context, a *model.Admin) (int64, error) {
	a.ID = r.nextAdminID
	r.nextAdminID++
	cp := *a
	r.admins[a.Username] = &cp
	return int64(a.ID), nil
}

func (r *fakeRepo) DeleteAdminByUsername(_ context.Context, username string) error {
	delete(r.admins, username)
	return nil
}

func (r *fakeRepo) MigrateUp(string) error { return nil }

type testApp struct {
	app    *ginext.Engine
	repo   *fakeRepo
	images *storage.ImageStore
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	log := zerolog.Nop()
	images, err := storage.NewImageStore(t.TempDir(), &log)
	if err != nil {
		t.Fatalf("NewImageStore: %v", err)
	}

	fake := newFakeRepo()
	authCfg := auth.Config{Secret: testSecret, TokenTTL: time.Hour}
	svc := service.NewService(fake, &log, nil, images, authCfg)
	app := api.NewRouters(&api.Routers{
		Service:    svc,
		AuthSecret: []byte(testSecret),
		UploadDir:  images.Dir(),
	})

	return &testApp{app: app, repo: fake, images: images}
}

func (ta *testApp) adminCookie(t *testing.T) *http.Cookie {
	t.Helper()
	token, err := auth.IssueToken([]byte(testSecret), 1, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	return &http.Cookie{Name: auth.SessionCookie, Value: token}
}

func (ta *testApp) seedGiveaway(t *testing.T, title string, start, end time.Time) int {
	t.Helper()
	id, err := ta.repo.CreateGiveaway(context.Background(), &model.Giveaway{
		Title:       title,
		Description: "a giveaway used in tests",
		Prize:       "a prize",
		StartDate:   start,
		EndDate:     end,
	})
	if err != nil {
		t.Fatalf("seedGiveaway: %v", err)
	}
	return int(id)
}

type envelope struct {
	Status string `json:"status"`
	Error  *struct {
		Code   string `json:"code"`
		Desc   string `json:"desc"`
		Fields []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"fields"`
	} `json:"error"`
	Data json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return env
}

func postForm(app *ginext.Engine, path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	app.ServeHTTP(w, req)
	return w
}

func postMultipart(t *testing.T, app *ginext.Engine, path string, fields map[string]string, fileField, fileName string, fileContent []byte, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, fileName)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := fw.Write(fileContent); err != nil {
			t.Fatalf("write file part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	app.ServeHTTP(w, req)
	return w
}

func get(app *ginext.Engine, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	app.ServeHTTP(w, req)
	return w
}

func giveawayFormFields(title string, start, end time.Time) map[string]string {
	return map[string]string{
		"title":       title,
		"description": "a giveaway created through the form",
		"prize":       "a very nice prize",
		"start_date":  start.Format(dto.DateTimeLayout),
		"end_date":    end.Format(dto.DateTimeLayout),
	}
}

func TestIndexSplitsAndOrdersGiveaways(t *testing.T) {
	ta := newTestApp(t)
	now := time.Now()

	ta.seedGiveaway(t, "active late", now.Add(-time.Hour), now.Add(48*time.Hour))
	ta.seedGiveaway(t, "active soon", now.Add(-time.Hour), now.Add(2*time.Hour))
	ta.seedGiveaway(t, "past old", now.Add(-72*time.Hour), now.Add(-48*time.Hour))
	ta.seedGiveaway(t, "past recent", now.Add(-72*time.Hour), now.Add(-2*time.Hour))

	w := get(ta.app, "/")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var home dto.HomeResponse
	env := decode(t, w)
	if err := json.Unmarshal(env.Data, &home); err != nil {
		t.Fatalf("decode home: %v", err)
	}

	if len(home.Active) != 2 || len(home.Past) != 2 {
		t.Fatalf("expected 2 active and 2 past, got %d/%d", len(home.Active), len(home.Past))
	}
	if home.Active[0].Title != "active soon" || home.Active[1].Title != "active late" {
		t.Errorf("active list not ordered soonest-ending first: %s, %s",
			home.Active[0].Title, home.Active[1].Title)
	}
	if home.Past[0].Title != "past recent" || home.Past[1].Title != "past old" {
		t.Errorf("past list not ordered most-recently-ended first: %s, %s",
			home.Past[0].Title, home.Past[1].Title)
	}
	for _, g := range home.Active {
		if !g.IsActive {
			t.Errorf("giveaway %q should be active", g.Title)
		}
	}
	for _, g := range home.Past {
		if g.IsActive {
			t.Errorf("giveaway %q should not be active", g.Title)
		}
	}
}

func TestIndexCapsPastGiveaways(t *testing.T) {
	ta := newTestApp(t)
	now := time.Now()

	for i := 0; i < 7; i++ {
		ta.seedGiveaway(t, fmt.Sprintf("past %d", i),
			now.Add(-100*time.Hour), now.Add(-time.Duration(i+1)*time.Hour))
	}

	var home dto.HomeResponse
	env := decode(t, get(ta.app, "/"))
	if err := json.Unmarshal(env.Data, &home); err != nil {
		t.Fatalf("decode home: %v", err)
	}
	if len(home.Past) != 5 {
		t.Errorf("expected past list capped at 5, got %d", len(home.Past))
	}
}

func TestSubmitEntry(t *testing.T) {
	ta := newTestApp(t)
	now := time.Now()
	openID := ta.seedGiveaway(t, "open", now.Add(-time.Hour), now.Add(24*time.Hour))
	closedID := ta.seedGiveaway(t, "closed", now.Add(-48*time.Hour), now.Add(-time.Hour))

	entryForm := url.Values{
		"name":  {"Jane Doe"},
		"email": {"jane@x.com"},
		"phone": {"555-0100"},
	}

	t.Run("success", func(t *testing.T) {
		w := postForm(ta.app, fmt.Sprintf("/giveaway/%d", openID), entryForm)
		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
		}
		var entry dto.EntryResponse
		env := decode(t, w)
		if err := json.Unmarshal(env.Data, &entry); err != nil {
			t.Fatalf("decode entry: %v", err)
		}
		if entry.ID == 0 {
			t.Error("expected a confirmation id")
		}
		if n, _ := ta.repo.CountEntries(context.Background(), int64(openID)); n != 1 {
			t.Errorf("expected 1 stored entry, got %d", n)
		}
	})

	t.Run("duplicate email rejected case-insensitively", func(t *testing.T) {
		dup := url.Values{"name": {"Jane Again"}, "email": {"JANE@X.COM"}}
		w := postForm(ta.app, fmt.Sprintf("/giveaway/%d", openID), dup)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
		env := decode(t, w)
		if env.Error == nil || env.Error.Code != dto.EntryDuplicate {
			t.Fatalf("expected %s, got %+v", dto.EntryDuplicate, env.Error)
		}
		if n, _ := ta.repo.CountEntries(context.Background(), int64(openID)); n != 1 {
			t.Errorf("duplicate submission stored an entry, count=%d", n)
		}
	})

	t.Run("closed giveaway rejected", func(t *testing.T) {
		w := postForm(ta.app, fmt.Sprintf("/giveaway/%d", closedID), entryForm)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
		env := decode(t, w)
		if env.Error == nil || env.Error.Code != dto.GiveawayClosed {
			t.Fatalf("expected %s, got %+v", dto.GiveawayClosed, env.Error)
		}
		if n, _ := ta.repo.CountEntries(context.Background(), int64(closedID)); n != 0 {
			t.Errorf("closed giveaway stored an entry, count=%d", n)
		}
	})

	t.Run("unknown giveaway", func(t *testing.T) {
		w := postForm(ta.app, "/giveaway/9999", entryForm)
		if w.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", w.Code)
		}
	})

	t.Run("validation reports every failed field", func(t *testing.T) {
		bad := url.Values{
			"name":  {"x"},
			"email": {"not-an-email"},
			"phone": {strings.Repeat("9", 30)},
		}
		w := postForm(ta.app, fmt.Sprintf("/giveaway/%d", openID), bad)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
		env := decode(t, w)
		if env.Error == nil || len(env.Error.Fields) != 3 {
			t.Fatalf("expected 3 field errors, got %+v", env.Error)
		}
	})
}

func TestConfirmation(t *testing.T) {
	ta := newTestApp(t)
	now := time.Now()
	id := ta.seedGiveaway(t, "open", now.Add(-time.Hour), now.Add(24*time.Hour))

	entryID, err := ta.repo.CreateEntryTx(context.Background(), &model.Entry{
		GiveawayID: id, Name: "Jane Doe", Email: "jane@x.com",
	}, now)
	if err != nil {
		t.Fatalf("CreateEntryTx: %v", err)
	}

	w := get(ta.app, fmt.Sprintf("/confirmation/%d", entryID))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var conf dto.ConfirmationResponse
	env := decode(t, w)
	if err := json.Unmarshal(env.Data, &conf); err != nil {
		t.Fatalf("decode confirmation: %v", err)
	}
	if conf.Entry.Email != "jane@x.com" || conf.Giveaway.Title != "open" {
		t.Errorf("unexpected confirmation payload: %+v", conf)
	}

	if w := get(ta.app, "/confirmation/9999"); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing entry, got %d", w.Code)
	}
}

func TestAdminGuardLeavesStateUntouched(t *testing.T) {
	ta := newTestApp(t)
	now := time.Now()
	id := ta.seedGiveaway(t, "guarded", now.Add(-time.Hour), now.Add(24*time.Hour))

	w := postForm(ta.app, fmt.Sprintf("/admin/giveaway/%d/delete", id), url.Values{})
	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", w.Code)
	}
	if !strings.HasPrefix(w.Header().Get("Location"), "/admin/login?next=") {
		t.Errorf("unexpected redirect target %q", w.Header().Get("Location"))
	}
	if _, err := ta.repo.GetGiveawayByID(context.Background(), int64(id)); err != nil {
		t.Error("giveaway was deleted despite the auth gate")
	}
}

func TestLogin(t *testing.T) {
	ta := newTestApp(t)
	hash, err := auth.HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if _, err := ta.repo.CreateAdmin(context.Background(), &model.Admin{
		Username: "chief", PasswordHash: hash,
	}); err != nil {
		t.Fatalf("CreateAdmin: %v", err)
	}

	t.Run("wrong password", func(t *testing.T) {
		w := postForm(ta.app, "/admin/login", url.Values{
			"username": {"chief"}, "password": {"wrong"},
		})
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
	})

	t.Run("unknown username", func(t *testing.T) {
		w := postForm(ta.app, "/admin/login", url.Values{
			"username": {"nobody"}, "password": {"hunter2"},
		})
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
	})

	t.Run("success sets session cookie", func(t *testing.T) {
		w := postForm(ta.app, "/admin/login?next=%2Fadmin%2Fdashboard", url.Values{
			"username": {"chief"}, "password": {"hunter2"},
		})
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}

		var sessionValue string
		for _, c := range w.Result().Cookies() {
			if c.Name == auth.SessionCookie {
				sessionValue = c.Value
			}
		}
		if sessionValue == "" {
			t.Fatal("session cookie not set")
		}
		adminID, err := auth.ParseToken([]byte(testSecret), sessionValue)
		if err != nil {
			t.Fatalf("session cookie does not parse: %v", err)
		}
		if adminID == 0 {
			t.Error("session token not bound to an admin")
		}

		var resp dto.AdminLoginResponse
		env := decode(t, w)
		if err := json.Unmarshal(env.Data, &resp); err != nil {
			t.Fatalf("decode login response: %v", err)
		}
		if resp.Next != "/admin/dashboard" {
			t.Errorf("next destination not preserved, got %q", resp.Next)
		}
	})
}

func TestLogoutClearsSession(t *testing.T) {
	ta := newTestApp(t)

	w := get(ta.app, "/admin/logout", ta.adminCookie(t))
	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", w.Code)
	}
	if w.Header().Get("Location") != "/" {
		t.Errorf("expected redirect to /, got %q", w.Header().Get("Location"))
	}

	cleared := false
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.SessionCookie && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("session cookie not cleared")
	}
}

func TestAddGiveaway(t *testing.T) {
	ta := newTestApp(t)
	cookie := ta.adminCookie(t)
	now := time.Now()

	t.Run("creates with image", func(t *testing.T) {
		fields := giveawayFormFields("Spring Giveaway", now.Add(time.Hour), now.Add(72*time.Hour))
		w := postMultipart(t, ta.app, "/admin/giveaway/add", fields,
			"image", "prize.png", []byte("png-bytes"), cookie)
		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
		}

		var g dto.GiveawayResponse
		env := decode(t, w)
		if err := json.Unmarshal(env.Data, &g); err != nil {
			t.Fatalf("decode giveaway: %v", err)
		}
		if !strings.HasPrefix(g.ImageURL, "/static/uploads/") {
			t.Errorf("expected stored image URL, got %q", g.ImageURL)
		}

		stored, err := ta.repo.GetGiveawayByID(context.Background(), int64(g.ID))
		if err != nil {
			t.Fatalf("stored giveaway missing: %v", err)
		}
		if _, err := os.Stat(ta.images.Path(stored.Image)); err != nil {
			t.Errorf("image file not on disk: %v", err)
		}
	})

	t.Run("creates without image and falls back to default", func(t *testing.T) {
		fields := giveawayFormFields("No Image Giveaway", now.Add(time.Hour), now.Add(72*time.Hour))
		w := postMultipart(t, ta.app, "/admin/giveaway/add", fields, "", "", nil, cookie)
		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
		}
		var g dto.GiveawayResponse
		env := decode(t, w)
		if err := json.Unmarshal(env.Data, &g); err != nil {
			t.Fatalf("decode giveaway: %v", err)
		}
		if g.ImageURL != model.DefaultImageURL {
			t.Errorf("expected default image URL, got %q", g.ImageURL)
		}
	})

	t.Run("rejects end date in the past", func(t *testing.T) {
		fields := giveawayFormFields("Old Giveaway", now.Add(-72*time.Hour), now.Add(-time.Hour))
		w := postMultipart(t, ta.app, "/admin/giveaway/add", fields, "", "", nil, cookie)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})

	t.Run("rejects end before start and reports fields", func(t *testing.T) {
		fields := giveawayFormFields("Bad Dates", now.Add(48*time.Hour), now.Add(time.Hour))
		fields["title"] = "abc" // also below min length
		w := postMultipart(t, ta.app, "/admin/giveaway/add", fields, "", "", nil, cookie)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
		env := decode(t, w)
		if env.Error == nil || len(env.Error.Fields) < 2 {
			t.Fatalf("expected multiple field errors, got %+v", env.Error)
		}
	})

	t.Run("rejects disallowed image extension", func(t *testing.T) {
		fields := giveawayFormFields("Bad Image", now.Add(time.Hour), now.Add(72*time.Hour))
		w := postMultipart(t, ta.app, "/admin/giveaway/add", fields,
			"image", "malware.exe", []byte("x"), cookie)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})
}

func TestEditGiveaway(t *testing.T) {
	ta := newTestApp(t)
	cookie := ta.adminCookie(t)
	now := time.Now()

	t.Run("replacing the image deletes the old file", func(t *testing.T) {
		fields := giveawayFormFields("Editable", now.Add(time.Hour), now.Add(72*time.Hour))
		w := postMultipart(t, ta.app, "/admin/giveaway/add", fields,
			"image", "old.png", []byte("old"), cookie)
		if w.Code != http.StatusCreated {
			t.Fatalf("create failed: %d", w.Code)
		}
		var created dto.GiveawayResponse
		env := decode(t, w)
		if err := json.Unmarshal(env.Data, &created); err != nil {
			t.Fatalf("decode giveaway: %v", err)
		}
		before, _ := ta.repo.GetGiveawayByID(context.Background(), int64(created.ID))

		w = postMultipart(t, ta.app, fmt.Sprintf("/admin/giveaway/%d/edit", created.ID), fields,
			"image", "new.png", []byte("new"), cookie)
		if w.Code != http.StatusOK {
			t.Fatalf("edit failed: %d: %s", w.Code, w.Body.String())
		}

		after, _ := ta.repo.GetGiveawayByID(context.Background(), int64(created.ID))
		if after.Image == before.Image {
			t.Error("image reference was not replaced")
		}
		if _, err := os.Stat(ta.images.Path(before.Image)); !os.IsNotExist(err) {
			t.Error("old image file still on disk")
		}
		if _, err := os.Stat(ta.images.Path(after.Image)); err != nil {
			t.Errorf("new image file missing: %v", err)
		}
	})

	t.Run("keeps image when none supplied", func(t *testing.T) {
		fields := giveawayFormFields("Keeps Image", now.Add(time.Hour), now.Add(72*time.Hour))
		w := postMultipart(t, ta.app, "/admin/giveaway/add", fields,
			"image", "keep.png", []byte("keep"), cookie)
		var created dto.GiveawayResponse
		env := decode(t, w)
		if err := json.Unmarshal(env.Data, &created); err != nil {
			t.Fatalf("decode giveaway: %v", err)
		}
		before, _ := ta.repo.GetGiveawayByID(context.Background(), int64(created.ID))

		fields["title"] = "Keeps Image Still"
		w = postMultipart(t, ta.app, fmt.Sprintf("/admin/giveaway/%d/edit", created.ID), fields,
			"", "", nil, cookie)
		if w.Code != http.StatusOK {
			t.Fatalf("edit failed: %d", w.Code)
		}

		after, _ := ta.repo.GetGiveawayByID(context.Background(), int64(created.ID))
		if after.Image != before.Image {
			t.Error("image reference changed without a new upload")
		}
		if after.Title != "Keeps Image Still" {
			t.Error("title was not updated")
		}
	})

	t.Run("allows past end date", func(t *testing.T) {
		id := ta.seedGiveaway(t, "Ended", now.Add(-96*time.Hour), now.Add(-48*time.Hour))

		fields := giveawayFormFields("Ended Corrected", now.Add(-96*time.Hour), now.Add(-24*time.Hour))
		w := postMultipart(t, ta.app, fmt.Sprintf("/admin/giveaway/%d/edit", id), fields,
			"", "", nil, cookie)
		if w.Code != http.StatusOK {
			t.Fatalf("expected edit of ended giveaway to succeed, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("unknown giveaway", func(t *testing.T) {
		fields := giveawayFormFields("Ghost", now.Add(time.Hour), now.Add(72*time.Hour))
		w := postMultipart(t, ta.app, "/admin/giveaway/9999/edit", fields, "", "", nil, cookie)
		if w.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", w.Code)
		}
	})
}

func TestDeleteGiveawayCascades(t *testing.T) {
	ta := newTestApp(t)
	cookie := ta.adminCookie(t)
	now := time.Now()

	fields := giveawayFormFields("Doomed", now.Add(time.Hour), now.Add(72*time.Hour))
	w := postMultipart(t, ta.app, "/admin/giveaway/add", fields,
		"image", "doomed.png", []byte("img"), cookie)
	var created dto.GiveawayResponse
	env := decode(t, w)
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode giveaway: %v", err)
	}
	stored, _ := ta.repo.GetGiveawayByID(context.Background(), int64(created.ID))

	for i := 0; i < 3; i++ {
		if _, err := ta.repo.CreateEntryTx(context.Background(), &model.Entry{
			GiveawayID: created.ID,
			Name:       fmt.Sprintf("Entrant %d", i),
			Email:      fmt.Sprintf("entrant%d@x.com", i),
		}, now); err != nil {
			t.Fatalf("CreateEntryTx: %v", err)
		}
	}

	w = postForm(ta.app, fmt.Sprintf("/admin/giveaway/%d/delete", created.ID), url.Values{}, cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("delete failed: %d: %s", w.Code, w.Body.String())
	}

	if _, err := ta.repo.GetGiveawayByID(context.Background(), int64(created.ID)); err == nil {
		t.Error("giveaway still present after delete")
	}
	if n, _ := ta.repo.CountEntries(context.Background(), int64(created.ID)); n != 0 {
		t.Errorf("expected 0 entries after cascade, got %d", n)
	}
	if _, err := os.Stat(ta.images.Path(stored.Image)); !os.IsNotExist(err) {
		t.Error("image file still present after delete")
	}

	var home dto.HomeResponse
	env = decode(t, get(ta.app, "/"))
	if err := json.Unmarshal(env.Data, &home); err != nil {
		t.Fatalf("decode home: %v", err)
	}
	for _, g := range append(home.Active, home.Past...) {
		if g.ID == created.ID {
			t.Error("deleted giveaway still listed")
		}
	}
}

func TestListEntriesNewestFirst(t *testing.T) {
	ta := newTestApp(t)
	cookie := ta.adminCookie(t)
	now := time.Now()
	id := ta.seedGiveaway(t, "Busy", now.Add(-time.Hour), now.Add(24*time.Hour))

	for i := 0; i < 3; i++ {
		if _, err := ta.repo.CreateEntryTx(context.Background(), &model.Entry{
			GiveawayID: id,
			Name:       fmt.Sprintf("Entrant %d", i),
			Email:      fmt.Sprintf("entrant%d@x.com", i),
		}, now.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("CreateEntryTx: %v", err)
		}
	}

	w := get(ta.app, fmt.Sprintf("/admin/giveaway/%d/entries", id), cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var detail dto.GiveawayDetailResponse
	env := decode(t, w)
	if err := json.Unmarshal(env.Data, &detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if len(detail.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(detail.Entries))
	}
	for i := 0; i < len(detail.Entries)-1; i++ {
		if detail.Entries[i].CreatedAt.Before(detail.Entries[i+1].CreatedAt) {
			t.Error("entries not ordered most recent first")
		}
	}
}

func TestDeleteEntry(t *testing.T) {
	ta := newTestApp(t)
	cookie := ta.adminCookie(t)
	now := time.Now()
	id := ta.seedGiveaway(t, "Busy", now.Add(-time.Hour), now.Add(24*time.Hour))

	entryID, err := ta.repo.CreateEntryTx(context.Background(), &model.Entry{
		GiveawayID: id, Name: "Jane Doe", Email: "jane@x.com",
	}, now)
	if err != nil {
		t.Fatalf("CreateEntryTx: %v", err)
	}

	w := postForm(ta.app, fmt.Sprintf("/admin/entry/%d/delete", entryID), url.Values{}, cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if _, err := ta.repo.GetEntryByID(context.Background(), entryID); err == nil {
		t.Error("entry still present after delete")
	}

	w = postForm(ta.app, fmt.Sprintf("/admin/entry/%d/delete", entryID), url.Values{}, cookie)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for repeated delete, got %d", w.Code)
	}
}
