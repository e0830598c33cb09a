package transport

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"silk-catalog/internal/domain"
	"silk-catalog/internal/media"
	"silk-catalog/internal/middleware"
	"silk-catalog/internal/repository"
	"silk-catalog/internal/service"
	"silk-catalog/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testAPI struct {
	router http.Handler
	root   string
	repos  *repository.Repositories
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	root := t.TempDir()
	mediaStore, err := storage.NewMediaStore(root, media.ContainPolicy(32), zap.NewNop())
	require.NoError(t, err)
	repos := repository.NewRepositories(repository.NewMemoryStore())
	catalog := service.NewCatalogService(repos, mediaStore, service.Options{IDPrefix: "DS-", IDFloor: 100})

	r := chi.NewRouter()
	r.Use(middleware.MaxBodySize(1 << 20))
	NewCatalogHandler(catalog, zap.NewNop()).RegisterRoutes(r)
	MountMedia(r, root)

	return &testAPI{router: r, root: root, repos: repos}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) doRaw(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) upload(t *testing.T, name string, data []byte, rotation string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	if rotation != "" {
		require.NoError(t, mw.WriteField("rotation", rotation))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) uploadURL(t *testing.T) string {
	t.Helper()
	w := a.upload(t, "photo.jpg", pngBytes(t, 12, 8), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.URL
}

func (a *testAPI) products(t *testing.T, source string) []domain.Product {
	t.Helper()
	w := a.do(t, "GET", "/api/products?source="+source, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var products []domain.Product
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &products))
	return products
}

func (a *testAPI) exists(p string) bool {
	_, err := os.Stat(filepath.Join(a.root, filepath.FromSlash(p)))
	return err == nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{G: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func productBody(id string, mainImage interface{}, gallery ...interface{}) map[string]interface{} {
	if gallery == nil {
		gallery = []interface{}{}
	}
	return map[string]interface{}{
		"id":          id,
		"name":        "Banarasi Silk",
		"category":    "Silk",
		"fabric":      "Katan",
		"color":       "Gold",
		"price":       "8999",
		"stars":       "4",
		"stock":       domain.StockLow,
		"stock_count": 2,
		"mainImage":   mainImage,
		"gallery":     gallery,
	}
}

func TestUpload_StagesIntoBuffer(t *testing.T) {
	api := newTestAPI(t)

	w := api.upload(t, "IMG_2041.HEIC.jpg", pngBytes(t, 20, 10), "90")
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Regexp(t, `^images/buffer/temp_\d+_[0-9a-f]{6}\.png$`, resp.URL)
	assert.True(t, api.exists(resp.URL))
}

func TestUpload_Rejections(t *testing.T) {
	api := newTestAPI(t)

	assert.Equal(t, http.StatusBadRequest, api.upload(t, "junk.png", []byte("not an image"), "").Code)
	assert.Equal(t, http.StatusBadRequest, api.upload(t, "a.png", pngBytes(t, 4, 4), "quarter").Code)

	w := api.do(t, "POST", "/api/upload", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	big := api.upload(t, "clip.mp4", make([]byte, 2<<20), "")
	assert.Equal(t, http.StatusRequestEntityTooLarge, big.Code)
}

func TestAddProduct_EndToEnd(t *testing.T) {
	api := newTestAPI(t)

	mainURL := api.uploadURL(t)
	g1 := api.uploadURL(t)
	g2 := api.uploadURL(t)

	require.Equal(t, http.StatusOK, api.do(t, "POST", "/api/draft", map[string]interface{}{"id": "DS-105", "name": "half"}).Code)

	w := api.do(t, "POST", "/api/add-product", productBody("DS-105", mainURL, g1, g2))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	live := api.products(t, "main")
	require.Len(t, live, 1)
	p := live[0]
	assert.Equal(t, "images/DS-105_main.png", p.Image.Path)
	assert.Equal(t, []domain.MediaRef{
		domain.NewMediaRef(domain.ZoneLive, "DS-105_1.png"),
		domain.NewMediaRef(domain.ZoneLive, "DS-105_2.png"),
	}, p.Gallery)
	assert.Equal(t, 4, p.Stars)
	assert.Equal(t, domain.Price(8999), p.Price)
	assert.True(t, p.IsVisible())
	for _, ref := range p.Refs() {
		assert.True(t, api.exists(ref.Path))
	}
	assert.False(t, api.exists(mainURL))

	w = api.do(t, "GET", "/api/draft", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{}`, w.Body.String())

	w = api.do(t, "GET", "/images/DS-105_main.png", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
}

func TestAddProduct_MissingMainImageIs400(t *testing.T) {
	api := newTestAPI(t)
	g1 := api.uploadURL(t)

	w := api.do(t, "POST", "/api/add-product", productBody("DS-106", nil, g1))
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp middleware.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error.Message, "main image")
	assert.Empty(t, api.products(t, "main"))
	assert.True(t, api.exists(g1))
}

func TestAddProduct_ValidationErrors(t *testing.T) {
	api := newTestAPI(t)

	body := productBody("", "images/x.png")
	body["stars"] = 9
	w := api.do(t, "POST", "/api/add-product", body)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp middleware.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error.Details, "validation_errors")

	w = api.do(t, "POST", "/api/add-product", productBody("DS-1", "../../etc/passwd"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest("POST", "/api/add-product", bytes.NewReader([]byte("{")))
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddProduct_InlineMedia(t *testing.T) {
	api := newTestAPI(t)

	inline := map[string]interface{}{
		"base64":   "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes(t, 6, 6)),
		"type":     "image",
		"rotation": 180,
	}
	body := productBody("DS-300", inline)
	body["mediaGallery"] = []interface{}{
		map[string]interface{}{"base64": "%%%", "type": "image"},
		map[string]interface{}{"base64": base64.StdEncoding.EncodeToString([]byte("moov")), "type": "video", "name": "drape.mp4"},
	}

	w := api.do(t, "POST", "/api/add-product", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Warnings, 1)

	live := api.products(t, "main")
	require.Len(t, live, 1)
	assert.Equal(t, "images/DS-300_main.png", live[0].Image.Path)
	require.Len(t, live[0].Gallery, 1)
	assert.Equal(t, "images/DS-300_1.mp4", live[0].Gallery[0].Path)
}

func TestSaveIncompleteThenPublish(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, "POST", "/api/save-incomplete", productBody("DS-140", nil, api.uploadURL(t)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	unfilled := api.products(t, "unfilled")
	require.Len(t, unfilled, 1)
	assert.Nil(t, unfilled[0].Image)
	assert.Equal(t, "images/DS-140_draft_1.png", unfilled[0].Gallery[0].Path)

	w = api.do(t, "POST", "/api/add-product", productBody("DS-140", api.uploadURL(t), unfilled[0].Gallery[0].Path))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Empty(t, api.products(t, "unfilled"))
	live := api.products(t, "main")
	require.Len(t, live, 1)
	assert.Equal(t, "images/DS-140_draft_1.png", live[0].Gallery[0].Path)
}

func TestDeleteRestorePurge(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, "POST", "/api/add-product", productBody("DS-200", api.uploadURL(t), api.uploadURL(t)))
	require.Equal(t, http.StatusOK, w.Code)

	require.Equal(t, http.StatusOK, api.do(t, "POST", "/api/delete-product", IDRequest{ID: "DS-200"}).Code)
	assert.Empty(t, api.products(t, "main"))
	trashed := api.products(t, "trash")
	require.Len(t, trashed, 1)
	assert.Equal(t, "images/trash/DS-200_main.png", trashed[0].Image.Path)

	require.Equal(t, http.StatusOK, api.do(t, "POST", "/api/restore-product", IDRequest{ID: "DS-200"}).Code)
	assert.Empty(t, api.products(t, "trash"))
	require.Len(t, api.products(t, "main"), 1)

	require.Equal(t, http.StatusOK, api.do(t, "POST", "/api/delete-product", IDRequest{ID: "DS-200"}).Code)
	trashed = api.products(t, "trash")
	require.Len(t, trashed, 1)

	require.Equal(t, http.StatusOK, api.do(t, "POST", "/api/perm-delete", IDRequest{ID: "DS-200"}).Code)
	assert.Empty(t, api.products(t, "trash"))
	for _, ref := range trashed[0].Refs() {
		assert.False(t, api.exists(ref.Path), ref.Path)
	}
}

func TestProperty_UnknownIDsAre404(t *testing.T) {
	api := newTestAPI(t)
	properties := gopter.NewProperties(nil)

	properties.Property("delete, restore and purge of unknown ids return 404", prop.ForAll(
		func(n int, route string) bool {
			w := api.do(t, "POST", route, IDRequest{ID: fmt.Sprintf("DS-%d", n)})
			return w.Code == http.StatusNotFound
		},
		gen.IntRange(0, 100000),
		gen.OneConstOf("/api/delete-product", "/api/restore-product", "/api/perm-delete"),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestIDRoutes_RequireID(t *testing.T) {
	api := newTestAPI(t)
	w := api.do(t, "POST", "/api/delete-product", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNextIDAndUnknownSource(t *testing.T) {
	api := newTestAPI(t)
	ctx := t.Context()

	require.NoError(t, api.repos.Trash.Save(ctx, []domain.Product{{ID: "DS-107"}}))
	require.NoError(t, api.repos.Live.Save(ctx, []domain.Product{{ID: "DS-105"}}))

	w := api.do(t, "GET", "/api/get-next-id", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp NextIDResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "DS-108", resp.NextID)

	live := api.products(t, "bogus")
	require.Len(t, live, 1)
	assert.Equal(t, "DS-105", live[0].ID)
}

func TestDraftRoundTripAndClearBuffer(t *testing.T) {
	api := newTestAPI(t)

	mainURL := api.uploadURL(t)
	g1 := api.uploadURL(t)
	form := productBody("DS-190", mainURL, g1)
	require.Equal(t, http.StatusOK, api.do(t, "POST", "/api/draft", form).Code)

	w := api.do(t, "GET", "/api/draft", nil)
	require.Equal(t, http.StatusOK, w.Code)
	sent, err := json.Marshal(form)
	require.NoError(t, err)
	assert.JSONEq(t, string(sent), w.Body.String())

	var draft map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &draft))
	assert.Equal(t, mainURL, draft["mainImage"])
	assert.Equal(t, "4", draft["stars"])
	assert.Equal(t, []interface{}{g1}, draft["gallery"])

	w = api.do(t, "GET", "/api/get-next-id", nil)
	assert.JSONEq(t, `{"next_id":"DS-191"}`, w.Body.String())

	for _, bad := range []string{`["DS-190"]`, `"DS-190"`, `{"id":`} {
		w = api.doRaw(t, "POST", "/api/draft", bad)
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}

	require.Equal(t, http.StatusOK, api.do(t, "DELETE", "/api/draft", nil).Code)
	assert.JSONEq(t, `{}`, api.do(t, "GET", "/api/draft", nil).Body.String())
	assert.True(t, api.exists(mainURL))
	assert.True(t, api.exists(g1))

	w = api.do(t, "POST", "/api/clear-buffer", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Removed)
	assert.Equal(t, 2, *resp.Removed)
	assert.False(t, api.exists(mainURL))
}

func TestToggleVisibility(t *testing.T) {
	api := newTestAPI(t)
	w := api.do(t, "POST", "/api/add-product", productBody("DS-160", api.uploadURL(t)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	toggle := func(body interface{}) StatusResponse {
		t.Helper()
		w := api.do(t, "POST", "/api/toggle-visibility", body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp StatusResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotNil(t, resp.Visible)
		return resp
	}

	assert.False(t, *toggle(map[string]string{"id": "DS-160"}).Visible)
	assert.False(t, api.products(t, "main")[0].IsVisible())

	assert.True(t, *toggle(map[string]string{"id": "DS-160"}).Visible)
	assert.False(t, *toggle(map[string]interface{}{"id": "DS-160", "visible": false}).Visible)
	assert.False(t, api.products(t, "main")[0].IsVisible())

	assert.Equal(t, http.StatusNotFound, api.do(t, "POST", "/api/toggle-visibility", map[string]string{"id": "DS-999"}).Code)
	assert.Equal(t, http.StatusBadRequest, api.do(t, "POST", "/api/toggle-visibility", map[string]string{}).Code)
}

func TestMountMedia_NoDirectoryListing(t *testing.T) {
	api := newTestAPI(t)
	assert.Equal(t, http.StatusNotFound, api.do(t, "GET", "/images/buffer/", nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, "GET", "/images/missing.png", nil).Code)
}

func TestMediaField_DecodesStringOrObject(t *testing.T) {
	var fields []MediaField
	require.NoError(t, json.Unmarshal([]byte(`["images/a.png", {"base64":"aGk=","type":"video","rotation":"90"}, null]`), &fields))
	require.Len(t, fields, 3)
	assert.Equal(t, "images/a.png", fields[0].Ref)
	assert.Equal(t, "aGk=", fields[1].Base64)
	assert.Equal(t, FlexInt(90), fields[1].Rotation)
	assert.Equal(t, MediaField{}, fields[2])
}

func TestMountSite(t *testing.T) {
	site := t.TempDir()
	for name, body := range map[string]string{
		"main.html":     "<h1>storefront</h1>",
		"admin.html":    "<h1>admin</h1>",
		"data.json":     "[]",
		"data.json.bak": "[]",
		".env":          "DB_PASSWORD=secret",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(site, name), []byte(body), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(site, "images"), 0o755))

	r := chi.NewRouter()
	MountSite(r, site)
	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		return w
	}

	w := get("/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "storefront")
	assert.Contains(t, get("/admin.html").Body.String(), "admin")
	assert.Equal(t, http.StatusOK, get("/data.json").Code)

	assert.Equal(t, http.StatusNotFound, get("/data.json.bak").Code)
	assert.Equal(t, http.StatusNotFound, get("/.env").Code)
	assert.Equal(t, http.StatusNotFound, get("/images").Code)
	assert.Equal(t, http.StatusNotFound, get("/missing.html").Code)
}
