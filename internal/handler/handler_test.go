package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/ruxstar-pod/internal/domain/auth"
	"github.com/xenking/ruxstar-pod/internal/domain/order"
	"github.com/xenking/ruxstar-pod/internal/domain/pricing"
	"github.com/xenking/ruxstar-pod/internal/domain/product"
	"github.com/xenking/ruxstar-pod/internal/domain/vendor"
	"github.com/xenking/ruxstar-pod/pkg/opt"
)

// --- Mock implementations ---

type mockProductRepo struct {
	products []product.Product
	listErr  error
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) {
	return m.products, m.listErr
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	for i := range m.products {
		if m.products[i].ID == id {
			return &m.products[i], nil
		}
	}
	return nil, product.ErrNotFound
}

type mockVendorRepo struct{ vendor *vendor.Vendor }

func (m *mockVendorRepo) FirstAvailable(_ context.Context) (*vendor.Vendor, error) {
	if m.vendor == nil {
		return nil, vendor.ErrNoneAvailable
	}
	return m.vendor, nil
}

type memOrders struct {
	mu     sync.Mutex
	orders map[string]order.Order
}

func (m *memOrders) Create(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = *o
	return nil
}

func (m *memOrders) GetByID(_ context.Context, id string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	o.Timeline = append([]order.TimelineEntry(nil), o.Timeline...)
	return &o, nil
}

func (m *memOrders) ListByVendor(_ context.Context, vendorID string) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []order.Order
	for _, o := range m.orders {
		if o.VendorID == vendorID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memOrders) Transition(_ context.Context, t order.Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[t.OrderID]
	if !ok {
		return order.ErrNotFound
	}
	if o.Status != t.From {
		return order.ErrStatusConflict
	}
	o.Status = t.Entry.Status
	o.Timeline = append(o.Timeline, t.Entry)
	m.orders[o.ID] = o
	return nil
}

func (m *memOrders) SetStatus(_ context.Context, id string, from, to order.Status, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	if o.Status != from {
		return order.ErrStatusConflict
	}
	o.Status, o.UpdatedAt = to, at
	m.orders[id] = o
	return nil
}

type memFiles struct {
	files map[string]order.DesignFile
}

func (m *memFiles) Upload(_ context.Context, ownerID string, f order.DesignFile) (string, error) {
	m.files[ownerID] = f
	return "http://localhost/api/files/" + ownerID, nil
}

func (m *memFiles) Get(_ context.Context, id string) (*order.DesignFile, error) {
	f, ok := m.files[id]
	if !ok {
		return nil, order.ErrFileNotFound
	}
	return &f, nil
}

type mockAPIKeyRepo struct {
	keys map[string]*auth.APIKeyInfo
}

func (m *mockAPIKeyRepo) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	info, ok := m.keys[hash]
	if !ok {
		return nil, errors.New("no rows")
	}
	return info, nil
}

// --- Helpers ---

var pepper = []byte("test-pepper")

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func catalog() []product.Product {
	return []product.Product{
		{
			ID:        "prod-1",
			Name:      "Classic Cotton Tee",
			Category:  "T-Shirts",
			Image:     "/tee.png",
			BasePrice: d("12"),
			QuantitySlabs: opt.New([]pricing.Slab{
				{Min: 11, Max: 50, PricePerUnit: d("9")},
			}),
			TurnaroundOptions: opt.New([]pricing.Turnaround{
				{Label: "5-7 Days", Days: 7, PriceMultiplier: d("1")},
				{Label: "24 Hours", Days: 1, PriceMultiplier: d("1.25")},
			}),
			SupportedPrintTypes: []string{"DTF"},
			Sizes:               []string{"M"},
			Colors:              []string{"Black"},
			Active:              true,
		},
		{
			ID:                  "prod-2",
			Name:                "Tote",
			BasePrice:           d("8"),
			SupportedPrintTypes: []string{"Screen"},
			Sizes:               []string{"One Size"},
			Colors:              []string{"Natural"},
			Active:              true,
		},
	}
}

type env struct {
	srv    http.Handler
	orders *memOrders
	files  *memFiles
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		orders: &memOrders{orders: map[string]order.Order{}},
		files:  &memFiles{files: map[string]order.DesignFile{}},
	}
	products := &mockProductRepo{products: catalog()}
	svc := order.NewService(
		products,
		&mockVendorRepo{vendor: &vendor.Vendor{ID: "V1"}},
		e.orders,
		e.files,
		nil,
		pricing.NewEngine(pricing.VolumeV2),
	)
	keys := &mockAPIKeyRepo{keys: map[string]*auth.APIKeyInfo{}}
	for key, vendorID := range map[string]string{"key-v1": "V1", "key-v2": "V2"} {
		h := auth.HashKey(pepper, key)
		keys.keys[h] = &auth.APIKeyInfo{ID: key, KeyHash: h, VendorID: vendorID}
	}
	h := New(Config{ImageBaseURL: "https://cdn.example.com"}, products, svc, e.files, NewAuthenticator(keys, pepper))
	e.srv = h.Routes()
	return e
}

func (e *env) do(t *testing.T, method, path, key, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if key != "" {
		req.Header.Set(APIKeyHeader, key)
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

// field extracts a top-level or nested string field from a JSON body.
func field(t *testing.T, body []byte, path ...string) string {
	t.Helper()
	d := jx.DecodeBytes(body)
	for i, key := range path {
		var raw jx.Raw
		err := d.ObjBytes(func(d *jx.Decoder, k []byte) error {
			if string(k) != key {
				return d.Skip()
			}
			var err error
			raw, err = d.Raw()
			return err
		})
		require.NoError(t, err)
		require.NotNil(t, raw, "field %q", key)
		if i == len(path)-1 {
			if raw.Type() == jx.String {
				s, err := jx.DecodeBytes(raw).Str()
				require.NoError(t, err)
				return s
			}
			return raw.String()
		}
		d = jx.DecodeBytes(raw)
	}
	return ""
}

const placeBody = `{
	"product_id": "prod-1",
	"quantity": 20,
	"size": "M",
	"color": "Black",
	"print_type": "DTF",
	"turnaround": "24 Hours",
	"customer": {"name": "Asha", "email": "asha@example.com", "phone": null}
}`

func (e *env) place(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/orders", "", placeBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return field(t, rec.Body.Bytes(), "order", "id")
}

// --- Products ---

func TestListProducts(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/api/products", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var ids []string
	var optional []string
	err := jx.DecodeBytes(rec.Body.Bytes()).Arr(func(d *jx.Decoder) error {
		raw, err := d.Raw()
		if err != nil {
			return err
		}
		ids = append(ids, field(t, raw, "id"))
		optional = append(optional, field(t, raw, "quantity_slabs"))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"prod-1", "prod-2"}, ids)
	assert.Equal(t, "null", optional[1], "absent slabs stay null")
}

func TestListProducts_Error(t *testing.T) {
	e := newEnv(t)
	products := &mockProductRepo{listErr: errors.New("db down")}
	h := New(Config{}, products, nil, e.files, nil)

	rec := httptest.NewRecorder()
	h.ListProducts(rec, httptest.NewRequest(http.MethodGet, "/api/products", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")
}

func TestGetProduct(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/api/products/prod-1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://cdn.example.com/tee.png", field(t, rec.Body.Bytes(), "image"))
	assert.Equal(t, "12.00", field(t, rec.Body.Bytes(), "base_price"))

	rec = e.do(t, http.MethodGet, "/api/products/missing", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQuote(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/products/prod-1/quote", "",
		`{"quantity": 20, "turnaround": "24 Hours"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := rec.Body.Bytes()
	assert.Equal(t, "11.25", field(t, body, "pricing", "unit_price"))
	assert.Equal(t, "225.00", field(t, body, "pricing", "subtotal"))
	assert.Equal(t, "202.50", field(t, body, "pricing", "total"))
	assert.Equal(t, "24 Hours", field(t, body, "pricing", "turnaround", "label"))
}

func TestQuote_Errors(t *testing.T) {
	e := newEnv(t)

	for _, tt := range []struct {
		name string
		path string
		body string
		code int
	}{
		{"malformed body", "/api/products/prod-1/quote", `{"quantity":`, http.StatusBadRequest},
		{"unknown turnaround", "/api/products/prod-1/quote", `{"quantity":5,"turnaround":"Same Day"}`, http.StatusUnprocessableEntity},
		{"unknown product", "/api/products/nope/quote", `{"quantity":5}`, http.StatusUnprocessableEntity},
	} {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, tt.path, "", tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}

// --- Orders ---

func TestPlaceOrder(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/orders", "", placeBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := rec.Body.Bytes()
	assert.Equal(t, "new", field(t, body, "order", "status"))
	assert.Equal(t, "Accept Order", field(t, body, "order", "next_action"))
	assert.Equal(t, "V1", field(t, body, "order", "vendor_id"))
	assert.Equal(t, "202.50", field(t, body, "order", "total_price"))
	assert.Equal(t, "10", field(t, body, "pricing", "discount_percent"))
}

func TestPlaceOrder_WithDesign(t *testing.T) {
	e := newEnv(t)
	art := []byte("\x89PNG fake artwork")

	body := `{"product_id":"prod-2","quantity":1,"size":"One Size","color":"Natural",
		"print_type":"Screen","customer":{"name":"Ravi"},
		"design":{"name":"logo.png","content_type":"image/png","data":"` +
		base64.StdEncoding.EncodeToString(art) + `"}}`
	rec := e.do(t, http.MethodPost, "/api/orders", "", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	id := field(t, rec.Body.Bytes(), "order", "id")
	assert.Contains(t, field(t, rec.Body.Bytes(), "order", "file_url"), id)

	rec = e.do(t, http.MethodGet, "/api/files/"+id, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, art, rec.Body.Bytes())

	rec = e.do(t, http.MethodGet, "/api/files/unknown", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPlaceOrder_Errors(t *testing.T) {
	for _, tt := range []struct {
		name string
		body string
		code int
		msg  string
	}{
		{
			name: "missing customer name",
			body: `{"product_id":"prod-1","quantity":5,"size":"M","color":"Black","print_type":"DTF","customer":{}}`,
			code: http.StatusUnprocessableEntity,
			msg:  "customer.name",
		},
		{
			name: "size not offered",
			body: `{"product_id":"prod-1","quantity":5,"size":"XXL","color":"Black","print_type":"DTF","customer":{"name":"A"}}`,
			code: http.StatusUnprocessableEntity,
			msg:  "size",
		},
		{
			name: "unknown product",
			body: `{"product_id":"nope","quantity":5,"customer":{"name":"A"}}`,
			code: http.StatusUnprocessableEntity,
			msg:  "product nope not found",
		},
		{
			name: "invalid base64",
			body: `{"product_id":"prod-1","design":{"data":"%%%"}}`,
			code: http.StatusBadRequest,
			msg:  "design",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			rec := e.do(t, http.MethodPost, "/api/orders", "", tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			assert.Contains(t, field(t, rec.Body.Bytes(), "message"), tt.msg)
		})
	}
}

func TestPlaceOrder_BodyTooLarge(t *testing.T) {
	e := newEnv(t)
	h := New(Config{MaxBodyBytes: 16}, &mockProductRepo{}, nil, e.files, nil)

	rec := httptest.NewRecorder()
	h.PlaceOrder(rec, httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewBufferString(placeBody)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

// --- Vendor ---

func TestVendorRoutes_RequireAPIKey(t *testing.T) {
	e := newEnv(t)

	for _, key := range []string{"", "wrong"} {
		rec := e.do(t, http.MethodGet, "/api/vendor/orders", key, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}

func TestAdvanceOrder_Lifecycle(t *testing.T) {
	e := newEnv(t)
	id := e.place(t)

	for _, want := range []struct{ status, action string }{
		{"accepted", "Start Printing"},
		{"printing", "Mark as Ready"},
		{"ready", "Complete"},
		{"completed", "null"},
	} {
		rec := e.do(t, http.MethodPost, "/api/vendor/orders/"+id+"/advance", "key-v1", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, want.status, field(t, rec.Body.Bytes(), "status"))
		assert.Equal(t, want.action, field(t, rec.Body.Bytes(), "next_action"))
	}

	rec := e.do(t, http.MethodPost, "/api/vendor/orders/"+id+"/advance", "key-v1", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "order is completed, no further status changes are possible",
		field(t, rec.Body.Bytes(), "message"))
}

func TestAdvanceOrder_Ownership(t *testing.T) {
	e := newEnv(t)
	id := e.place(t)

	rec := e.do(t, http.MethodPost, "/api/vendor/orders/"+id+"/advance", "key-v2", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/vendor/orders/"+id, "key-v2", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/vendor/orders/missing", "key-v1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListVendorOrders(t *testing.T) {
	e := newEnv(t)
	e.place(t)
	e.place(t)

	count := func(key string) int {
		rec := e.do(t, http.MethodGet, "/api/vendor/orders", key, "")
		require.Equal(t, http.StatusOK, rec.Code)
		n := 0
		require.NoError(t, jx.DecodeBytes(rec.Body.Bytes()).Arr(func(d *jx.Decoder) error {
			n++
			return d.Skip()
		}))
		return n
	}
	assert.Equal(t, 2, count("key-v1"))
	assert.Equal(t, 0, count("key-v2"))
}

func TestReconcileOrder(t *testing.T) {
	e := newEnv(t)
	id := e.place(t)

	rec := e.do(t, http.MethodPost, "/api/vendor/orders/"+id+"/reconcile", "key-v1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "false", field(t, rec.Body.Bytes(), "repaired"))

	require.NoError(t, e.orders.SetStatus(context.Background(), id, order.StatusNew, order.StatusPrinting, time.Now()))

	rec = e.do(t, http.MethodPost, "/api/vendor/orders/"+id+"/reconcile", "key-v1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", field(t, rec.Body.Bytes(), "repaired"))
	assert.Equal(t, "new", field(t, rec.Body.Bytes(), "order", "status"))
}

func TestAuthenticator(t *testing.T) {
	h := auth.HashKey(pepper, "k")
	keys := &mockAPIKeyRepo{keys: map[string]*auth.APIKeyInfo{
		h: {ID: "1", KeyHash: h, VendorID: "V1"},
	}}
	a := NewAuthenticator(keys, pepper)

	sess, err := a.Authenticate(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, auth.Session{VendorID: "V1", KeyID: "1"}, sess)

	t.Run("stale row", func(t *testing.T) {
		keys.keys[h] = &auth.APIKeyInfo{ID: "1", KeyHash: auth.HashKey(pepper, "other"), VendorID: "V1"}
		_, err := a.Authenticate(context.Background(), "k")
		require.ErrorIs(t, err, errUnauthorized)
	})
	t.Run("empty key", func(t *testing.T) {
		_, err := a.Authenticate(context.Background(), "")
		require.ErrorIs(t, err, errUnauthorized)
	})
}

func TestDecode_MinimalBodies(t *testing.T) {
	t.Run("quote", func(t *testing.T) {
		var q quoteRequest
		require.NoError(t, q.Decode(jx.DecodeStr(`{"quantity":25}`)))
		assert.Equal(t, 25, q.Quantity)
		assert.Empty(t, q.Turnaround)
	})

	t.Run("place order", func(t *testing.T) {
		req, err := decodePlaceOrder(jx.DecodeStr(`{"product_id":"tee"}`))
		require.NoError(t, err)
		assert.Equal(t, "tee", req.ProductID)
		assert.Nil(t, req.Design)
	})

	t.Run("place order with nested objects", func(t *testing.T) {
		req, err := decodePlaceOrder(jx.DecodeStr(`{
			"product_id": "tee", "quantity": 3, "notes": null,
			"customer": {"name": "Asha"},
			"design": {"name": "a.txt", "data": "aGk="}
		}`))
		require.NoError(t, err)
		assert.Equal(t, 3, req.Quantity)
		assert.Equal(t, "Asha", req.Customer.Name)
		require.NotNil(t, req.Design)
		assert.Equal(t, []byte("hi"), req.Design.Data)
	})

	t.Run("bad field is named", func(t *testing.T) {
		_, err := decodePlaceOrder(jx.DecodeStr(`{"quantity":"many"}`))
		assert.ErrorContains(t, err, `field "quantity"`)
	})
}
