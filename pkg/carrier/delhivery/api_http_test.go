package delhivery_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopkart/fulfillment/pkg/carrier"
	"github.com/shopkart/fulfillment/pkg/carrier/delhivery"
)

// recordingServer captures the sequence of method+path attempts so tests can
// assert endpoint fallback ordering.
type recordingServer struct {
	mu       sync.Mutex
	attempts []string
	handler  http.HandlerFunc
	srv      *httptest.Server
}

func newRecordingServer(handler http.HandlerFunc) *recordingServer {
	rs := &recordingServer{handler: handler}
	rs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.mu.Lock()
		rs.attempts = append(rs.attempts, r.Method+" "+r.URL.Path)
		rs.mu.Unlock()
		rs.handler(w, r)
	}))
	return rs
}

func (rs *recordingServer) Attempts() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]string(nil), rs.attempts...)
}

func newTestAPIClient(baseURL string) *delhivery.HTTPAPIClient {
	return delhivery.NewHTTPAPIClient(delhivery.HTTPAPIClientConfig{
		BaseURL:  baseURL,
		APIToken: "test-token",
	})
}

func TestHTTPAPIClient_CreateWarehouse_FallbackOrdering(t *testing.T) {
	// The create endpoint answers 500; the edit fallback answers 200. The
	// client must attempt create first and succeed via edit.
	rs := newRecordingServer(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/backend/clientwarehouse/create/":
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`upstream exploded`))
		case "/api/backend/clientwarehouse/edit/":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"success":true,"data":{"name":"WH1","pin":"110001"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	defer rs.srv.Close()

	client := newTestAPIClient(rs.srv.URL)
	resp, err := client.CreateWarehouse(context.Background(), &delhivery.WarehousePayload{
		Name: "WH1", Phone: "9876543210", Pin: "110001", Address: "Addr",
	})

	require.NoError(t, err)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Data)
	assert.Equal(t, "WH1", resp.Data.Name)
	assert.Equal(t, []string{
		"POST /api/backend/clientwarehouse/create/",
		"PUT /api/backend/clientwarehouse/edit/",
	}, rs.Attempts())
}

func TestHTTPAPIClient_CreateWarehouse_AuthShortCircuit(t *testing.T) {
	rs := newRecordingServer(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid token"}`))
	})
	defer rs.srv.Close()

	client := newTestAPIClient(rs.srv.URL)
	_, err := client.CreateWarehouse(context.Background(), &delhivery.WarehousePayload{Name: "WH1"})

	require.Error(t, err)
	assert.True(t, carrier.IsAuthFailure(err))
	// A fatal 401 must not burn the remaining endpoints.
	assert.Len(t, rs.Attempts(), 1)
}

func TestHTTPAPIClient_CreateWarehouse_ConflictShortCircuit(t *testing.T) {
	rs := newRecordingServer(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"message":"warehouse already exists"}`))
	})
	defer rs.srv.Close()

	client := newTestAPIClient(rs.srv.URL)
	_, err := client.CreateWarehouse(context.Background(), &delhivery.WarehousePayload{Name: "WH1"})

	require.Error(t, err)
	assert.True(t, carrier.IsConflict(err))
	assert.Len(t, rs.Attempts(), 1)
}

func TestHTTPAPIClient_CreateWarehouse_Exhaustion(t *testing.T) {
	rs := newRecordingServer(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`service unavailable`))
	})
	defer rs.srv.Close()

	client := newTestAPIClient(rs.srv.URL)
	_, err := client.CreateWarehouse(context.Background(), &delhivery.WarehousePayload{Name: "WH1"})

	require.Error(t, err)
	assert.True(t, carrier.IsRetryable(err))
	assert.ErrorIs(t, err, carrier.ErrCarrierUnavailable)
	// Both prioritized endpoints were tried before giving up.
	assert.Len(t, rs.Attempts(), 2)
}

func TestHTTPAPIClient_MissingCredentials(t *testing.T) {
	rs := newRecordingServer(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be made without credentials")
	})
	defer rs.srv.Close()

	client := delhivery.NewHTTPAPIClient(delhivery.HTTPAPIClientConfig{
		BaseURL: rs.srv.URL,
	})
	_, err := client.CreateWarehouse(context.Background(), &delhivery.WarehousePayload{Name: "WH1"})

	require.Error(t, err)
	assert.ErrorIs(t, err, carrier.ErrMissingCredentials)
	assert.Empty(t, rs.Attempts())
}

func TestHTTPAPIClient_ValidationSurfaced(t *testing.T) {
	rs := newRecordingServer(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"pin must be 6 digits"}`))
	})
	defer rs.srv.Close()

	client := newTestAPIClient(rs.srv.URL)
	_, err := client.CreateWarehouse(context.Background(), &delhivery.WarehousePayload{Name: "WH1", Pin: "11"})

	require.Error(t, err)
	assert.True(t, carrier.IsValidation(err))
	assert.Contains(t, err.Error(), "pin must be 6 digits")
}

func TestHTTPAPIClient_AuthorizationHeader(t *testing.T) {
	rs := newRecordingServer(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Token test-token", r.Header.Get("Authorization"))
		w.Write([]byte(`{"success":true,"data":[]}`))
	})
	defer rs.srv.Close()

	client := newTestAPIClient(rs.srv.URL)
	_, err := client.ListWarehouses(context.Background())
	require.NoError(t, err)
}

func TestHTTPAPIClient_ListWarehouses_BareArray(t *testing.T) {
	rs := newRecordingServer(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"name":"WH1","pin":"110001","active":true}]`))
	})
	defer rs.srv.Close()

	client := newTestAPIClient(rs.srv.URL)
	resp, err := client.ListWarehouses(context.Background())

	require.NoError(t, err)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "WH1", resp.Data[0].Name)
	assert.True(t, resp.Data[0].Active)
}

func TestHTTPAPIClient_CreateShipment_FormEncoding(t *testing.T) {
	rs := newRecordingServer(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "json", r.PostFormValue("format"))
		assert.Contains(t, r.PostFormValue("data"), `"pickup_location":{"name":"WH1"}`)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))

		w.Write([]byte(`{"success":true,"packages":[{"status":"Success","waybill":"WB100","refnum":"ORD-1"}]}`))
	})
	defer rs.srv.Close()

	client := newTestAPIClient(rs.srv.URL)
	resp, err := client.CreateShipment(context.Background(), &delhivery.ManifestPayload{
		PickupLocation: delhivery.PickupLocation{Name: "WH1"},
		Shipments: []delhivery.ShipmentEntry{
			{Order: "ORD-1", Name: "Customer", Add: "Addr", Pin: "110001", Phone: "9876543210", PaymentMode: "Prepaid"},
		},
	})

	require.NoError(t, err)
	assert.True(t, resp.Success)
	require.Len(t, resp.Packages, 1)
	assert.Equal(t, "WB100", resp.Packages[0].Waybill)
	assert.Equal(t, "ORD-1", resp.Packages[0].RefNum)
	assert.Equal(t, []string{"POST /api/cmu/create.json"}, rs.Attempts())
}

func TestHTTPAPIClient_RequestPickup(t *testing.T) {
	rs := newRecordingServer(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), `"pickup_location":"WH1"`)
		assert.Contains(t, string(body), `"expected_package_count":3`)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		w.Write([]byte(`{"pickup_id":42,"pickup_location_name":"WH1","pickup_date":"2026-09-02"}`))
	})
	defer rs.srv.Close()

	client := newTestAPIClient(rs.srv.URL)
	resp, err := client.RequestPickup(context.Background(), &delhivery.PickupPayload{
		PickupLocation:       "WH1",
		PickupDate:           "2026-09-02",
		PickupTime:           "11:00:00",
		ExpectedPackageCount: 3,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(42), resp.PickupID)
	assert.Equal(t, []string{"POST /fm/request/new/"}, rs.Attempts())
}

func TestHTTPAPIClient_RequestPickup_APIError(t *testing.T) {
	rs := newRecordingServer(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"pickup already scheduled for this date"}`))
	})
	defer rs.srv.Close()

	client := newTestAPIClient(rs.srv.URL)
	_, err := client.RequestPickup(context.Background(), &delhivery.PickupPayload{
		PickupLocation: "WH1", PickupDate: "2026-09-02",
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "already scheduled")
}

func TestHTTPAPIClient_FetchWaybills_CommaString(t *testing.T) {
	rs := newRecordingServer(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("count"))
		w.Write([]byte(`"WB1,WB2"`))
	})
	defer rs.srv.Close()

	client := newTestAPIClient(rs.srv.URL)
	waybills, err := client.FetchWaybills(context.Background(), 2)

	require.NoError(t, err)
	assert.Equal(t, []string{"WB1", "WB2"}, waybills)
}

func TestHTTPAPIClient_Ping(t *testing.T) {
	rs := newRecordingServer(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	defer rs.srv.Close()

	client := newTestAPIClient(rs.srv.URL)
	status, err := client.Ping(context.Background())

	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, status)
}
