package refdata_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"fieldrouter/internal/cache"
	"fieldrouter/internal/errs"
	"fieldrouter/internal/models"
	"fieldrouter/internal/refdata"
)

// fakeClient serves canned reference entities and counts calls per method.
type fakeClient struct {
	connection *models.Connection
	route      *models.Route
	dest       *models.Destination
	integ      *models.Integration
	device     *models.Device
	outbounds  []models.Destination
	err        error

	calls map[string]int
}

func newFakeClient() *fakeClient {
	return &fakeClient{calls: map[string]int{}}
}

func (f *fakeClient) Connection(_ context.Context, id string) (*models.Connection, error) {
	f.calls["connection"]++
	return f.connection, f.err
}

func (f *fakeClient) Route(_ context.Context, id string) (*models.Route, error) {
	f.calls["route"]++
	return f.route, f.err
}

func (f *fakeClient) Destination(_ context.Context, id string) (*models.Destination, error) {
	f.calls["destination"]++
	return f.dest, f.err
}

func (f *fakeClient) Integration(_ context.Context, id string) (*models.Integration, error) {
	f.calls["integration"]++
	return f.integ, f.err
}

func (f *fakeClient) Device(_ context.Context, integrationID, deviceID string) (*models.Device, error) {
	f.calls["device"]++
	return f.device, f.err
}

func (f *fakeClient) OutboundsByDevice(_ context.Context, integrationID, deviceID string) ([]models.Destination, error) {
	f.calls["outbounds"]++
	return f.outbounds, f.err
}

// failingBackend errors on every operation.
type failingBackend struct{}

func (f *failingBackend) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("backend down")
}
func (f *failingBackend) SetEx(context.Context, string, time.Duration, []byte) error {
	return errors.New("backend down")
}
func (f *failingBackend) Close() error { return nil }

func TestStoreCachesSecondLookup(t *testing.T) {
	client := newFakeClient()
	client.connection = &models.Connection{ID: "conn-1", Provider: models.Provider{ID: "prov-1"}}
	store := refdata.NewStore(cache.NewMemory(), client, time.Minute)

	for i := 0; i < 3; i++ {
		conn, err := store.Connection(context.Background(), "prov-1")
		if err != nil {
			t.Fatalf("Connection #%d: %v", i, err)
		}
		if conn.ID != "conn-1" {
			t.Errorf("connection id = %q", conn.ID)
		}
	}

	if client.calls["connection"] != 1 {
		t.Errorf("client called %d times, want 1", client.calls["connection"])
	}
}

func TestStoreNotFoundIsReferenceDataError(t *testing.T) {
	client := newFakeClient()
	client.err = refdata.ErrNotFound
	store := refdata.NewStore(cache.NewMemory(), client, time.Minute)

	_, err := store.Connection(context.Background(), "missing")
	var refErr *errs.ReferenceDataError
	if !errors.As(err, &refErr) {
		t.Fatalf("expected ReferenceDataError, got %v", err)
	}
	if !errs.Retryable(err) {
		t.Error("missing reference data must be retryable")
	}
}

func TestStoreCacheFailureFallsBackToFetch(t *testing.T) {
	client := newFakeClient()
	client.dest = &models.Destination{ID: "dest-1", TypeSlug: models.DestEarthRanger}
	store := refdata.NewStore(&failingBackend{}, client, time.Minute)

	dest, err := store.Destination(context.Background(), "dest-1")
	if err != nil {
		t.Fatalf("Destination: %v", err)
	}
	if dest.ID != "dest-1" {
		t.Errorf("destination id = %q", dest.ID)
	}
}

func TestStoreDeviceNeverFails(t *testing.T) {
	client := newFakeClient()
	client.err = errors.New("service down")
	store := refdata.NewStore(cache.NewMemory(), client, time.Minute)

	device := store.Device(context.Background(), "int-1", "collar-9")
	if device == nil {
		t.Fatal("device lookup must synthesize a placeholder")
	}
	if !device.Blank() {
		t.Error("placeholder must report Blank()")
	}
	if device.ExternalID != "collar-9" || device.IntegrationID != "int-1" {
		t.Errorf("placeholder = %+v", device)
	}
}

func TestStoreOutboundsEmptyListNotCached(t *testing.T) {
	client := newFakeClient()
	backend := cache.NewMemory()
	store := refdata.NewStore(backend, client, time.Minute)

	list, err := store.OutboundsByDevice(context.Background(), "int-1", "collar-9")
	if err != nil {
		t.Fatalf("OutboundsByDevice: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("list = %v, want empty", list)
	}
	if backend.Len() != 0 {
		t.Error("empty result must not be cached")
	}

	// Once configuration appears, the next lookup sees it.
	client.outbounds = []models.Destination{{ID: "dest-1", TypeSlug: models.DestEarthRanger}}
	list, err = store.OutboundsByDevice(context.Background(), "int-1", "collar-9")
	if err != nil {
		t.Fatalf("OutboundsByDevice after config: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("list = %v, want one destination", list)
	}
	if client.calls["outbounds"] != 2 {
		t.Errorf("client called %d times, want 2", client.calls["outbounds"])
	}
}

func TestStoreOutboundsLookupFailure(t *testing.T) {
	client := newFakeClient()
	client.err = errors.New("service down")
	store := refdata.NewStore(cache.NewMemory(), client, time.Minute)

	_, err := store.OutboundsByDevice(context.Background(), "int-1", "collar-9")
	var refErr *errs.ReferenceDataError
	if !errors.As(err, &refErr) {
		t.Fatalf("expected ReferenceDataError, got %v", err)
	}
}

func TestStoreIntegration(t *testing.T) {
	client := newFakeClient()
	client.integ = &models.Integration{ID: "int-1", TypeSlug: "savannah_tracking"}
	store := refdata.NewStore(cache.NewMemory(), client, time.Minute)

	integ, err := store.Integration(context.Background(), "int-1")
	if err != nil {
		t.Fatalf("Integration: %v", err)
	}
	if integ.TypeSlug != "savannah_tracking" {
		t.Errorf("type slug = %q", integ.TypeSlug)
	}
}
