package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	caterrors "github.com/acme/gocatalog/internal/errors"
	"github.com/acme/gocatalog/internal/patch"
	"github.com/acme/gocatalog/internal/store"
	"github.com/acme/gocatalog/pkg/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockProductStore is a mock implementation of the ProductStore interface
type mockProductStore struct {
	product *store.Product
	findErr error

	insertErr error
	inserted  []store.Product

	saveErr       error
	saved         []store.Product
	savedExpected []string

	deleteErr      error
	deleted        []string
	deleteExpected []string
}

func (m *mockProductStore) FindByID(_ context.Context, _ string) (*store.Product, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	p := *m.product
	return &p, nil
}

func (m *mockProductStore) Insert(_ context.Context, p store.Product) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.inserted = append(m.inserted, p)
	return nil
}

func (m *mockProductStore) Save(_ context.Context, p store.Product, expected string) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, p)
	m.savedExpected = append(m.savedExpected, expected)
	return nil
}

func (m *mockProductStore) MarkDeleted(_ context.Context, id, expected, _ string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, id)
	m.deleteExpected = append(m.deleteExpected, expected)
	return nil
}

func (m *mockProductStore) List(_ context.Context, _ string, _ int32) ([]store.Product, string, error) {
	return nil, "", nil
}

// mockSnapshotStore is a mock implementation of the SnapshotStore interface
type mockSnapshotStore struct {
	putErr error
	puts   []store.Snapshot
}

func (m *mockSnapshotStore) Put(_ context.Context, s store.Snapshot) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.puts = append(m.puts, s)
	return nil
}

func (m *mockSnapshotStore) ListByProduct(_ context.Context, _, _ string, _ int32) ([]store.Snapshot, string, error) {
	return nil, "", nil
}

// mockPublisher records published events
type mockPublisher struct {
	publishErr error
	published  []messaging.Event
}

func (m *mockPublisher) Publish(_ context.Context, event messaging.Event) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, event)
	return nil
}

func newTestService(products *mockProductStore, snapshots *mockSnapshotStore, publisher *mockPublisher) *Service {
	s := NewService(products, snapshots, publisher)
	s.now = func() time.Time {
		return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	}
	return s
}

func existingProduct() *store.Product {
	return &store.Product{
		ID:           "11111111-1111-1111-1111-111111111111",
		Name:         "Apple",
		ImageURL:     "https://example.com/apple.jpg",
		LastModified: "2024-04-30T08:00:00.000Z",
	}
}

func rawValue(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func Test_Create(t *testing.T) {
	t.Run("Success - product persisted then announced", func(t *testing.T) {
		// given
		products := &mockProductStore{}
		snapshots := &mockSnapshotStore{}
		publisher := &mockPublisher{}
		service := newTestService(products, snapshots, publisher)
		// when
		created, err := service.Create(context.Background(), ProductCreateDto{
			Name:     "widget",
			ImageURL: "https://example.com/widget.jpg",
		})
		// then
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, "widget", created.Name)
		assert.Equal(t, "https://example.com/widget.jpg", created.ImageURL)
		assert.Equal(t, "2024-05-01T12:00:00.000Z", created.LastModified)

		require.Len(t, products.inserted, 1)
		assert.Equal(t, created.ID, products.inserted[0].ID)
		require.Len(t, publisher.published, 1)
		// no snapshot on creation: there is no prior state to preserve
		assert.Empty(t, snapshots.puts)
	})

	t.Run("Error - validation failure performs no write and no broadcast", func(t *testing.T) {
		products := &mockProductStore{}
		publisher := &mockPublisher{}
		service := newTestService(products, &mockSnapshotStore{}, publisher)

		created, err := service.Create(context.Background(), ProductCreateDto{Name: "   "})

		require.Error(t, err)
		var vErr *caterrors.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.Fields, "/name")
		assert.Contains(t, vErr.Fields, "/imageURL")
		assert.Nil(t, created)
		assert.Empty(t, products.inserted)
		assert.Empty(t, publisher.published)
	})

	t.Run("Error - failed write must not be announced", func(t *testing.T) {
		products := &mockProductStore{insertErr: errors.New("db down")}
		publisher := &mockPublisher{}
		service := newTestService(products, &mockSnapshotStore{}, publisher)

		_, err := service.Create(context.Background(), ProductCreateDto{
			Name:     "widget",
			ImageURL: "https://example.com/widget.jpg",
		})

		require.Error(t, err)
		assert.Empty(t, publisher.published)
	})
}

func Test_Patch(t *testing.T) {
	renameOps := []patch.Operation{
		{Op: "replace", Path: "/name", Value: []byte(`"Grape"`)},
	}

	t.Run("Success - snapshot, conditional save, broadcast", func(t *testing.T) {
		// given
		prior := existingProduct()
		products := &mockProductStore{product: prior}
		snapshots := &mockSnapshotStore{}
		publisher := &mockPublisher{}
		service := newTestService(products, snapshots, publisher)
		// when
		updated, err := service.Patch(context.Background(), prior.ID, renameOps)
		// then
		require.NoError(t, err)
		assert.Equal(t, "Grape", updated.Name)
		assert.Equal(t, "2024-05-01T12:00:00.000Z", updated.LastModified)

		// the snapshot preserves the pre-mutation state, keyed by its timestamp
		require.Len(t, snapshots.puts, 1)
		assert.Equal(t, store.SnapshotOf(*prior), snapshots.puts[0])

		// the save is guarded by the LastModified read at load time
		require.Len(t, products.saved, 1)
		assert.Equal(t, prior.LastModified, products.savedExpected[0])
		assert.Equal(t, "Grape", products.saved[0].Name)
		assert.Equal(t, prior.ID, products.saved[0].ID)

		require.Len(t, publisher.published, 1)
	})

	t.Run("Error - unknown product", func(t *testing.T) {
		products := &mockProductStore{findErr: caterrors.ErrProductNotFound}
		service := newTestService(products, &mockSnapshotStore{}, &mockPublisher{})

		_, err := service.Patch(context.Background(), "missing", renameOps)

		assert.ErrorIs(t, err, caterrors.ErrProductNotFound)
	})

	t.Run("Error - soft-deleted product is gone", func(t *testing.T) {
		prior := existingProduct()
		prior.Deleted = true
		products := &mockProductStore{product: prior}
		snapshots := &mockSnapshotStore{}
		service := newTestService(products, snapshots, &mockPublisher{})

		_, err := service.Patch(context.Background(), prior.ID, renameOps)

		assert.ErrorIs(t, err, caterrors.ErrProductDeleted)
		assert.Empty(t, snapshots.puts)
	})

	t.Run("Error - snapshot failure blocks the save", func(t *testing.T) {
		products := &mockProductStore{product: existingProduct()}
		snapshots := &mockSnapshotStore{putErr: errors.New("snapshot store down")}
		publisher := &mockPublisher{}
		service := newTestService(products, snapshots, publisher)

		_, err := service.Patch(context.Background(), existingProduct().ID, renameOps)

		require.Error(t, err)
		assert.Empty(t, products.saved)
		assert.Empty(t, publisher.published)
	})

	t.Run("Error - malformed patch document", func(t *testing.T) {
		products := &mockProductStore{product: existingProduct()}
		service := newTestService(products, &mockSnapshotStore{}, &mockPublisher{})

		_, err := service.Patch(context.Background(), existingProduct().ID, []patch.Operation{
			{Op: "merge", Path: "/name", Value: []byte(`"x"`)},
		})

		var opErr *patch.OpError
		require.ErrorAs(t, err, &opErr)
		assert.Empty(t, products.saved)
	})

	t.Run("Error - failed test op aborts atomically and carries the operation", func(t *testing.T) {
		products := &mockProductStore{product: existingProduct()}
		publisher := &mockPublisher{}
		service := newTestService(products, &mockSnapshotStore{}, publisher)

		_, err := service.Patch(context.Background(), existingProduct().ID, []patch.Operation{
			{Op: "test", Path: "/name", Value: rawValue(t, "Orange")},
			{Op: "replace", Path: "/name", Value: rawValue(t, "Grape")},
		})

		var testErr *patch.TestFailedError
		require.ErrorAs(t, err, &testErr)
		assert.Equal(t, "/name", testErr.Operation.Path)
		assert.Empty(t, products.saved)
		assert.Empty(t, publisher.published)
	})

	t.Run("Error - patched product fails validation", func(t *testing.T) {
		products := &mockProductStore{product: existingProduct()}
		service := newTestService(products, &mockSnapshotStore{}, &mockPublisher{})

		_, err := service.Patch(context.Background(), existingProduct().ID, []patch.Operation{
			{Op: "replace", Path: "/name", Value: rawValue(t, "   ")},
		})

		var vErr *caterrors.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.Fields, "/name")
		assert.Empty(t, products.saved)
	})

	t.Run("Error - patching a string field to a non-string fails validation", func(t *testing.T) {
		products := &mockProductStore{product: existingProduct()}
		service := newTestService(products, &mockSnapshotStore{}, &mockPublisher{})

		_, err := service.Patch(context.Background(), existingProduct().ID, []patch.Operation{
			{Op: "replace", Path: "/name", Value: rawValue(t, 42)},
		})

		var vErr *caterrors.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, []string{"must be a string"}, vErr.Fields["/name"])
		assert.Empty(t, products.saved)
	})

	t.Run("Error - lost race surfaces the conflict without broadcasting", func(t *testing.T) {
		products := &mockProductStore{product: existingProduct(), saveErr: caterrors.ErrOptimisticLock}
		publisher := &mockPublisher{}
		service := newTestService(products, &mockSnapshotStore{}, publisher)

		_, err := service.Patch(context.Background(), existingProduct().ID, renameOps)

		assert.ErrorIs(t, err, caterrors.ErrOptimisticLock)
		assert.Empty(t, publisher.published)
	})
}

func Test_DeleteByID(t *testing.T) {
	t.Run("Success - snapshot, conditional soft delete, broadcast", func(t *testing.T) {
		prior := existingProduct()
		products := &mockProductStore{product: prior}
		snapshots := &mockSnapshotStore{}
		publisher := &mockPublisher{}
		service := newTestService(products, snapshots, publisher)

		err := service.DeleteByID(context.Background(), prior.ID)

		require.NoError(t, err)
		require.Len(t, snapshots.puts, 1)
		assert.Equal(t, store.SnapshotOf(*prior), snapshots.puts[0])
		require.Len(t, products.deleted, 1)
		assert.Equal(t, prior.LastModified, products.deleteExpected[0])
		require.Len(t, publisher.published, 1)
	})

	t.Run("Error - unknown product", func(t *testing.T) {
		products := &mockProductStore{findErr: caterrors.ErrProductNotFound}
		service := newTestService(products, &mockSnapshotStore{}, &mockPublisher{})

		err := service.DeleteByID(context.Background(), "missing")

		assert.ErrorIs(t, err, caterrors.ErrProductNotFound)
	})

	t.Run("Error - deleting twice reports not found", func(t *testing.T) {
		prior := existingProduct()
		prior.Deleted = true
		products := &mockProductStore{product: prior}
		snapshots := &mockSnapshotStore{}
		service := newTestService(products, snapshots, &mockPublisher{})

		err := service.DeleteByID(context.Background(), prior.ID)

		assert.ErrorIs(t, err, caterrors.ErrProductNotFound)
		assert.Empty(t, snapshots.puts)
	})

	t.Run("Error - lost race surfaces the conflict without broadcasting", func(t *testing.T) {
		products := &mockProductStore{product: existingProduct(), deleteErr: caterrors.ErrOptimisticLock}
		publisher := &mockPublisher{}
		service := newTestService(products, &mockSnapshotStore{}, publisher)

		err := service.DeleteByID(context.Background(), existingProduct().ID)

		assert.ErrorIs(t, err, caterrors.ErrOptimisticLock)
		assert.Empty(t, publisher.published)
	})
}

func Test_FindByID(t *testing.T) {
	t.Run("Success - product found", func(t *testing.T) {
		products := &mockProductStore{product: existingProduct()}
		service := newTestService(products, &mockSnapshotStore{}, &mockPublisher{})

		found, err := service.FindByID(context.Background(), existingProduct().ID)

		require.NoError(t, err)
		assert.Equal(t, "Apple", found.Name)
	})

	t.Run("Error - soft-deleted product is gone", func(t *testing.T) {
		prior := existingProduct()
		prior.Deleted = true
		products := &mockProductStore{product: prior}
		service := newTestService(products, &mockSnapshotStore{}, &mockPublisher{})

		_, err := service.FindByID(context.Background(), prior.ID)

		assert.ErrorIs(t, err, caterrors.ErrProductDeleted)
	})

	t.Run("Error - product not found", func(t *testing.T) {
		products := &mockProductStore{findErr: caterrors.ErrProductNotFound}
		service := newTestService(products, &mockSnapshotStore{}, &mockPublisher{})

		_, err := service.FindByID(context.Background(), "missing")

		assert.ErrorIs(t, err, caterrors.ErrProductNotFound)
	})
}
