package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amirphl/trackrelay/models"
	"github.com/amirphl/trackrelay/repository"
	testingutil "github.com/amirphl/trackrelay/testing"
	"github.com/amirphl/trackrelay/utils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tenantID = "tenant-repo-test"

// withDB runs fn against a fresh migrated database, skipping when none is reachable
func withDB(t *testing.T, fn func(db *testingutil.TestDB, fixtures *testingutil.TestFixtures)) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires PostgreSQL)")
	}

	err := testingutil.TestWithDB(func(db *testingutil.TestDB) error {
		fn(db, testingutil.NewTestFixtures(db))
		return nil
	})
	if errors.Is(err, testingutil.ErrDatabaseUnavailable) {
		t.Skipf("Skipping integration test: %v", err)
	}
	require.NoError(t, err)
}

func TestEventRepository_CreateEventDeduplicates(t *testing.T) {
	withDB(t, func(db *testingutil.TestDB, fixtures *testingutil.TestFixtures) {
		ctx := context.Background()
		repo := repository.NewEventRepository(db.DB)

		dataset, err := fixtures.CreateTestDataset(tenantID)
		require.NoError(t, err)
		other, err := fixtures.CreateTestDataset(tenantID)
		require.NoError(t, err)

		first, err := fixtures.CreateTestEvent(dataset.ID, "order-1", utils.UTCNow())
		require.NoError(t, err)

		dup := *first
		dup.ID = uuid.New()
		assert.ErrorIs(t, repo.CreateEvent(ctx, &dup), repository.ErrDuplicateEvent)

		// the same event id is fine in another dataset
		sameIDElsewhere := *first
		sameIDElsewhere.ID = uuid.New()
		sameIDElsewhere.DatasetID = other.ID
		require.NoError(t, repo.CreateEvent(ctx, &sameIDElsewhere))

		count, err := repo.Count(ctx, models.EventFilter{DatasetID: &dataset.ID})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})
}

func TestEventRepository_ListEventsInWindow(t *testing.T) {
	withDB(t, func(db *testingutil.TestDB, fixtures *testingutil.TestFixtures) {
		ctx := context.Background()
		repo := repository.NewEventRepository(db.DB)

		dataset, err := fixtures.CreateTestDataset(tenantID)
		require.NoError(t, err)

		now := utils.UTCNow()
		_, err = fixtures.CreateTestEvent(dataset.ID, "recent", now.Add(-time.Hour))
		require.NoError(t, err)
		_, err = fixtures.CreateTestEvent(dataset.ID, "old", now.Add(-30*time.Hour))
		require.NoError(t, err)

		events, err := repo.ListEventsInWindow(ctx, dataset.ID, now.Add(-24*time.Hour))
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "recent", events[0].EventID)
		assert.Equal(t, 10.0, events[0].EventData["value"])
	})
}

func TestDeliveryRepository_Lifecycle(t *testing.T) {
	withDB(t, func(db *testingutil.TestDB, fixtures *testingutil.TestFixtures) {
		ctx := context.Background()
		repo := repository.NewDeliveryRepository(db.DB)

		dataset, err := fixtures.CreateTestDataset(tenantID)
		require.NoError(t, err)
		dest, err := fixtures.CreateTestDestination(dataset.ID, models.PlatformMeta, map[string]any{"pixelId": "1", "apiToken": "t"}, true)
		require.NoError(t, err)
		event, err := fixtures.CreateTestEvent(dataset.ID, "evt-1", utils.UTCNow())
		require.NoError(t, err)

		delivery, err := repo.CreatePendingDelivery(ctx, event, dest)
		require.NoError(t, err)
		assert.Equal(t, models.DeliveryStatusPending, delivery.Status)
		assert.False(t, delivery.IsTerminal())
		assert.Equal(t, models.PlatformMeta, delivery.Platform)

		require.NoError(t, repo.UpdateDeliveryResult(ctx, delivery.ID, models.DeliveryStatusSuccess, 200, `{"events_received":1}`))
		assert.ErrorIs(t,
			repo.UpdateDeliveryResult(ctx, delivery.ID, models.DeliveryStatusFailed, 500, "late"),
			repository.ErrDeliveryNotPending)

		stored, err := repo.ByID(ctx, delivery.ID)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, models.DeliveryStatusSuccess, stored.Status)
		assert.True(t, stored.IsTerminal())
		require.NotNil(t, stored.ResponseCode)
		assert.Equal(t, 200, *stored.ResponseCode)
		assert.NotNil(t, stored.CompletedAt)
	})
}

func TestDeliveryRepository_CountAndReap(t *testing.T) {
	withDB(t, func(db *testingutil.TestDB, fixtures *testingutil.TestFixtures) {
		ctx := context.Background()
		repo := repository.NewDeliveryRepository(db.DB)

		dataset, err := fixtures.CreateTestDataset(tenantID)
		require.NoError(t, err)
		dest, err := fixtures.CreateTestDestination(dataset.ID, models.PlatformTikTok, nil, true)
		require.NoError(t, err)
		event, err := fixtures.CreateTestEvent(dataset.ID, "evt-1", utils.UTCNow())
		require.NoError(t, err)

		now := utils.UTCNow()
		_, err = fixtures.CreateTestDelivery(event, dest, models.DeliveryStatusSuccess, now.Add(-time.Hour))
		require.NoError(t, err)
		_, err = fixtures.CreateTestDelivery(event, dest, models.DeliveryStatusFailed, now.Add(-2*time.Hour))
		require.NoError(t, err)
		stale, err := fixtures.CreateTestDelivery(event, dest, models.DeliveryStatusPending, now.Add(-time.Hour))
		require.NoError(t, err)
		fresh, err := fixtures.CreateTestDelivery(event, dest, models.DeliveryStatusPending, now)
		require.NoError(t, err)
		_, err = fixtures.CreateTestDelivery(event, dest, models.DeliveryStatusSuccess, now.Add(-48*time.Hour))
		require.NoError(t, err)

		counts, err := repo.CountByStatusSince(ctx, dataset.ID, now.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, models.DeliveryStatusCounts{Success: 1, Failed: 1, Pending: 2}, counts)

		reaped, err := repo.FailStalePending(ctx, now.Add(-15*time.Minute), 0, "delivery abandoned")
		require.NoError(t, err)
		assert.Equal(t, int64(1), reaped)

		got, err := repo.ByID(ctx, stale.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DeliveryStatusFailed, got.Status)
		require.NotNil(t, got.ResponseBody)
		assert.Equal(t, "delivery abandoned", *got.ResponseBody)

		got, err = repo.ByID(ctx, fresh.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DeliveryStatusPending, got.Status)
	})
}

func TestSourceRepository_Activation(t *testing.T) {
	withDB(t, func(db *testingutil.TestDB, fixtures *testingutil.TestFixtures) {
		ctx := context.Background()
		repo := repository.NewSourceRepository(db.DB)

		dataset, err := fixtures.CreateTestDataset(tenantID)
		require.NoError(t, err)
		pixel, err := fixtures.CreateTestSource(dataset.ID, models.SourceKindPixelScript, models.SourceStatusPending, nil)
		require.NoError(t, err)
		_, err = fixtures.CreateTestSource(dataset.ID, models.SourceKindWebhook, models.SourceStatusActive, map[string]any{"signingSecret": "s"})
		require.NoError(t, err)

		pending, err := repo.ListPendingPixelSources(ctx, dataset.ID)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, pixel.ID, pending[0].ID)

		require.NoError(t, repo.MarkSourceActive(ctx, pixel.ID))
		require.NoError(t, repo.MarkSourceActive(ctx, pixel.ID))

		pending, err = repo.ListPendingPixelSources(ctx, dataset.ID)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})
}

func TestDatasetRepository_DeleteCascade(t *testing.T) {
	withDB(t, func(db *testingutil.TestDB, fixtures *testingutil.TestFixtures) {
		ctx := context.Background()
		datasets := repository.NewDatasetRepository(db.DB)

		dataset, err := fixtures.CreateTestDataset(tenantID)
		require.NoError(t, err)
		dest, err := fixtures.CreateTestDestination(dataset.ID, models.PlatformMeta, nil, false)
		require.NoError(t, err)
		_, err = fixtures.CreateTestSource(dataset.ID, models.SourceKindPixelScript, models.SourceStatusPending, nil)
		require.NoError(t, err)
		event, err := fixtures.CreateTestEvent(dataset.ID, "evt-1", utils.UTCNow())
		require.NoError(t, err)
		_, err = fixtures.CreateTestDelivery(event, dest, models.DeliveryStatusSuccess, utils.UTCNow())
		require.NoError(t, err)

		withRelations, err := datasets.DatasetWithRelations(ctx, dataset.ID)
		require.NoError(t, err)
		require.NotNil(t, withRelations)
		assert.Len(t, withRelations.Sources, 1)
		assert.Len(t, withRelations.Destinations, 1)
		assert.Empty(t, withRelations.EnabledDestinations())

		require.NoError(t, datasets.DeleteCascade(ctx, dataset.ID))

		gone, err := datasets.ByID(ctx, dataset.ID)
		require.NoError(t, err)
		assert.Nil(t, gone)

		for _, table := range []string{"deliveries", "events", "destinations", "sources"} {
			var n int64
			require.NoError(t, db.DB.Table(table).Where("dataset_id = ?", dataset.ID).Count(&n).Error)
			assert.Zero(t, n, table)
		}
	})
}
