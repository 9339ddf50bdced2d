package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentara/clinic-api/internal/model"
	apperrors "github.com/dentara/clinic-api/pkg/errors"
)

type fakeServiceRepo struct {
	services  map[uuid.UUID]*model.DentalService
	listCalls int
}

func newFakeServiceRepo() *fakeServiceRepo {
	return &fakeServiceRepo{services: make(map[uuid.UUID]*model.DentalService)}
}

func (f *fakeServiceRepo) Create(_ context.Context, s *model.DentalService) error {
	f.services[s.ID] = s
	return nil
}

func (f *fakeServiceRepo) Get(_ context.Context, id uuid.UUID) (*model.DentalService, error) {
	s, ok := f.services[id]
	if !ok {
		return nil, apperrors.NotFound("service", nil)
	}
	cp := *s
	return &cp, nil
}

func (f *fakeServiceRepo) Update(_ context.Context, s *model.DentalService) error {
	if _, ok := f.services[s.ID]; !ok {
		return apperrors.NotFound("service", nil)
	}
	f.services[s.ID] = s
	return nil
}

func (f *fakeServiceRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.services[id]; !ok {
		return apperrors.NotFound("service", nil)
	}
	delete(f.services, id)
	return nil
}

func (f *fakeServiceRepo) List(_ context.Context, activeOnly bool) ([]*model.DentalService, error) {
	f.listCalls++
	var out []*model.DentalService
	for _, s := range f.services {
		if activeOnly && !s.Active {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func TestCreateService(t *testing.T) {
	repo := newFakeServiceRepo()
	svc := NewService(repo, zerolog.Nop())

	created, err := svc.Create(context.Background(), &model.CreateServiceRequest{
		Name:            "Cleaning",
		Price:           decimal.NewFromInt(800),
		DurationMinutes: 30,
	})
	require.NoError(t, err)
	assert.True(t, created.Active)

	_, err = svc.Create(context.Background(), &model.CreateServiceRequest{
		Name:            "Free Checkup",
		Price:           decimal.Zero,
		DurationMinutes: 15,
	})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrValidation))
}

func TestPriceListCaching(t *testing.T) {
	repo := newFakeServiceRepo()
	svc := NewService(repo, zerolog.Nop())

	_, err := svc.Create(context.Background(), &model.CreateServiceRequest{
		Name:            "Cleaning",
		Price:           decimal.NewFromInt(800),
		DurationMinutes: 30,
	})
	require.NoError(t, err)

	_, err = svc.PriceList(context.Background())
	require.NoError(t, err)
	_, err = svc.PriceList(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, repo.listCalls, "second read must hit the cache")

	// A write invalidates the cached list.
	_, err = svc.Create(context.Background(), &model.CreateServiceRequest{
		Name:            "Filling",
		Price:           decimal.NewFromInt(150),
		DurationMinutes: 20,
	})
	require.NoError(t, err)

	list, err := svc.PriceList(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, repo.listCalls)
	assert.Len(t, list, 2)
}

func TestUpdateServiceInvalidatesCache(t *testing.T) {
	repo := newFakeServiceRepo()
	svc := NewService(repo, zerolog.Nop())

	created, err := svc.Create(context.Background(), &model.CreateServiceRequest{
		Name:            "Cleaning",
		Price:           decimal.NewFromInt(800),
		DurationMinutes: 30,
	})
	require.NoError(t, err)

	_, err = svc.PriceList(context.Background())
	require.NoError(t, err)

	inactive := false
	_, err = svc.Update(context.Background(), created.ID, &model.UpdateServiceRequest{Active: &inactive})
	require.NoError(t, err)

	list, err := svc.PriceList(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list, "deactivated service must drop off the price list")
}
