package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/mautops/shipchange-gin/internal/model"
	"github.com/mautops/shipchange-gin/internal/repository"
	"github.com/mautops/shipchange-gin/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	last   string
	err    error
	prefix string
}

func (s *staticSource) LastNumberWithPrefix(_ context.Context, prefix string) (string, error) {
	s.prefix = prefix
	return s.last, s.err
}

func TestFormatRequestNumber(t *testing.T) {
	assert.Equal(t, "HW-202501-001", service.FormatRequestNumber(model.TypeHardware, january, 1))
	assert.Equal(t, "SYS-202501-042", service.FormatRequestNumber(model.TypeSystem, january, 42))
	assert.Equal(t, "CR-202501-1000", service.FormatRequestNumber("", january, 1000))
}

func TestParseSequence(t *testing.T) {
	tests := []struct {
		number  string
		want    int
		wantErr bool
	}{
		{"SW-202501-007", 7, false},
		{"SER-202412-1203", 1203, false},
		{"SW-202501-", 0, true},
		{"garbage", 0, true},
		{"SW-202501-abc", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.number, func(t *testing.T) {
			got, err := service.ParseSequence(tt.number)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequestNumberGenerator_Next(t *testing.T) {
	gen := service.NewRequestNumberGenerator()
	ctx := context.Background()

	src := &staticSource{}
	number, err := gen.Next(ctx, src, model.TypeSoftware, january)
	require.NoError(t, err)
	assert.Equal(t, "SW-202501-001", number)
	assert.Equal(t, "SW-202501-", src.prefix)

	src = &staticSource{last: "SW-202501-009"}
	number, err = gen.Next(ctx, src, model.TypeSoftware, january)
	require.NoError(t, err)
	assert.Equal(t, "SW-202501-010", number)

	src = &staticSource{last: "SW-202501-???"}
	_, err = gen.Next(ctx, src, model.TypeSoftware, january)
	assert.Error(t, err)

	src = &staticSource{err: errors.New("db down")}
	_, err = gen.Next(ctx, src, model.TypeSoftware, january)
	assert.Error(t, err)
}

// TestRequestNumberGenerator_WideSequence 测试超过 999 后按数值取最大编号
func TestRequestNumberGenerator_WideSequence(t *testing.T) {
	db := newTestDB(t)
	for _, number := range []string{"CR-202501-998", "CR-202501-999", "CR-202501-1000", "CR-202502-001"} {
		row := draftRequest("seed")
		row.RequestNumber = number
		row.Type = model.TypeGeneric
		row.Status = model.StatusDraft
		require.NoError(t, db.Create(row).Error)
	}

	repo := repository.NewRequestRepository[model.ChangeRequestModel, *model.ChangeRequestModel](db)
	number, err := service.NewRequestNumberGenerator().Next(context.Background(), repo, model.TypeGeneric, january)
	require.NoError(t, err)
	assert.Equal(t, "CR-202501-1001", number)
}
