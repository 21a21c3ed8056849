package gapdetect

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newDetector(t *testing.T) (*Detector, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	return New(gormDB), mock
}

func TestFindGaps_SingleGap(t *testing.T) {
	detector, mock := newDetector(t)

	mock.ExpectQuery(`SELECT block_height`).
		WithArgs("alice.near", "near", uint64(200)).
		WillReturnRows(sqlmock.NewRows([]string{"block_height", "balance_before", "balance_after", "prev_height", "prev_after"}).
			AddRow(uint64(100), "1000", "900", nil, nil).
			AddRow(uint64(200), "700", "600", uint64(100), "900"))

	gaps, err := detector.FindGaps(context.Background(), "alice.near", "near", 200)
	require.NoError(t, err)
	require.Len(t, gaps, 1)
	assert.Equal(t, Gap{
		StartBlock:            100,
		EndBlock:              200,
		ActualBalanceAfter:    "900",
		ExpectedBalanceBefore: "700",
	}, gaps[0])
}

func TestFindGaps_NoGapWhenContinuous(t *testing.T) {
	detector, mock := newDetector(t)

	mock.ExpectQuery(`SELECT block_height`).
		WithArgs("alice.near", "near", uint64(200)).
		WillReturnRows(sqlmock.NewRows([]string{"block_height", "balance_before", "balance_after", "prev_height", "prev_after"}).
			AddRow(uint64(100), "1000", "900", nil, nil).
			AddRow(uint64(200), "900", "600", uint64(100), "900"))

	gaps, err := detector.FindGaps(context.Background(), "alice.near", "near", 200)
	require.NoError(t, err)
	assert.Empty(t, gaps)
}

func TestFindGaps_CanonicalComparisonIgnoresFormatting(t *testing.T) {
	detector, mock := newDetector(t)

	mock.ExpectQuery(`SELECT block_height`).
		WithArgs("alice.near", "near", uint64(200)).
		WillReturnRows(sqlmock.NewRows([]string{"block_height", "balance_before", "balance_after", "prev_height", "prev_after"}).
			AddRow(uint64(100), "3", "3", nil, nil).
			AddRow(uint64(200), "3.0", "1", uint64(100), "3"))

	gaps, err := detector.FindGaps(context.Background(), "alice.near", "near", 200)
	require.NoError(t, err)
	assert.Empty(t, gaps, "\"3\" and \"3.0\" must compare equal under canonical comparison")
}
