package service

import (
	"context"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"speakout-gateway/internal/database"
	"speakout-gateway/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, database.NewMemoryStore(), true)

	past := fixedNow.Add(-24 * time.Hour)
	future := fixedNow.Add(24 * time.Hour)
	require.NoError(t, f.licenses.Provision(ctx, "EXPIRED", &model.LicenseRecord{Type: "pro", Expiry: &past}))
	require.NoError(t, f.licenses.Provision(ctx, "UNCAPPED", &model.LicenseRecord{Type: "pro", Expiry: &future}))
	f.seedLicense(t, "EMPTY", 0)
	f.seedLicense(t, "ABC123", 100)

	_, err := f.ledger.Verify(ctx, "NOPE")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = f.ledger.Verify(ctx, "EXPIRED")
	assert.ErrorIs(t, err, ErrLicenseExpired)

	res, err := f.ledger.Verify(ctx, "UNCAPPED")
	require.NoError(t, err)
	assert.Equal(t, model.UncappedBalance, res.Balance)

	// an explicit zero is a real balance, not "unset"
	res, err = f.ledger.Verify(ctx, "EMPTY")
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Balance)

	res, err = f.ledger.Verify(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, &VerifyResult{Tier: "pro", Balance: 100}, res)
}

func TestReportUsageClampsAtZero(t *testing.T) {
	for _, mode := range writeModes {
		t.Run(mode.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, database.NewMemoryStore(), mode.conditional)
			f.seedLicense(t, "ABC123", 100)

			res, err := f.ledger.ReportUsage(ctx, "ABC123", 150)
			require.NoError(t, err)
			assert.Equal(t, &ReportResult{Applied: true, Remaining: 0}, res)

			for _, elapsed := range []int64{1, 500, 1 << 40} {
				res, err = f.ledger.ReportUsage(ctx, "ABC123", elapsed)
				require.NoError(t, err)
				assert.Equal(t, int64(0), res.Remaining)
			}

			rec, err := f.licenses.Fetch(ctx, "ABC123")
			require.NoError(t, err)
			assert.Equal(t, int64(0), rec.CurrentBalance())
		})
	}
}

func TestReportUsageNonPositiveDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	f := newFixture(t, store, true)
	f.seedLicense(t, "ABC123", 100)

	before, err := store.GetVersioned(ctx, "ABC123")
	require.NoError(t, err)

	for _, elapsed := range []int64{0, -1, -3600} {
		res, err := f.ledger.ReportUsage(ctx, "ABC123", elapsed)
		require.NoError(t, err)
		assert.False(t, res.Applied)
	}

	after, err := store.GetVersioned(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestUnknownLicenseRejected(t *testing.T) {
	for _, mode := range writeModes {
		t.Run(mode.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, database.NewMemoryStore(), mode.conditional)
			f.seedCode(t, "TIME-1H-AAAA0000", 3600)

			_, err := f.ledger.Verify(ctx, "GHOST")
			assert.ErrorIs(t, err, ErrUnauthenticated)

			_, err = f.ledger.ReportUsage(ctx, "GHOST", 10)
			assert.ErrorIs(t, err, ErrUnauthenticated)

			_, err = f.ledger.Redeem(ctx, "GHOST", "TIME-1H-AAAA0000")
			assert.ErrorIs(t, err, ErrUnauthenticated)

			// the code was consumed before the license lookup, and stays consumed
			code, err := f.codes.Fetch(ctx, "TIME-1H-AAAA0000")
			require.NoError(t, err)
			assert.True(t, code.Used)
			assert.Equal(t, "GHOST", code.RedeemedBy)

			_, err = f.ledger.Redeem(ctx, "GHOST", "TIME-1H-AAAA0000")
			assert.ErrorIs(t, err, ErrAlreadyUsed)
		})
	}
}

func TestRedeemScenario(t *testing.T) {
	for _, mode := range writeModes {
		t.Run(mode.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, database.NewMemoryStore(), mode.conditional)
			f.seedLicense(t, "ABC123", 0)
			f.seedCode(t, "TIME-10H-XYZ12345", 36000)

			res, err := f.ledger.Redeem(ctx, "ABC123", "TIME-10H-XYZ12345")
			require.NoError(t, err)
			assert.Equal(t, int64(36000), res.Added)
			assert.Equal(t, int64(36000), res.NewBalance)
			assert.Equal(t, fixedNow, res.RedeemedAt)

			for i := 0; i < 3; i++ {
				_, err = f.ledger.Redeem(ctx, "ABC123", "TIME-10H-XYZ12345")
				assert.ErrorIs(t, err, ErrAlreadyUsed)
			}

			rec, err := f.licenses.Fetch(ctx, "ABC123")
			require.NoError(t, err)
			assert.Equal(t, int64(36000), rec.CurrentBalance())

			code, err := f.codes.Fetch(ctx, "TIME-10H-XYZ12345")
			require.NoError(t, err)
			assert.True(t, code.Used)
			assert.Equal(t, "ABC123", code.RedeemedBy)
			require.NotNil(t, code.RedeemedAt)
			assert.Equal(t, fixedNow, *code.RedeemedAt)
		})
	}
}

func TestRedeemCreditFailureKeepsCodeBurnt(t *testing.T) {
	for _, mode := range writeModes {
		t.Run(mode.name, func(t *testing.T) {
			ctx := context.Background()
			mem := database.NewMemoryStore()
			store := &faultyStore{VersionedStore: mem}
			f := newFixture(t, store, mode.conditional)
			f.seedLicense(t, "ABC123", 50)
			f.seedCode(t, "TIME-1H-FAIL0001", 3600)

			store.failPut = func(key string) bool { return key == "ABC123" }

			_, err := f.ledger.Redeem(ctx, "ABC123", "TIME-1H-FAIL0001")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrStoreFailure)

			code, err := f.codes.Fetch(ctx, "TIME-1H-FAIL0001")
			require.NoError(t, err)
			assert.True(t, code.Used, "code must not be rolled back")

			rec, err := f.licenses.Fetch(ctx, "ABC123")
			require.NoError(t, err)
			assert.Equal(t, int64(50), rec.CurrentBalance())

			store.failPut = nil
			_, err = f.ledger.Redeem(ctx, "ABC123", "TIME-1H-FAIL0001")
			assert.ErrorIs(t, err, ErrAlreadyUsed)
		})
	}
}

func TestRedeemMarkFailureLeavesBalanceAlone(t *testing.T) {
	ctx := context.Background()
	store := &faultyStore{VersionedStore: database.NewMemoryStore()}
	f := newFixture(t, store, true)
	f.seedLicense(t, "ABC123", 50)
	f.seedCode(t, "TIME-1H-FAIL0002", 3600)

	store.failPut = func(key string) bool { return strings.HasPrefix(key, model.CodeKeyPrefix) }

	_, err := f.ledger.Redeem(ctx, "ABC123", "TIME-1H-FAIL0002")
	assert.ErrorIs(t, err, ErrStoreFailure)

	rec, err := f.licenses.Fetch(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, int64(50), rec.CurrentBalance())
}

func TestRedeemRejectsBadCodes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, database.NewMemoryStore(), true)
	f.seedLicense(t, "ABC123", 0)

	tests := []struct {
		name string
		code string
		want error
	}{
		{name: "empty", code: "", want: ErrBadRequest},
		{name: "blank", code: "   ", want: ErrBadRequest},
		{name: "too_long", code: strings.Repeat("A", maxCodeLength+1), want: ErrBadRequest},
		{name: "control", code: "TIME-\n-X", want: ErrBadRequest},
		{name: "unknown", code: "TIME-10H-NOPE0000", want: ErrInvalidCode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ledger.Redeem(ctx, "ABC123", tt.code)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestConcurrentRedeemCreditsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, database.NewMemoryStore(), true)
	f.seedLicense(t, "ABC123", 0)
	f.seedCode(t, "TIME-10H-RACE0001", 36000)

	const workers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.Redeem(ctx, "ABC123", "TIME-10H-RACE0001")
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrAlreadyUsed)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	rec, err := f.licenses.Fetch(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, int64(36000), rec.CurrentBalance())
}

func TestConcurrentReportsLoseNoUpdates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, database.NewMemoryStore(), true)
	f.seedLicense(t, "ABC123", 1000)

	const workers = 30
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.ReportUsage(ctx, "ABC123", 1)
			if err == nil {
				mu.Lock()
				applied++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrContention)
		}()
	}
	wg.Wait()

	rec, err := f.licenses.Fetch(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, 1000-applied, rec.CurrentBalance())
}

func TestLicenseRecordSurvivesRewrite(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	f := newFixture(t, store, false)
	require.NoError(t, store.Put(ctx, "ABC123", []byte(`{"type":"pro","balance":100,"owner":"someone@example.com"}`)))

	_, err := f.ledger.ReportUsage(ctx, "ABC123", 30)
	require.NoError(t, err)

	raw, err := store.Get(ctx, "ABC123")
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pro","balance":70,"owner":"someone@example.com"}`, string(raw))
}

func TestCorruptRecordIsStoreFailure(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	f := newFixture(t, store, true)
	require.NoError(t, store.Put(ctx, "ABC123", []byte(`not json`)))

	_, err := f.ledger.Verify(ctx, "ABC123")
	assert.ErrorIs(t, err, ErrStoreFailure)
}

func TestOutOfRangeStoredBalance(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	f := newFixture(t, store, true)

	require.NoError(t, store.Put(ctx, "HUGE", []byte(`{"type":"pro","balance":1e19}`)))
	require.NoError(t, store.Put(ctx, "MINUS", []byte(`{"type":"pro","balance":-5}`)))

	// a balance outside int64 is a corrupt record, never a wrapped number
	_, err := f.ledger.Verify(ctx, "HUGE")
	assert.ErrorIs(t, err, ErrStoreFailure)
	_, err = f.ledger.ReportUsage(ctx, "HUGE", 150)
	assert.ErrorIs(t, err, ErrStoreFailure)

	res, err := f.ledger.Verify(ctx, "MINUS")
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Balance)

	rep, err := f.ledger.ReportUsage(ctx, "MINUS", 150)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rep.Remaining)

	f.seedCode(t, "TIME-1H-MINUS001", 3600)
	red, err := f.ledger.Redeem(ctx, "MINUS", "TIME-1H-MINUS001")
	require.NoError(t, err)
	assert.Equal(t, int64(3600), red.NewBalance)
}

func TestClampedAdd(t *testing.T) {
	tests := []struct {
		balance, delta, want int64
	}{
		{100, -150, 0},
		{100, 50, 150},
		{-5, -150, 0},
		{-5, 10, 10},
		{math.MinInt64, -150, 0},
		{0, math.MinInt64, 0},
		{math.MaxInt64 - 1, 10, math.MaxInt64},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, clampedAdd(tt.balance, tt.delta), "%d%+d", tt.balance, tt.delta)
	}
}
