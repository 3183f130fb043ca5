package postgresengine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/AntonStoeckl/loan-ledger-go/loanledger"
	. "github.com/AntonStoeckl/loan-ledger-go/loanledger/postgresengine"
	. "github.com/AntonStoeckl/loan-ledger-go/testutil/postgresengine/helper"
	"github.com/AntonStoeckl/loan-ledger-go/testutil/postgresengine/helper/postgreswrapper"
)

func Benchmark_CreateLoan_And_Return(b *testing.B) {
	// setup
	ctx := context.Background()
	clock := NewFakeClock(FixtureStartTime)
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(b, WithClock(clock))
	ledger := wrapper.GetLedger()

	// arrange
	title := GivenTitleWasAdded(b, ctx, ledger, 1)

	// act
	b.Run("create and return 1 loan", func(b *testing.B) {
		b.ResetTimer()
		var createTime, returnTime time.Duration

		for i := 0; i < b.N; i++ {
			b.StopTimer()
			clock.Advance(time.Second)
			params := FixtureCreateLoanParams(title.ID, GivenUniqueID(b), clock.Now(), 14)

			b.StartTimer()
			start := time.Now()
			loanID, err := ledger.CreateLoan(ctx, params)
			createTime += time.Since(start)

			start = time.Now()
			_, returnErr := ledger.RegisterReturn(ctx, loanID)
			returnTime += time.Since(start)
			b.StopTimer()

			assert.NoError(b, err)
			assert.NoError(b, returnErr)
		}

		b.ReportMetric(float64(createTime.Microseconds())/float64(b.N), "µs/create-op")
		b.ReportMetric(float64(returnTime.Microseconds())/float64(b.N), "µs/return-op")
	})
}

func Benchmark_GetAll_With_CappedReturnedLoans(b *testing.B) {
	// setup
	ctx := context.Background()
	clock := NewFakeClock(FixtureStartTime)
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(b, WithClock(clock))
	ledger := wrapper.GetLedger()

	// arrange
	title := GivenTitleWasAdded(b, ctx, ledger, 500)
	for i := 0; i < 500; i++ {
		clock.Advance(time.Minute)
		loanID := GivenActiveLoanWasCreated(b, ctx, ledger, clock, title.ID, 14)

		if i%2 == 0 {
			GivenLoanWasReturned(b, ctx, ledger, loanID)
		}
	}

	filter := BuildLoanFilter().CapReturned(50).Finalize()

	// act
	b.Run("list", func(b *testing.B) {
		b.ResetTimer()
		var queryTime time.Duration

		for i := 0; i < b.N; i++ {
			b.StartTimer()
			start := time.Now()
			loans, err := ledger.GetAll(ctx, filter)
			queryTime += time.Since(start)
			b.StopTimer()

			require.NoError(b, err)
			assert.Len(b, loans, 300)
		}

		b.ReportMetric(float64(queryTime.Microseconds())/float64(b.N), "µs/query-op")
	})
}
