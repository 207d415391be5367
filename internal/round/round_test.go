package round

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qacc/internal/core"
)

type fakeFetcher struct {
	rounds     []core.Round
	roundsErr  error
	records    []core.RoundRecord
	recordsErr error

	roundCalls  int
	gotProject  int
	gotQf       *int
	gotEarly    *int
	recordCalls int
}

func (f *fakeFetcher) FetchAllRoundDetails(ctx context.Context) ([]core.Round, error) {
	f.roundCalls++
	return f.rounds, f.roundsErr
}

func (f *fakeFetcher) FetchProjectRoundRecords(ctx context.Context, projectID int, qf, early *int) ([]core.RoundRecord, error) {
	f.recordCalls++
	f.gotProject, f.gotQf, f.gotEarly = projectID, qf, early
	return f.records, f.recordsErr
}

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestCalculator(f *fakeFetcher) *Calculator {
	opts := DefaultOptions()
	opts.Now = func() time.Time { return now }
	return NewCalculator(f, opts)
}

func qf(number int, end time.Time, closeCap *float64) core.QfRound {
	return core.QfRound{RoundInfo: core.RoundInfo{RoundNumber: number, EndDate: end, RoundPOLCloseCapPerProject: closeCap}}
}

func TestCalculateCap(t *testing.T) {
	active := qf(3, now.Add(24*time.Hour), core.Float(1000.559))

	tests := []struct {
		name              string
		records           []core.RoundRecord
		includeCumulative bool
		want              core.CapResult
	}{
		{
			name: "no records returns truncated base cap",
			want: core.CapResult{CapAmount: 1000.55, TotalDonationAmountInRound: 0},
		},
		{
			name:    "cumulative added to total when not included in cap",
			records: []core.RoundRecord{{TotalDonationAmount: 100.129, CumulativePastRoundsDonationAmounts: core.Float(50)}},
			want:    core.CapResult{CapAmount: 1000.55, TotalDonationAmountInRound: 150.12},
		},
		{
			name:              "cumulative deducted from cap when included",
			records:           []core.RoundRecord{{TotalDonationAmount: 100.129, CumulativePastRoundsDonationAmounts: core.Float(200)}},
			includeCumulative: true,
			want:              core.CapResult{CapAmount: 800.55, TotalDonationAmountInRound: 100.12},
		},
		{
			name:              "zero cumulative leaves cap unchanged",
			records:           []core.RoundRecord{{TotalDonationAmount: 10, CumulativePastRoundsDonationAmounts: core.Float(0)}},
			includeCumulative: true,
			want:              core.CapResult{CapAmount: 1000.55, TotalDonationAmountInRound: 10},
		},
		{
			name:              "unreported cumulative leaves cap unchanged",
			records:           []core.RoundRecord{{TotalDonationAmount: 10}},
			includeCumulative: true,
			want:              core.CapResult{CapAmount: 1000.55, TotalDonationAmountInRound: 10},
		},
		{
			name:              "only the first record is used",
			records:           []core.RoundRecord{{TotalDonationAmount: 1}, {TotalDonationAmount: 999}},
			includeCumulative: false,
			want:              core.CapResult{CapAmount: 1000.55, TotalDonationAmountInRound: 1},
		},
		{
			name:              "cap never goes negative",
			records:           []core.RoundRecord{{TotalDonationAmount: 1, CumulativePastRoundsDonationAmounts: core.Float(5000)}},
			includeCumulative: true,
			want:              core.CapResult{CapAmount: 0, TotalDonationAmountInRound: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeFetcher{records: tt.records}
			got, err := newTestCalculator(f).CalculateCap(context.Background(), active, 7, tt.includeCumulative)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, 0, f.roundCalls, "active round must not trigger a round lookup")
			assert.Equal(t, 7, f.gotProject)
		})
	}
}

func TestCalculateCapTruncatesInsteadOfRounding(t *testing.T) {
	f := &fakeFetcher{records: []core.RoundRecord{{TotalDonationAmount: 10.129}}}
	got, err := newTestCalculator(f).CalculateCap(context.Background(), qf(1, now, core.Float(10.129)), 1, false)
	require.NoError(t, err)
	assert.Equal(t, 10.12, got.CapAmount)
	assert.Equal(t, 10.12, got.TotalDonationAmountInRound)
}

func TestCalculateCapRoundNumberKeys(t *testing.T) {
	t.Run("qf round uses qf key", func(t *testing.T) {
		f := &fakeFetcher{}
		_, err := newTestCalculator(f).CalculateCap(context.Background(), qf(4, now, core.Float(1)), 1, false)
		require.NoError(t, err)
		require.NotNil(t, f.gotQf)
		assert.Equal(t, 4, *f.gotQf)
		assert.Nil(t, f.gotEarly)
	})

	t.Run("early access round uses early access key", func(t *testing.T) {
		f := &fakeFetcher{}
		ea := core.EarlyAccessRound{RoundInfo: core.RoundInfo{RoundNumber: 2, CumulativePOLCapPerProject: core.Float(300)}}
		got, err := newTestCalculator(f).CalculateCap(context.Background(), ea, 1, false)
		require.NoError(t, err)
		assert.Nil(t, f.gotQf)
		require.NotNil(t, f.gotEarly)
		assert.Equal(t, 2, *f.gotEarly)
		assert.Equal(t, 300.0, got.CapAmount, "cumulative cap is the fallback")
	})
}

func TestCalculateCapWithoutActiveRound(t *testing.T) {
	t.Run("uses most recent ended round", func(t *testing.T) {
		f := &fakeFetcher{
			rounds: []core.Round{
				qf(1, now.Add(-48*time.Hour), core.Float(100)),
				qf(2, now.Add(-time.Hour), core.Float(200)),
				qf(3, now.Add(time.Hour), core.Float(300)),
			},
		}
		got, err := newTestCalculator(f).CalculateCap(context.Background(), nil, 9, false)
		require.NoError(t, err)
		assert.Equal(t, core.CapResult{CapAmount: 200}, got)
		require.NotNil(t, f.gotQf)
		assert.Equal(t, 2, *f.gotQf)
	})

	t.Run("no ended round yields zero", func(t *testing.T) {
		f := &fakeFetcher{rounds: []core.Round{qf(3, now.Add(time.Hour), core.Float(300))}}
		got, err := newTestCalculator(f).CalculateCap(context.Background(), nil, 9, true)
		require.NoError(t, err)
		assert.Equal(t, core.CapResult{}, got)
		assert.Equal(t, 0, f.recordCalls)
	})
}

func TestCalculateCapErrors(t *testing.T) {
	boom := errors.New("boom")

	_, err := newTestCalculator(&fakeFetcher{roundsErr: boom}).CalculateCap(context.Background(), nil, 1, false)
	assert.ErrorIs(t, err, boom)

	_, err = newTestCalculator(&fakeFetcher{recordsErr: boom}).CalculateCap(context.Background(), qf(1, now, core.Float(1)), 1, false)
	assert.ErrorIs(t, err, boom)

	_, err = newTestCalculator(&fakeFetcher{}).CalculateCap(context.Background(), nil, 0, false)
	assert.ErrorIs(t, err, core.ErrInvalidProjectID)
}

func TestSelectMostRecentEnded(t *testing.T) {
	t1 := qf(1, now.Add(-2*time.Hour), nil)
	t2 := core.EarlyAccessRound{RoundInfo: core.RoundInfo{RoundNumber: 2, EndDate: now.Add(-time.Hour)}}
	t3 := qf(3, now.Add(time.Hour), nil)

	got := SelectMostRecentEnded([]core.Round{t3, t1, t2}, now)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.Info().RoundNumber)

	assert.Nil(t, SelectMostRecentEnded([]core.Round{t3}, now))
	assert.Nil(t, SelectMostRecentEnded(nil, now))

	atNow := qf(4, now, nil)
	assert.Nil(t, SelectMostRecentEnded([]core.Round{atNow}, now), "end date equal to now has not ended")
}

func TestFindRound(t *testing.T) {
	early := core.EarlyAccessRound{RoundInfo: core.RoundInfo{RoundNumber: 1, EndDate: now}}
	f := &fakeFetcher{rounds: []core.Round{early, qf(1, now, nil), qf(2, now, nil)}}
	c := newTestCalculator(f)

	r, err := c.FindRound(context.Background(), KindQf, 1)
	require.NoError(t, err)
	assert.IsType(t, core.QfRound{}, r)

	r, err = c.FindRound(context.Background(), KindEarly, 1)
	require.NoError(t, err)
	assert.IsType(t, core.EarlyAccessRound{}, r)

	_, err = c.FindRound(context.Background(), KindEarly, 2)
	assert.ErrorIs(t, err, ErrRoundNotFound)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("EarlyAccessRound")
	require.NoError(t, err)
	assert.Equal(t, KindEarly, k)

	k, err = ParseKind("qf")
	require.NoError(t, err)
	assert.Equal(t, KindQf, k)

	_, err = ParseKind("weekly")
	assert.ErrorIs(t, err, core.ErrInvalidRound)
}

func TestNewView(t *testing.T) {
	end := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	qf := core.QfRound{RoundInfo: core.RoundInfo{RoundNumber: 2, EndDate: end, CumulativePOLCapPerProject: core.Float(10)}, SeasonNumber: 3}

	v := NewView(qf)
	assert.Equal(t, "QfRound", v.Type)
	assert.Equal(t, 2, v.RoundNumber)
	require.NotNil(t, v.SeasonNumber)
	assert.Equal(t, 3, *v.SeasonNumber)
	assert.True(t, v.EndDate.Equal(end))
	require.NotNil(t, v.CumulativePOLCapPerProject)
	assert.Equal(t, 10.0, *v.CumulativePOLCapPerProject)
	assert.Nil(t, v.RoundPOLCloseCapPerProject)

	v = NewView(core.EarlyAccessRound{RoundInfo: core.RoundInfo{RoundNumber: 1}})
	assert.Equal(t, "EarlyAccessRound", v.Type)
	assert.Nil(t, v.SeasonNumber)
}
