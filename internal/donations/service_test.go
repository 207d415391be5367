package donations

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qacc/internal/core"
	"qacc/internal/qacc"
)

type fakeSource struct {
	list qacc.DonationList
	err  error
}

func (f fakeSource) ProjectDonations(context.Context, int) (qacc.DonationList, error) {
	return f.list, f.err
}

type fakePrices struct {
	pol      float64
	polErr   error
	tokens   map[qacc.TokenKey]qacc.TokenPrice
	askedFor []qacc.TokenKey
}

func (f *fakePrices) POLPrice(context.Context) (float64, error) { return f.pol, f.polErr }

func (f *fakePrices) TokenPrices(_ context.Context, keys []qacc.TokenKey) (map[qacc.TokenKey]qacc.TokenPrice, error) {
	f.askedFor = append(f.askedFor, keys...)
	return f.tokens, nil
}

var baseTime = time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)

func donation(id, user string, day int, amount float64) core.Donation {
	return core.Donation{
		ID:            id,
		TransactionID: "0x" + id,
		Status:        core.DonationVerified,
		Amount:        amount,
		CreatedAt:     baseTime.AddDate(0, 0, day),
		UserID:        user,
	}
}

func newTestService(src Source, prices PriceSource) *Service {
	return NewService(src, prices, Config{
		ScanURL: "https://polygonscan.com/",
		Now:     func() time.Time { return baseTime },
	}, nil)
}

func ids(rows []Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func TestUserDonationsFiltersAndPaginates(t *testing.T) {
	var ds []core.Donation
	for i := 1; i <= 7; i++ {
		ds = append(ds, donation(string(rune('a'+i-1)), "u1", i, float64(i)))
	}
	ds = append(ds, donation("other", "u2", 20, 999))

	svc := newTestService(fakeSource{list: qacc.DonationList{Donations: ds, TotalCount: len(ds)}}, &fakePrices{pol: 0.5})

	p, err := svc.UserDonations(context.Background(), Query{ProjectID: 1, UserID: "u1", TotalContributions: 100})
	require.NoError(t, err)
	assert.Equal(t, 7, p.TotalCount)
	assert.Equal(t, 2, p.TotalPages)
	assert.Equal(t, PerPage, p.PerPage)
	assert.Equal(t, DefaultOrder(), p.Order)
	assert.Equal(t, []string{"g", "f", "e", "d", "c"}, ids(p.Rows))
	assert.Equal(t, Summary{TotalPOL: 100, TotalUSD: 50}, p.Summary)

	p, err = svc.UserDonations(context.Background(), Query{ProjectID: 1, UserID: "u1", Page: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids(p.Rows))

	p, err = svc.UserDonations(context.Background(), Query{ProjectID: 1, UserID: "u1", Page: 5})
	require.NoError(t, err)
	assert.Empty(t, p.Rows)
	assert.Equal(t, 7, p.TotalCount)
}

func TestUserDonationsSorting(t *testing.T) {
	a := donation("a", "u", 1, 30)
	a.QfRound = &core.QfRound{RoundInfo: core.RoundInfo{RoundNumber: 2}}
	a.RewardTokenAmount = core.Float(5)
	b := donation("b", "u", 2, 10)
	b.EarlyAccessRound = &core.EarlyAccessRound{RoundInfo: core.RoundInfo{RoundNumber: 1}}
	b.RewardTokenAmount = core.Float(50)
	c := donation("c", "u", 3, 20)
	c.QfRound = &core.QfRound{RoundInfo: core.RoundInfo{RoundNumber: 3}}

	tests := []struct {
		order Order
		want  []string
	}{
		{Order{ByDate, Asc}, []string{"a", "b", "c"}},
		{Order{ByDate, Desc}, []string{"c", "b", "a"}},
		{Order{ByRound, Asc}, []string{"b", "a", "c"}},
		{Order{ByAmount, Desc}, []string{"a", "c", "b"}},
		{Order{ByTokens, Asc}, []string{"c", "a", "b"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.order.By)+"_"+string(tt.order.Direction), func(t *testing.T) {
			src := fakeSource{list: qacc.DonationList{Donations: []core.Donation{a, b, c}}}
			p, err := newTestService(src, &fakePrices{}).UserDonations(context.Background(),
				Query{ProjectID: 1, UserID: "u", Order: tt.order})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(p.Rows))
		})
	}
}

func TestUserDonationsRowFields(t *testing.T) {
	start := baseTime.AddDate(0, -1, 0)
	end := baseTime.AddDate(1, 0, 0)

	swap := donation("swap", "u", 2, 40)
	swap.IsSwap = true
	swap.FromTokenAmount = core.Float(20)
	swap.Status = core.DonationSwapPending
	swap.SwapTransaction = &core.SwapTransaction{FromChainID: 1, FromTokenAddress: "0xUSDC", FromTokenSymbol: "USDC"}
	swap.QfRound = &core.QfRound{RoundInfo: core.RoundInfo{RoundNumber: 1}, SeasonNumber: 2}
	swap.RewardTokenAmount = core.Float(12.346)
	swap.RewardStreamStart = &start
	swap.RewardStreamEnd = &end
	swap.Cliff = 24 * time.Hour * 61

	plain := donation("plain", "u", 1, 10)
	plain.Status = core.DonationFailed

	prices := &fakePrices{
		pol:    0.5,
		tokens: map[qacc.TokenKey]qacc.TokenPrice{{ChainID: 1, Address: "0xUSDC"}: {USDPrice: 1}},
	}
	src := fakeSource{list: qacc.DonationList{Donations: []core.Donation{plain, swap}}}

	p, err := newTestService(src, prices).UserDonations(context.Background(),
		Query{ProjectID: 1, UserID: "u", TokenTicker: "ABC"})
	require.NoError(t, err)
	require.Len(t, p.Rows, 2)

	r := p.Rows[0]
	assert.Equal(t, "swap", r.ID)
	assert.Equal(t, 20.0, r.Amount)
	assert.Equal(t, 40.0, r.POLAmount)
	assert.Equal(t, "USDC", r.Symbol)
	assert.Equal(t, TonePending, r.Tone)
	assert.Equal(t, "https://polygonscan.com/tx/0xswap", r.TxURL)
	require.NotNil(t, r.USDValue)
	assert.Equal(t, 20.0, *r.USDValue)
	require.NotNil(t, r.RewardTokens)
	assert.Equal(t, 12.35, *r.RewardTokens)
	assert.Equal(t, "12.35 ABC", r.RewardLabel)
	assert.Equal(t, "Season 2", r.SeasonBadge)
	require.NotNil(t, r.StreamStart)
	assert.True(t, r.StreamStart.Equal(start.Add(swap.Cliff)))
	assert.Equal(t, "1 month", r.UnlockIn)

	r = p.Rows[1]
	assert.Equal(t, "POL", r.Symbol)
	assert.Equal(t, ToneFailed, r.Tone)
	require.NotNil(t, r.USDValue)
	assert.Equal(t, 5.0, *r.USDValue)
	assert.Equal(t, "-", r.RewardLabel)
	assert.Equal(t, "-", r.UnlockIn)

	assert.Equal(t, []qacc.TokenKey{{ChainID: 1, Address: "0xUSDC"}}, prices.askedFor)
}

func TestUserDonationsToleratesMissingPOLPrice(t *testing.T) {
	src := fakeSource{list: qacc.DonationList{Donations: []core.Donation{donation("a", "u", 1, 10)}}}
	p, err := newTestService(src, &fakePrices{polErr: errors.New("squid down")}).
		UserDonations(context.Background(), Query{ProjectID: 1, UserID: "u", TotalContributions: 10})
	require.NoError(t, err)
	require.Len(t, p.Rows, 1)
	assert.Nil(t, p.Rows[0].USDValue)
	assert.Equal(t, 0.0, p.Summary.TotalUSD)
}

func TestUserDonationsErrors(t *testing.T) {
	boom := errors.New("boom")
	svc := newTestService(fakeSource{err: boom}, &fakePrices{})

	_, err := svc.UserDonations(context.Background(), Query{ProjectID: 1, UserID: "u"})
	assert.ErrorIs(t, err, boom)

	_, err = svc.UserDonations(context.Background(), Query{ProjectID: 0, UserID: "u"})
	assert.ErrorIs(t, err, core.ErrInvalidProjectID)

	_, err = svc.UserDonations(context.Background(), Query{ProjectID: 1})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = svc.UserDonations(context.Background(), Query{ProjectID: 1, UserID: "u", Page: -1})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestOrderToggle(t *testing.T) {
	o := DefaultOrder()
	o = o.Toggle(ByDate)
	assert.Equal(t, Order{ByDate, Asc}, o)
	o = o.Toggle(ByDate)
	assert.Equal(t, Order{ByDate, Desc}, o)
	o = o.Toggle(ByAmount)
	assert.Equal(t, Order{ByAmount, Asc}, o)
}

func TestParseOrder(t *testing.T) {
	o, err := ParseOrder("", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultOrder(), o)

	o, err = ParseOrder("tokens", "asc")
	require.NoError(t, err)
	assert.Equal(t, Order{ByTokens, Asc}, o)

	_, err = ParseOrder("price", "")
	assert.ErrorIs(t, err, ErrInvalidQuery)
	_, err = ParseOrder("", "sideways")
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestRemaining(t *testing.T) {
	now := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "Unlocked", Remaining(now, now))
	assert.Equal(t, "Less than a day", Remaining(now, now.Add(time.Hour)))
	assert.Equal(t, "3 days", Remaining(now, now.AddDate(0, 0, 3)))
	assert.Equal(t, "2 months, 1 day", Remaining(now, now.AddDate(0, 2, 1)))
}

func TestUniqueTokens(t *testing.T) {
	d1 := core.Donation{SwapTransaction: &core.SwapTransaction{FromChainID: 1, FromTokenAddress: "0xA"}}
	d2 := core.Donation{SwapTransaction: &core.SwapTransaction{FromChainID: 1, FromTokenAddress: "0xa"}}
	d3 := core.Donation{SwapTransaction: &core.SwapTransaction{FromChainID: 10, FromTokenAddress: "0xA"}}
	d4 := core.Donation{}

	keys := UniqueTokens([]core.Donation{d1, d2, d3, d4})
	assert.Equal(t, []qacc.TokenKey{{ChainID: 1, Address: "0xA"}, {ChainID: 10, Address: "0xA"}}, keys)
}
