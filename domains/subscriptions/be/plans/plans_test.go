package plans

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	t.Parallel()

	c := Default()
	require.Len(t, c.All(), 3)

	basic, ok := c.Get(Basic)
	require.True(t, ok)
	limit, ok := basic.Limit(ResourceEmployees)
	require.True(t, ok)
	require.Equal(t, 50, limit)

	_, ok = basic.Limit("spaceships")
	require.False(t, ok)

	enterprise, _ := c.Get(Enterprise)
	require.Equal(t, 500, enterprise.MaxVehicles)
	require.Equal(t, 100, enterprise.MaxUsers)
}

func TestHasFeature(t *testing.T) {
	t.Parallel()

	c := Default()
	basic, _ := c.Get(Basic)
	premium, _ := c.Get(Premium)
	enterprise, _ := c.Get(Enterprise)

	cases := []struct {
		feature                    string
		basic, premium, enterprise bool
	}{
		{FeatureAdvancedReports, false, true, true},
		{FeatureSalaryManagement, false, true, true},
		{FeatureAPIIntegration, false, true, true},
		{FeatureMultiCompany, false, false, true},
		{FeatureCustomBranding, false, false, true},
		{"attendance", true, true, true},
	}
	for _, tc := range cases {
		require.Equal(t, tc.basic, basic.HasFeature(tc.feature), tc.feature)
		require.Equal(t, tc.premium, premium.HasFeature(tc.feature), tc.feature)
		require.Equal(t, tc.enterprise, enterprise.HasFeature(tc.feature), tc.feature)
	}
}

func TestQuote(t *testing.T) {
	t.Parallel()

	c := Default()

	q, err := c.Quote(Premium, 1)
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(499).Equal(q))

	q, err = c.Quote(Premium, 12)
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(4990).Equal(q))

	q, err = c.Quote(Basic, 14)
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(1990+2*199).Equal(q))

	_, err = c.Quote(Basic, 0)
	require.Error(t, err)

	_, err = c.Quote("gold", 1)
	require.ErrorIs(t, err, ErrUnknownPlan)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	c, err := Load([]byte(`{"plans":[{"type":"basic","name":"Starter","maxEmployees":10,"maxVehicles":2,"maxUsers":1,"priceMonthly":"9.99","priceYearly":"99"}]}`))
	require.NoError(t, err)
	basic, ok := c.Get(Basic)
	require.True(t, ok)
	require.Equal(t, "Starter", basic.Name)
	require.True(t, decimal.RequireFromString("9.99").Equal(basic.PriceMonthly))
	_, ok = c.Get(Premium)
	require.False(t, ok)

	_, err = Load([]byte(`{"plans":[{"type":"gold","name":"Gold","maxEmployees":1,"maxVehicles":1,"maxUsers":1,"priceMonthly":"1","priceYearly":"1"}]}`))
	require.ErrorContains(t, err, "validation")

	_, err = Load([]byte(`{"plans":[{"type":"basic","name":"B","maxEmployees":-1,"maxVehicles":1,"maxUsers":1,"priceMonthly":"1","priceYearly":"1"}]}`))
	require.Error(t, err)

	_, err = Load([]byte(`{"plans":[{"type":"basic","name":"B","maxEmployees":1,"maxVehicles":1,"maxUsers":1,"priceMonthly":"1","priceYearly":"1"},{"type":"basic","name":"C","maxEmployees":1,"maxVehicles":1,"maxUsers":1,"priceMonthly":"1","priceYearly":"1"}]}`))
	require.ErrorContains(t, err, "duplicated")

	_, err = Load([]byte(`not json`))
	require.Error(t, err)

	c, err = LoadFile("")
	require.NoError(t, err)
	require.Len(t, c.All(), 3)
}
