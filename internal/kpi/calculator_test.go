package kpi

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kpicli/internal/cleaning"
	apperrors "kpicli/internal/errors"
	"kpicli/internal/shared/testutil"
	"kpicli/internal/source"
	"kpicli/pkg/contracts/domain"
)

func sampleFrames() map[domain.TableName]dataframe.DataFrame {
	frames := make(map[domain.TableName]dataframe.DataFrame)
	for name, records := range testutil.SampleTables() {
		frames[domain.TableName(name)] = dataframe.LoadRecords(records, dataframe.HasHeader(true))
	}
	return frames
}

func sampleCalculator(t *testing.T) *Calculator {
	t.Helper()
	in, err := InputsFromFrames(sampleFrames())
	require.NoError(t, err)
	return NewCalculator(in, nil)
}

func TestInputsFromFrames(t *testing.T) {
	in, err := InputsFromFrames(sampleFrames())
	require.NoError(t, err)

	assert.Len(t, in.AdSpend, 4)
	assert.Len(t, in.Installs, 7)
	assert.Len(t, in.Payouts, 4)
	assert.Len(t, in.Revenue, 6)

	assert.Equal(t, "N2", in.AdSpend[2].NetworkID)
	assert.Equal(t, 90.0, in.AdSpend[2].ValueUSD)
	assert.Equal(t, "2023-02-01", in.Installs[6].EventDate.Format(domain.DateLayout))
	assert.Equal(t, 0.5, in.Payouts[3].ValueUSD)
}

func TestInputsFromFrames_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(map[domain.TableName]dataframe.DataFrame)
		errType apperrors.ErrorType
	}{
		{
			name:    "missing table",
			mutate:  func(f map[domain.TableName]dataframe.DataFrame) { delete(f, domain.TableRevenue) },
			errType: apperrors.ErrTypeNotFound,
		},
		{
			name: "missing column",
			mutate: func(f map[domain.TableName]dataframe.DataFrame) {
				f[domain.TableInstalls] = f[domain.TableInstalls].Drop(domain.ColumnCountryID)
			},
			errType: apperrors.ErrTypeSchema,
		},
		{
			name: "raw date",
			mutate: func(f map[domain.TableName]dataframe.DataFrame) {
				f[domain.TablePayouts] = dataframe.LoadRecords([][]string{
					{"install_id", "event_date", "value_usd"},
					{"I1", "01/02/2023", "1"},
				}, dataframe.HasHeader(true))
			},
			errType: apperrors.ErrTypeParsing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames := sampleFrames()
			tt.mutate(frames)
			_, err := InputsFromFrames(frames)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, tt.errType), err.Error())
		})
	}
}

func TestInputsFromFrames_CleanedTables(t *testing.T) {
	dir := testutil.WriteSampleCSVs(t)
	files := make(map[domain.TableName]string)
	for _, table := range domain.AllTables {
		files[table] = filepath.Join(dir, table.FileName())
	}

	raw, err := source.LoadAll(context.Background(), source.NewCSVSource(files, nil), nil)
	require.NoError(t, err)
	cleaned, _, err := cleaning.NewCleaner(cleaning.DefaultOptions(), nil).CleanAll(context.Background(), raw)
	require.NoError(t, err)

	in, err := InputsFromFrames(cleaned)
	require.NoError(t, err)
	assert.Len(t, in.Installs, 7)

	uac, err := NewCalculator(in, nil).UserAcquisitionCosts(GroupBy{DimNetworkID}, AggMean)
	require.NoError(t, err)
	assert.InDelta(t, 55.0, uac.Rows[0].Value.Float64, 1e-9)
}

func TestUserAcquisitionCosts(t *testing.T) {
	calc := sampleCalculator(t)

	tests := []struct {
		name    string
		groupBy GroupBy
		agg     Aggregation
		want    map[string]float64
	}{
		{"per bucket", profitKey, AggSum, map[string]float64{
			"N1|C1|2023-01-01": 50, "N1|C1|2023-01-02": 60,
			"N2|C1|2023-01-01": 30, "N2|C2|2023-02-01": 40,
		}},
		{"network mean", GroupBy{DimNetworkID}, AggMean, map[string]float64{"N1": 55, "N2": 35}},
		{"network sum", GroupBy{DimNetworkID}, AggSum, map[string]float64{"N1": 110, "N2": 70}},
		{"month mean", GroupBy{DimMonth}, AggMean, map[string]float64{"1": 140.0 / 3, "2": 40}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := calc.UserAcquisitionCosts(tt.groupBy, tt.agg)
			require.NoError(t, err)
			assert.Equal(t, MetricAcquisitionCost, table.Name)
			assert.Len(t, table.Rows, len(tt.want))
			for _, row := range table.Rows {
				want, ok := tt.want[joinDisplay(row.Group)]
				require.True(t, ok, row.Group)
				assert.True(t, row.Value.Valid)
				assert.InDelta(t, want, row.Value.Float64, 1e-9, row.Group)
			}
		})
	}
}

func joinDisplay(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "|"
		}
		out += p
	}
	return out
}

func TestUserAcquisitionCosts_NoSpendIsZero(t *testing.T) {
	in := &Inputs{
		Installs: []domain.Install{
			{InstallID: "I1", NetworkID: "N9", CountryID: "C1", EventDate: date(t, "2023-03-01")},
		},
		AdSpend: []domain.AdSpend{
			{NetworkID: "N1", CountryID: "C1", EventDate: date(t, "2023-03-01"), ValueUSD: 10},
		},
	}

	table, err := NewCalculator(in, nil).UserAcquisitionCosts(GroupBy{DimNetworkID}, AggMean)
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.True(t, table.Rows[0].Value.Valid)
	assert.Equal(t, 0.0, table.Rows[0].Value.Float64)
	assert.Equal(t, JoinStats{LeftRows: 1, RightRows: 1, LeftOnly: 1, RightOnly: 1}, table.Stats)
}

func TestUserAcquisitionCosts_InstallIDRejected(t *testing.T) {
	calc := sampleCalculator(t)

	for _, g := range []GroupBy{{DimInstallID}, {DimNetworkID, DimInstallID}} {
		table, err := calc.UserAcquisitionCosts(g, AggMean)
		require.Error(t, err, "%v", g)
		assert.Nil(t, table)
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
		assert.Contains(t, err.Error(), string(DimInstallID))
	}
}

func TestRevenuePerInstall_OuterJoin(t *testing.T) {
	calc := sampleCalculator(t)

	table, err := calc.RevenuePerInstall(GroupBy{DimInstallID}, AggMean)
	require.NoError(t, err)

	assert.Equal(t, JoinStats{LeftRows: 7, RightRows: 5, Matched: 4, LeftOnly: 3, RightOnly: 1}, table.Stats)
	joined := table.Stats.Matched + table.Stats.LeftOnly + table.Stats.RightOnly
	assert.GreaterOrEqual(t, joined, max(table.Stats.LeftRows, table.Stats.RightRows))

	i1, ok := table.Lookup("I1")
	require.True(t, ok)
	assert.Equal(t, 8.0, i1.Value.Float64)

	// no revenue at all for I5
	i5, ok := table.Lookup("I5")
	require.True(t, ok)
	assert.False(t, i5.Value.Valid)

	// install row without revenue plus revenue on another day
	i3, ok := table.Lookup("I3")
	require.True(t, ok)
	assert.Equal(t, 7.0, i3.Value.Float64)
	assert.Equal(t, 1, i3.Count)
}

func TestRevenuePerInstall_SumOfNothingIsZero(t *testing.T) {
	table, err := sampleCalculator(t).RevenuePerInstall(GroupBy{DimInstallID}, AggSum)
	require.NoError(t, err)

	i5, ok := table.Lookup("I5")
	require.True(t, ok)
	assert.True(t, i5.Value.Valid)
	assert.Equal(t, 0.0, i5.Value.Float64)
}

func TestRevenuePerInstall_ByNetwork(t *testing.T) {
	tests := []struct {
		agg  Aggregation
		want map[string]float64
	}{
		{AggMean, map[string]float64{"N1": 6, "N2": 6}},
		{AggSum, map[string]float64{"N1": 12, "N2": 12}},
	}

	for _, tt := range tests {
		t.Run(string(tt.agg), func(t *testing.T) {
			table, err := sampleCalculator(t).RevenuePerInstall(GroupBy{DimNetworkID}, tt.agg)
			require.NoError(t, err)
			assert.Equal(t, 1, table.Stats.MissingKey)
			require.Len(t, table.Rows, 2)
			for _, row := range table.Rows {
				assert.InDelta(t, tt.want[row.Group[0]], row.Value.Float64, 1e-9)
			}
		})
	}
}

func TestPayoutsPerInstall(t *testing.T) {
	table, err := sampleCalculator(t).PayoutsPerInstall(GroupBy{DimNetworkID, DimCountryID}, AggSum)
	require.NoError(t, err)

	assert.Equal(t, JoinStats{LeftRows: 7, RightRows: 4, Matched: 3, LeftOnly: 4, RightOnly: 1, MissingKey: 1}, table.Stats)
	want := map[string]float64{"N1|C1": 1, "N2|C1": 2, "N2|C2": 0.5}
	require.Len(t, table.Rows, 3)
	for _, row := range table.Rows {
		assert.InDelta(t, want[joinDisplay(row.Group)], row.Value.Float64, 1e-9)
	}
}

func TestMetric(t *testing.T) {
	calc := sampleCalculator(t)

	for _, name := range []string{NameAcquisitionCost, NameRevenue, NamePayouts} {
		table, err := calc.Metric(name, GroupBy{DimNetworkID}, AggMean)
		require.NoError(t, err, name)
		assert.NotEmpty(t, table.Rows, name)
	}

	_, err := calc.Metric("ltv", GroupBy{DimNetworkID}, AggMean)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
}

func TestCalculator_RejectsBadArguments(t *testing.T) {
	calc := sampleCalculator(t)

	_, err := calc.UserAcquisitionCosts(nil, AggMean)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))

	_, err = calc.RevenuePerInstall(GroupBy{"campaign"}, AggMean)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))

	_, err = calc.PayoutsPerInstall(GroupBy{DimNetworkID}, "median")
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
}

func TestCalculator_IdentifiersStayOpaque(t *testing.T) {
	in := &Inputs{
		Installs: []domain.Install{
			{InstallID: "007", NetworkID: "010", CountryID: "1", EventDate: date(t, "2023-01-01")},
			{InstallID: "7", NetworkID: "10", CountryID: "1", EventDate: date(t, "2023-01-01")},
		},
	}

	table, err := NewCalculator(in, nil).UserAcquisitionCosts(GroupBy{DimNetworkID}, AggSum)
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, []string{"010"}, table.Rows[0].Group)
	assert.Equal(t, []string{"10"}, table.Rows[1].Group)
}
