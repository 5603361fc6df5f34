package kpi

import (
	"fmt"
	"time"

	"github.com/go-gota/gota/dataframe"

	apperrors "kpicli/internal/errors"
	"kpicli/pkg/contracts/domain"
)

// Inputs holds the typed source tables the calculators read
type Inputs struct {
	AdSpend  []domain.AdSpend
	Installs []domain.Install
	Payouts  []domain.Payout
	Revenue  []domain.Revenue
}

// InputsFromFrames converts cleaned frames into typed records. Dates must
// already be normalised to the canonical layout and value_usd must be numeric.
func InputsFromFrames(tables map[domain.TableName]dataframe.DataFrame) (*Inputs, error) {
	in := &Inputs{}

	cols, err := readTable(tables, domain.TableAdSpend)
	if err != nil {
		return nil, err
	}
	for i := range cols.dates {
		in.AdSpend = append(in.AdSpend, domain.AdSpend{
			NetworkID: cols.strings[domain.ColumnNetworkID][i],
			CountryID: cols.strings[domain.ColumnCountryID][i],
			EventDate: cols.dates[i],
			ValueUSD:  cols.values[i],
		})
	}

	if cols, err = readTable(tables, domain.TableInstalls); err != nil {
		return nil, err
	}
	for i := range cols.dates {
		in.Installs = append(in.Installs, domain.Install{
			InstallID: cols.strings[domain.ColumnInstallID][i],
			NetworkID: cols.strings[domain.ColumnNetworkID][i],
			CountryID: cols.strings[domain.ColumnCountryID][i],
			EventDate: cols.dates[i],
		})
	}

	if cols, err = readTable(tables, domain.TablePayouts); err != nil {
		return nil, err
	}
	for i := range cols.dates {
		in.Payouts = append(in.Payouts, domain.Payout{
			InstallID: cols.strings[domain.ColumnInstallID][i],
			EventDate: cols.dates[i],
			ValueUSD:  cols.values[i],
		})
	}

	if cols, err = readTable(tables, domain.TableRevenue); err != nil {
		return nil, err
	}
	for i := range cols.dates {
		in.Revenue = append(in.Revenue, domain.Revenue{
			InstallID: cols.strings[domain.ColumnInstallID][i],
			EventDate: cols.dates[i],
			ValueUSD:  cols.values[i],
		})
	}

	return in, nil
}

type tableColumns struct {
	strings map[string][]string
	dates   []time.Time
	values  []float64
}

func readTable(tables map[domain.TableName]dataframe.DataFrame, table domain.TableName) (*tableColumns, error) {
	df, ok := tables[table]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("table %s", table))
	}

	present := make(map[string]bool)
	for _, n := range df.Names() {
		present[n] = true
	}
	out := &tableColumns{strings: make(map[string][]string)}

	for _, col := range table.RequiredColumns() {
		if !present[col] {
			return nil, apperrors.NewSchemaError(string(table), col)
		}
		s := df.Col(col)
		nan := s.IsNaN()

		switch col {
		case domain.ColumnEventDate:
			for i, cell := range s.Records() {
				t, err := time.Parse(domain.DateLayout, cell)
				if nan[i] || err != nil {
					return nil, apperrors.NewParsingError(
						fmt.Sprintf("%s row %d: invalid %s %q", table, i+1, col, cell), err)
				}
				out.dates = append(out.dates, t)
			}
		case domain.ColumnValueUSD:
			for i, v := range s.Float() {
				if nan[i] {
					return nil, apperrors.NewParsingError(
						fmt.Sprintf("%s row %d: missing %s", table, i+1, col), nil)
				}
				out.values = append(out.values, v)
			}
		default:
			out.strings[col] = s.Records()
		}
	}
	return out, nil
}

// event is a dated value attached to one install
type event struct {
	installID string
	date      time.Time
	value     float64
}

func (in *Inputs) payoutEvents() []event {
	out := make([]event, len(in.Payouts))
	for i, p := range in.Payouts {
		out[i] = event{installID: p.InstallID, date: p.EventDate, value: p.ValueUSD}
	}
	return out
}

func (in *Inputs) revenueEvents() []event {
	out := make([]event, len(in.Revenue))
	for i, r := range in.Revenue {
		out[i] = event{installID: r.InstallID, date: r.EventDate, value: r.ValueUSD}
	}
	return out
}
