package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/warp/profit-sharing/api"
	"github.com/warp/profit-sharing/breakdown"
	"github.com/warp/profit-sharing/calendar"
	"github.com/warp/profit-sharing/report"
	"github.com/warp/profit-sharing/vesting"
	"github.com/warp/profit-sharing/yearend"
)

// =============================================================================
// YEAR-END CLOSE
// =============================================================================

func closeCmd() *cobra.Command {
	var commit bool
	cmd := &cobra.Command{
		Use:   "close <year>",
		Short: "Run the year-end close (preview unless --commit)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := yearArg(args[0])
			if err != nil {
				return err
			}
			a, err := setup("closing")
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.service.RunYearEndClose(cmd.Context(), year, commit)
			if err != nil {
				return err
			}
			printClose(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().BoolVar(&commit, "commit", false, "persist the stamped records and balance snapshots")
	return cmd
}

func printClose(w io.Writer, res *yearend.ClosingResult) {
	mode := "PREVIEW"
	if res.Run.Committed {
		mode = "COMMITTED"
	}
	fmt.Fprintf(w, "Plan year %d (%s to %s) %s run %s\n\n", res.Period.Year,
		res.Period.Start.Format("2006-01-02"), res.Period.End.Format("2006-01-02"), mode, res.Run.ID)

	members := append([]yearend.MemberOutcome(nil), res.Members...)
	sort.Slice(members, func(i, j int) bool { return members[i].MemberID < members[j].MemberID })

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Member", "Name", "Type", "Yrs", "Points", "Ending", "Vested", "Projected"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, o := range members {
		table.Append([]string{
			string(o.MemberID),
			o.Name,
			o.Record.EmployeeType.String(),
			strconv.Itoa(o.Record.YearsInPlan),
			strconv.Itoa(o.Record.Points),
			amount(o.Summary.EndingBalance),
			amount(o.Summary.VestedAmount),
			amount(o.ProjectedEnding),
		})
	}
	table.SetFooter(closeFooter(res))
	table.Render()

	fmt.Fprintf(w, "\nmembers %d  contributing %d  non-contributing %d  employees %d  beneficiaries %d\n",
		len(res.Members), res.Points.Contributing, res.Points.NonContributing, res.Totals.Employees, res.Totals.Beneficiaries)
}

// closeFooter lines up with the close table columns.
func closeFooter(res *yearend.ClosingResult) []string {
	t := res.Totals
	return []string{"", "", "", "TOTAL", strconv.Itoa(res.Points.TotalPoints), amount(t.LedgerEnding), "", amount(t.ProjectedEnding)}
}

// =============================================================================
// REPORTS
// =============================================================================

func summariesCmd() *cobra.Command {
	var (
		asCSV bool
		f     filterFlags
	)
	cmd := &cobra.Command{
		Use:   "summaries <year>",
		Short: "Print member-year summaries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := yearArg(args[0])
			if err != nil {
				return err
			}
			a, err := setup("reports")
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.service.ComputeYearSummaries(cmd.Context(), year, f.filter(cmd))
			if err != nil {
				return err
			}
			if asCSV {
				p, _ := res.CSV()
				return report.WriteCSV(cmd.OutOrStdout(), p)
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Member", "Name", "Store", "Beginning", "Contrib", "Earnings", "Forfeit", "Distrib", "Ending", "Vested %", "Vested"})
			table.SetAlignment(tablewriter.ALIGN_RIGHT)
			for _, r := range res.Rows {
				table.Append([]string{
					string(r.MemberID), r.FullName, strconv.Itoa(r.Store),
					amount(r.BeginningBalance), amount(r.Contributions), amount(r.Earnings),
					amount(r.Forfeitures), amount(r.Distributions), amount(r.EndingBalance),
					r.VestedPercent.StringFixed(0), amount(r.VestedAmount),
				})
			}
			if totals, ok := res.Totals(); ok {
				table.SetFooter([]string{"", "", "TOTAL",
					amount(totals["beginning_balance"]), amount(totals["contributions"]), amount(totals["earnings"]),
					amount(totals["forfeitures"]), amount(totals["distributions"]), amount(totals["ending_balance"]),
					"", amount(totals["vested_amount"]),
				})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().BoolVar(&asCSV, "csv", false, "write CSV instead of a table")
	f.register(cmd)
	return cmd
}

func eligibilityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "eligibility <year>",
		Short: "List eligible members with control counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := yearArg(args[0])
			if err != nil {
				return err
			}
			a, err := setup("eligibility")
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.service.GetEligibility(cmd.Context(), year)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, id := range res.Rows {
				fmt.Fprintln(w, id)
			}
			table := tablewriter.NewWriter(w)
			table.SetHeader([]string{"Read", "Excluded", "Written"})
			table.Append([]string{strconv.Itoa(res.CountRead), strconv.Itoa(res.CountExcluded), strconv.Itoa(res.CountWritten)})
			table.Render()
			if res.Anomaly {
				fmt.Fprintf(w, "WARNING: plan year %d has activity but no eligible members\n", year)
			}
			return nil
		},
	}
}

func breakdownCmd() *cobra.Command {
	var f filterFlags
	cmd := &cobra.Command{
		Use:   "breakdown <year>",
		Short: "Render the store breakdown report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := yearArg(args[0])
			if err != nil {
				return err
			}
			a, err := setup("reports")
			if err != nil {
				return err
			}
			defer a.close()

			filter := f.filter(cmd)
			out, err := a.service.RenderBreakdownReport(cmd.Context(), year, report.BreakdownRequest{
				Store:       filter.Store,
				ActiveOnly:  filter.ActiveOnly,
				Under21Only: filter.Under21Only,
			})
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), out)
			return err
		},
	}
	f.register(cmd)
	return cmd
}

// =============================================================================
// DATA SETUP
// =============================================================================

func seedCalendarCmd() *cobra.Command {
	var withVesting bool
	cmd := &cobra.Command{
		Use:   "seed-calendar <from-year> <to-year>",
		Short: "Store the default fiscal periods (last Saturday of December)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := yearArg(args[0])
			if err != nil {
				return err
			}
			to, err := yearArg(args[1])
			if err != nil {
				return err
			}
			if to < from {
				return fmt.Errorf("to-year %d is before from-year %d", to, from)
			}
			a, err := setup("setup")
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			for y := from; y <= to; y++ {
				p := calendar.DefaultFiscalPeriod(y)
				if err := a.store.SaveAccountingPeriod(ctx, p); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d  %s .. %s\n", y, p.Start.Format("2006-01-02"), p.End.Format("2006-01-02"))
			}
			if withVesting {
				schedule := a.service.Options.Schedule
				if err := a.store.SaveVestingSteps(ctx, schedule.Steps()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "vesting schedule stored, fully vested after %d years\n", schedule.FullyVestedAt())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withVesting, "vesting", true, "also store the configured vesting schedule")
	return cmd
}

func loadScenarioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load-scenario <id>",
		Short: "Reset the database and load a demo population",
		Long:  "Reset the database and load a demo population. Available: " + scenarioIDs(),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup("setup")
			if err != nil {
				return err
			}
			defer a.close()

			if err := api.LoadScenario(cmd.Context(), a.store, args[0]); err != nil {
				return err
			}
			a.log.WithField("scenario", args[0]).Info("scenario loaded")
			return nil
		},
	}
}

// =============================================================================
// HELPERS
// =============================================================================

type filterFlags struct {
	store   int
	active  bool
	under21 bool
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.store, "store", 0, "only this store")
	cmd.Flags().BoolVar(&f.active, "active", false, "only active members")
	cmd.Flags().BoolVar(&f.under21, "under21", false, "only members under 21 at year end")
}

func (f *filterFlags) filter(cmd *cobra.Command) vesting.Filter {
	out := vesting.Filter{ActiveOnly: f.active, Under21Only: f.under21}
	if cmd.Flags().Changed("store") {
		store := f.store
		out.Store = &store
	}
	return out
}

func yearArg(s string) (int, error) {
	year, err := strconv.Atoi(s)
	if err != nil || year < 1900 || year > 2999 {
		return 0, fmt.Errorf("invalid plan year %q", s)
	}
	return year, nil
}

func scenarioIDs() string {
	var ids []string
	for _, s := range api.Scenarios() {
		ids = append(ids, s.ID)
	}
	return strings.Join(ids, ", ")
}

// amount prints money with thousands separators; zero prints as 0.00.
func amount(d decimal.Decimal) string {
	if s := strings.TrimSpace(breakdown.Money(d, 0)); s != "" {
		return s
	}
	return "0.00"
}
