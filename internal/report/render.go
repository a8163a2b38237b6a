// Package report renders simulation results as styled terminal text.
package report

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/fundly/internal/domain"
	"github.com/rovshanmuradov/fundly/internal/export"
	"github.com/rovshanmuradov/fundly/internal/launchpad"
	"github.com/rovshanmuradov/fundly/internal/safemath"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type Renderer struct {
	styles Styles
}

func NewRenderer(palette Palette) *Renderer {
	return &Renderer{styles: NewStyles(palette)}
}

// Simulation renders every asset of rep, the vesting outcome and the
// treasury balance. threshold is the migration threshold in lamports.
func (r *Renderer) Simulation(rep *launchpad.Report, threshold uint64) string {
	var b strings.Builder
	b.WriteString(r.styles.Title.Render("Launch simulation"))
	b.WriteString("\n")

	for _, asset := range rep.Assets {
		b.WriteString(r.asset(asset, threshold))
		b.WriteString("\n")
	}
	if rep.Vesting != nil {
		b.WriteString(r.vesting(rep.Vesting))
		b.WriteString("\n")
	}
	b.WriteString(r.kv("Treasury", SOL(rep.Treasury)))
	b.WriteString("\n")
	return b.String()
}

func (r *Renderer) asset(a launchpad.AssetReport, threshold uint64) string {
	rows := make([][]string, 0, len(a.Fills))
	for _, f := range a.Fills {
		status := r.styles.Good.Render("filled")
		if f.Err != nil {
			status = r.styles.Bad.Render(errorCode(f.Err))
		}
		rows = append(rows, []string{
			f.Buyer,
			SOL(f.Budget),
			Tokens(f.Tokens),
			Percent(f.Share),
			f.Price.StringFixed(10),
			status,
		})
	}

	lines := []string{
		r.styles.Section.Render("Asset " + Short(a.Mint)),
		r.table([]string{"buyer", "budget", "tokens", "supply", "avg price", "status"}, rows),
		r.kv("Real SOL", SOL(a.Curve.RealSolReserves)),
		r.kv("Progress", Percent(a.Curve.Progress(threshold))),
		r.kv("Market cap", a.Curve.MarketCap().StringFixed(2)+" SOL"),
		r.kv("Fees swept", SOL(a.FeesSwept)),
	}
	if m := a.Migration; m != nil {
		lp := "-"
		if m.LpBurned != nil {
			lp = fmt.Sprintf("%d", *m.LpBurned)
		}
		lines = append(lines,
			r.kv("Migration", r.styles.Good.Render(m.Status.String())),
			r.kv("Pool", Short(m.Pool)),
			r.kv("Migrated", SOL(m.SolMigrated)+" / "+Tokens(m.TokenMigrated)),
			r.kv("LP burned", lp),
		)
	} else {
		lines = append(lines, r.kv("Migration", r.styles.Warn.Render("on curve")))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (r *Renderer) vesting(v *launchpad.VestingReport) string {
	rows := make([][]string, 0, len(v.Points))
	for _, p := range v.Points {
		rows = append(rows, []string{
			fmt.Sprintf("%.0fd", p.Offset.Hours()/24),
			Tokens(p.Unlocked),
		})
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		r.styles.Section.Render("Creator vesting "+Short(v.Schedule.Beneficiary)),
		r.table([]string{"after", "unlocked"}, rows),
		r.kv("Claimed", Tokens(v.Claimed)+" of "+Tokens(v.Schedule.TotalAmount)),
	)
}

// Whales renders the opening-buy impact table.
func (r *Renderer) Whales(impacts []launchpad.WhaleImpact) string {
	rows := make([][]string, 0, len(impacts))
	for _, w := range impacts {
		share := Percent(w.Share)
		if w.Exhausted {
			share = r.styles.Bad.Render(share + " (curve exhausted)")
		}
		rows = append(rows, []string{SOL(w.Budget), Tokens(w.Tokens), share})
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		r.styles.Section.Render("Whale impact on a fresh curve"),
		r.table([]string{"budget", "tokens", "supply"}, rows),
	)
}

// Costs renders the cost to acquire shares of the supply.
func (r *Renderer) Costs(points []launchpad.CostPoint) string {
	rows := make([][]string, 0, len(points))
	for _, p := range points {
		rows = append(rows, []string{Percent(p.Share), Tokens(p.Tokens), SOL(p.Cost), p.AvgPrice.StringFixed(10)})
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		r.styles.Section.Render("Cost to acquire"),
		r.table([]string{"supply", "tokens", "cost", "avg price"}, rows),
	)
}

// Trades renders a journal summary.
func (r *Renderer) Trades(s export.ExportSummary) string {
	return lipgloss.JoinVertical(lipgloss.Left,
		r.styles.Section.Render("Trade journal"),
		r.kv("Trades", fmt.Sprintf("%d (%d buys, %d sells)", s.TotalTrades, s.BuyCount, s.SellCount)),
		r.kv("Assets", fmt.Sprintf("%d", s.UniqueMints)),
		r.kv("Traders", fmt.Sprintf("%d", s.UniqueActors)),
		r.kv("Buy volume", SOL(s.TotalBuyVolume)),
		r.kv("Fees", SOL(s.TotalFees)),
		r.kv("Avg buy price", s.AvgBuyPrice.StringFixed(10)),
	)
}

func (r *Renderer) kv(label, value string) string {
	return r.styles.Label.Render(fmt.Sprintf("%-14s", label)) + value
}

func (r *Renderer) table(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, r.row(headers, widths, r.styles.Header))
	for _, row := range rows {
		lines = append(lines, r.row(row, widths, r.styles.Cell))
	}
	return r.styles.Panel.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (r *Renderer) row(cells []string, widths []int, style lipgloss.Style) string {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = style.Width(widths[i] + 2).Render(cell)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

// SOL formats lamports as SOL with three decimals.
func SOL(lamports uint64) string {
	return decimal.NewFromBigInt(safemath.U64(lamports), -domain.SolDecimals).StringFixed(3) + " SOL"
}

// Tokens formats raw token units in millions of whole tokens.
func Tokens(units uint64) string {
	whole := decimal.NewFromBigInt(safemath.U64(units), -domain.TokenDecimals)
	return whole.Div(decimal.NewFromInt(1_000_000)).StringFixed(2) + "M"
}

// Percent formats a [0, 1] ratio.
func Percent(ratio decimal.Decimal) string {
	return ratio.Mul(hundred).StringFixed(2) + "%"
}

// Short abbreviates an address to its first and last four characters.
func Short(key solana.PublicKey) string {
	s := key.String()
	if len(s) <= 8 {
		return s
	}
	return s[:4] + "..." + s[len(s)-4:]
}

func errorCode(err error) string {
	var de *domain.Error
	if errors.As(err, &de) {
		return de.Code
	}
	return "failed"
}
