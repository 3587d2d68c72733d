// Package report renders a RunReport for people: email HTML, dashboard
// sections and subject lines. All functions are pure.
package report

import (
	"fmt"
	"strings"

	"BollWatch/internal/model"

	"github.com/shopspring/decimal"
)

// DefaultTitle is used when no title is given.
const DefaultTitle = "BOLL指标筛选报告"

// Row is one symbol line in a section table.
type Row struct {
	Name     string
	Symbol   string
	Price    string
	Lower    string
	Middle   string
	Upper    string
	Distance string
	Position string
	Extreme  bool
}

// Section groups symbols by where the close sits.
type Section struct {
	Key   string
	Title string
	Icon  string
	Rows  []Row
}

// FailedRow is a symbol that could not be evaluated.
type FailedRow struct {
	Name    string
	Symbol  string
	Kind    string
	Message string
}

// sectionSpec orders the sections and picks their members.
var sectionSpecs = []struct {
	Key, Title, Icon string
	Match            func(model.SymbolResult) bool
	UseLower         bool
	Extreme          bool
}{
	{"below", "低于下轨 - 超卖区域", "🔴", func(r model.SymbolResult) bool { return r.BelowLower() }, true, true},
	{"near-lower", "接近下轨", "🟡", func(r model.SymbolResult) bool {
		return r.Proximity == model.NearLower && !r.BelowLower()
	}, true, false},
	{"near-upper", "接近上轨", "🟠", func(r model.SymbolResult) bool {
		return r.Proximity == model.NearUpper && !r.AboveUpper()
	}, false, false},
	{"above", "超出上轨 - 超买区域", "🔵", func(r model.SymbolResult) bool { return r.AboveUpper() }, false, true},
}

// Sections returns the non-empty proximity sections of r.
func Sections(r *model.RunReport) []Section {
	var out []Section
	for _, spec := range sectionSpecs {
		sec := Section{Key: spec.Key, Title: spec.Title, Icon: spec.Icon}
		for _, res := range r.Results {
			if !res.OK() || !spec.Match(res) {
				continue
			}
			sec.Rows = append(sec.Rows, newRow(res, spec.UseLower, spec.Extreme))
		}
		if len(sec.Rows) > 0 {
			out = append(out, sec)
		}
	}
	return out
}

// Failures lists the symbols that carry an error.
func Failures(r *model.RunReport) []FailedRow {
	var out []FailedRow
	for _, res := range r.Failed() {
		out = append(out, FailedRow{Name: res.Name, Symbol: res.Symbol, Kind: string(res.Error), Message: res.ErrorMessage})
	}
	return out
}

// NeutralCount is the number of evaluated symbols in no section.
func NeutralCount(r *model.RunReport) int {
	return len(r.Matching(model.Neutral))
}

func newRow(res model.SymbolResult, useLower, extreme bool) Row {
	cur := CurrencySymbol(res.Symbol)
	dist := res.DistanceUpperPct.Abs()
	if useLower {
		dist = res.DistanceLowerPct
	}
	name := res.Name
	if len([]rune(name)) > 30 {
		name = string([]rune(name)[:30])
	}
	return Row{
		Name:     name,
		Symbol:   res.Symbol,
		Price:    cur + res.LastClose.StringFixed(2),
		Lower:    cur + res.Bands.Lower.StringFixed(4),
		Middle:   cur + res.Bands.Middle.StringFixed(4),
		Upper:    cur + res.Bands.Upper.StringFixed(4),
		Distance: dist.StringFixed(2) + "%",
		Position: res.Position.StringFixed(1) + "%",
		Extreme:  extreme,
	}
}

// CurrencySymbol picks the price prefix from the market suffix.
func CurrencySymbol(symbol string) string {
	switch {
	case strings.HasSuffix(symbol, ".HK"):
		return "HK$"
	case strings.HasSuffix(symbol, ".US"):
		return "$"
	case strings.HasSuffix(symbol, ".SH"), strings.HasSuffix(symbol, ".SZ"):
		return "¥"
	default:
		return ""
	}
}

// Banner is the warning shown above a report whose status is not OK.
// It is empty for OK runs.
func Banner(r *model.RunReport) string {
	if r.RunError != nil {
		switch r.RunError.Kind {
		case model.ErrAuthExpired:
			return "⚠️ 访问令牌已过期，扫描已中止。" + r.RunError.Remediation
		default:
			return fmt.Sprintf("❌ 扫描失败: %s", r.RunError.Message)
		}
	}
	switch r.Status {
	case model.StatusPartial:
		_, failed := r.Counts()
		return fmt.Sprintf("⚠️ %d 只股票未能完成分析，详见下方错误列表。", failed)
	case model.StatusFailed:
		return "❌ 所有股票均未能完成分析。"
	default:
		return ""
	}
}

// Subject is the email subject line.
func Subject(r *model.RunReport) string {
	s := fmt.Sprintf("%s - %s", DefaultTitle, r.FinishedAt.Format("2006-01-02 15:04"))
	if r.Status != model.StatusOK {
		s += " [" + string(r.Status) + "]"
	}
	return s
}

// Summary returns counts per section key plus "neutral" and "failed".
func Summary(r *model.RunReport) map[string]int {
	out := map[string]int{"neutral": NeutralCount(r)}
	for _, sec := range Sections(r) {
		out[sec.Key] = len(sec.Rows)
	}
	_, failed := r.Counts()
	out["failed"] = failed
	return out
}

func pct(f float64) string {
	return decimal.NewFromFloat(f).Mul(decimal.NewFromInt(100)).String() + "%"
}
