package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"BollWatch/internal/model"
	"BollWatch/internal/report"
)

// FormatReport formats a run report as a Telegram HTML message.
func FormatReport(r *model.RunReport) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("📊 <b>%s</b> | %s\n", report.DefaultTitle, r.FinishedAt.Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("周期=%d k=%g 阈值=%g%% | 状态: %s\n\n", r.Params.Period, r.Params.K, r.Params.Threshold*100, r.Status))

	if banner := report.Banner(r); banner != "" {
		b.WriteString(html.EscapeString(banner))
		b.WriteString("\n\n")
	}

	sections := report.Sections(r)
	for _, sec := range sections {
		b.WriteString(fmt.Sprintf("%s <b>%s</b> (%d)\n", sec.Icon, sec.Title, len(sec.Rows)))
		for _, row := range sec.Rows {
			mark := ""
			if row.Extreme {
				mark = " ⚠️"
			}
			b.WriteString(fmt.Sprintf("  %s <code>%s</code> %s [%s ~ %s] 距离 %s%s\n",
				html.EscapeString(row.Name), row.Symbol, row.Price, row.Lower, row.Upper, row.Distance, mark))
		}
		b.WriteString("\n")
	}
	if len(sections) == 0 && r.Status != model.StatusFailed {
		b.WriteString("今日无接近布林带上下轨的股票。\n\n")
	}

	if failures := report.Failures(r); len(failures) > 0 {
		b.WriteString(fmt.Sprintf("❗ <b>分析失败</b> (%d)\n", len(failures)))
		for _, f := range failures {
			b.WriteString(fmt.Sprintf("  <code>%s</code> %s: %s\n", f.Symbol, f.Kind, html.EscapeString(f.Message)))
		}
		b.WriteString("\n")
	}

	ok, failed := r.Counts()
	b.WriteString(fmt.Sprintf("成功 %d | 失败 %d | 中性 %d", ok, failed, report.NeutralCount(r)))
	return b.String()
}

// StatusView is the data behind the /status reply.
type StatusView struct {
	State             string
	NextRun           time.Time
	Last              *model.RunReport
	CredentialVersion uint64
	CredentialExpires *time.Time
}

// FormatStatus formats the scanner state for display.
func FormatStatus(v StatusView) string {
	var b strings.Builder
	b.WriteString("📦 <b>扫描状态</b>\n\n")
	b.WriteString(fmt.Sprintf("当前状态: %s\n", v.State))
	if !v.NextRun.IsZero() {
		b.WriteString(fmt.Sprintf("下次运行: %s\n", v.NextRun.Format("2006-01-02 15:04")))
	}
	if v.Last != nil {
		ok, failed := v.Last.Counts()
		b.WriteString(fmt.Sprintf("上次运行: %s (%s, 成功 %d / 失败 %d)\n",
			v.Last.FinishedAt.Format("2006-01-02 15:04"), v.Last.Status, ok, failed))
	} else {
		b.WriteString("上次运行: 无\n")
	}
	b.WriteString(fmt.Sprintf("令牌版本: %d\n", v.CredentialVersion))
	if v.CredentialExpires != nil {
		b.WriteString(fmt.Sprintf("令牌过期: %s\n", v.CredentialExpires.Format("2006-01-02 15:04")))
	}
	return b.String()
}
