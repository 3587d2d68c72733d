package report

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"BollWatch/internal/model"
)

type htmlData struct {
	Title       string
	Report      *model.RunReport
	Banner      string
	Sections    []Section
	Failures    []FailedRow
	Summary     map[string]int
	Total       int
	Found       int
	Threshold   string
	UpdatedAt   string
	GeneratedAt string
}

var htmlTmpl = template.Must(template.New("report").Parse(htmlSource))

// RenderHTML renders r as a standalone HTML page for email and the dashboard.
func RenderHTML(r *model.RunReport, title string) (string, error) {
	if title == "" {
		title = DefaultTitle
	}
	data := htmlData{
		Title:       title,
		Report:      r,
		Banner:      Banner(r),
		Sections:    Sections(r),
		Failures:    Failures(r),
		Summary:     Summary(r),
		Total:       len(r.Results),
		Threshold:   pct(r.Params.Threshold),
		UpdatedAt:   r.FinishedAt.Format("2006-01-02 15:04:05"),
		GeneratedAt: time.Now().Format("2006-01-02 15:04:05"),
	}
	for _, sec := range data.Sections {
		data.Found += len(sec.Rows)
	}

	var buf bytes.Buffer
	if err := htmlTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return buf.String(), nil
}

// RenderEmpty renders the page shown before the first run.
func RenderEmpty(title string) string {
	if title == "" {
		title = DefaultTitle
	}
	return "<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>" + template.HTMLEscapeString(title) +
		"</title></head><body><h1>" + template.HTMLEscapeString(title) + "</h1><p>暂无扫描结果，请等待定时任务或手动触发扫描。</p></body></html>"
}

const htmlSource = `<!DOCTYPE html>
<html lang="zh-CN">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body { font-family: -apple-system, "Segoe UI", "PingFang SC", sans-serif; background: #f5f5f5; margin: 0; padding: 20px; }
.container { max-width: 1000px; margin: 0 auto; background: #fff; border-radius: 8px; padding: 24px; }
.header h1 { margin: 0 0 8px; }
.meta { color: #666; font-size: 14px; }
.banner { margin: 16px 0; padding: 12px 16px; border-radius: 6px; background: #fff3cd; color: #856404; border: 1px solid #ffeeba; }
.banner.failed { background: #f8d7da; color: #721c24; border-color: #f5c6cb; }
.summary-grid { display: grid; grid-template-columns: repeat(4, 1fr); gap: 12px; }
.summary-card { padding: 12px; border-radius: 6px; background: #fafafa; text-align: center; }
.summary-card .count { font-size: 28px; font-weight: bold; }
.section { margin-top: 24px; }
.section-title { font-size: 18px; font-weight: bold; margin-bottom: 8px; }
table { width: 100%; border-collapse: collapse; font-size: 14px; }
th, td { padding: 8px; border-bottom: 1px solid #eee; text-align: right; }
th:first-child, td:first-child { text-align: left; }
.errors td { color: #a94442; }
.footer { margin-top: 24px; color: #999; font-size: 12px; text-align: center; }
</style>
</head>
<body>
<div class="container">
  <div class="header">
    <h1>{{.Title}}</h1>
    <div class="meta">更新时间: {{.UpdatedAt}} | 分析总数: {{.Total}} | 筛选结果: {{.Found}} 只 | 状态: {{.Report.Status}}</div>
  </div>
  {{if .Banner}}<div class="banner{{if eq (print .Report.Status) "FAILED"}} failed{{end}}">{{.Banner}}</div>{{end}}
  <div class="summary">
    <h2>📊 统计汇总</h2>
    <div class="summary-grid">
      <div class="summary-card below"><h3>🔴 低于下轨</h3><div class="count">{{index .Summary "below"}}</div></div>
      <div class="summary-card near-lower"><h3>🟡 接近下轨</h3><div class="count">{{index .Summary "near-lower"}}</div></div>
      <div class="summary-card near-upper"><h3>🟠 接近上轨</h3><div class="count">{{index .Summary "near-upper"}}</div></div>
      <div class="summary-card above"><h3>🔵 超出上轨</h3><div class="count">{{index .Summary "above"}}</div></div>
    </div>
    <p class="meta">配置参数: 周期={{.Report.Params.Period}}, k={{.Report.Params.K}}, 阈值={{.Threshold}}</p>
  </div>
  {{range .Sections}}
  <div class="section {{.Key}}">
    <div class="section-title">{{.Icon}} {{.Title}} ({{len .Rows}} 只)</div>
    <table>
      <thead><tr><th>股票名称</th><th>当前价格</th><th>下轨</th><th>中轨</th><th>上轨</th><th>带内位置</th><th>距离</th></tr></thead>
      <tbody>
      {{range .Rows}}<tr><td><strong>{{.Name}}</strong> <small>{{.Symbol}}</small></td><td>{{.Price}}</td><td>{{.Lower}}</td><td>{{.Middle}}</td><td>{{.Upper}}</td><td>{{.Position}}</td><td>{{.Distance}}{{if .Extreme}} ⚠️{{end}}</td></tr>
      {{end}}
      </tbody>
    </table>
  </div>
  {{end}}
  {{if .Failures}}
  <div class="section errors">
    <div class="section-title">❗ 分析失败 ({{len .Failures}} 只)</div>
    <table>
      <thead><tr><th>股票名称</th><th>错误类型</th><th>详情</th></tr></thead>
      <tbody>
      {{range .Failures}}<tr><td><strong>{{.Name}}</strong> <small>{{.Symbol}}</small></td><td>{{.Kind}}</td><td>{{.Message}}</td></tr>
      {{end}}
      </tbody>
    </table>
  </div>
  {{end}}
  <div class="footer">
    <p>本报告由BOLL指标筛选系统自动生成 · 运行 {{.Report.RunID}} ({{.Report.Trigger}})</p>
    <p>生成时间: {{.GeneratedAt}}</p>
  </div>
</div>
</body>
</html>
`
