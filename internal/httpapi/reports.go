package httpapi

import (
	"bytes"
	"encoding/csv"
	"html/template"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/domain"
)

func dailyReportsToCSV(reports []domain.DailyReport) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	rows := [][]string{{
		"date", "total_orders", "pending_orders_processed", "total_revenue_cents",
		"total_items", "average_ticket_cents", "closed_at",
	}}
	for _, r := range reports {
		rows = append(rows, []string{
			r.Date,
			strconv.Itoa(r.TotalOrders),
			strconv.Itoa(r.PendingOrdersProcessed),
			strconv.FormatInt(r.TotalRevenueCents, 10),
			strconv.Itoa(r.TotalItems),
			strconv.FormatInt(r.AverageTicketCents, 10),
			r.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// reais renders cents as "R$ 12,34".
func reais(cents int64) string {
	return "R$ " + strings.Replace(decimal.New(cents, -2).StringFixed(2), ".", ",", 1)
}

var dailyReportsHTMLTmpl = template.Must(template.New("daily-reports").Funcs(template.FuncMap{
	"reais": reais,
}).Parse(`<!doctype html>
<html lang="pt-BR">
<head>
  <meta charset="utf-8" />
  <title>Fechamentos de caixa</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    td.num { text-align: right; }
  </style>
</head>
<body>
  <h2>Fechamentos de caixa</h2>
  <table>
    <thead><tr><th>Data</th><th>Pedidos</th><th>Pendentes entregues</th><th>Faturamento</th><th>Itens</th><th>Ticket médio</th></tr></thead>
    <tbody>{{range .}}<tr><td>{{.Date}}</td><td class="num">{{.TotalOrders}}</td><td class="num">{{.PendingOrdersProcessed}}</td><td class="num">{{reais .TotalRevenueCents}}</td><td class="num">{{.TotalItems}}</td><td class="num">{{reais .AverageTicketCents}}</td></tr>{{end}}</tbody>
  </table>
</body>
</html>
`))

func dailyReportsToPrintableHTML(reports []domain.DailyReport) string {
	var buf bytes.Buffer
	if err := dailyReportsHTMLTmpl.Execute(&buf, reports); err != nil {
		return "<!doctype html><html><body><p>Erro ao gerar relatório.</p></body></html>"
	}
	return buf.String()
}
