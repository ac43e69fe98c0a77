// Package export produces the outstanding-assignment CSV used for reminders.
package export

import (
	"bufio"
	"io"
	"strings"
	"time"

	"partnertrack/internal/domain"
	"partnertrack/internal/query"
)

const (
	bom            = "\uFEFF"
	filenamePrefix = "未完了タスク一覧_"
)

// Header is the first CSV line: code, office name, task title.
var Header = []string{"コード", "事務所名", "タスク名"}

type Row struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Title string `json:"title"`
}

// IncompleteRows lists one row per unfinished assignment on an active task whose
// partner still exists, in task order then assignment order.
func IncompleteRows(state domain.AppState) []Row {
	rows := []Row{}
	for _, t := range query.ActiveTasks(state) {
		for _, a := range t.Assignments {
			if a.Completed {
				continue
			}
			p, ok := query.FindPartner(state, a.PartnerID)
			if !ok {
				continue
			}
			rows = append(rows, Row{Code: p.Code, Name: p.Name, Title: t.Title})
		}
	}
	return rows
}

// WriteCSV writes the BOM, the header and rows. Header cells are bare; every
// data field is double-quoted with embedded quotes doubled.
func WriteCSV(w io.Writer, rows []Row) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(bom)
	bw.WriteString(strings.Join(Header, ","))
	bw.WriteString("\n")
	for _, r := range rows {
		bw.WriteString(quote(r.Code))
		bw.WriteByte(',')
		bw.WriteString(quote(r.Name))
		bw.WriteByte(',')
		bw.WriteString(quote(r.Title))
		bw.WriteString("\n")
	}
	return bw.Flush()
}

// Filename names an export taken at now.
func Filename(now time.Time) string {
	return filenamePrefix + now.Format(domain.DateLayout) + ".csv"
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
