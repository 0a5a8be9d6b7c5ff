// Package reporting renders a finished collection session's Network
// Model (access points and their stations) to a PDF, giving a
// durable record of who was seen without storing any raw capture data.
// Built with gofpdf's layout primitives: a plain AP/station roster
// rather than a scored risk summary, since this tool never scores risk.
package reporting

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/lcalzada-xor/capwatch/internal/core/domain"
)

// Session is everything the report needs about one finished run.
type Session struct {
	TargetSSID string
	Interface  string
	StartedAt  time.Time
	EndedAt    time.Time
	AccessPoints map[string]domain.AccessPoint
	Stations     map[string]domain.Station
}

// Exporter renders Sessions to PDF bytes.
type Exporter struct{}

// NewExporter creates a new PDF exporter instance.
func NewExporter() *Exporter {
	return &Exporter{}
}

// Export generates the session summary PDF. The access-point roster
// continues on a new page whenever it reaches the bottom of the current
// one.
func (e *Exporter) Export(s Session) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	e.addHeader(pdf, s)
	e.addOverview(pdf, s)
	e.addAccessPoints(pdf, s)
	e.addFooter(pdf)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("reporting: generate PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *Exporter) addHeader(pdf *gofpdf.Fpdf, s Session) {
	pdf.SetFont("Arial", "B", 22)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 14, "Collection Session Report", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Arial", "", 12)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(0, 7, fmt.Sprintf("Target network: %s", s.TargetSSID), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 7, fmt.Sprintf("Interface: %s", s.Interface), "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(120, 120, 120)
	if !s.StartedAt.IsZero() {
		period := fmt.Sprintf("Started: %s", s.StartedAt.Format("2006-01-02 15:04:05"))
		if !s.EndedAt.IsZero() {
			period += fmt.Sprintf("  Ended: %s", s.EndedAt.Format("2006-01-02 15:04:05"))
		}
		pdf.CellFormat(0, 6, period, "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)
}

func (e *Exporter) addOverview(pdf *gofpdf.Fpdf, s Session) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 10, "Overview", "", 1, "L", false, 0, "")
	pdf.Ln(1)

	pdf.SetFont("Arial", "", 11)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(60, 7, "Access points:", "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 7, fmt.Sprintf("%d", len(s.AccessPoints)), "", 1, "L", false, 0, "")
	pdf.CellFormat(60, 7, "Stations:", "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 7, fmt.Sprintf("%d", len(s.Stations)), "", 1, "L", false, 0, "")
	pdf.Ln(6)
}

func (e *Exporter) addAccessPoints(pdf *gofpdf.Fpdf, s Session) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 10, "Access Points", "", 1, "L", false, 0, "")
	pdf.Ln(1)

	if len(s.AccessPoints) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.SetTextColor(100, 100, 100)
		pdf.CellFormat(0, 7, "No access points observed", "", 1, "L", false, 0, "")
		return
	}

	stationsByBSSID := make(map[string][]domain.Station)
	for _, sta := range s.Stations {
		stationsByBSSID[sta.BSSID] = append(stationsByBSSID[sta.BSSID], sta)
	}

	bssids := make([]string, 0, len(s.AccessPoints))
	for bssid := range s.AccessPoints {
		bssids = append(bssids, bssid)
	}
	sort.Strings(bssids)

	for _, bssid := range bssids {
		ap := s.AccessPoints[bssid]
		if pdf.GetY() > 260 {
			pdf.AddPage()
		}

		pdf.SetFont("Arial", "B", 11)
		pdf.SetTextColor(0, 102, 204)
		pdf.CellFormat(0, 7, bssid, "", 1, "L", false, 0, "")

		pdf.SetFont("Arial", "", 9)
		pdf.SetTextColor(80, 80, 80)
		pdf.CellFormat(0, 5, fmt.Sprintf("RSSI: %s   Channel: %s", formatRSSI(ap.RSSI), formatChannel(ap.Channel)), "", 1, "L", false, 0, "")

		stas := stationsByBSSID[bssid]
		sort.Slice(stas, func(i, j int) bool { return stas[i].MAC < stas[j].MAC })

		if len(stas) == 0 {
			pdf.SetFont("Arial", "I", 9)
			pdf.SetTextColor(120, 120, 120)
			pdf.CellFormat(5, 5, "", "", 0, "L", false, 0, "")
			pdf.CellFormat(0, 5, "No stations observed", "", 1, "L", false, 0, "")
		}
		for _, sta := range stas {
			pdf.SetFont("Arial", "", 9)
			pdf.SetTextColor(60, 60, 60)
			pdf.CellFormat(5, 5, "", "", 0, "L", false, 0, "")
			line := fmt.Sprintf("%s  RSSI: %s  Channel: %d  Last seen: %s",
				sta.MAC, formatRSSI(sta.RSSI), sta.Channel,
				time.Unix(sta.LastSeen, 0).UTC().Format("15:04:05"))
			pdf.CellFormat(0, 5, line, "", 1, "L", false, 0, "")
		}
		pdf.Ln(3)
	}
}

func (e *Exporter) addFooter(pdf *gofpdf.Fpdf) {
	pdf.SetY(-20)
	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(20, pdf.GetY(), 190, pdf.GetY())
	pdf.Ln(3)
	pdf.SetFont("Arial", "I", 8)
	pdf.SetTextColor(120, 120, 120)
	pdf.CellFormat(0, 5, "Generated by capwatch", "", 1, "C", false, 0, "")
}

func formatRSSI(rssi *int) string {
	if rssi == nil {
		return "n/a"
	}
	return fmt.Sprintf("%d dBm", *rssi)
}

func formatChannel(ch *int) string {
	if ch == nil {
		return "n/a"
	}
	return fmt.Sprintf("%d", *ch)
}
