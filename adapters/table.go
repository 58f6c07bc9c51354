package adapters

import (
	"fmt"
	"strings"

	"agmarknet-api/internal/types"

	"github.com/PuerkitoBio/goquery"
)

// ResultGridID is the element id of the price grid on the results page
const ResultGridID = "cphBody_GridPriceData"

// TableLayout describes where each field lives in a grid row.
// Bump Version whenever the portal changes its columns.
type TableLayout struct {
	Version string

	// Columns is the number of cells a data row must have
	Columns int

	// Headers holds a lowercase fragment expected in each header cell, by position
	Headers []string

	SerialNumber int
	City         int
	Commodity    int
	MinPrice     int
	MaxPrice     int
	ModalPrice   int
	Date         int
}

// LayoutV1 matches the grid as rendered since the portal's ASP.NET redesign:
// Sl no. | District | Market | Commodity | Variety | Grade | Min | Max | Modal | Price Date
var LayoutV1 = TableLayout{
	Version: "v1",
	Columns: 10,
	Headers: []string{
		"sl", "district", "market", "commodity", "variety",
		"grade", "min price", "max price", "modal price", "price date",
	},
	SerialNumber: 0,
	City:         1,
	Commodity:    3,
	MinPrice:     6,
	MaxPrice:     7,
	ModalPrice:   8,
	Date:         9,
}

// Fragment positions used by the text-splitting parser.
// Each position is one past the matching LayoutV1 cell because the
// split always yields a leading fragment before the serial number.
const (
	fragSerialNumber = 1
	fragCity         = 2
	fragCommodity    = 4
	fragMinPrice     = 7
	fragMaxPrice     = 8
	fragModalPrice   = 9
	fragDate         = 10
	fragMinCount     = fragDate + 1

	// page layout rows and the grid header precede the data rows
	fragLeadingRows = 4
)

// ParsePriceTable converts a results page snapshot into price records.
func ParsePriceTable(html string, mode string, layout TableLayout) ([]types.PriceRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, types.NewScrapeError(types.ErrCodeMalformedRow, "failed to parse results page", err)
	}

	switch mode {
	case types.ParseModeFragments:
		return parseFragmentRows(doc)
	case types.ParseModeCells, "":
		return parseGridCells(doc, layout)
	default:
		return nil, fmt.Errorf("unknown parse mode: %s", mode)
	}
}

// parseGridCells walks the grid's own rows and reads cells by position.
func parseGridCells(doc *goquery.Document, layout TableLayout) ([]types.PriceRecord, error) {
	grid := doc.Find("#" + ResultGridID)
	if grid.Length() == 0 {
		return nil, types.NewScrapeError(types.ErrCodeElementMissing,
			fmt.Sprintf("results grid #%s not in page", ResultGridID), nil)
	}

	table := grid.First()
	if goquery.NodeName(table) != "table" {
		table = table.Find("table").First()
	}

	// Direct children only: the pager row nests its own table
	rows := table.ChildrenFiltered("thead, tbody, tfoot").ChildrenFiltered("tr").AddSelection(table.ChildrenFiltered("tr"))

	records := []types.PriceRecord{}
	var rowErr error
	rows.EachWithBreak(func(i int, row *goquery.Selection) bool {
		if headers := row.ChildrenFiltered("th"); headers.Length() > 0 {
			rowErr = checkHeaders(headers, layout)
			return rowErr == nil
		}

		cells := row.ChildrenFiltered("td")
		switch {
		case cells.Length() <= 1:
			// pager or "No Data Found"
			return true
		case cells.Length() < layout.Columns:
			rowErr = types.NewScrapeError(types.ErrCodeMalformedRow,
				fmt.Sprintf("row %d has %d cells, layout %s needs %d", i, cells.Length(), layout.Version, layout.Columns), nil)
			return false
		}

		texts := make([]string, cells.Length())
		cells.Each(func(j int, cell *goquery.Selection) {
			texts[j] = strings.TrimSpace(cell.Text())
		})

		records = append(records, types.PriceRecord{
			SerialNumber: texts[layout.SerialNumber],
			City:         texts[layout.City],
			Commodity:    texts[layout.Commodity],
			MinPrice:     texts[layout.MinPrice],
			MaxPrice:     texts[layout.MaxPrice],
			ModalPrice:   texts[layout.ModalPrice],
			Date:         texts[layout.Date],
		})
		return true
	})
	if rowErr != nil {
		return nil, rowErr
	}

	return records, nil
}

func checkHeaders(headers *goquery.Selection, layout TableLayout) error {
	if headers.Length() < len(layout.Headers) {
		return types.NewScrapeError(types.ErrCodeLayoutChanged,
			fmt.Sprintf("grid has %d columns, layout %s expects %d", headers.Length(), layout.Version, len(layout.Headers)), nil)
	}

	var mismatch error
	headers.EachWithBreak(func(i int, h *goquery.Selection) bool {
		if i >= len(layout.Headers) {
			return false
		}
		got := strings.ToLower(strings.Join(strings.Fields(h.Text()), " "))
		if !strings.Contains(got, layout.Headers[i]) {
			mismatch = types.NewScrapeError(types.ErrCodeLayoutChanged,
				fmt.Sprintf("column %d is %q, layout %s expects %q", i, got, layout.Version, layout.Headers[i]), nil)
			return false
		}
		return true
	})
	return mismatch
}

// splitRowText reproduces the portal's text layout split: newlines become
// underscores, double spaces are dropped, and cells are separated by "__".
func splitRowText(text string) []string {
	text = strings.ReplaceAll(text, "\n", "_")
	text = strings.ReplaceAll(text, "  ", "")
	return strings.Split(text, "__")
}

// parseFragmentRows reads every row on the page as text and picks
// fragments by position, dropping the leading layout rows and the footer.
func parseFragmentRows(doc *goquery.Document) ([]types.PriceRecord, error) {
	var rows [][]string
	doc.Find("tr").Each(func(i int, s *goquery.Selection) {
		rows = append(rows, splitRowText(s.Text()))
	})

	records := []types.PriceRecord{}
	if len(rows) <= fragLeadingRows+1 {
		return records, nil
	}

	for i, fragments := range rows[fragLeadingRows : len(rows)-1] {
		if len(fragments) < fragMinCount {
			return nil, types.NewScrapeError(types.ErrCodeMalformedRow,
				fmt.Sprintf("row %d has %d fragments, need %d", i+fragLeadingRows, len(fragments), fragMinCount), nil)
		}
		records = append(records, types.PriceRecord{
			SerialNumber: fragments[fragSerialNumber],
			City:         fragments[fragCity],
			Commodity:    fragments[fragCommodity],
			MinPrice:     fragments[fragMinPrice],
			MaxPrice:     fragments[fragMaxPrice],
			ModalPrice:   fragments[fragModalPrice],
			Date:         fragments[fragDate],
		})
	}

	return records, nil
}
