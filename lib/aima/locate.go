package aima

import (
	"aimawatch-backend/lib/htmlutil"
	"aimawatch-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
)

// Locator finds the table cell carrying the application status, nil
// when the page has no recognizable status region. The default matches
// on inline style; swap it out if the site repaints.
type Locator func(doc *goquery.Document) *goquery.Selection

// StyleLocator matches cells whose inline style contains both property
// and value as case-insensitive substrings. The status cell on the
// target site is the one painted `background-color: salmon`. When the
// flat cell scan comes up empty it rescans inside every table, some
// variants of the page nest the grid in a way the first pass misses.
func StyleLocator(property, value string) Locator {
	return func(doc *goquery.Document) *goquery.Selection {
		match := findStyledCell(doc.Find("td"), property, value)
		if match != nil {
			return match
		}

		var nested *goquery.Selection
		doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
			nested = findStyledCell(table.Find("td"), property, value)
			return nested == nil
		})
		return nested
	}
}

func findStyledCell(cells *goquery.Selection, property, value string) *goquery.Selection {
	var match *goquery.Selection
	cells.EachWithBreak(func(_ int, cell *goquery.Selection) bool {
		style := cell.AttrOr("style", "")
		if textutil.ContainsFold(style, property) && textutil.ContainsFold(style, value) {
			match = cell
			return false
		}
		return true
	})
	return match
}

// regionPayload prefers a nested list's contents over the whole cell,
// the status lines live in a <ul> once the application has history.
func regionPayload(region *goquery.Selection) *goquery.Selection {
	list := region.Find("ul").First()
	if list.Length() > 0 {
		return list
	}
	return region
}

// Normalize reduces a region to the canonical status text used for
// change detection: tags stripped, non-breaking spaces converted,
// whitespace runs collapsed, ends trimmed. Idempotent, so re-checking
// unchanged markup always yields byte-identical text.
func Normalize(region *goquery.Selection) string {
	return textutil.CollapseSpace(htmlutil.SelectionText(region))
}
