package htmlutil

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func TestGetText(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<td><b>Estado:</b> <ul><li>Pendente</li><li>Em análise</li></ul></td>`,
	))
	require.NoError(t, err)

	td := doc.Find("td")
	require.Equal(t, 1, len(td.Nodes))
	require.Equal(t, "Estado: Pendente Em análise", strings.Join(strings.Fields(GetText(td.Nodes[0])), " "))
}

func TestSelectionText(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<ul><li>one</li><li>two</li></ul>`,
	))
	require.NoError(t, err)

	require.Equal(t, "onetwo", SelectionText(doc.Find("li")))
	require.Equal(t, "", SelectionText(doc.Find("table")))
}
