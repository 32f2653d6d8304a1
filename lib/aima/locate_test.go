package aima

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func parseDoc(t *testing.T, page string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)
	return doc
}

func TestStyleLocator(t *testing.T) {
	locate := StyleLocator("background-color", "salmon")

	cases := []struct {
		name  string
		page  string
		found bool
	}{
		{
			name:  "plain",
			page:  `<table><tr><td style="background-color: salmon">x</td></tr></table>`,
			found: true,
		},
		{
			name:  "mixed case",
			page:  `<table><tr><td style="BACKGROUND-COLOR:Salmon;">x</td></tr></table>`,
			found: true,
		},
		{
			name:  "extra declarations",
			page:  `<table><tr><td style="padding:4px; background-color: lightsalmon">x</td></tr></table>`,
			found: true,
		},
		{
			name:  "wrong property",
			page:  `<table><tr><td style="color: salmon">x</td></tr></table>`,
			found: false,
		},
		{
			name:  "wrong color",
			page:  `<table><tr><td style="background-color: tomato">x</td></tr></table>`,
			found: false,
		},
		{
			name:  "no tables at all",
			page:  `<div style="background-color: salmon">x</div>`,
			found: false,
		},
	}

	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			region := locate(parseDoc(t, test.page))
			if test.found {
				require.NotNil(t, region)
			} else {
				require.Nil(t, region)
			}
		})
	}
}

func TestStyleLocatorPicksFirstMatch(t *testing.T) {
	locate := StyleLocator("background-color", "salmon")
	doc := parseDoc(t, `<table>
<tr><td style="background-color: salmon">first</td></tr>
<tr><td style="background-color: salmon">second</td></tr>
</table>`)

	region := locate(doc)
	require.NotNil(t, region)
	require.Equal(t, "first", Normalize(region))
}

func TestRegionPayloadPrefersNestedList(t *testing.T) {
	{
		doc := parseDoc(t, `<table><tr><td style="background-color:salmon">
<b>Estado do Pedido</b><ul><li>Pending</li></ul>
</td></tr></table>`)
		region := StyleLocator("background-color", "salmon")(doc)
		require.NotNil(t, region)
		require.Equal(t, "Pending", Normalize(regionPayload(region)))
	}
	{
		// without a list the whole cell is the payload
		doc := parseDoc(t, `<table><tr><td style="background-color:salmon">
Pedido&nbsp;em&nbsp;análise
</td></tr></table>`)
		region := StyleLocator("background-color", "salmon")(doc)
		require.NotNil(t, region)
		require.Equal(t, "Pedido em análise", Normalize(regionPayload(region)))
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		fragment string
		expect   string
	}{
		{`<ul><li>Pending</li></ul>`, "Pending"},
		{`<ul>
  <li>Pedido recebido</li>
  <li>Aguarda pagamento</li>
</ul>`, "Pedido recebido Aguarda pagamento"},
		{`<b>Estado:</b>&nbsp;&nbsp;Deferido`, "Estado: Deferido"},
		{`   `, ""},
	}

	for _, test := range cases {
		doc := parseDoc(t, "<div id=\"root\">"+test.fragment+"</div>")
		require.Equal(t, test.expect, Normalize(doc.Find("#root")))
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	fragments := []string{
		`<ul><li> Pending </li><li>Em&nbsp;análise</li></ul>`,
		`text with
newlines and	tabs`,
		`<b>bold</b> and <i>italic</i>`,
	}

	for _, fragment := range fragments {
		doc := parseDoc(t, "<div id=\"root\">"+fragment+"</div>")
		once := Normalize(doc.Find("#root"))

		redoc := parseDoc(t, "<div id=\"root\">"+once+"</div>")
		require.Equal(t, once, Normalize(redoc.Find("#root")))
	}
}
