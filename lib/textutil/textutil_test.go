package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCollapseSpace(t *testing.T) {
	cases := []struct {
		in     string
		expect string
	}{
		{"", ""},
		{"Pending", "Pending"},
		{"  Pedido   em\tanálise  ", "Pedido em análise"},
		{"line one\nline two\r\nline three", "line one line two line three"},
		{"a\u00a0b", "a b"},
		{"  Deferido  ", "Deferido"},
		{"\n\t ", ""},
	}

	for _, test := range cases {
		require.Equal(t, test.expect, CollapseSpace(test.in))
	}
}

func TestCollapseSpaceIdempotent(t *testing.T) {
	inputs := []string{
		"  a  b  c \n d  ",
		"Pedido recebido.\nAguarda análise.",
		"",
		"already clean",
	}
	for _, in := range inputs {
		once := CollapseSpace(in)
		require.Equal(t, once, CollapseSpace(once))
	}
}

func TestContainsFold(t *testing.T) {
	require.True(t, ContainsFold("background-color: Salmon;", "salmon"))
	require.True(t, ContainsFold("BACKGROUND-COLOR:salmon", "background-color"))
	require.False(t, ContainsFold("color: salmon", "background-color"))
}
