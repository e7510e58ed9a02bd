package parser

import (
	"testing"

	pdf "github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/require"
)

func TestTextRunsToElements_BuildsBoundingBoxFromOriginWidthAndFontSize(t *testing.T) {
	runs := []pdf.Text{
		{S: "CPF:", X: 10, Y: 700, W: 20, FontSize: 10},
		{S: "111.444.777-35", X: 32, Y: 700, W: 60, FontSize: 10},
	}

	elements := textRunsToElements(2, runs)

	require.Len(t, elements, 2)
	require.Equal(t, "CPF:", elements[0].Text)
	require.Equal(t, 2, elements[0].Page)
	require.Equal(t, 10.0, elements[0].X0)
	require.Equal(t, 30.0, elements[0].X1)
	require.Equal(t, 700.0, elements[0].Y0)
	require.Equal(t, 710.0, elements[0].Y1)
}

func TestTextRunsToElements_SkipsEmptyRuns(t *testing.T) {
	runs := []pdf.Text{{S: ""}, {S: "kept"}}
	elements := textRunsToElements(0, runs)
	require.Len(t, elements, 1)
	require.Equal(t, "kept", elements[0].Text)
}
