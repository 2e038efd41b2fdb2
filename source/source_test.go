package source

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadIdentifiersLines(t *testing.T) {
	ids, err := ReadIdentifiers(strings.NewReader("11000000000\n\n  22000000000.0 \r\n11000000000\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"11000000000", "22000000000", "11000000000"}, ids)
}

func TestReadIdentifiersCSV(t *testing.T) {
	in := "\ufeffName,ABN,State\nExample,11000000000.0,NSW\nBlank,,VIC\nShort\nOther,22000000000,QLD\n"
	ids, err := ReadIdentifiers(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"11000000000", "22000000000"}, ids)
}

func TestReadIdentifiersCSVWithoutABN(t *testing.T) {
	_, err := ReadIdentifiers(strings.NewReader("Name,State\nx,y\n"))
	assert.ErrorIs(t, err, ErrNoABNColumn)
}

func TestReadIdentifiersEmpty(t *testing.T) {
	ids, err := ReadIdentifiers(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, ids)
}
