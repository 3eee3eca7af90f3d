package services

import (
	"testing"

	"github.com/nexconsult/mca-verify/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Lookup(t *testing.T) {
	r := DefaultRegistry()

	tgt, err := r.Lookup(" Annual-Filing ")
	require.NoError(t, err)
	assert.Equal(t, models.TargetAnnualFiling, tgt.Name)

	_, err = r.Lookup("llp-master")
	assert.ErrorIs(t, err, ErrUnknownTarget)
}

func TestRegistry_ListSorted(t *testing.T) {
	list := DefaultRegistry().List()
	require.Len(t, list, 2)
	assert.Equal(t, models.TargetAnnualFiling, list[0].Name)
	assert.Equal(t, models.TargetDINStatus, list[1].Name)
}

func TestTarget_ValidateIdentifier(t *testing.T) {
	af := AnnualFiling()
	assert.NoError(t, af.ValidateIdentifier("U45400DL2007PTC171129"))
	assert.ErrorIs(t, af.ValidateIdentifier(""), ErrInvalidIdentifier)
	assert.ErrorIs(t, af.ValidateIdentifier("U45400DL2007PTC17112"), ErrInvalidIdentifier)
	assert.ErrorIs(t, af.ValidateIdentifier("U45400DL2007PTC17112!"), ErrInvalidIdentifier)

	din := DINStatus()
	assert.NoError(t, din.ValidateIdentifier("01234567"))
	assert.ErrorIs(t, din.ValidateIdentifier("0123456A"), ErrInvalidIdentifier)
}

func TestNormalizeIdentifier(t *testing.T) {
	assert.Equal(t, "U45400DL2007PTC171129", NormalizeIdentifier("  u45400dl2007ptc171129 "))
}

func TestTarget_Columns(t *testing.T) {
	assert.Equal(t,
		[]string{"SRN", "Form Name", "Event Date", models.ColumnFilingDate, models.ColumnAmountPaid, models.ColumnLateFee},
		AnnualFiling().Columns())
	assert.Equal(t,
		[]string{"DIN", "Director Name", "DIN Status", "DIN Active", "Approval Date"},
		DINStatus().Columns())
}

func TestTarget_TwoRoundsShareModalFamily(t *testing.T) {
	af := AnnualFiling()
	require.NotNil(t, af.SecondRound)
	assert.Equal(t, af.FirstRound.Modal, af.SecondRound.Modal)
	assert.Equal(t, af.Selection, af.FirstRound.Success)
	assert.Equal(t, af.Results, af.SecondRound.Success)

	assert.Nil(t, DINStatus().SecondRound)
}
