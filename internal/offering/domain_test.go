package offering

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procat/backend/internal/apperr"
)

func draftOffering() *Offering {
	return &Offering{
		ID:               "o1",
		Name:             "Fiber 100",
		SpecificationIDs: []string{"s1"},
		PriceIDs:         []string{"p1"},
		SalesChannels:    []string{"WEB"},
		LifecycleStatus:  StatusDraft,
		Version:          1,
	}
}

func TestStartPublicationHappyPath(t *testing.T) {
	o := draftOffering()
	require.NoError(t, o.StartPublication())
	assert.Equal(t, StatusPublishing, o.LifecycleStatus)
	assert.Equal(t, int64(2), o.Version)
}

func TestStartPublicationRequiresReferences(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Offering)
	}{
		{"no specifications", func(o *Offering) { o.SpecificationIDs = nil }},
		{"no prices", func(o *Offering) { o.PriceIDs = nil }},
		{"no channels", func(o *Offering) { o.SalesChannels = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := draftOffering()
			tc.mutate(o)
			err := o.StartPublication()
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.Equal(t, StatusDraft, o.LifecycleStatus)
		})
	}
}

func TestLifecycleAllowedEdgesOnly(t *testing.T) {
	o := draftOffering()

	require.NoError(t, o.StartPublication())
	require.NoError(t, o.ConfirmPublication())
	assert.Equal(t, StatusPublished, o.LifecycleStatus)
	require.NoError(t, o.Retire())
	assert.Equal(t, StatusRetired, o.LifecycleStatus)

	// No edges leave RETIRED.
	assert.Error(t, o.StartPublication())
	assert.Error(t, o.ConfirmPublication())
	assert.Error(t, o.FailPublication())
	assert.Error(t, o.Retire())
}

func TestFailPublicationRevertsToDraft(t *testing.T) {
	o := draftOffering()
	require.NoError(t, o.StartPublication())
	require.NoError(t, o.FailPublication())
	assert.Equal(t, StatusDraft, o.LifecycleStatus)

	// The offering is editable again.
	assert.NoError(t, o.MutableGuard())
}

func TestConfirmOnlyFromPublishing(t *testing.T) {
	o := draftOffering()
	err := o.ConfirmPublication()
	require.Error(t, err)
	assert.Equal(t, apperr.KindLifecycle, apperr.KindOf(err))
}

func TestMutableGuard(t *testing.T) {
	o := draftOffering()
	assert.NoError(t, o.MutableGuard())

	require.NoError(t, o.StartPublication())
	err := o.MutableGuard()
	require.Error(t, err)
	assert.Equal(t, apperr.KindLifecycle, apperr.KindOf(err))

	require.NoError(t, o.ConfirmPublication())
	assert.Error(t, o.MutableGuard())
}

func TestRetireOnlyFromPublished(t *testing.T) {
	o := draftOffering()
	assert.Error(t, o.Retire())

	require.NoError(t, o.StartPublication())
	assert.Error(t, o.Retire())
}
