package template

import (
	"testing"

	"github.com/smallbiznis/procura/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func approvedData() Data {
	return Data{}.
		Required("OrganizationName", "Beta Co").
		Set("RecipientName", "Rina").
		Required("RequisitionTitle", "Laptops").
		Set("DecisionNote", "").
		Set("Link", "")
}

func TestRenderApprovedCarriesOrganizationName(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	out, err := r.Render(RequisitionApproved, "Approved in {{.OrganizationName}}", approvedData())
	require.NoError(t, err)
	assert.Equal(t, "Approved in Beta Co", out.Subject)
	assert.Contains(t, out.Body, "<strong>Beta Co</strong>")
	assert.NotContains(t, out.Body, "Note:")
}

func TestRenderFailsClosedOnMissingOrganization(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	data := approvedData()
	delete(data, "OrganizationName")

	_, err = r.Render(RequisitionApproved, "Approved", data)
	assert.ErrorIs(t, err, errs.ErrTemplate)

	_, err = r.Render(RequisitionApproved, "Approved in {{.OrganizationName}}", Data{}.Required("OrganizationName", " "))
	assert.ErrorIs(t, err, errs.ErrTemplate)
}

func TestRenderUnknownTemplate(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	assert.True(t, r.Known(Custom))
	assert.False(t, r.Known("welcome"))
	_, err = r.Render("welcome", "hi", approvedData())
	assert.ErrorIs(t, err, errs.ErrTemplate)
}

func TestRenderEscapesHTML(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	data := Data{}.
		Required("OrganizationName", "Acme").
		Set("RecipientName", "Rina").
		Set("Link", "").
		Set("Message", "<script>alert(1)</script>")
	out, err := r.Render(Custom, "{{.Title}}", data.Set("Title", "Heads up"))
	require.NoError(t, err)
	assert.NotContains(t, out.Body, "<script>")
	assert.Equal(t, "Heads up", out.Subject)
}
