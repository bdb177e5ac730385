package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	testFormOwnerID = "owner-123"
	testFormName    = "Contact Form"
)

func TestNewFormValidatesAndNormalizes(t *testing.T) {
	form, err := NewForm(FormInput{
		OwnerID:  "  " + testFormOwnerID + " ",
		Name:     " " + testFormName + " ",
		Settings: FormSettings{SuccessURL: "https://example.com/done"},
	})
	require.NoError(t, err)

	require.NotEmpty(t, form.ID)
	require.Equal(t, testFormOwnerID, form.OwnerID)
	require.Equal(t, testFormName, form.Name)
	require.Equal(t, FormStatusActive, form.Status)
	require.Equal(t, "https://example.com/done", form.SuccessRedirectURL())
}

func TestNewFormRejectsInvalidInput(t *testing.T) {
	_, missingOwnerErr := NewForm(FormInput{Name: testFormName})
	require.ErrorIs(t, missingOwnerErr, ErrInvalidFormOwnerID)

	_, missingNameErr := NewForm(FormInput{OwnerID: testFormOwnerID})
	require.ErrorIs(t, missingNameErr, ErrInvalidFormName)

	_, longNameErr := NewForm(FormInput{OwnerID: testFormOwnerID, Name: strings.Repeat("n", 201)})
	require.ErrorIs(t, longNameErr, ErrInvalidFormName)

	_, badStatusErr := NewForm(FormInput{OwnerID: testFormOwnerID, Name: testFormName, Status: "archived"})
	require.ErrorIs(t, badStatusErr, ErrInvalidFormStatus)
}

func TestTransitionStatusTreatsRevokedAsTerminal(t *testing.T) {
	form, err := NewForm(FormInput{OwnerID: testFormOwnerID, Name: testFormName, Status: FormStatusRevoked})
	require.NoError(t, err)

	for _, targetStatus := range []string{FormStatusActive, FormStatusPaused, FormStatusTestMode} {
		_, transitionErr := form.TransitionStatus(targetStatus)
		require.ErrorIs(t, transitionErr, ErrFormRevokedTerminal)
	}

	stillRevoked, revokeAgainErr := form.TransitionStatus(FormStatusRevoked)
	require.NoError(t, revokeAgainErr)
	require.Equal(t, FormStatusRevoked, stillRevoked)
}

func TestTransitionStatusAllowsPauseAndResume(t *testing.T) {
	form, err := NewForm(FormInput{OwnerID: testFormOwnerID, Name: testFormName})
	require.NoError(t, err)

	paused, pauseErr := form.TransitionStatus(FormStatusPaused)
	require.NoError(t, pauseErr)
	require.Equal(t, FormStatusPaused, paused)

	form.Status = FormStatusPaused
	resumed, resumeErr := form.TransitionStatus(FormStatusActive)
	require.NoError(t, resumeErr)
	require.Equal(t, FormStatusActive, resumed)
}

func TestAcceptsSubmissions(t *testing.T) {
	cases := map[string]bool{
		FormStatusActive:   true,
		FormStatusTestMode: true,
		FormStatusPaused:   false,
		FormStatusRevoked:  false,
	}
	for status, expected := range cases {
		form := Form{Status: status}
		require.Equal(t, expected, form.AcceptsSubmissions(), status)
	}
}

func TestParsedSettingsToleratesMalformedJSON(t *testing.T) {
	form := Form{Settings: "{not json"}
	require.Equal(t, FormSettings{}, form.ParsedSettings())
	require.Empty(t, form.SuccessRedirectURL())
}
