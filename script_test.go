package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/appdist/internal/payload"
)

func TestLoadScript_Valid(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "campus.toml", `kind = " Campus "
record_id = "17"
submit = true

[initial]
campaignDistrictName = "Hyderabad"

[fields]
issueDate = "05/01/2026"

[[step]]
level = "city"
label = "Ameerpet"

[[step]]
level = "campus"
id = 9

[[step]]
extra = "applicationFee"
value = "500"

[[step]]
refresh = "applicationSeries"
`)

	s, err := LoadScript(path)
	require.NoError(t, err)

	assert.Equal(t, payload.KindCampus, s.kind)
	assert.Equal(t, "Hyderabad", s.Initial["campaignDistrictName"])
	assert.Equal(t, "05/01/2026", s.Fields["issueDate"])
	require.Len(t, s.Steps, 4)

	assert.Equal(t, `select city "Ameerpet"`, s.Steps[0].describe())
	assert.Equal(t, "select campus #9", s.Steps[1].describe())
	assert.Equal(t, `set applicationFee "500"`, s.Steps[2].describe())
	assert.Equal(t, "refresh applicationSeries", s.Steps[3].describe())
}

func TestLoadScript_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "unknown key",
			content: "kind = \"zone\"\nkinds = \"dgm\"\n",
			want:    "unknown keys kinds",
		},
		{
			name:    "unknown kind",
			content: "kind = \"region\"\n",
			want:    "unknown form kind",
		},
		{
			name:    "two actions in one step",
			content: "kind = \"zone\"\n[[step]]\nlevel = \"state\"\nlabel = \"Telangana\"\nextra = \"applicationFee\"\n",
			want:    "step 1 has 2 actions",
		},
		{
			name:    "empty step",
			content: "kind = \"zone\"\n[[step]]\nlabel = \"Telangana\"\n",
			want:    "step 1 has 0 actions",
		},
		{
			name:    "submit without record",
			content: "kind = \"zone\"\nsubmit = true\n",
			want:    "submit needs record_id",
		},
		{
			name:    "malformed",
			content: "kind = \n",
			want:    "parsing script",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := LoadScript(writeFile(t, "s.toml", tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseSets(t *testing.T) {
	t.Parallel()

	got, err := parseSets([]string{"stateName=Telangana", " cityName =Hyderabad", "range=1=2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"stateName": "Telangana",
		"cityName":  "Hyderabad",
		"range":     "1=2",
	}, got)

	_, err = parseSets([]string{"novalue"})
	assert.Error(t, err)

	_, err = parseSets([]string{"=x"})
	assert.Error(t, err)
}

func TestSessionScript(t *testing.T) {
	t.Parallel()

	s, err := sessionScript("", []string{"dgm"}, []string{"cityName=Hyderabad"})
	require.NoError(t, err)
	assert.Equal(t, payload.KindDGM, s.kind)
	require.Len(t, s.Steps, 1)
	assert.Equal(t, "Hyderabad", s.Steps[0].Values["cityName"])

	s, err = sessionScript("", []string{"zone"}, nil)
	require.NoError(t, err)
	assert.Empty(t, s.Steps)

	_, err = sessionScript("", nil, nil)
	assert.Error(t, err)

	_, err = sessionScript("x.toml", []string{"zone"}, nil)
	assert.Error(t, err)

	_, err = sessionScript("", []string{"region"}, nil)
	assert.True(t, errors.Is(err, payload.ErrUnknownFormKind))
}
