package resource

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTemplate_Errors(t *testing.T) {
	tests := []string{
		"",
		"projects//x",
		"projects/{project",
		"projects/{}",
		"projects/{p}/x/{p}",
		"docs/{d=**}/tail",
		"docs/{d=*x}",
		"a{b}",
	}
	for _, tt := range tests {
		t.Run(tt, func(t *testing.T) {
			_, err := NewTemplate(tt)
			assert.Error(t, err)
		})
	}
}

func TestTemplate_MatchAndInstantiate(t *testing.T) {
	tpl := MustTemplate("projects/{project}/databases/{database}")
	assert.Equal(t, []string{"project", "database"}, tpl.Vars())
	assert.Equal(t, "projects/{project}/databases/{database}", tpl.String())

	vals, ok := tpl.Match("projects/p1/databases/(default)")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"project": "p1", "database": "(default)"}, vals)

	for _, bad := range []string{
		"",
		"projects/p1",
		"projects/p1/databases",
		"projects/p1/databases/",
		"projects//databases/d",
		"projects/p1/databases/d/extra",
		"project/p1/databases/d",
	} {
		_, ok := tpl.Match(bad)
		assert.False(t, ok, bad)
	}

	s, err := tpl.Instantiate(vals)
	require.NoError(t, err)
	assert.Equal(t, "projects/p1/databases/(default)", s)
}

func TestTemplate_InstantiateErrors(t *testing.T) {
	tpl := MustTemplate("projects/{project}/databases/{database}")

	_, err := tpl.Instantiate(map[string]string{"project": "p"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedName))
	assert.Contains(t, err.Error(), "database")

	_, err = tpl.Instantiate(map[string]string{"project": "a/b", "database": "d"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "single segment")
}

func TestTemplate_MultiSegment(t *testing.T) {
	tpl := MustTemplate("projects/{project}/databases/{database}/documents/{document=**}")

	vals, ok := tpl.Match("projects/p/databases/d/documents/cities/NYC/landmarks/l1")
	require.True(t, ok)
	assert.Equal(t, "cities/NYC/landmarks/l1", vals["document"])

	_, ok = tpl.Match("projects/p/databases/d/documents")
	assert.False(t, ok)
	_, ok = tpl.Match("projects/p/databases/d/documents/cities//x")
	assert.False(t, ok)

	s, err := tpl.Instantiate(map[string]string{"project": "p", "database": "d", "document": "a/b"})
	require.NoError(t, err)
	assert.Equal(t, "projects/p/databases/d/documents/a/b", s)

	_, err = tpl.Instantiate(map[string]string{"project": "p", "database": "d", "document": "a//b"})
	assert.Error(t, err)
}

func TestTemplate_ValidatedMatch(t *testing.T) {
	_, err := indexTemplate.ValidatedMatch("projects/p/databases/d")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedName))
	assert.Contains(t, err.Error(), indexTemplate.String())
}
