package plugins

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/autoaid/core/factory"
	"github.com/kilianp07/autoaid/core/model"
	"github.com/kilianp07/autoaid/core/registry"
	"github.com/kilianp07/autoaid/infra/identity"
)

func TestBuiltinDirectories(t *testing.T) {
	assert.Equal(t, []string{"http", "open", "static"}, Directories.Types())

	dir, err := NewDirectory(factory.ModuleConfig{Type: "open"})
	require.NoError(t, err)
	assert.IsType(t, registry.OpenDirectory{}, dir)

	dir, err = NewDirectory(factory.ModuleConfig{Type: "static", Conf: map[string]any{
		"mechanics": []any{
			map[string]any{"id": "m1", "rating": 4.5, "total_jobs": "12", "specializations": []any{"FLAT_TIRE"}},
		},
	}})
	require.NoError(t, err)
	p, err := dir.Lookup(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, 4.5, p.Rating)
	assert.Equal(t, 12, p.TotalJobs)
	assert.Equal(t, []model.ServiceType{model.ServiceFlatTire}, p.Specializations)
	_, err = dir.Lookup(context.Background(), "m2")
	assert.True(t, errors.Is(err, model.ErrNotFound))

	dir, err = NewDirectory(factory.ModuleConfig{Type: "http", Conf: map[string]any{"base_url": "http://identity.local"}})
	require.NoError(t, err)
	assert.IsType(t, &identity.HTTPDirectory{}, dir)
}

func TestNewDirectoryErrors(t *testing.T) {
	_, err := NewDirectory(factory.ModuleConfig{Type: "ldap"})
	assert.ErrorContains(t, err, "unknown module type")

	_, err = NewDirectory(factory.ModuleConfig{Type: "http"})
	assert.ErrorContains(t, err, "base_url")

	assert.Panics(t, func() {
		RegisterDirectory("open", func(map[string]any) (registry.Directory, error) { return nil, nil })
	})
}
