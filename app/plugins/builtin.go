package plugins

import (
	"github.com/kilianp07/autoaid/core/factory"
	"github.com/kilianp07/autoaid/core/registry"
	"github.com/kilianp07/autoaid/infra/identity"
)

type staticConf struct {
	Mechanics []registry.Profile `json:"mechanics"`
}

func init() {
	RegisterDirectory("open", func(map[string]any) (registry.Directory, error) {
		return registry.OpenDirectory{}, nil
	})
	RegisterDirectory("static", func(conf map[string]any) (registry.Directory, error) {
		var sc staticConf
		if err := factory.Decode(conf, &sc); err != nil {
			return nil, err
		}
		return registry.NewStaticDirectory(sc.Mechanics...), nil
	})
	RegisterDirectory("http", func(conf map[string]any) (registry.Directory, error) {
		var ic identity.Config
		if err := factory.Decode(conf, &ic); err != nil {
			return nil, err
		}
		return identity.NewHTTPDirectory(ic)
	})
}
