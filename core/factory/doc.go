// Package factory instantiates pluggable modules from configuration. A module
// is selected by its type name; its raw settings are decoded into the
// factory's own struct with Decode.
//
// The metrics sinks and the mechanic identity directories are built this way:
//
//	dirs := factory.NewRegistry[registry.Directory]()
//	dirs.Register("static", func(conf map[string]any) (registry.Directory, error) {
//	    var c struct {
//	        Mechanics []registry.Profile `json:"mechanics"`
//	    }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return registry.NewStaticDirectory(c.Mechanics...), nil
//	})
//	dir, err := dirs.Create(cfg.Registry.Directory)
package factory
