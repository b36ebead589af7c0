// Package factory instantiates pluggable backends (record stores, lock
// managers, metrics sinks, event publishers) from a type name and a map of
// raw settings:
//
//	backends := factory.NewRegistry[store.Backend]()
//	_ = backends.Register("sqlite", func(conf map[string]any) (store.Backend, error) {
//		var c struct{ Path string `json:"path"` }
//		if err := factory.Decode(conf, &c); err != nil {
//			return nil, err
//		}
//		return NewSQLiteBackend(c.Path)
//	})
//	b, err := backends.Create(factory.ModuleConfig{Type: "sqlite", Conf: map[string]any{"path": "fleet.db"}})
package factory
