package live

import (
	"github.com/nerrad567/inventory-gateway/internal/infrastructure/config"
	"github.com/nerrad567/inventory-gateway/internal/store"
)

// DefaultResources is the resource table used when the configuration does
// not declare one.
func DefaultResources() []config.ResourceConfig {
	plain := []string{"nodes", "catalogs", "workflows", "tasks", "pollers", "obms", "skus", "tags", "lookups"}

	table := make([]config.ResourceConfig, 0, len(plain)+2)
	for _, name := range plain {
		table = append(table, config.ResourceConfig{
			Name:             name,
			Collection:       name,
			AllowLastUpdated: boolPtr(name != "lookups"),
		})
	}

	nodeScoped := map[string]any{"node": TokenPrefix + "nodeId"}
	table = append(table,
		config.ResourceConfig{
			Name:       "node-catalogs",
			Collection: "catalogs",
			Query:      nodeScoped,
		},
		config.ResourceConfig{
			Name:       "node-workflows",
			Collection: "workflows",
			Query:      nodeScoped,
			Projection: string(ProjectionSplit),
		},
	)
	return table
}

// SpecFromConfig converts one resource table row. Omitted policy flags
// default to true.
func SpecFromConfig(rc config.ResourceConfig) CollectionSpec {
	collection := rc.Collection
	if collection == "" {
		collection = rc.Name
	}
	var template store.Query
	if rc.Query != nil {
		template = store.Query(rc.Query)
	}
	return CollectionSpec{
		Name:             rc.Name,
		Collection:       collection,
		Template:         template,
		KeyParam:         rc.KeyParam,
		AllowSingle:      boolOr(rc.AllowSingle, true),
		AllowIndex:       boolOr(rc.AllowIndex, true),
		AllowLastUpdated: boolOr(rc.AllowLastUpdated, true),
		Projection:       Projection(rc.Projection),
	}
}

// BuildRegistry creates the registry for a resource table plus the bus
// pseudo-resource. An empty table selects DefaultResources; a nil bus or an
// empty bus resource name leaves the bus out.
func BuildRegistry(table []config.ResourceConfig, busCfg config.BusConfig, st Store, b Bus, logger Logger) (*Registry, error) {
	if len(table) == 0 {
		table = DefaultResources()
	}

	resources := make([]Resource, 0, len(table)+1)
	for _, rc := range table {
		res := NewCollectionResource(SpecFromConfig(rc), st)
		res.SetLogger(logger)
		resources = append(resources, res)
	}

	if b != nil && busCfg.Resource != "" {
		res := NewBusResource(busCfg.Resource, busCfg.DefaultExchange, b)
		res.SetLogger(logger)
		resources = append(resources, res)
	}

	return NewRegistry(resources...)
}

func boolPtr(v bool) *bool { return &v }

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
