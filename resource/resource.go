package resource

type Type uint8

/*
Resource represents any external resource that needs to be opened/closed
by the harness. The way to define any new resource is to create a struct
that implements Config. Using that config, materialize the resource; any
initialization/setup should be done during materialization.
*/

const (
	DBConnection Type = 1
)

type Config interface {
	Materialize() (Resource, error)
}

type Resource interface {
	Close() error
	Type() Type
}
