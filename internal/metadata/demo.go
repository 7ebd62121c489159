package metadata

import (
	_ "embed"
	"fmt"
)

//go:embed demo.yaml
var demoMapping []byte

// DemoMapping returns the raw mapping document of the demo schema.
func DemoMapping() []byte {
	return demoMapping
}

// Demo returns the registry of the demo schema created by the bundled
// migrations.
func Demo() (*Registry, error) {
	reg, err := Parse(demoMapping)
	if err != nil {
		return nil, fmt.Errorf("demo mapping: %w", err)
	}
	return reg, nil
}
