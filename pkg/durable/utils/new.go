// Package durableutils builds durable drivers from provider names.
package durableutils

import (
	"context"
	"fmt"

	"github.com/papercomputeco/strata/pkg/durable"
	"github.com/papercomputeco/strata/pkg/durable/inmemory"
	"github.com/papercomputeco/strata/pkg/durable/postgres"
	"github.com/papercomputeco/strata/pkg/durable/sqlite"
)

type NewDurableDriverOpts struct {
	// ProviderType is one of "sqlite", "postgres", "libsql" or "inmemory".
	ProviderType string

	// Target is the sqlite path, postgres DSN, or libsql URL.
	Target string
}

func NewDurableDriver(ctx context.Context, o *NewDurableDriverOpts) (durable.Driver, error) {
	switch o.ProviderType {
	case "sqlite", "":
		target := o.Target
		if target == "" {
			target = ":memory:"
		}
		return sqlite.NewDriver(ctx, target)
	case "postgres":
		if o.Target == "" {
			return nil, fmt.Errorf("postgres provider requires a connection string")
		}
		return postgres.NewDriver(ctx, o.Target)
	case "libsql":
		return newLibSQL(ctx, o.Target)
	case "inmemory":
		return inmemory.NewDriver(), nil
	default:
		return nil, fmt.Errorf("unsupported durable provider: %s", o.ProviderType)
	}
}
