//go:build libsql

package durableutils

import (
	"context"

	"github.com/papercomputeco/strata/pkg/durable"
	"github.com/papercomputeco/strata/pkg/durable/libsql"
)

func newLibSQL(ctx context.Context, target string) (durable.Driver, error) {
	return libsql.NewDriver(ctx, target)
}
