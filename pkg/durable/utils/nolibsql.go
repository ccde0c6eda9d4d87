//go:build !libsql

package durableutils

import (
	"context"
	"fmt"

	"github.com/papercomputeco/strata/pkg/durable"
)

func newLibSQL(context.Context, string) (durable.Driver, error) {
	return nil, fmt.Errorf("libsql provider requires a build with -tags libsql")
}
