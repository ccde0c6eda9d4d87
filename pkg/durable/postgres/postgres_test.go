package postgres_test

import (
	"context"
	"database/sql"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/durable"
	"github.com/papercomputeco/strata/pkg/durable/durabletest"
	"github.com/papercomputeco/strata/pkg/durable/postgres"
)

// connStr returns the PostgreSQL connection string from environment or skips the test.
func connStr() string {
	dsn := os.Getenv("STRATA_TEST_POSTGRES_DSN")
	if dsn == "" {
		Skip("STRATA_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

var _ = Describe("Driver", func() {
	durabletest.ItBehavesLikeADriver(func() durable.Driver {
		ctx := context.Background()
		dsn := connStr()

		driver, err := postgres.NewDriver(ctx, dsn)
		Expect(err).NotTo(HaveOccurred())

		// Clean all records before each test for isolation.
		db, err := sql.Open("pgx", dsn)
		Expect(err).NotTo(HaveOccurred())
		defer db.Close()
		_, err = db.ExecContext(ctx, "TRUNCATE memory_records")
		Expect(err).NotTo(HaveOccurred())

		return driver
	})

	It("fails fast on an unreachable server", func() {
		_, err := postgres.NewDriver(context.Background(), "postgres://strata@127.0.0.1:1/strata?sslmode=disable&connect_timeout=1")
		Expect(err).To(HaveOccurred())
	})
})
