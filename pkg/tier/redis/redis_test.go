package redis_test

import (
	"context"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	goredis "github.com/redis/go-redis/v9"

	"github.com/papercomputeco/strata/pkg/checksum"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/tier"
	"github.com/papercomputeco/strata/pkg/tier/redis"
	"github.com/papercomputeco/strata/pkg/tier/tiertest"
)

var _ = Describe("Store", func() {
	var (
		mr     *miniredis.Miniredis
		client *goredis.Client
	)

	BeforeEach(func() {
		var err error
		mr, err = miniredis.Run()
		Expect(err).NotTo(HaveOccurred())
		client = goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	})

	AfterEach(func() {
		client.Close()
		mr.Close()
	})

	tiertest.ItBehavesLikeAStore(func() tier.Store {
		return redis.NewStoreWithClient(client, redis.Config{MaxItemBytes: 256})
	}, 256)

	It("prefixes keys in the shared keyspace", func() {
		s := redis.NewStoreWithClient(client, redis.Config{Prefix: "test:"})
		k := memory.Key{Namespace: "u1", Name: "a"}
		Expect(s.Put(context.Background(), checksum.Stamp(k, []byte("x"), 0, memory.L2, time.Now()))).To(Succeed())

		Expect(mr.Exists("test:u1/a")).To(BeTrue())
	})

	It("expires idle entries when a TTL is configured", func() {
		ctx := context.Background()
		s := redis.NewStoreWithClient(client, redis.Config{TTL: time.Minute})
		k := memory.Key{Namespace: "u1", Name: "a"}
		Expect(s.Put(ctx, checksum.Stamp(k, []byte("x"), 0, memory.L2, time.Now()))).To(Succeed())

		mr.FastForward(2 * time.Minute)

		_, err := s.Get(ctx, k.String())
		Expect(memory.IsNotFound(err)).To(BeTrue())
	})

	It("connects and pings through NewStore", func() {
		s, err := redis.NewStore(context.Background(), redis.Config{Addr: mr.Addr()})
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Close()).To(Succeed())
	})

	It("requires an address", func() {
		_, err := redis.NewStore(context.Background(), redis.Config{})
		Expect(err).To(HaveOccurred())
	})
})
