package search_test

import (
	"context"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/api/search"
	"github.com/papercomputeco/strata/pkg/logger"
	"github.com/papercomputeco/strata/pkg/manager"
	"github.com/papercomputeco/strata/pkg/memory"
	testutils "github.com/papercomputeco/strata/pkg/utils/test"
	"github.com/papercomputeco/strata/pkg/vector"
)

type mapReader map[string]*manager.GetResult

func (m mapReader) Get(_ context.Context, key memory.Key) (*manager.GetResult, error) {
	if key.Name == "broken" {
		return nil, errors.New("durable tier unavailable")
	}
	if r, ok := m[key.String()]; ok {
		return r, nil
	}
	return &manager.GetResult{}, nil
}

var _ = Describe("Searcher", func() {
	var (
		vectorDriver *testutils.MockVectorDriver
		reader       mapReader
		searcher     *search.Searcher
		ctx          context.Context
	)

	doc := func(id, ns string, version uint64) vector.Document {
		return vector.Document{ID: id, Namespace: ns, Version: version}
	}

	BeforeEach(func() {
		ctx = context.Background()
		vectorDriver = testutils.NewMockVectorDriver()
		reader = mapReader{}
		searcher = search.NewSearcher(testutils.NewMockEmbedder(), vectorDriver, reader, logger.Nop())
	})

	It("returns empty results when the vector store has no matches", func() {
		out, err := searcher.Search(ctx, search.SearchInput{Query: "hello"})
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Query).To(Equal("hello"))
		Expect(out.Count).To(BeZero())
		Expect(out.Results).To(BeEmpty())
	})

	It("resolves hits to their current value", func() {
		Expect(vectorDriver.Add(ctx, []vector.Document{doc("user-1/prefs", "user-1", 2)})).To(Succeed())
		reader["user-1/prefs"] = &manager.GetResult{Payload: []byte("likes tea"), Version: 3, Found: true, Stale: true}

		out, err := searcher.Search(ctx, search.SearchInput{Query: "tea"})
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Count).To(Equal(1))

		hit := out.Results[0]
		Expect(hit.Namespace).To(Equal("user-1"))
		Expect(hit.Key).To(Equal("prefs"))
		Expect(hit.IndexedVersion).To(Equal(uint64(2)))
		Expect(hit.Version).To(Equal(uint64(3)))
		Expect(hit.Preview).To(Equal("likes tea"))
		Expect(hit.Stale).To(BeTrue())
	})

	It("skips missing, unreadable and malformed hits", func() {
		Expect(vectorDriver.Add(ctx, []vector.Document{
			doc("user-1/gone", "user-1", 1),
			doc("user-1/broken", "user-1", 1),
			doc("no-separator", "", 1),
			doc("user-1/ok", "user-1", 1),
		})).To(Succeed())
		reader["user-1/ok"] = &manager.GetResult{Payload: []byte("x"), Version: 1, Found: true}

		out, err := searcher.Search(ctx, search.SearchInput{Query: "q", TopK: 10})
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Count).To(Equal(1))
		Expect(out.Results[0].Key).To(Equal("ok"))
	})

	It("filters by namespace", func() {
		Expect(vectorDriver.Add(ctx, []vector.Document{
			doc("a/k", "a", 1),
			doc("b/k", "b", 1),
		})).To(Succeed())
		reader["a/k"] = &manager.GetResult{Found: true, Version: 1}
		reader["b/k"] = &manager.GetResult{Found: true, Version: 1}

		out, err := searcher.Search(ctx, search.SearchInput{Query: "q", Namespace: "b"})
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Results).To(HaveLen(1))
		Expect(out.Results[0].Namespace).To(Equal("b"))
	})
})

var _ = Describe("Preview", func() {
	It("truncates long payloads on rune boundaries", func() {
		long := strings.Repeat("é", 300)
		p := search.Preview([]byte(long))
		Expect(p).To(HaveSuffix("…"))
		Expect([]rune(p)).To(HaveLen(241))
	})
})
