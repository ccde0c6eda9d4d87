package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/embeddings"
	"github.com/papercomputeco/strata/pkg/embeddings/ollama"
)

var _ = Describe("Embedder", func() {
	var (
		server    *httptest.Server
		received  map[string]string
		userAgent string
		status    int
	)

	BeforeEach(func() {
		received = nil
		status = http.StatusOK
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(Equal("/api/embed"))
			userAgent = r.Header.Get("User-Agent")
			Expect(json.NewDecoder(r.Body).Decode(&received)).To(Succeed())

			if status != http.StatusOK {
				http.Error(w, "model not loaded", status)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"embeddings":[[0.25,0.5,0.75]]}`))
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	It("returns the first embedding from the response", func() {
		e, err := ollama.NewEmbedder(ollama.EmbedderConfig{BaseURL: server.URL})
		Expect(err).NotTo(HaveOccurred())

		emb, err := e.Embed(context.Background(), "hello")
		Expect(err).NotTo(HaveOccurred())
		Expect(emb).To(Equal([]float32{0.25, 0.5, 0.75}))
		Expect(received["model"]).To(Equal(ollama.DefaultEmbeddingModel))
		Expect(received["input"]).To(Equal("hello"))
		Expect(userAgent).To(Equal("strata/dev"))
	})

	It("truncates long input", func() {
		e, err := ollama.NewEmbedder(ollama.EmbedderConfig{BaseURL: server.URL, MaxInputBytes: 8})
		Expect(err).NotTo(HaveOccurred())

		_, err = e.Embed(context.Background(), strings.Repeat("a", 100))
		Expect(err).NotTo(HaveOccurred())
		Expect(received["input"]).To(HaveLen(8))
	})

	It("does not split multi-byte runes when truncating", func() {
		e, err := ollama.NewEmbedder(ollama.EmbedderConfig{BaseURL: server.URL, MaxInputBytes: 4})
		Expect(err).NotTo(HaveOccurred())

		_, err = e.Embed(context.Background(), "ééé")
		Expect(err).NotTo(HaveOccurred())
		Expect(received["input"]).To(Equal("éé"))
	})

	It("wraps non-200 responses in ErrEmbedding", func() {
		status = http.StatusInternalServerError
		e, err := ollama.NewEmbedder(ollama.EmbedderConfig{BaseURL: server.URL})
		Expect(err).NotTo(HaveOccurred())

		_, err = e.Embed(context.Background(), "hello")
		Expect(err).To(MatchError(embeddings.ErrEmbedding))
		Expect(err.Error()).To(ContainSubstring("500"))
	})
})
