package compress_test

import (
	"crypto/rand"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/compress"
)

// conversation builds a highly repetitive transcript, the common shape of
// agent memory payloads.
func conversation(turns int) []byte {
	var b strings.Builder
	for i := 0; i < turns; i++ {
		b.WriteString("user: what did we decide about the deployment window?\n")
		b.WriteString("assistant: we agreed to deploy on tuesday after the standup.\n")
	}
	return []byte(b.String())
}

var _ = Describe("Codec", func() {
	for _, algo := range []compress.Algorithm{compress.Zstd, compress.LZ4} {
		Context("with "+algo.String(), func() {
			var codec *compress.Codec

			BeforeEach(func() {
				var err error
				codec, err = compress.NewCodec(compress.Config{Algorithm: algo})
				Expect(err).NotTo(HaveOccurred())
				DeferCleanup(codec.Close)
			})

			It("leaves payloads under the threshold uncompressed", func() {
				payload := []byte("hello")
				encoded, err := codec.Encode(payload)
				Expect(err).NotTo(HaveOccurred())
				Expect(encoded[0]).To(Equal(byte(compress.None)))
				Expect(encoded[1:]).To(Equal(payload))
			})

			It("compresses large repetitive payloads losslessly", func() {
				payload := conversation(200)
				encoded, err := codec.Encode(payload)
				Expect(err).NotTo(HaveOccurred())
				Expect(encoded[0]).To(Equal(byte(algo)))
				Expect(compress.Ratio(payload, encoded)).To(BeNumerically(">", 5))

				decoded, err := codec.Decode(encoded)
				Expect(err).NotTo(HaveOccurred())
				Expect(decoded).To(Equal(payload))
			})

			It("is deterministic", func() {
				payload := conversation(100)
				a, err := codec.Encode(payload)
				Expect(err).NotTo(HaveOccurred())
				b, err := codec.Encode(payload)
				Expect(err).NotTo(HaveOccurred())
				Expect(a).To(Equal(b))
			})

			It("falls back to raw frames for incompressible data", func() {
				payload := make([]byte, 8192)
				_, err := rand.Read(payload)
				Expect(err).NotTo(HaveOccurred())

				encoded, err := codec.Encode(payload)
				Expect(err).NotTo(HaveOccurred())
				Expect(encoded[0]).To(Equal(byte(compress.None)))

				decoded, err := codec.Decode(encoded)
				Expect(err).NotTo(HaveOccurred())
				Expect(decoded).To(Equal(payload))
			})
		})
	}

	It("decodes frames written with another algorithm", func() {
		zc, err := compress.NewCodec(compress.Config{Algorithm: compress.Zstd})
		Expect(err).NotTo(HaveOccurred())
		defer zc.Close()
		lc, err := compress.NewCodec(compress.Config{Algorithm: compress.LZ4})
		Expect(err).NotTo(HaveOccurred())
		defer lc.Close()

		payload := conversation(50)
		encoded, err := zc.Encode(payload)
		Expect(err).NotTo(HaveOccurred())

		decoded, err := lc.Decode(encoded)
		Expect(err).NotTo(HaveOccurred())
		Expect(decoded).To(Equal(payload))
	})

	It("rejects malformed frames", func() {
		codec, err := compress.NewCodec(compress.Config{})
		Expect(err).NotTo(HaveOccurred())
		defer codec.Close()

		_, err = codec.Decode(nil)
		Expect(err).To(MatchError(compress.ErrMalformed))
		_, err = codec.Decode([]byte{9, 1, 2})
		Expect(err).To(MatchError(compress.ErrMalformed))
		_, err = codec.Decode([]byte{byte(compress.Zstd), 1, 2, 3})
		Expect(err).To(MatchError(compress.ErrMalformed))
	})

	It("rejects lz4 frames claiming an impossible length", func() {
		codec, err := compress.NewCodec(compress.Config{})
		Expect(err).NotTo(HaveOccurred())
		defer codec.Close()

		huge := []byte{byte(compress.LZ4), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x7f, 0}
		Expect(func() {
			_, err = codec.Decode(huge)
		}).NotTo(Panic())
		Expect(err).To(MatchError(compress.ErrMalformed))

		// 4 KiB claimed from a two byte block.
		_, err = codec.Decode([]byte{byte(compress.LZ4), 0x80, 0x20, 0x10, 0x61})
		Expect(err).To(MatchError(compress.ErrMalformed))
	})

	It("caps the decoded size", func() {
		lc, err := compress.NewCodec(compress.Config{Algorithm: compress.LZ4})
		Expect(err).NotTo(HaveOccurred())
		defer lc.Close()
		small, err := compress.NewCodec(compress.Config{MaxDecodedBytes: 1024})
		Expect(err).NotTo(HaveOccurred())
		defer small.Close()

		encoded, err := lc.Encode(conversation(200))
		Expect(err).NotTo(HaveOccurred())
		Expect(encoded[0]).To(Equal(byte(compress.LZ4)))

		_, err = small.Decode(encoded)
		Expect(err).To(MatchError(compress.ErrMalformed))
	})

	It("parses configured algorithm names", func() {
		a, err := compress.ParseAlgorithm("lz4")
		Expect(err).NotTo(HaveOccurred())
		Expect(a).To(Equal(compress.LZ4))

		_, err = compress.ParseAlgorithm("brotli")
		Expect(err).To(HaveOccurred())
	})
})
