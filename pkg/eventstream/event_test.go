package eventstream_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/eventstream"
)

var _ = Describe("Event", func() {
	It("marshals MemoryEvent with expected top-level keys", func() {
		event := eventstream.NewEvent(eventstream.EventTypeCommitted,
			eventstream.EventSource{Instance: "test"},
			eventstream.ItemMeta{Key: "ns/a", Namespace: "ns", Version: 3, Checksum: "0011223344556677"},
			eventstream.SyncMeta{Attempts: 1, RawBytes: 4096, StoredBytes: 512},
		)

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKey("schema_version"))
		Expect(got).To(HaveKey("event_type"))
		Expect(got).To(HaveKey("event_id"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKey("source"))
		Expect(got).To(HaveKey("item"))
		Expect(got).To(HaveKey("sync"))
		Expect(got["sync"]).NotTo(HaveKey("error"))
	})

	It("assigns unique event IDs", func() {
		a := eventstream.NewEvent(eventstream.EventTypeCommitted, eventstream.EventSource{}, eventstream.ItemMeta{}, eventstream.SyncMeta{})
		b := eventstream.NewEvent(eventstream.EventTypeCommitted, eventstream.EventSource{}, eventstream.ItemMeta{}, eventstream.SyncMeta{})
		Expect(a.EventID).NotTo(Equal(b.EventID))
		Expect(a.SchemaVersion).To(Equal(eventstream.SchemaVersionV1))
	})

	It("defines stable event constants", func() {
		Expect(eventstream.EventTypeCommitted).To(Equal("strata.memory.committed"))
		Expect(eventstream.EventTypeSuperseded).To(Equal("strata.memory.superseded"))
		Expect(eventstream.EventTypeDeadLettered).To(Equal("strata.memory.deadlettered"))
	})

	It("provides ErrNilEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilEvent).To(MatchError("nil memory event"))
	})
})
