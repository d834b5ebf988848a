package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/nbmsg/comm"
)

var _ = Describe("Monitor", func() {
	var (
		m     *Monitor
		world *comm.World
	)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		m.router().ServeHTTP(rec, req)

		return rec
	}

	BeforeEach(func() {
		world = comm.NewWorld(2, comm.WithName("W"))
		Expect(world.Init()).To(Succeed())

		m = NewMonitor()
		m.RegisterWorld(world)
	})

	It("should fall back to a random port for reserved ports", func() {
		Expect(m.WithPortNumber(80).portNumber).To(Equal(0))
		Expect(m.WithPortNumber(32776).portNumber).To(Equal(32776))
	})

	It("should describe the world", func() {
		rec := get("/api/world")

		Expect(rec.Code).To(Equal(http.StatusOK))

		rsp := worldRsp{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp.Name).To(Equal("W"))
		Expect(rsp.Size).To(Equal(2))
		Expect(rsp.Endpoints).To(Equal([]string{"W.Rank[0]", "W.Rank[1]"}))
	})

	It("should list endpoints", func() {
		rec := get("/api/list_endpoints")

		Expect(rec.Body.String()).To(Equal(`["W.Rank[0]","W.Rank[1]"]`))
	})

	It("should list pending requests oldest first", func() {
		_, err := world.Endpoint(1).Irecv(make([]byte, 4), comm.Int32, 0, 5678)
		Expect(err).NotTo(HaveOccurred())
		time.Sleep(time.Millisecond)
		_, err = world.Endpoint(0).Isend(make([]byte, 8), comm.Byte, 1, 1234)
		Expect(err).NotTo(HaveOccurred())

		rec := get("/api/pending")

		Expect(rec.Code).To(Equal(http.StatusOK))

		var reqs []comm.RequestInfo
		Expect(json.Unmarshal(rec.Body.Bytes(), &reqs)).To(Succeed())
		Expect(reqs).To(HaveLen(2))
		Expect(reqs[0].Kind).To(Equal("recv"))
		Expect(reqs[0].Tag).To(Equal(comm.Tag(5678)))
		Expect(reqs[0].State).To(Equal(comm.StatePending))
		Expect(reqs[1].Kind).To(Equal("send"))
	})

	It("should sort pending requests by size and page them", func() {
		_, _ = world.Endpoint(1).Irecv(make([]byte, 4), comm.Byte, 0, 5678)
		_, _ = world.Endpoint(0).Isend(make([]byte, 8), comm.Byte, 1, 1234)

		rec := get("/api/pending?sort=bytes&limit=1")

		var reqs []comm.RequestInfo
		Expect(json.Unmarshal(rec.Body.Bytes(), &reqs)).To(Succeed())
		Expect(reqs).To(HaveLen(1))
		Expect(reqs[0].Bytes).To(Equal(8))

		rec = get("/api/pending?sort=bytes&offset=1")

		Expect(json.Unmarshal(rec.Body.Bytes(), &reqs)).To(Succeed())
		Expect(reqs).To(HaveLen(1))
		Expect(reqs[0].Bytes).To(Equal(4))
	})

	It("should page with a limit near the integer range", func() {
		_, _ = world.Endpoint(1).Irecv(make([]byte, 4), comm.Byte, 0, 5678)
		_, _ = world.Endpoint(0).Isend(make([]byte, 8), comm.Byte, 1, 1234)

		rec := get("/api/pending?sort=bytes&limit=9223372036854775807&offset=1")
		Expect(rec.Code).To(Equal(http.StatusOK))

		var reqs []comm.RequestInfo
		Expect(json.Unmarshal(rec.Body.Bytes(), &reqs)).To(Succeed())
		Expect(reqs).To(HaveLen(1))
		Expect(reqs[0].Bytes).To(Equal(4))
	})

	It("should return an empty list when nothing is pending", func() {
		rec := get("/api/pending")

		Expect(rec.Body.String()).To(Equal("[]"))
	})

	It("should reject bad paging parameters", func() {
		Expect(get("/api/pending?sort=name").Code).
			To(Equal(http.StatusBadRequest))
		Expect(get("/api/pending?limit=x").Code).
			To(Equal(http.StatusBadRequest))
		Expect(get("/api/pending?offset=-1").Code).
			To(Equal(http.StatusBadRequest))
	})

	It("should serialize an endpoint", func() {
		rec := get("/api/endpoint/" + url.PathEscape("W.Rank[0]"))

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.Len()).To(BeNumerically(">", 0))
	})

	It("should report unknown endpoints", func() {
		rec := get("/api/endpoint/nobody")

		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})

	It("should reject malformed field requests", func() {
		rec := get("/api/field/" + url.PathEscape("{"))

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("should report process resources", func() {
		rec := get("/api/resource")

		rsp := resourceRsp{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp.MemorySize).To(BeNumerically(">", 0))
	})

	It("should collect a CPU profile", func() {
		m.profileDuration = 10 * time.Millisecond

		rec := get("/api/profile")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("SampleType"))
	})

	It("should serve the page", func() {
		rec := get("/")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(HavePrefix("<!DOCTYPE html>"))
	})

	It("should serve until stopped", func() {
		u := m.StartServer()

		rsp, err := http.Get(u + "/api/world")
		Expect(err).NotTo(HaveOccurred())
		Expect(rsp.StatusCode).To(Equal(http.StatusOK))
		Expect(rsp.Body.Close()).To(Succeed())

		Expect(m.StopServer()).To(Succeed())
	})
})

var _ = Describe("sortAndSelectRequests", func() {
	It("should clamp the offset", func() {
		reqs := []comm.RequestInfo{{ID: "1"}, {ID: "2"}}

		Expect(sortAndSelectRequests(reqs, "age", 0, 5)).To(BeEmpty())
		Expect(sortAndSelectRequests(reqs, "age", 5, 1)).To(HaveLen(1))
	})

	It("should not overflow with a huge limit", func() {
		reqs := []comm.RequestInfo{{ID: "1"}, {ID: "2"}}
		maxInt := int(^uint(0) >> 1)

		selected := sortAndSelectRequests(reqs, "age", maxInt, 1)
		Expect(selected).To(HaveLen(1))
		Expect(selected[0].ID).To(Equal("2"))
	})
})
