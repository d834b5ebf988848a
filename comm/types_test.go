package comm_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/nbmsg/comm"
)

var _ = Describe("Status", func() {
	It("should encode the state by name", func() {
		b, err := json.Marshal(comm.Status{
			State:  comm.StateComplete,
			Count:  1,
			Source: 0,
			Tag:    1234,
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(string(b)).To(MatchJSON(
			`{"state":"complete","count":1,"source":0,"tag":1234}`))
	})

	It("should decode the state by name", func() {
		status := comm.Status{}

		err := json.Unmarshal([]byte(`{"state":"failed"}`), &status)

		Expect(err).NotTo(HaveOccurred())
		Expect(status.State).To(Equal(comm.StateFailed))
	})

	It("should reject unknown states", func() {
		var s comm.State

		Expect(s.UnmarshalText([]byte("lost"))).NotTo(Succeed())
	})

	It("should name kinds and datatypes", func() {
		Expect(comm.KindSend.String()).To(Equal("send"))
		Expect(comm.KindRecv.String()).To(Equal("recv"))
		Expect(comm.Int32.String()).To(Equal("int32"))
	})
})
