package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/interval"
	"github.com/san-kum/cosim/internal/protocol"
	"github.com/san-kum/cosim/internal/storage"
)

func outcomeCtx(flag protocol.Flag, start, end float64, n int) interval.HookCtx {
	return interval.HookCtx{
		Pos: interval.HookPosIntervalOutcome,
		Item: interval.Outcome{
			Flag:       flag,
			Iterations: 3,
			Residual:   1e-11,
			Value:      dynamo.Value{{end}},
		},
		Detail: interval.State{Start: start, Time: end, Width: end - start, Intervals: n},
	}
}

var _ = Describe("Monitor", func() {
	var (
		m      *Monitor
		router http.Handler
	)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	BeforeEach(func() {
		m = NewMonitor("decay")
		m.TrackProgress(0, 2)
		router = m.Router()

		m.Func(interval.HookCtx{Pos: interval.HookPosMsgRecv, Item: protocol.Message{Flag: protocol.FlagNone}})
		m.Func(interval.HookCtx{Pos: interval.HookPosIntervalBegin, Item: interval.State{Start: 0, Time: 0.5, Width: 0.5, Intervals: 1}})
		m.Func(outcomeCtx(protocol.FlagConverged, 0, 0.5, 1))
		m.Func(interval.HookCtx{Pos: interval.HookPosMsgSend, Item: protocol.Message{Flag: protocol.FlagConverged}})
		m.Func(outcomeCtx(protocol.FlagConverged, 0.5, 1, 2))
	})

	It("should report the status", func() {
		rec := get("/api/status")
		Expect(rec.Code).To(Equal(http.StatusOK))

		var s Status
		Expect(json.Unmarshal(rec.Body.Bytes(), &s)).To(Succeed())
		Expect(s.Problem).To(Equal("decay"))
		Expect(s.Flag).To(Equal(protocol.FlagConverged))
		Expect(s.Intervals).To(Equal(2))
		Expect(s.Turns).To(Equal(2))
		Expect(s.Received).To(Equal(1))
		Expect(s.Sent).To(Equal(1))
		Expect(s.Time).To(Equal(1.0))
		Expect(s.Failed).To(BeFalse())
	})

	It("should list completed intervals", func() {
		var records []storage.Record
		Expect(json.Unmarshal(get("/api/intervals").Body.Bytes(), &records)).To(Succeed())
		Expect(records).To(HaveLen(2))

		Expect(json.Unmarshal(get("/api/intervals?since=1").Body.Bytes(), &records)).To(Succeed())
		Expect(records).To(HaveLen(1))
		Expect(records[0].Interval).To(Equal(2))

		Expect(get("/api/intervals?since=-1").Code).To(Equal(http.StatusBadRequest))
	})

	It("should serve a single interval", func() {
		var rec storage.Record
		Expect(json.Unmarshal(get("/api/intervals/1").Body.Bytes(), &rec)).To(Succeed())
		Expect(rec.Time).To(Equal(0.5))

		Expect(get("/api/intervals/9").Code).To(Equal(http.StatusNotFound))
	})

	It("should serve the current value", func() {
		var body struct{ Value dynamo.Value }
		Expect(json.Unmarshal(get("/api/value").Body.Bytes(), &body)).To(Succeed())
		Expect(body.Value).To(Equal(dynamo.Value{{1}}))
	})

	It("should track progress", func() {
		var bars []Progress
		Expect(json.Unmarshal(get("/api/progress").Body.Bytes(), &bars)).To(Succeed())
		Expect(bars).To(HaveLen(1))
		Expect(bars[0].Finished).To(Equal(uint64(2)))
		Expect(bars[0].Fraction).To(BeNumerically("~", 0.5))
	})

	It("should flag a sent failure", func() {
		m.Func(interval.HookCtx{Pos: interval.HookPosMsgSend, Item: protocol.Message{Flag: protocol.FlagFailed}})
		Expect(m.Status().Failed).To(BeTrue())
		Expect(m.Status().Flag).To(Equal(protocol.FlagFailed))
	})

	It("should serve over a real listener", func() {
		addr, err := m.StartServer("127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		defer m.Shutdown(context.Background())

		resp, err := http.Get(fmt.Sprintf("http://%s/api/status", addr))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
	})
})

var _ = Describe("ProgressBar", func() {
	It("should clamp the fraction", func() {
		b := NewProgressBar("x", 1, 3)
		Expect(b.Fraction()).To(Equal(0.0))
		b.Advance(2)
		Expect(b.Fraction()).To(Equal(0.5))
		b.Advance(10)
		Expect(b.Fraction()).To(Equal(1.0))
		b.Advance(5)
		Expect(b.Snapshot().Current).To(Equal(10.0))

		Expect(NewProgressBar("empty", 1, 1).Fraction()).To(Equal(1.0))
	})
})
