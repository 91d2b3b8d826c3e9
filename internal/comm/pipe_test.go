package comm

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/protocol"
)

var _ = Describe("Pipe", func() {
	var (
		ctx  context.Context
		a, b *Endpoint
	)

	BeforeEach(func() {
		ctx = context.Background()
		a, b = NewPipe(4)
	})

	It("should deliver messages in order with sequence numbers", func() {
		Expect(a.Send(ctx, protocol.Message{Flag: protocol.FlagNone, Time: 0})).To(Succeed())
		Expect(a.Send(ctx, protocol.Message{Flag: protocol.FlagConverged, Time: 1})).To(Succeed())

		m1, err := b.Receive(ctx)
		Expect(err).NotTo(HaveOccurred())
		m2, err := b.Receive(ctx)
		Expect(err).NotTo(HaveOccurred())

		Expect(m1.Seq).To(Equal(uint64(1)))
		Expect(m2.Seq).To(Equal(uint64(2)))
		Expect(m2.Flag).To(Equal(protocol.FlagConverged))
		Expect(m1.ID).NotTo(BeEmpty())
		Expect(m1.ID).NotTo(Equal(m2.ID))
	})

	It("should not share the payload with the sender", func() {
		v := dynamo.Value{{1}}
		Expect(a.Send(ctx, protocol.Message{Result: &protocol.Result{Value: v}})).To(Succeed())
		v[0][0] = 7

		m, err := b.Receive(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Value()[0][0]).To(Equal(1.0))
	})

	It("should drain buffered messages before reporting close", func() {
		Expect(a.Send(ctx, protocol.Message{Time: 3})).To(Succeed())
		Expect(a.Close()).To(Succeed())

		m, err := b.Receive(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Time).To(Equal(3.0))

		_, err = b.Receive(ctx)
		Expect(err).To(MatchError(ErrClosed))
	})

	It("should refuse sends on a closed channel", func() {
		Expect(a.Close()).To(Succeed())
		Expect(a.Close()).To(Succeed())

		Expect(a.Send(ctx, protocol.Message{})).To(MatchError(ErrClosed))
		Expect(b.Send(ctx, protocol.Message{})).To(MatchError(ErrClosed))
	})

	It("should honor context cancellation while waiting", func() {
		cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()

		_, err := b.Receive(cctx)
		Expect(err).To(MatchError(context.DeadlineExceeded))
	})
})
