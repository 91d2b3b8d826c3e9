package driver

import (
	"context"
	"log"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/cosim/internal/comm"
	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/integrators"
	"github.com/san-kum/cosim/internal/interval"
	"github.com/san-kum/cosim/internal/physics"
	"github.com/san-kum/cosim/internal/protocol"
)

// fakeController answers each message the driver sends through reply.
type fakeController struct {
	received []protocol.Message
	replies  []protocol.Message
	reply    func(m protocol.Message) (protocol.Message, bool)
	closed   bool
}

func (f *fakeController) Send(_ context.Context, m protocol.Message) error {
	f.received = append(f.received, m)
	if r, ok := f.reply(m); ok {
		f.replies = append(f.replies, r)
	}
	return nil
}

func (f *fakeController) Receive(context.Context) (protocol.Message, error) {
	if len(f.replies) == 0 {
		return protocol.Message{}, comm.ErrClosed
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r, nil
}

func (f *fakeController) Close() error {
	f.closed = true
	return nil
}

func flags(ms []protocol.Message) []protocol.Flag {
	out := make([]protocol.Flag, len(ms))
	for i, m := range ms {
		out[i] = m.Flag
	}
	return out
}

var _ = Describe("Policy", func() {
	p := Policy{Start: 0, End: 10, Width: 1, MinWidth: 0.25, MaxWidth: 2,
		SlowIterations: 4, FastIterations: 2, Shrink: 0.5, Grow: 1.5}

	It("should shrink slow intervals and grow fast ones", func() {
		Expect(p.next(1, 0, 4)).To(Equal(0.5))
		Expect(p.next(1, 0, 2)).To(Equal(1.5))
		Expect(p.next(1, 0, 3)).To(Equal(1.0))
	})

	It("should clamp to the width bounds and the end", func() {
		Expect(p.next(0.3, 0, 9)).To(Equal(0.25))
		Expect(p.next(1.5, 0, 1)).To(Equal(2.0))
		Expect(p.next(1, 9.5, 3)).To(Equal(0.5))
	})

	It("should validate", func() {
		Expect(p.Validate()).To(Succeed())

		bad := p
		bad.End = -1
		Expect(bad.Validate()).To(MatchError(ErrInvalidPolicy))

		bad = p
		bad.Shrink = 1.2
		Expect(bad.Validate()).To(MatchError(ErrInvalidPolicy))

		bad = p
		bad.Grow = 0.9
		Expect(bad.Validate()).To(MatchError(ErrInvalidPolicy))

		bad = p
		bad.MinWidth = 5
		Expect(bad.Validate()).To(MatchError(ErrInvalidPolicy))
	})
})

var _ = Describe("Driver", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("should hand each converged value to the next interval", func() {
		width := 1.0
		fake := &fakeController{}
		fake.reply = func(m protocol.Message) (protocol.Message, bool) {
			if m.Flag == protocol.FlagTimeAdjusted {
				width = m.Width
				return protocol.Message{}, false
			}
			v := 1.0
			if m.Result != nil {
				v = m.Result.Value[0][0] + 1
			}
			return protocol.Message{
				Flag:   protocol.FlagConverged,
				Time:   m.Time + width,
				Result: &protocol.Result{Value: dynamo.Value{{v}}, Iterations: 3},
			}, true
		}

		sum, err := New(fake, Policy{Start: 0, End: 3, Width: 1}).Run(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(fake.closed).To(BeTrue())

		Expect(flags(fake.received)).To(Equal([]protocol.Flag{
			protocol.FlagTimeAdjusted, protocol.FlagNone, protocol.FlagNone, protocol.FlagNone,
		}))
		Expect(fake.received[2].Time).To(Equal(1.0))
		Expect(fake.received[3].Result.Value).To(Equal(dynamo.Value{{2}}))

		Expect(sum.Intervals).To(Equal(3))
		Expect(sum.Adjustments).To(Equal(1))
		Expect(sum.Time).To(Equal(3.0))
		Expect(sum.Value).To(Equal(dynamo.Value{{3}}))
	})

	It("should continue iterating intervals and adjust slow ones", func() {
		turn := 0
		fake := &fakeController{}
		fake.reply = func(m protocol.Message) (protocol.Message, bool) {
			if m.Flag == protocol.FlagTimeAdjusted {
				return protocol.Message{}, false
			}
			turn++
			switch turn {
			case 1:
				return protocol.Message{Flag: protocol.FlagIterating, Time: 1}, true
			case 2:
				return protocol.Message{Flag: protocol.FlagConverged, Time: 1,
					Result: &protocol.Result{Value: dynamo.Value{{0}}, Iterations: 8}}, true
			default:
				return protocol.Message{Flag: protocol.FlagFinished, Time: 1.5,
					Result: &protocol.Result{Value: dynamo.Value{{0}}}}, true
			}
		}

		policy := Policy{Start: 0, End: 4, Width: 1, SlowIterations: 5, Shrink: 0.5}
		sum, err := New(fake, policy, WithLogger(log.New(GinkgoWriter, "", 0))).Run(ctx)
		Expect(err).NotTo(HaveOccurred())

		Expect(flags(fake.received)).To(Equal([]protocol.Flag{
			protocol.FlagTimeAdjusted, protocol.FlagNone, protocol.FlagNone, protocol.FlagTimeAdjusted, protocol.FlagNone,
		}))
		Expect(fake.received[3].Width).To(Equal(0.5))
		Expect(sum.Continuations).To(Equal(1))
		Expect(sum.Adjustments).To(Equal(2))
		Expect(sum.Final).To(Equal(protocol.FlagFinished))
		Expect(fake.closed).To(BeTrue())
	})

	It("should stop on a controller failure without closing", func() {
		fake := &fakeController{}
		fake.reply = func(m protocol.Message) (protocol.Message, bool) {
			return protocol.Message{Flag: protocol.FlagFailed, Time: 0.5}, true
		}

		sum, err := New(fake, Policy{Start: 0, End: 1, Width: 1}).Run(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(sum.Final).To(Equal(protocol.FlagFailed))
		Expect(sum.Time).To(Equal(0.5))
		Expect(fake.closed).To(BeFalse())
	})

	It("should drive a controller over a pipe to the end time", func() {
		ctrlSide, driverSide := comm.NewPipe(1)
		problem := physics.NewDecay(2)

		type result struct {
			report *interval.RunReport
			err    error
		}
		done := make(chan result, 1)
		go func() {
			r, err := interval.NewController().Run(ctx, interval.Core{
				Problem:    problem,
				Integrator: integrators.NewRK4(),
				Comm:       ctrlSide,
				Executor:   interval.Options{Steps: 10, EndTime: 2},
			}, 0.5)
			done <- result{r, err}
		}()

		policy := Policy{Start: 0, End: 2, Width: 0.3, MaxWidth: 1, FastIterations: 2, Grow: 2}
		sum, err := New(driverSide, policy).Run(ctx)
		Expect(err).NotTo(HaveOccurred())

		var res result
		Eventually(done).Should(Receive(&res))
		Expect(res.err).NotTo(HaveOccurred())
		Expect(res.report.Closed).To(BeTrue())

		Expect(sum.Final).To(Equal(protocol.FlagFinished))
		Expect(sum.Time).To(BeNumerically("~", 2, 1e-12))
		Expect(sum.Adjustments).To(BeNumerically(">=", 2))

		exact := problem.Exact(2)
		Expect(sum.Value.MaxDiff(exact)).To(BeNumerically("<", 1e-4))
		Expect(math.IsNaN(sum.Value[0][0])).To(BeFalse())
	})
})
