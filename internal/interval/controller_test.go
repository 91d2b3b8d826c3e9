package interval

import (
	"bytes"
	"context"
	"errors"
	"log"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/san-kum/cosim/internal/comm"
	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/integrators"
	"github.com/san-kum/cosim/internal/physics"
	"github.com/san-kum/cosim/internal/protocol"
)

// scriptedComm replays inbound messages and records what is sent. It
// reports ErrClosed once the script is exhausted.
type scriptedComm struct {
	inbound []protocol.Message
	sent    []protocol.Message
	recv    int
}

func (s *scriptedComm) Receive(context.Context) (protocol.Message, error) {
	if s.recv >= len(s.inbound) {
		return protocol.Message{}, comm.ErrClosed
	}
	m := s.inbound[s.recv]
	s.recv++
	return m, nil
}

func (s *scriptedComm) Send(_ context.Context, m protocol.Message) error {
	s.sent = append(s.sent, m.Clone())
	return nil
}

func (s *scriptedComm) Close() error { return nil }

func plain(t float64) protocol.Message {
	return protocol.Message{Flag: protocol.FlagNone, Time: t}
}

type hookCounter map[string]int

func (h hookCounter) Func(ctx HookCtx) { h[ctx.Pos.Name]++ }

var _ = Describe("Controller", func() {
	var (
		ctx      context.Context
		mockCtrl *gomock.Controller
		mockComm *MockCommunicator
		problem  *physics.Decay
		ctrl     *Controller
		core     Core
		sent     []protocol.Message
	)

	record := func(_ context.Context, m protocol.Message) {
		sent = append(sent, m)
	}

	BeforeEach(func() {
		ctx = context.Background()
		mockCtrl = gomock.NewController(GinkgoT())
		mockComm = NewMockCommunicator(mockCtrl)
		problem = physics.NewDecay(1)
		ctrl = NewController(WithLogger(log.New(GinkgoWriter, "", 0)))
		sent = nil
		core = Core{
			Problem:    problem,
			Integrator: integrators.NewRK4(),
			Comm:       mockComm,
		}
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should answer a plain message with a converged interval", func() {
		gomock.InOrder(
			mockComm.EXPECT().Receive(gomock.Any()).Return(plain(0), nil),
			mockComm.EXPECT().Send(gomock.Any(), gomock.Any()).Do(record).Return(nil),
			mockComm.EXPECT().Receive(gomock.Any()).Return(protocol.Message{}, comm.ErrClosed),
		)

		report, err := ctrl.Run(ctx, core, 1)
		Expect(err).NotTo(HaveOccurred())

		expected, err := integrators.NewRK4().Advance(problem, dynamo.Node{Width: 1, State: dynamo.State{1}})
		Expect(err).NotTo(HaveOccurred())

		Expect(sent).To(HaveLen(1))
		Expect(sent[0].Flag).To(Equal(protocol.FlagConverged))
		Expect(sent[0].Time).To(Equal(1.0))
		Expect(sent[0].Result.Value).To(Equal(dynamo.Value{expected}))

		Expect(report.Closed).To(BeTrue())
		Expect(report.Final).To(Equal(protocol.FlagConverged))
		Expect(report.Intervals).To(Equal(1))
		Expect(report.Received).To(Equal(1))
		Expect(report.Sent).To(Equal(1))
	})

	It("should re-receive after a width adjustment without sending", func() {
		gomock.InOrder(
			mockComm.EXPECT().Receive(gomock.Any()).
				Return(protocol.Message{Flag: protocol.FlagTimeAdjusted, Time: 0, Width: 0.5}, nil),
			mockComm.EXPECT().Receive(gomock.Any()).Return(plain(0), nil),
			mockComm.EXPECT().Send(gomock.Any(), gomock.Any()).Do(record).Return(nil),
			mockComm.EXPECT().Receive(gomock.Any()).Return(protocol.Message{}, comm.ErrClosed),
		)

		report, err := ctrl.Run(ctx, core, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(sent).To(HaveLen(1))
		Expect(sent[0].Time).To(Equal(0.5))
		Expect(report.Turns).To(Equal(1))
	})

	It("should echo an inbound failure and stop", func() {
		gomock.InOrder(
			mockComm.EXPECT().Receive(gomock.Any()).Return(protocol.Message{Flag: protocol.FlagFailed, Time: 5}, nil),
			mockComm.EXPECT().Send(gomock.Any(), gomock.Any()).Do(record).Return(nil),
		)

		report, err := ctrl.Run(ctx, core, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(sent).To(HaveLen(1))
		Expect(sent[0].Flag).To(Equal(protocol.FlagFailed))
		Expect(sent[0].Time).To(Equal(5.0))
		Expect(sent[0].Result.Value).To(Equal(problem.Initial()))

		Expect(report.Final).To(Equal(protocol.FlagFailed))
		Expect(report.Turns).To(BeZero())
		Expect(report.Closed).To(BeFalse())
	})

	It("should stop after sending a locally detected failure", func() {
		core.Integrator = &failingIntegrator{node: 0, after: 0}
		gomock.InOrder(
			mockComm.EXPECT().Receive(gomock.Any()).Return(plain(0), nil),
			mockComm.EXPECT().Send(gomock.Any(), gomock.Any()).Do(record).Return(nil),
		)

		report, err := ctrl.Run(ctx, core, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(sent[0].Flag).To(Equal(protocol.FlagFailed))
		Expect(sent[0].Result.Value.IsValid()).To(BeTrue())
		Expect(errors.Is(report.Cause, dynamo.ErrInvalidState)).To(BeTrue())
	})

	It("should fail on a hand-off value of the wrong shape", func() {
		core.Problem = physics.NewDecay(2)
		malformed := protocol.Message{
			Flag:   protocol.FlagNone,
			Time:   0,
			Result: &protocol.Result{Value: dynamo.Value{{}, {1}}},
		}
		gomock.InOrder(
			mockComm.EXPECT().Receive(gomock.Any()).Return(malformed, nil),
			mockComm.EXPECT().Send(gomock.Any(), gomock.Any()).Do(record).Return(nil),
		)

		var (
			report *RunReport
			err    error
		)
		Expect(func() { report, err = ctrl.Run(ctx, core, 1) }).NotTo(Panic())
		Expect(err).NotTo(HaveOccurred())
		Expect(sent).To(HaveLen(1))
		Expect(sent[0].Flag).To(Equal(protocol.FlagFailed))
		Expect(report.Final).To(Equal(protocol.FlagFailed))
		Expect(errors.Is(report.Cause, dynamo.ErrDimensionMismatch)).To(BeTrue())
	})

	It("should hook sent messages as the communicator stamped them", func() {
		local, peer := comm.NewPipe(4)
		core.Comm = local

		var stamped []protocol.Message
		ctrl.AcceptHook(HookFunc(func(hc HookCtx) {
			if hc.Pos == HookPosMsgSend {
				stamped = append(stamped, hc.Item.(protocol.Message))
			}
		}))

		Expect(peer.Send(ctx, plain(0))).To(Succeed())
		done := make(chan error, 1)
		go func() {
			_, err := ctrl.Run(ctx, core, 1)
			done <- err
		}()

		reply, err := peer.Receive(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(peer.Close()).To(Succeed())
		Eventually(done).Should(Receive(BeNil()))

		Expect(stamped).To(HaveLen(1))
		Expect(stamped[0].ID).NotTo(BeEmpty())
		Expect(stamped[0].ID).To(Equal(reply.ID))
		Expect(stamped[0].Seq).To(Equal(uint64(1)))
	})

	It("should wrap transport errors", func() {
		mockComm.EXPECT().Receive(gomock.Any()).Return(protocol.Message{}, context.Canceled)

		_, err := ctrl.Run(ctx, core, 1)
		Expect(errors.Is(err, context.Canceled)).To(BeTrue())
	})

	It("should wrap send errors", func() {
		boom := errors.New("link down")
		gomock.InOrder(
			mockComm.EXPECT().Receive(gomock.Any()).Return(plain(0), nil),
			mockComm.EXPECT().Send(gomock.Any(), gomock.Any()).Return(boom),
		)

		report, err := ctrl.Run(ctx, core, 1)
		Expect(err).To(MatchError(boom))
		Expect(report.Sent).To(BeZero())
	})

	It("should reject an incomplete core and a bad width", func() {
		_, err := ctrl.Run(ctx, Core{Problem: problem}, 1)
		Expect(err).To(MatchError(ErrIncompleteCore))

		_, err = ctrl.Run(ctx, core, 0)
		Expect(err).To(MatchError(ErrInvalidWidth))
	})

	Context("with a scripted peer", func() {
		var peer *scriptedComm

		BeforeEach(func() {
			peer = &scriptedComm{}
			core.Comm = peer
		})

		It("should start a new interval after a converged one", func() {
			peer.inbound = []protocol.Message{plain(0), plain(1)}

			report, err := ctrl.Run(ctx, core, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(peer.sent).To(HaveLen(2))
			Expect(peer.sent[0].Flag).To(Equal(protocol.FlagConverged))
			Expect(peer.sent[1].Flag).To(Equal(protocol.FlagConverged))
			Expect(peer.sent[1].Time).To(Equal(2.0))
			Expect(report.Intervals).To(Equal(2))
		})

		It("should resume an unfinished interval instead of resetting it", func() {
			core.Executor = Options{SweepsPerTurn: 1}
			peer.inbound = []protocol.Message{plain(0), plain(7)}

			hooks := hookCounter{}
			ctrl.AcceptHook(hooks)

			report, err := ctrl.Run(ctx, core, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(peer.sent).To(HaveLen(2))

			Expect(peer.sent[0].Flag).To(Equal(protocol.FlagIterating))
			Expect(peer.sent[0].Result.Iterations).To(Equal(1))

			Expect(peer.sent[1].Flag).To(Equal(protocol.FlagConverged))
			Expect(peer.sent[1].Time).To(Equal(1.0))
			Expect(peer.sent[1].Result.Iterations).To(Equal(2))

			Expect(report.Intervals).To(Equal(1))
			Expect(hooks[HookPosIntervalBegin.Name]).To(Equal(1))
			Expect(hooks[HookPosIntervalResume.Name]).To(Equal(1))
			Expect(hooks[HookPosIntervalOutcome.Name]).To(Equal(2))
			Expect(hooks[HookPosMsgRecv.Name]).To(Equal(2))
			Expect(hooks[HookPosMsgSend.Name]).To(Equal(2))
		})

		It("should start from the value handed over by the peer", func() {
			peer.inbound = []protocol.Message{{
				Flag:   protocol.FlagNone,
				Time:   0,
				Result: &protocol.Result{Value: dynamo.Value{{2}}},
			}}

			_, err := ctrl.Run(ctx, core, 1)
			Expect(err).NotTo(HaveOccurred())

			expected, _ := integrators.NewRK4().Advance(problem, dynamo.Node{Width: 1, State: dynamo.State{2}})
			Expect(peer.sent[0].Result.Value).To(Equal(dynamo.Value{expected}))
		})

		It("should report finished at the end time and keep serving", func() {
			core.Executor = Options{EndTime: 2}
			peer.inbound = []protocol.Message{plain(0), plain(1), plain(2)}

			report, err := ctrl.Run(ctx, core, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(peer.sent[0].Flag).To(Equal(protocol.FlagConverged))
			Expect(peer.sent[1].Flag).To(Equal(protocol.FlagFinished))
			Expect(peer.sent[2].Time).To(Equal(3.0))
			Expect(report.Closed).To(BeTrue())
		})

		It("should send nothing after a failure", func() {
			peer.inbound = []protocol.Message{
				plain(0),
				{Flag: protocol.FlagFailed, Time: 1},
				plain(1),
				plain(2),
			}

			report, err := ctrl.Run(ctx, core, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(peer.sent).To(HaveLen(2))
			Expect(peer.sent[1].Flag).To(Equal(protocol.FlagFailed))
			Expect(peer.sent[1].Result.Value).To(Equal(peer.sent[0].Result.Value))
			Expect(peer.recv).To(Equal(2))
			Expect(report.Final).To(Equal(protocol.FlagFailed))
		})

		It("should produce identical replies for identical inputs", func() {
			script := []protocol.Message{
				plain(0),
				{Flag: protocol.FlagTimeAdjusted, Width: 0.25},
				plain(1),
				{Flag: protocol.FlagIterating, Time: 1.25},
				{Flag: protocol.FlagFailed, Time: 1.25},
			}
			run := func() []protocol.Message {
				p := &scriptedComm{inbound: script}
				_, err := NewController().Run(ctx, Core{
					Problem:    physics.NewSpringChain(3),
					Integrator: integrators.NewRK4(),
					Comm:       p,
					Executor:   Options{Steps: 4, SweepsPerTurn: 2, MaxIterations: 6},
				}, 0.5)
				Expect(err).NotTo(HaveOccurred())
				return p.sent
			}

			first, second := run(), run()
			Expect(first).NotTo(BeEmpty())
			Expect(second).To(Equal(first))
		})
	})

	It("should log the run header and footer", func() {
		var buf bytes.Buffer
		ctrl = NewController(WithLogger(log.New(&buf, "", 0)))
		core.Comm = &scriptedComm{inbound: []protocol.Message{plain(0)}}

		_, err := ctrl.Run(ctx, core, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(buf.String()).To(ContainSubstring("START problem=decay"))
		Expect(buf.String()).To(ContainSubstring("FINISHED flag=converged"))
	})
})
