package interval

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/integrators"
	"github.com/san-kum/cosim/internal/physics"
	"github.com/san-kum/cosim/internal/protocol"
)

// failingIntegrator fails on a chosen node after a number of calls.
type failingIntegrator struct {
	node  int
	after int
	calls int
}

func (f *failingIntegrator) Advance(p dynamo.Problem, n dynamo.Node) (dynamo.State, error) {
	if n.Index == f.node {
		f.calls++
		if f.calls > f.after {
			return nil, dynamo.ErrInvalidState
		}
	}
	return integrators.NewEuler().Advance(p, n)
}

var _ = Describe("Executor", func() {
	It("should fill in defaults", func() {
		e := NewExecutor(physics.NewDecay(1), integrators.NewEuler(), Options{SweepsPerTurn: 50})
		opts := e.Options()
		Expect(opts.Steps).To(Equal(DefaultSteps))
		Expect(opts.Tolerance).To(Equal(DefaultTolerance))
		Expect(opts.MaxIterations).To(Equal(DefaultMaxIterations))
		Expect(opts.SweepsPerTurn).To(Equal(DefaultMaxIterations))
	})

	It("should converge uncoupled nodes on the second sweep", func() {
		p := physics.NewDecay(2)
		e := NewExecutor(p, integrators.NewRK4(), Options{Steps: 16})
		out := e.Execute(e.Begin(0, 1, p.Initial()))

		Expect(out.Err).NotTo(HaveOccurred())
		Expect(out.Flag).To(Equal(protocol.FlagConverged))
		Expect(out.Iterations).To(Equal(2))
		Expect(out.Residual).To(BeZero())

		exact := p.Exact(1)
		Expect(out.Value.MaxDiff(exact)).To(BeNumerically("<", 1e-4))
	})

	It("should record the trajectory at every step boundary", func() {
		p := physics.NewDecay(1)
		e := NewExecutor(p, integrators.NewEuler(), Options{Steps: 4})
		out := e.Execute(e.Begin(1, 2, p.Initial()))

		Expect(out.Trajectory).To(HaveLen(5))
		Expect(out.Trajectory[0].Time).To(Equal(1.0))
		Expect(out.Trajectory[4].Time).To(Equal(2.0))
		for k := 1; k < len(out.Trajectory); k++ {
			Expect(out.Trajectory[k].Time).To(BeNumerically(">", out.Trajectory[k-1].Time))
		}
		Expect(out.Trajectory[4].Value).To(Equal(out.Value))
	})

	It("should converge coupled nodes after one sweep per step", func() {
		p := physics.NewSpringChain(4)
		e := NewExecutor(p, integrators.NewRK4(), Options{Steps: 3, MaxIterations: 10})
		out := e.Execute(e.Begin(0, 0.03, p.Initial()))

		Expect(out.Flag).To(Equal(protocol.FlagConverged))
		Expect(out.Iterations).To(BeNumerically("<=", 4))
	})

	It("should fail once the iteration budget is exhausted", func() {
		p := physics.NewSpringChain(4)
		e := NewExecutor(p, integrators.NewRK4(), Options{Steps: 10, MaxIterations: 3})
		out := e.Execute(e.Begin(0, 0.1, p.Initial()))

		Expect(out.Flag).To(Equal(protocol.FlagFailed))
		Expect(out.Iterations).To(Equal(3))
		Expect(errors.Is(out.Err, dynamo.ErrNotConverged)).To(BeTrue())
		Expect(out.Value.IsValid()).To(BeTrue())
	})

	It("should fail fast on an integrator error", func() {
		p := physics.NewDecay(3)
		integ := &failingIntegrator{node: 1, after: 2}
		e := NewExecutor(p, integ, Options{Steps: 4})
		out := e.Execute(e.Begin(0, 1, p.Initial()))

		Expect(out.Flag).To(Equal(protocol.FlagFailed))
		Expect(integ.calls).To(Equal(3))

		var stepErr *dynamo.StepError
		Expect(errors.As(out.Err, &stepErr)).To(BeTrue())
		Expect(stepErr.Node).To(Equal(1))
		Expect(stepErr.Step).To(Equal(2))
		Expect(errors.Is(out.Err, dynamo.ErrInvalidState)).To(BeTrue())

		Expect(out.Iterations).To(BeZero())
		Expect(out.Value).To(Equal(p.Initial()))
	})

	It("should report iterating when the turn budget runs out and resume later", func() {
		p := physics.NewDecay(1)
		e := NewExecutor(p, integrators.NewEuler(), Options{SweepsPerTurn: 1})
		a := e.Begin(0, 1, p.Initial())

		first := e.Execute(a)
		Expect(first.Flag).To(Equal(protocol.FlagIterating))
		Expect(first.Iterations).To(Equal(1))
		Expect(first.Residual).To(BeNumerically(">", 0))

		second := e.Execute(a)
		Expect(second.Flag).To(Equal(protocol.FlagConverged))
		Expect(second.Iterations).To(Equal(2))
		Expect(second.Value).To(Equal(first.Value))

		Expect(e.Execute(a)).To(Equal(second))
	})

	It("should report finished when the attempt reaches the end time", func() {
		p := physics.NewDecay(1)
		e := NewExecutor(p, integrators.NewEuler(), Options{EndTime: 1})

		Expect(e.Execute(e.Begin(0, 0.5, p.Initial())).Flag).To(Equal(protocol.FlagConverged))
		Expect(e.Execute(e.Begin(0.5, 1-1e-14, p.Initial())).Flag).To(Equal(protocol.FlagFinished))
	})

	It("should give the same answer with node fan-out", func() {
		p := physics.NewSpringChain(8)
		seq := NewExecutor(p, integrators.NewRK4(), Options{Steps: 5, MaxIterations: 10})
		par := NewExecutor(p, integrators.NewRK4(), Options{Steps: 5, MaxIterations: 10, Parallel: true})

		a := seq.Execute(seq.Begin(0, 0.05, p.Initial()))
		b := par.Execute(par.Begin(0, 0.05, p.Initial()))
		Expect(b.Value).To(Equal(a.Value))
		Expect(b.Iterations).To(Equal(a.Iterations))
	})

	It("should reject values that do not match the problem", func() {
		p := physics.NewDecay(2)
		e := NewExecutor(p, integrators.NewEuler(), Options{})
		out := e.Execute(e.Begin(0, 1, dynamo.Value{{1}}))

		Expect(out.Flag).To(Equal(protocol.FlagFailed))
		Expect(errors.Is(out.Err, dynamo.ErrDimensionMismatch)).To(BeTrue())
		Expect(out.Residual).To(BeZero())
	})

	It("should reject a node state of the wrong length", func() {
		p := physics.NewSpringChain(2)
		e := NewExecutor(p, integrators.NewRK4(), Options{})
		for _, v := range []dynamo.Value{{{}, {0, 0}}, {{0, 0}, {0, 0, 0}}} {
			out := e.Execute(e.Begin(0, 1, v))
			Expect(out.Flag).To(Equal(protocol.FlagFailed))
			Expect(errors.Is(out.Err, dynamo.ErrDimensionMismatch)).To(BeTrue())
		}
	})
})
