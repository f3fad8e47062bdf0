package lifecycle

import (
	"errors"
	"testing"
)

func mustAdd(t *testing.T, g *Graph, kind string, deps ...*Node) *Node {
	t.Helper()
	n, err := g.Add(kind, deps...)
	if err != nil {
		t.Fatalf("Add(%s): %v", kind, err)
	}
	return n
}

func expectOrderPanic(t *testing.T, fn func()) *OrderError {
	t.Helper()
	var got *OrderError
	func() {
		defer func() {
			r := recover()
			if r == nil {
				t.Fatal("expected panic")
			}
			oe, ok := r.(*OrderError)
			if !ok {
				t.Fatalf("panic value = %T, want *OrderError", r)
			}
			got = oe
		}()
		fn()
	}()
	return got
}

func TestGraphReverseOrderReturnsToZero(t *testing.T) {
	g := NewGraph()
	logger := mustAdd(t, g, "logger")
	inst := mustAdd(t, g, "instance", logger)
	dev := mustAdd(t, g, "device", inst, logger)
	sc := mustAdd(t, g, "swapchain", dev)
	r := mustAdd(t, g, "renderer", dev, logger)

	if got := g.Live(); got != 5 {
		t.Fatalf("Live() = %d, want 5", got)
	}

	for _, n := range []*Node{r, sc, dev, inst, logger} {
		if !n.Release() {
			t.Fatalf("Release(%s) = false", n.Kind())
		}
	}
	if got := g.Live(); got != 0 {
		t.Errorf("Live() after teardown = %d, want 0", got)
	}
}

func TestGraphOutOfOrderPanics(t *testing.T) {
	g := NewGraph()
	logger := mustAdd(t, g, "logger")
	inst := mustAdd(t, g, "instance", logger)
	dev := mustAdd(t, g, "device", inst)

	oe := expectOrderPanic(t, func() { inst.Release() })
	if oe.Resource != "instance#2" {
		t.Errorf("Resource = %q", oe.Resource)
	}
	if len(oe.Dependents) != 1 || oe.Dependents[0] != "device#3" {
		t.Errorf("Dependents = %v", oe.Dependents)
	}
	if !inst.Alive() {
		t.Error("instance must stay alive after rejected release")
	}

	dev.Release()
	inst.Release()
	logger.Release()
	if g.Live() != 0 {
		t.Errorf("Live() = %d", g.Live())
	}
}

func TestNodeReleaseIdempotent(t *testing.T) {
	g := NewGraph()
	n := mustAdd(t, g, "logger")
	if !n.Release() {
		t.Fatal("first Release = false")
	}
	if n.Release() {
		t.Error("second Release = true, want false")
	}
	var nilNode *Node
	if nilNode.Release() {
		t.Error("nil Release = true")
	}
	if nilNode.Alive() {
		t.Error("nil Alive = true")
	}
}

func TestAddAgainstDestroyedDependency(t *testing.T) {
	g := NewGraph()
	logger := mustAdd(t, g, "logger")
	logger.Release()

	_, err := g.Add("instance", logger)
	if !errors.Is(err, ErrDependencyDestroyed) {
		t.Fatalf("err = %v, want ErrDependencyDestroyed", err)
	}
	if g.Live() != 0 {
		t.Errorf("Live() = %d, want 0", g.Live())
	}
}

func TestAddSkipsNilDependencies(t *testing.T) {
	g := NewGraph()
	n, err := g.Add("device", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !n.Release() {
		t.Error("Release = false")
	}
}

func TestAttachDetach(t *testing.T) {
	g := NewGraph()
	cache := mustAdd(t, g, "cache")
	dev := mustAdd(t, g, "device")

	if err := cache.Attach(dev); err != nil {
		t.Fatal(err)
	}
	// Attaching twice keeps a single edge.
	if err := cache.Attach(dev); err != nil {
		t.Fatal(err)
	}
	expectOrderPanic(t, func() { dev.Release() })

	cache.Detach(dev)
	if !dev.Release() {
		t.Error("device release after detach = false")
	}
	if err := cache.Attach(dev); !errors.Is(err, ErrDependencyDestroyed) {
		t.Errorf("attach to released = %v", err)
	}
	cache.Release()
}

func TestTeardownOrderRespectsLateEdges(t *testing.T) {
	g := NewGraph()
	logger := mustAdd(t, g, "logger")
	cache := mustAdd(t, g, "cache", logger)
	inst := mustAdd(t, g, "instance", logger)
	dev := mustAdd(t, g, "device", inst)
	if err := cache.Attach(dev); err != nil {
		t.Fatal(err)
	}
	mustAdd(t, g, "renderer", dev, logger)

	for _, n := range g.TeardownOrder() {
		n.Release() // panics on a bad order
	}
	if g.Live() != 0 {
		t.Errorf("Live() = %d", g.Live())
	}
}

func TestLiveKinds(t *testing.T) {
	g := NewGraph()
	mustAdd(t, g, "logger")
	mustAdd(t, g, "logger")
	mustAdd(t, g, "cache")

	kinds := g.LiveKinds()
	if kinds["logger"] != 2 || kinds["cache"] != 1 {
		t.Errorf("LiveKinds() = %v", kinds)
	}
}
