package dsge

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// helper: compare floats with tolerance
func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// Small positive shock: the rate stays above its bound and output decays
// geometrically at the stable root.
func TestIRF_Slack(t *testing.T) {
	m := newToy(t, Options{})

	irf, ok, err := m.IRF("e", 1, 4)
	if err != nil {
		t.Fatalf("IRF returned error: %v", err)
	}
	if r, c := irf.Dims(); r != 4 || c != 2 {
		t.Fatalf("IRF dims = %dx%d, want 4x2", r, c)
	}

	expected := [][]float64{
		{0.1, 0.05},
		{0.1 * lambda, 0.1 * lambda},
		{0.1 * lambda * lambda, 0.1 * lambda * lambda},
		{0.1 * lambda * lambda * lambda, 0.1 * lambda * lambda * lambda},
	}
	for h, row := range expected {
		if !ok[h] {
			t.Errorf("no consistent regime at h=%d", h)
		}
		for i, want := range row {
			if got := irf.At(h, i); !almostEqual(got, want, 1e-9) {
				t.Errorf("IRF[%d,%d] = %v, want %v", h, i, got, want)
			}
		}
	}
}

// Large negative shock: the rate hits its bound for one period.
func TestIRF_Binding(t *testing.T) {
	m := newToy(t, Options{})

	irf, ok, err := m.IRF("e", -50, 2)
	if err != nil {
		t.Fatalf("IRF returned error: %v", err)
	}
	if !ok[1] {
		t.Fatalf("no consistent regime after the shock")
	}
	if got := irf.At(1, 0); !almostEqual(got, -2.472136, 1e-6) {
		t.Errorf("output after the shock = %v, want -2.472136", got)
	}
	if got := irf.At(1, 1); !almostEqual(got, -1, 1e-9) {
		t.Errorf("rate after the shock = %v, want the bound -1", got)
	}
}

func TestIRF_Errors(t *testing.T) {
	m := newToy(t, Options{})
	if _, _, err := m.IRF("e", 1, 0); err == nil {
		t.Errorf("expected error for horizon 0")
	}
	if _, _, err := m.IRF("u", 1, 5); err == nil {
		t.Errorf("expected error for unknown shock")
	}
	if _, _, err := m.Simulate(mat.NewDense(3, 2, nil)); err == nil {
		t.Errorf("expected error for wrong shock count")
	}
}

// Simulating a single impulse reproduces the impulse response.
func TestSimulate_MatchesIRF(t *testing.T) {
	m := newToy(t, Options{})
	eps := mat.NewDense(4, 1, []float64{1, 0, 0, 0})

	path, _, err := m.Simulate(eps)
	if err != nil {
		t.Fatalf("Simulate returned error: %v", err)
	}
	irf, _, err := m.IRF("e", 1, 4)
	if err != nil {
		t.Fatalf("IRF returned error: %v", err)
	}
	if !mat.EqualApprox(path, irf, 1e-12) {
		t.Errorf("simulated path\n%v\ndiffers from IRF\n%v",
			mat.Formatted(path), mat.Formatted(irf))
	}

	obs := m.Observables(path)
	if got := obs.At(0, 0); !almostEqual(got, 0.1, 1e-12) {
		t.Errorf("observed output at impact = %v, want 0.1", got)
	}
}
