package ndarray

import "testing"

func TestScalarRender(t *testing.T) {
	grid := []struct {
		arg  Scalar
		want string
	}{
		{Text("float32"), "float32"},
		{Text(""), ""},
		{Int(0), "0"},
		{Int(-42), "-42"},
		{Float(0.5), "0.5"},
		{Float(1), "1"},
		{Float(1e-7), "1e-07"},
		{Bool(true), "true"},
		{Bool(false), "false"},
		{Shape{}, "()"},
		{Shape{3}, "(3)"},
		{Shape{2, 3, 4}, "(2,3,4)"},
	}
	for _, g := range grid {
		if got := g.arg.Render(); got != g.want {
			t.Errorf("%#v.Render() = %q, want %q", g.arg, got, g.want)
		}
	}
}

func TestHandleIsNotScalar(t *testing.T) {
	var arg Argument = &Handle{}
	if _, ok := arg.(Scalar); ok {
		t.Errorf("a tensor argument must not render as a scalar")
	}
}
