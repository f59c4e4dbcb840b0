package module

import (
	"testing"

	phttp "backscroll/internal/platform/net/http"
)

// stubModule records MountRoutes calls and hands back whatever ports it
// was given
type stubModule struct {
	mounted bool
	ports   any
}

func (s *stubModule) MountRoutes(phttp.Router) { s.mounted = true }
func (s *stubModule) Ports() any               { return s.ports }
func (s *stubModule) Name() string             { return "stub" }

var _ Module = (*stubModule)(nil)

func TestModule_MountObservable(t *testing.T) {
	m := &stubModule{}

	// the contract allows a nil router; mounting must still be observable
	m.MountRoutes(nil)
	if !m.mounted {
		t.Fatal("MountRoutes was not invoked")
	}
}

func TestModule_PortsPassThrough(t *testing.T) {
	type bundle struct {
		Name string
		ID   int
	}

	cases := []struct {
		name string
		in   any
	}{
		{"nil", nil},
		{"primitive", 123},
		{"struct", bundle{Name: "ingest", ID: 7}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := &stubModule{ports: tc.in}
			if got := m.Ports(); got != tc.in {
				t.Fatalf("Ports() = %v, want %v", got, tc.in)
			}
		})
	}
}
