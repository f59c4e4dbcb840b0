package module

import (
	"sync"
	"testing"
)

// stand-in port set; the real ones are interface bundles per module
type testPorts struct {
	Service string
	Gen     int
}

func TestRegistry_RoundTrip(t *testing.T) {
	Reset()

	want := testPorts{Service: "ingest", Gen: 1}
	Register("ingest", want)

	got, ok := PortsAs[testPorts]("ingest")
	if !ok {
		t.Fatal("lookup failed for registered name")
	}
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestRegistry_MissingName(t *testing.T) {
	Reset()

	got, ok := PortsAs[testPorts]("ops")
	if ok {
		t.Fatal("lookup must fail for an unregistered name")
	}
	if got != (testPorts{}) {
		t.Fatalf("miss must return the zero value, got %v", got)
	}
}

func TestRegistry_WrongType(t *testing.T) {
	Reset()
	Register("ingest", testPorts{Service: "ingest"})

	if _, ok := PortsAs[string]("ingest"); ok {
		t.Fatal("assertion to the wrong type must fail")
	}
}

func TestRegistry_ReRegisterReplaces(t *testing.T) {
	Reset()

	Register("ingest", testPorts{Service: "ingest", Gen: 1})
	Register("ingest", testPorts{Service: "ingest", Gen: 2})

	got, ok := PortsAs[testPorts]("ingest")
	if !ok || got.Gen != 2 {
		t.Fatalf("want the replacement set, got %v ok=%v", got, ok)
	}
}

func TestRegistry_Reset(t *testing.T) {
	Register("ops", testPorts{Service: "ops"})
	Reset()

	if _, ok := PortsAs[testPorts]("ops"); ok {
		t.Fatal("reset must clear every registration")
	}
}

// exercises the lock under the race detector
func TestRegistry_ConcurrentAccess(t *testing.T) {
	Reset()

	const iters = 200
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < iters; i++ {
			Register("ingest", testPorts{Service: "ingest", Gen: i})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < iters; i++ {
			_, _ = PortsAs[testPorts]("ingest")
		}
	}()
	wg.Wait()

	got, ok := PortsAs[testPorts]("ingest")
	if !ok || got.Service != "ingest" {
		t.Fatalf("final state off: %v ok=%v", got, ok)
	}
}
