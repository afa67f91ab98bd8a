package monitor_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kaoqibutaitou/aoa-port-forward/accessory"
	"github.com/kaoqibutaitou/aoa-port-forward/monitor"
)

type fixedStatus accessory.Status

func (f fixedStatus) Status() accessory.Status { return accessory.Status(f) }

func get(t *testing.T, srv *httptest.Server, path string, into interface{}) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("%s returned %d", path, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("%s content type %q", path, ct)
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatal(err)
	}
}

func TestStatusRoute(t *testing.T) {
	src := fixedStatus{
		Running:      true,
		AppConnected: true,
		ForwardPort:  9000,
		SessionCount: 2,
		Sessions:     []uint16{3, 1},
	}
	srv := httptest.NewServer(monitor.New(src).Router())
	defer srv.Close()

	var st accessory.Status
	get(t, srv, "/status", &st)
	if !st.Running || !st.AppConnected || st.ForwardPort != 9000 || st.SessionCount != 2 {
		t.Errorf("status = %+v", st)
	}
}

func TestSessionsRouteSorted(t *testing.T) {
	src := fixedStatus{Sessions: []uint16{30, 1, 12}}
	srv := httptest.NewServer(monitor.New(src).Router())
	defer srv.Close()

	var ids []uint16
	get(t, srv, "/sessions", &ids)
	want := []uint16{1, 12, 30}
	if len(ids) != len(want) {
		t.Fatalf("got %v", ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("got %v, want %v", ids, want)
			break
		}
	}
}

func TestSessionsRouteEmpty(t *testing.T) {
	srv := httptest.NewServer(monitor.New(fixedStatus{}).Router())
	defer srv.Close()

	var ids []uint16
	get(t, srv, "/sessions", &ids)
	if len(ids) != 0 {
		t.Errorf("got %v, want empty", ids)
	}
}

func TestEndpointsRoute(t *testing.T) {
	srv := httptest.NewServer(monitor.New(fixedStatus{}).Router())
	defer srv.Close()

	var routes []string
	get(t, srv, "/endpoints", &routes)
	want := []string{"/endpoints", "/sessions", "/status"}
	if len(routes) != len(want) {
		t.Fatalf("got %v", routes)
	}
	for i := range want {
		if routes[i] != want[i] {
			t.Errorf("got %v, want %v", routes, want)
			break
		}
	}
}
