package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/ariacomputecompany/quiltc/internal/controller"
	"github.com/ariacomputecompany/quiltc/internal/controller/store/memstore"

	"github.com/gorilla/mux"
)

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()
	svc, err := controller.New(memstore.New(), netip.MustParsePrefix("10.42.0.0/16"), 30*time.Second)
	if err != nil {
		t.Fatalf("controller.New: %v", err)
	}
	return NewRouter(svc)
}

func TestRegisterAndListNodes(t *testing.T) {
	r := newTestRouter(t)

	body, _ := json.Marshal(registerRequest{Hostname: "host-a", HostIP: "10.0.0.1"})
	req := httptest.NewRequest(http.MethodPost, "/api/nodes/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("register: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var regResp registerResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &regResp); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	if regResp.NodeID == "" || regResp.Subnet == "" {
		t.Fatalf("expected populated node_id/subnet, got %+v", regResp)
	}

	listReq := httptest.NewRequest(http.MethodGet, "/api/nodes", nil)
	listRec := httptest.NewRecorder()
	r.ServeHTTP(listRec, listReq)
	if listRec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", listRec.Code)
	}
	var listResp listNodesResponse
	if err := json.Unmarshal(listRec.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if len(listResp.Nodes) != 1 || listResp.Nodes[0].NodeID != regResp.NodeID {
		t.Fatalf("unexpected node list %+v", listResp.Nodes)
	}
}

func TestHeartbeatUnknownNodeReturns404(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/nodes/does-not-exist/heartbeat", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRegisterMalformedBodyReturns400(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/nodes/register", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
