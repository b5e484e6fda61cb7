// Package httpapi implements the Controller's HTTP API (spec.md §6): plain
// HTTP, JSON bodies, one gorilla/mux router. Grounded on the sibling pack
// example's gorilla/mux daemon (4nonX-D-PlaneOS/daemon/cmd/dplaned) for the
// router shape, adapted to this domain's three /api/nodes endpoints plus
// /health.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariacomputecompany/quiltc/internal/controller"
	"github.com/ariacomputecompany/quiltc/internal/mesherr"

	"github.com/gorilla/mux"
)

type registerRequest struct {
	Hostname string `json:"hostname"`
	HostIP   string `json:"host_ip"`
	CPUCores int    `json:"cpu_cores,omitempty"`
	RAMMB    int    `json:"ram_mb,omitempty"`
}

type registerResponse struct {
	NodeID string `json:"node_id"`
	Subnet string `json:"subnet"`
}

type nodeJSON struct {
	NodeID        string `json:"node_id"`
	Hostname      string `json:"hostname"`
	HostIP        string `json:"host_ip"`
	Subnet        string `json:"subnet"`
	Status        string `json:"status"`
	RegisteredAt  int64  `json:"registered_at"`
	LastHeartbeat int64  `json:"last_heartbeat"`
}

type listNodesResponse struct {
	Nodes []nodeJSON `json:"nodes"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewRouter builds the Controller's HTTP router.
func NewRouter(svc *controller.Controller) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/nodes/register", registerHandler(svc)).Methods(http.MethodPost)
	r.HandleFunc("/api/nodes", listNodesHandler(svc)).Methods(http.MethodGet)
	r.HandleFunc("/api/nodes/{node_id}/heartbeat", heartbeatHandler(svc)).Methods(http.MethodPost)
	r.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	return r
}

func registerHandler(svc *controller.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}

		node, err := svc.Register(r.Context(), req.Hostname, req.HostIP, req.CPUCores, req.RAMMB)
		if err != nil {
			writeControllerError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, registerResponse{NodeID: node.NodeID, Subnet: node.Subnet})
	}
}

func listNodesHandler(svc *controller.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		nodes, err := svc.ListNodes(r.Context())
		if err != nil {
			writeControllerError(w, err)
			return
		}
		resp := listNodesResponse{Nodes: make([]nodeJSON, len(nodes))}
		for i, n := range nodes {
			resp.Nodes[i] = nodeJSON{
				NodeID:        n.NodeID,
				Hostname:      n.Hostname,
				HostIP:        n.HostIP,
				Subnet:        n.Subnet,
				Status:        n.Status,
				RegisteredAt:  n.RegisteredAt.Unix(),
				LastHeartbeat: n.LastHeartbeat.Unix(),
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func heartbeatHandler(svc *controller.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		nodeID := mux.Vars(r)["node_id"]
		if err := svc.Heartbeat(r.Context(), nodeID); err != nil {
			writeControllerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// writeControllerError maps the Controller's typed errors to the status
// codes named in spec.md §6/§7.
func writeControllerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, mesherr.ErrUnknownNode):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, mesherr.ErrExhaustedSubnets):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case mesherr.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
