// Package api serves the address space over HTTP as JSON.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/awcullen/opcua/ua"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/addressspace"
	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/registry"
)

// NodeInfo is the JSON form of a node.
type NodeInfo struct {
	NodeID         string      `json:"nodeId"`
	BrowseName     string      `json:"browseName"`
	Path           string      `json:"path"`
	NodeClass      string      `json:"nodeClass"`
	TypeDefinition string      `json:"typeDefinition,omitempty"`
	DataType       string      `json:"dataType,omitempty"`
	Value          interface{} `json:"value,omitempty"`
	StatusCode     uint32      `json:"statusCode,omitempty"`
	Timestamp      *time.Time  `json:"timestamp,omitempty"`
	Children       []NodeInfo  `json:"children,omitempty"`
}

// SlotInfo is the JSON form of an instance declaration.
type SlotInfo struct {
	BrowseName     string `json:"browseName"`
	TypeDefinition string `json:"typeDefinition,omitempty"`
	Optional       bool   `json:"optional,omitempty"`
	Omitted        bool   `json:"omitted,omitempty"`
}

// TypeInfo is the JSON form of a registered type.
type TypeInfo struct {
	TypeID     string     `json:"typeId"`
	BrowseName string     `json:"browseName"`
	NodeClass  string     `json:"nodeClass"`
	Abstract   bool       `json:"abstract,omitempty"`
	SuperType  string     `json:"superType,omitempty"`
	Slots      []SlotInfo `json:"slots,omitempty"`
}

// RootsFunc returns the trees served under /nodes.
type RootsFunc func() []*addressspace.Node

type Server struct {
	ctx    *addressspace.Context
	reg    *registry.Registry
	roots  RootsFunc
	logger *zap.SugaredLogger
	router *mux.Router
}

func NewServer(ctx *addressspace.Context, reg *registry.Registry, roots RootsFunc, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Server{ctx: ctx, reg: reg, roots: roots, logger: logger, router: mux.NewRouter()}
	s.router.HandleFunc("/nodes", s.getNodes).Methods("GET")
	s.router.HandleFunc("/nodes/{path:.*}", s.getNode).Methods("GET")
	s.router.HandleFunc("/types", s.getTypes).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	errs := make(chan error, 1)
	go func() { errs <- srv.ListenAndServe() }()
	s.logger.Infow("HTTP API listening", "addr", addr)
	select {
	case err := <-errs:
		return errors.Wrap(err, "http api")
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// depth reads the depth query parameter; a negative depth is unlimited.
func depth(r *http.Request, def int) (int, error) {
	q := r.URL.Query().Get("depth")
	if q == "" {
		return def, nil
	}
	return strconv.Atoi(q)
}

func (s *Server) getNodes(w http.ResponseWriter, r *http.Request) {
	d, err := depth(r, -1)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.ctx.Lock()
	defer s.ctx.Unlock()
	out := []NodeInfo{}
	for _, n := range s.roots() {
		out = append(out, info(n, d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getNode(w http.ResponseWriter, r *http.Request) {
	d, err := depth(r, 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	path := strings.Trim(mux.Vars(r)["path"], "/")
	s.ctx.Lock()
	defer s.ctx.Unlock()
	n := s.resolve(path)
	if n == nil {
		writeError(w, http.StatusNotFound, errors.Errorf("no node at %q", path))
		return
	}
	writeJSON(w, http.StatusOK, info(n, d))
}

// resolve follows a slash separated browse path from the roots. A segment is a plain
// name, looked up in the namespace of its parent and then namespace 0, or "ns:name".
func (s *Server) resolve(path string) *addressspace.Node {
	if path == "" {
		return nil
	}
	segments := strings.Split(path, "/")
	var cur *addressspace.Node
	for _, root := range s.roots() {
		if root.BrowseName().Name == segments[0] {
			cur = root
			break
		}
	}
	for _, seg := range segments[1:] {
		if cur == nil {
			return nil
		}
		cur = s.step(cur, seg)
	}
	return cur
}

func (s *Server) step(n *addressspace.Node, seg string) *addressspace.Node {
	if i := strings.Index(seg, ":"); i > 0 {
		if ns, err := strconv.ParseUint(seg[:i], 10, 16); err == nil {
			return n.FindChild(s.ctx, ua.NewQualifiedName(uint16(ns), seg[i+1:]), false, nil)
		}
	}
	if c := n.FindChild(s.ctx, ua.NewQualifiedName(n.BrowseName().NamespaceIndex, seg), false, nil); c != nil {
		return c
	}
	return n.FindChild(s.ctx, ua.NewQualifiedName(0, seg), false, nil)
}

func info(n *addressspace.Node, depth int) NodeInfo {
	out := NodeInfo{
		NodeID:     idString(n.NodeID()),
		BrowseName: n.BrowseName().Name,
		Path:       n.BrowsePath(),
		NodeClass:  nodeClass(n.NodeClass()),
	}
	out.TypeDefinition = idString(n.TypeDefinitionID())
	if n.IsVariable() {
		out.DataType = idString(n.DataType())
		out.Value, _ = n.Value()
		out.StatusCode = uint32(n.StatusCode())
		if ts := n.Timestamp(); !ts.IsZero() {
			out.Timestamp = &ts
		}
	}
	if depth == 0 {
		return out
	}
	n.EachChild(func(c *addressspace.Node) bool {
		out.Children = append(out.Children, info(c, depth-1))
		return true
	})
	return out
}

func idString(id ua.NodeID) string {
	if id == nil {
		return ""
	}
	return fmt.Sprint(id)
}

func nodeClass(c ua.NodeClass) string {
	switch c {
	case ua.NodeClassObject:
		return "Object"
	case ua.NodeClassVariable:
		return "Variable"
	case ua.NodeClassObjectType:
		return "ObjectType"
	case ua.NodeClassVariableType:
		return "VariableType"
	case ua.NodeClassDataType:
		return "DataType"
	case ua.NodeClassReferenceType:
		return "ReferenceType"
	}
	return "Unspecified"
}

func (s *Server) getTypes(w http.ResponseWriter, r *http.Request) {
	out := []TypeInfo{}
	for _, k := range s.reg.Kinds() {
		t := TypeInfo{
			TypeID:     idString(k.TypeID),
			BrowseName: k.BrowseName.Name,
			NodeClass:  nodeClass(k.NodeClass),
			Abstract:   k.IsAbstract,
		}
		if k.Parent != nil {
			t.SuperType = idString(k.Parent.TypeID)
		} else {
			t.SuperType = idString(s.reg.SuperType(k.TypeID))
		}
		for _, slot := range k.Slots {
			t.Slots = append(t.Slots, SlotInfo{
				BrowseName:     slot.BrowseName.Name,
				TypeDefinition: idString(slot.TypeDefinitionID),
				Optional:       slot.Optional,
				Omitted:        slot.Omitted(),
			})
		}
		out = append(out, t)
	}
	writeJSON(w, http.StatusOK, out)
}
