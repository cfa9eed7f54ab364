package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/addressspace"
	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/mtconnect"
)

func newTestServer(t *testing.T) (*Server, mtconnect.Device) {
	t.Helper()
	reg, err := mtconnect.NewRegistry()
	require.NoError(t, err)
	ctx := reg.NewContext(nil)
	mill, err := mtconnect.NewDevice(ctx, reg, "Mill01", nil)
	require.NoError(t, err)
	require.NoError(t, mill.SetManufacturer("Okuma"))
	temp, err := mill.AddSample(reg, "TEMPERATURE", "SpindleTemp", "CELSIUS")
	require.NoError(t, err)
	temp.Set(42.5)
	_, err = mill.AddComponent(reg, "AXES", "Axes")
	require.NoError(t, err)

	roots := func() []*addressspace.Node { return []*addressspace.Node{mill.Node()} }
	return NewServer(ctx, reg, roots, nil), mill
}

func get(t *testing.T, s *Server, url string, v interface{}) int {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	if v != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
	}
	return rec.Code
}

func TestGetNodes(t *testing.T) {
	s, _ := newTestServer(t)
	var nodes []NodeInfo
	require.Equal(t, http.StatusOK, get(t, s, "/nodes", &nodes))
	require.Len(t, nodes, 1)
	mill := nodes[0]
	assert.Equal(t, "Mill01", mill.BrowseName)
	assert.Equal(t, "Object", mill.NodeClass)
	require.Len(t, mill.Children, 5)
	axes := mill.Children[4]
	assert.Equal(t, "Mill01/Axes", axes.Path)
	assert.NotEmpty(t, axes.Children)

	require.Equal(t, http.StatusOK, get(t, s, "/nodes?depth=0", &nodes))
	assert.Empty(t, nodes[0].Children)
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/nodes?depth=x", nil))
}

func TestGetNode(t *testing.T) {
	s, _ := newTestServer(t)

	var n NodeInfo
	require.Equal(t, http.StatusOK, get(t, s, "/nodes/Mill01/SpindleTemp", &n))
	assert.Equal(t, "Variable", n.NodeClass)
	assert.Equal(t, 42.5, n.Value)
	require.Len(t, n.Children, 1)
	assert.Equal(t, "Units", n.Children[0].BrowseName)
	assert.Equal(t, "CELSIUS", n.Children[0].Value)

	require.Equal(t, http.StatusOK, get(t, s, "/nodes/Mill01/Manufacturer", &n))
	assert.Equal(t, "Okuma", n.Value)
	require.Equal(t, http.StatusOK, get(t, s, "/nodes/Mill01/1:Axes", &n))
	assert.Equal(t, "Axes", n.BrowseName)

	assert.Equal(t, http.StatusNotFound, get(t, s, "/nodes/Mill01/Turret", nil))
	assert.Equal(t, http.StatusNotFound, get(t, s, "/nodes/Lathe", nil))
	// optional children are not created by browsing
	assert.Equal(t, http.StatusNotFound, get(t, s, "/nodes/Mill01/SampleInterval", nil))
}

func TestGetTypes(t *testing.T) {
	s, _ := newTestServer(t)
	var types []TypeInfo
	require.Equal(t, http.StatusOK, get(t, s, "/types", &types))

	byName := map[string]TypeInfo{}
	for _, ty := range types {
		byName[ty.BrowseName] = ty
	}
	device, ok := byName["MTDeviceType"]
	require.True(t, ok)
	assert.Equal(t, "ObjectType", device.NodeClass)
	assert.Equal(t, "i=58", device.SuperType)
	var omitted []string
	for _, slot := range device.Slots {
		if slot.Omitted {
			omitted = append(omitted, slot.BrowseName)
		}
	}
	assert.Equal(t, []string{"SampleInterval"}, omitted)

	enum, ok := byName["AvailabilityEnum"]
	require.True(t, ok)
	assert.Equal(t, "DataType", enum.NodeClass)
	assert.Equal(t, "i=29", enum.SuperType)
}

func TestMetrics(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mtua_")
}
