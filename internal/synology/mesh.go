package synology

import "context"

// MeshAPI covers the SYNO.Mesh namespace.
type MeshAPI struct {
	api
}

func (m *MeshAPI) GetNetworkInfo(ctx context.Context) (Record, error) {
	return m.object(ctx, Call{Endpoint: "entry.cgi", API: "SYNO.Mesh.Network.Info", Method: "get", Version: 1})
}

func (m *MeshAPI) GetSystemInfo(ctx context.Context) (Record, error) {
	return m.object(ctx, Call{Endpoint: "entry.cgi", API: "SYNO.Mesh.System.Info", Method: "get", Version: 1})
}

// ListNodes returns the mesh nodes matching filters.
func (m *MeshAPI) ListNodes(ctx context.Context, filters map[string]any) ([]Record, error) {
	nodes, err := m.list(ctx, Call{Endpoint: "entry.cgi", API: "SYNO.Mesh.Node.List", Method: "get", Version: 4}, "nodes")
	if err != nil {
		return nil, err
	}
	return filter(nodes, filters), nil
}
