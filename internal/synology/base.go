package synology

import "context"

// BaseAPI covers the SYNO.API namespace.
type BaseAPI struct {
	api
}

// QueryInfo lists the APIs the router exposes. It needs no session.
func (b *BaseAPI) QueryInfo(ctx context.Context) (Record, error) {
	return b.object(ctx, Call{
		Endpoint:     "query.cgi",
		API:          "SYNO.API.Info",
		Method:       "query",
		Version:      1,
		Params:       map[string]string{"query": "ALL"},
		Unrestricted: true,
	})
}

// TestConnection performs the same query as QueryInfo with a session,
// which proves the credentials work.
func (b *BaseAPI) TestConnection(ctx context.Context) (Record, error) {
	return b.object(ctx, Call{
		Endpoint: "query.cgi",
		API:      "SYNO.API.Info",
		Method:   "query",
		Version:  1,
		Params:   map[string]string{"query": "ALL"},
	})
}

func (b *BaseAPI) GetInfoEncryption(ctx context.Context) (Record, error) {
	return b.object(ctx, Call{
		Endpoint: "encryption.cgi",
		API:      "SYNO.API.Encryption",
		Method:   "getinfo",
		Version:  1,
	})
}
