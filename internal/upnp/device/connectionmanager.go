package device

import (
	"context"
	"strings"

	"github.com/nerrad567/gray-logic-upnp/internal/provider"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp/soap"
)

// sinkProtocols lists the formats a renderer accepts over HTTP.
var sinkProtocols = []string{
	"http-get:*:audio/mpeg:*",
	"http-get:*:audio/mp4:*",
	"http-get:*:audio/x-flac:*",
	"http-get:*:audio/flac:*",
	"http-get:*:audio/wav:*",
	"http-get:*:audio/x-wav:*",
	"http-get:*:audio/ogg:*",
	"http-get:*:video/mp4:*",
	"http-get:*:video/mpeg:*",
}

// ConnectionManager implements ConnectionManager:1 for a renderer with a
// single, permanent connection 0.
type ConnectionManager struct {
	sink string
}

// NewConnectionManager creates the controller.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{sink: strings.Join(sinkProtocols, ",")}
}

// Actions implements Controller.
func (c *ConnectionManager) Actions() soap.ActionTable {
	return soap.ActionTable{
		"GetProtocolInfo":          c.getProtocolInfo,
		"GetCurrentConnectionIDs":  c.getCurrentConnectionIDs,
		"GetCurrentConnectionInfo": c.getCurrentConnectionInfo,
	}
}

// State implements Controller.
func (c *ConnectionManager) State() map[string]any {
	return map[string]any{
		"SourceProtocolInfo":   "",
		"SinkProtocolInfo":     c.sink,
		"CurrentConnectionIDs": "0",
	}
}

// Changes implements Controller. None of its variables follow provider
// state.
func (c *ConnectionManager) Changes(provider.ChangeSet) map[string]any { return nil }

// EventNamespace implements Controller.
func (c *ConnectionManager) EventNamespace() string { return "" }

func (c *ConnectionManager) getProtocolInfo(context.Context, *soap.Request) ([]soap.Arg, error) {
	return []soap.Arg{
		{Name: "Source", Value: ""},
		{Name: "Sink", Value: c.sink},
	}, nil
}

func (c *ConnectionManager) getCurrentConnectionIDs(context.Context, *soap.Request) ([]soap.Arg, error) {
	return []soap.Arg{{Name: "ConnectionIDs", Value: "0"}}, nil
}

func (c *ConnectionManager) getCurrentConnectionInfo(_ context.Context, req *soap.Request) ([]soap.Arg, error) {
	id, err := requireArg(req, "ConnectionID")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) != "0" {
		return nil, soap.NewError(soap.CodeInvalidArgs)
	}
	return []soap.Arg{
		{Name: "RcsID", Value: "0"},
		{Name: "AVTransportID", Value: "0"},
		{Name: "ProtocolInfo", Value: ""},
		{Name: "PeerConnectionManager", Value: ""},
		{Name: "PeerConnectionID", Value: "-1"},
		{Name: "Direction", Value: "Input"},
		{Name: "Status", Value: "OK"},
	}, nil
}
