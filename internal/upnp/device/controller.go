package device

import (
	"context"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-upnp/internal/provider"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp/soap"
)

// Controller implements the actions and evented variables of one service.
type Controller interface {
	// Actions returns the SOAP action table of the service.
	Actions() soap.ActionTable

	// State returns the current value of every evented variable.
	State() map[string]any

	// Changes translates a provider change set into evented variable
	// updates. It returns nil when the set touches nothing this service
	// reports.
	Changes(cs provider.ChangeSet) map[string]any

	// EventNamespace returns the LastChange Event namespace, or "" for
	// services that event each variable directly.
	EventNamespace() string
}

// batched wraps every handler of table in a batch on props, so the writes
// of one action are delivered as a single change set.
func batched(props *provider.Properties, table soap.ActionTable) soap.ActionTable {
	out := make(soap.ActionTable, len(table))
	for name, h := range table {
		out[name] = func(ctx context.Context, req *soap.Request) ([]soap.Arg, error) {
			b := props.BeginBatch()
			defer b.End()
			return h(ctx, req)
		}
	}
	return out
}

// requireArg returns the value of an input argument, or 402 when the
// request does not carry it.
func requireArg(req *soap.Request, name string) (string, error) {
	v, ok := req.Arg(name)
	if !ok {
		return "", soap.NewError(soap.CodeInvalidArgs)
	}
	return v, nil
}

// checkInstance accepts only InstanceID 0.
func checkInstance(req *soap.Request) error {
	v, err := requireArg(req, "InstanceID")
	if err != nil {
		return err
	}
	if strings.TrimSpace(v) != "0" {
		return soap.NewError(soap.CodeInvalidArgs)
	}
	return nil
}

// parseBool reads a UPnP boolean argument.
func parseBool(v string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "yes", "true":
		return true, true
	case "0", "no", "false":
		return false, true
	default:
		return false, false
	}
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
