package device

import (
	"context"

	"github.com/nerrad567/gray-logic-upnp/internal/provider"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp/soap"
)

// SwitchPower implements SwitchPower:1 on a binary switch. Status is
// evented directly.
type SwitchPower struct {
	sw provider.BinarySwitch
}

// NewSwitchPower creates the controller for sw.
func NewSwitchPower(sw provider.BinarySwitch) *SwitchPower {
	return &SwitchPower{sw: sw}
}

// Actions implements Controller.
func (c *SwitchPower) Actions() soap.ActionTable {
	return soap.ActionTable{
		"SetTarget": c.setTarget,
		"GetTarget": c.getTarget,
		"GetStatus": c.getStatus,
	}
}

// State implements Controller.
func (c *SwitchPower) State() map[string]any {
	return map[string]any{"Status": c.sw.State()}
}

// Changes implements Controller.
func (c *SwitchPower) Changes(cs provider.ChangeSet) map[string]any {
	on, ok := cs[provider.PropState].(bool)
	if !ok {
		return nil
	}
	return map[string]any{"Status": on}
}

// EventNamespace implements Controller.
func (c *SwitchPower) EventNamespace() string { return "" }

// setTarget treats "1", "yes" and "true" in any case as on and every other
// value as off.
func (c *SwitchPower) setTarget(_ context.Context, req *soap.Request) ([]soap.Arg, error) {
	v, err := requireArg(req, "newTargetValue")
	if err != nil {
		return nil, err
	}
	on, _ := parseBool(v)
	c.sw.SetState(on)
	return nil, nil
}

func (c *SwitchPower) getTarget(context.Context, *soap.Request) ([]soap.Arg, error) {
	return []soap.Arg{{Name: "RetTargetValue", Value: formatBool(c.sw.State())}}, nil
}

func (c *SwitchPower) getStatus(context.Context, *soap.Request) ([]soap.Arg, error) {
	return []soap.Arg{{Name: "ResultStatus", Value: formatBool(c.sw.State())}}, nil
}
