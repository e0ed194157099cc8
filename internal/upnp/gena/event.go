package gena

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-upnp/internal/upnp"
)

// LastChangeVariable is the state variable that carries LastChange events.
const LastChangeVariable = "LastChange"

// Var is one serialized state variable.
type Var struct {
	Name  string
	Value string
}

// FormatValue serializes a state variable value. Booleans become "1" or
// "0"; everything else uses its natural text form.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case bool:
		if x {
			return "1"
		}
		return "0"
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// sortedVars returns the entries of m ordered by name.
func sortedVars(m map[string]string) []Var {
	vars := make([]Var, 0, len(m))
	for name, value := range m {
		vars = append(vars, Var{Name: name, Value: value})
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i].Name < vars[j].Name })
	return vars
}

// PropertySet builds a NOTIFY body with one property per variable, in the
// order given.
func PropertySet(vars []Var) []byte {
	var b strings.Builder
	b.WriteString(upnp.XMLPrologue)
	b.WriteString(`<e:propertyset xmlns:e="` + upnp.EventSchema + `">`)
	for _, v := range vars {
		b.WriteString("<e:property><")
		b.WriteString(v.Name)
		b.WriteString(">")
		_ = xml.EscapeText(&b, []byte(v.Value))
		b.WriteString("</")
		b.WriteString(v.Name)
		b.WriteString("></e:property>")
	}
	b.WriteString("</e:propertyset>")
	return []byte(b.String())
}

// LastChange builds the Event document for instance 0 of a LastChange
// service.
//
// Example:
//
//	<Event xmlns="urn:schemas-upnp-org:metadata-1-0/AVT/"><InstanceID val="0"><TransportState val="PLAYING"/></InstanceID></Event>
func LastChange(namespace string, vars []Var) string {
	var b strings.Builder
	b.WriteString(`<Event xmlns="`)
	_ = xml.EscapeText(&b, []byte(namespace))
	b.WriteString(`"><InstanceID val="0">`)
	for _, v := range vars {
		b.WriteString("<")
		b.WriteString(v.Name)
		b.WriteString(` val="`)
		_ = xml.EscapeText(&b, []byte(v.Value))
		b.WriteString(`"/>`)
	}
	b.WriteString("</InstanceID></Event>")
	return b.String()
}
