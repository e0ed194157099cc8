package description

import (
	"bytes"
	"embed"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/nerrad567/gray-logic-upnp/internal/upnp"
)

//go:embed services/*.xml
var templates embed.FS

// HasSCPD reports whether a template exists for typeVer ("SwitchPower:1").
func HasSCPD(typeVer string) bool {
	_, err := templates.Open(templateName(typeVer))
	return err == nil
}

func templateName(typeVer string) string {
	typ, ver := upnp.SplitTypeVer(typeVer)
	return "services/" + typ + "_" + ver + ".xml"
}

// LoadSCPD renders the service description for typeVer stamped with configID.
//
// Parameters:
//   - typeVer: Service type and version, e.g. "AVTransport:1"
//   - configID: Value for the root configId attribute
//
// Returns:
//   - []byte: Compact UTF-8 XML including the prologue
//   - error: ErrUnknownService if no template exists
func LoadSCPD(typeVer string, configID int) ([]byte, error) {
	raw, err := templates.ReadFile(templateName(typeVer))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, typeVer)
	}

	var out bytes.Buffer
	out.WriteString(upnp.XMLPrologue)

	dec := xml.NewDecoder(bytes.NewReader(raw))
	enc := xml.NewEncoder(&out)
	depth := 0

	for {
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, typeVer, err)
		}

		switch t := tok.(type) {
		case xml.ProcInst, xml.Comment, xml.Directive:
			continue
		case xml.CharData:
			trimmed := bytes.TrimSpace(t)
			if len(trimmed) == 0 {
				continue
			}
			tok = xml.CharData(trimmed)
		case xml.StartElement:
			if depth == 0 {
				tok = stampRoot(t, configID)
			}
			depth++
		case xml.EndElement:
			depth--
		}

		if err := enc.EncodeToken(tok); err != nil {
			return nil, fmt.Errorf("encoding %s: %w", typeVer, err)
		}
	}

	if err := enc.Flush(); err != nil {
		return nil, fmt.Errorf("encoding %s: %w", typeVer, err)
	}
	return out.Bytes(), nil
}

// stampRoot drops namespace declarations and configId from the root
// element and adds the service schema as default namespace and the
// current configId.
func stampRoot(start xml.StartElement, configID int) xml.StartElement {
	attrs := []xml.Attr{{Name: xml.Name{Local: "xmlns"}, Value: upnp.ServiceSchema}}
	for _, a := range start.Attr {
		if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" || a.Name.Local == "configId" {
			continue
		}
		attrs = append(attrs, a)
	}
	attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "configId"}, Value: strconv.Itoa(configID)})

	start.Name.Space = ""
	start.Attr = attrs
	return start
}

// SCPDRegistry caches rendered service descriptions per service type.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type SCPDRegistry struct {
	mu   sync.RWMutex
	docs map[string]scpdDoc
}

type scpdDoc struct {
	configID int
	data     []byte
}

// NewSCPDRegistry creates an empty registry.
func NewSCPDRegistry() *SCPDRegistry {
	return &SCPDRegistry{docs: make(map[string]scpdDoc)}
}

// Ensure makes sure typeVer is registered, rendering it at configID if it
// is new. It reports whether the type was added by this call.
func (r *SCPDRegistry) Ensure(typeVer string, configID int) (added bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.docs[typeVer]; ok {
		return false, nil
	}
	data, err := LoadSCPD(typeVer, configID)
	if err != nil {
		return false, err
	}
	r.docs[typeVer] = scpdDoc{configID: configID, data: data}
	return true, nil
}

// Get returns the description of typeVer rendered at configID, re-rendering
// a cached copy that carries an older config id. Types that were never
// registered yield ErrUnknownService.
func (r *SCPDRegistry) Get(typeVer string, configID int) ([]byte, error) {
	r.mu.RLock()
	doc, ok := r.docs[typeVer]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, typeVer)
	}
	if doc.configID == configID {
		return doc.data, nil
	}

	data, err := LoadSCPD(typeVer, configID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.docs[typeVer] = scpdDoc{configID: configID, data: data}
	r.mu.Unlock()
	return data, nil
}

// Lookup finds a registered type from its URL form "<Type>_<ver>".
func (r *SCPDRegistry) Lookup(pathSegment string) (typeVer string, ok bool) {
	i := strings.LastIndex(pathSegment, "_")
	if i <= 0 {
		return "", false
	}
	typeVer = pathSegment[:i] + ":" + pathSegment[i+1:]

	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok = r.docs[typeVer]
	return typeVer, ok
}

// Types returns the registered service types.
func (r *SCPDRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.docs))
	for t := range r.docs {
		types = append(types, t)
	}
	return types
}
