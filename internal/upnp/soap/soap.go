package soap

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/nerrad567/gray-logic-upnp/internal/upnp"
)

// SOAP 1.1 namespaces.
const (
	EnvelopeNamespace = "http://schemas.xmlsoap.org/soap/envelope/"
	EncodingStyle     = "http://schemas.xmlsoap.org/soap/encoding/"
)

// maxBodySize bounds the envelope read from a control request.
const maxBodySize = 1 << 20

// Arg is one named action argument.
type Arg struct {
	Name  string
	Value string
}

// Request is a parsed control request.
type Request struct {
	// Namespace is the service type URN of the action element.
	Namespace string
	Action    string
	Args      []Arg
}

// Arg returns the value of the named argument.
func (r *Request) Arg(name string) (string, bool) {
	for _, a := range r.Args {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Handler performs one action. Returned arguments are written in order.
type Handler func(ctx context.Context, req *Request) ([]Arg, error)

// ActionTable maps action names to their handlers.
type ActionTable map[string]Handler

type envelope struct {
	XMLName xml.Name
	Body    struct {
		Actions []actionElement `xml:",any"`
	} `xml:"Body"`
}

type actionElement struct {
	XMLName xml.Name
	Args    []argElement `xml:",any"`
}

type argElement struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

// ParseRequest reads a control request.
//
// Parameters:
//   - r: The incoming HTTP request; its body is consumed
//
// Returns:
//   - *Request: Action, namespace and ordered arguments
//   - error: ErrNotSOAP if r is not a SOAP request, ErrMalformed if the
//     envelope cannot be decoded
func ParseRequest(r *http.Request) (*Request, error) {
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		mediaType, params = "", nil
	}
	if r.Header.Get("SOAPAction") == "" && mediaType != "application/soap+xml" {
		return nil, ErrNotSOAP
	}

	body := io.LimitReader(r.Body, maxBodySize)
	dec := newDecoder(body, params["charset"])
	if dec == nil {
		return nil, fmt.Errorf("%w: unsupported charset %q", ErrMalformed, params["charset"])
	}

	var env envelope
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.XMLName.Local != "Envelope" {
		return nil, fmt.Errorf("%w: root element %q", ErrMalformed, env.XMLName.Local)
	}
	if len(env.Body.Actions) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformed)
	}

	action := env.Body.Actions[0]
	req := &Request{
		Namespace: action.XMLName.Space,
		Action:    action.XMLName.Local,
		Args:      make([]Arg, 0, len(action.Args)),
	}
	for _, a := range action.Args {
		req.Args = append(req.Args, Arg{Name: a.XMLName.Local, Value: a.Value})
	}
	return req, nil
}

// newDecoder returns an XML decoder reading body as UTF-8. A charset from
// the Content-Type header takes precedence over the XML declaration.
// It returns nil when the charset is unknown.
func newDecoder(body io.Reader, label string) *xml.Decoder {
	label = strings.TrimSpace(label)
	if label == "" || strings.EqualFold(label, "utf-8") || strings.EqualFold(label, "utf8") {
		dec := xml.NewDecoder(body)
		dec.CharsetReader = charset.NewReaderLabel
		return dec
	}

	converted, err := charset.NewReaderLabel(label, body)
	if err != nil {
		return nil
	}
	dec := xml.NewDecoder(converted)
	// Already converted; ignore the declaration's encoding.
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	return dec
}

// Dispatch runs the handler registered for req.Action.
//
// An unknown action yields error 401. A handler error that is not an
// *Error becomes 501 Action Failed.
func Dispatch(ctx context.Context, table ActionTable, req *Request) ([]Arg, error) {
	h, ok := table[req.Action]
	if !ok {
		return nil, NewError(CodeInvalidAction)
	}

	args, err := h(ctx, req)
	if err != nil {
		return nil, AsError(err)
	}
	return args, nil
}

// AsError converts err to an *Error, mapping anything else to 501.
func AsError(err error) *Error {
	var soapErr *Error
	if errors.As(err, &soapErr) {
		return soapErr
	}
	return NewError(CodeActionFailed)
}

// WriteResponse writes the success envelope for action of serviceType.
func WriteResponse(w http.ResponseWriter, serviceType, action string, args []Arg) error {
	var b strings.Builder
	openEnvelope(&b)
	b.WriteString(`<u:`)
	b.WriteString(action)
	b.WriteString(`Response xmlns:u="`)
	escape(&b, serviceType)
	b.WriteString(`">`)
	for _, a := range args {
		b.WriteString("<")
		b.WriteString(a.Name)
		b.WriteString(">")
		escape(&b, a.Value)
		b.WriteString("</")
		b.WriteString(a.Name)
		b.WriteString(">")
	}
	b.WriteString(`</u:`)
	b.WriteString(action)
	b.WriteString(`Response>`)
	closeEnvelope(&b)

	return write(w, http.StatusOK, b.String())
}

// WriteFault writes err as a SOAP fault with HTTP status 500.
func WriteFault(w http.ResponseWriter, err *Error) error {
	var b strings.Builder
	openEnvelope(&b)
	b.WriteString(`<s:Fault><faultcode>s:Client</faultcode><faultstring>UPnPError</faultstring><detail>`)
	b.WriteString(`<UPnPError xmlns="` + upnp.ControlSchema + `">`)
	b.WriteString(`<errorCode>` + strconv.Itoa(err.Code) + `</errorCode>`)
	b.WriteString(`<errorDescription>`)
	escape(&b, err.Description)
	b.WriteString(`</errorDescription></UPnPError></detail></s:Fault>`)
	closeEnvelope(&b)

	return write(w, http.StatusInternalServerError, b.String())
}

func openEnvelope(b *strings.Builder) {
	b.WriteString(upnp.XMLPrologue)
	b.WriteString(`<s:Envelope xmlns:s="` + EnvelopeNamespace + `" s:encodingStyle="` + EncodingStyle + `">`)
	b.WriteString(`<s:Body>`)
}

func closeEnvelope(b *strings.Builder) {
	b.WriteString(`</s:Body></s:Envelope>`)
}

func escape(b *strings.Builder, s string) {
	_ = xml.EscapeText(b, []byte(s)) // strings.Builder never fails
}

func write(w http.ResponseWriter, status int, body string) error {
	w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Header().Set("EXT", "")
	w.WriteHeader(status)
	_, err := io.WriteString(w, body)
	return err
}
