package soap

import (
	"context"
	"encoding/xml"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const avtNamespace = "urn:schemas-upnp-org:service:AVTransport:1"

func controlRequest(body string, headers map[string]string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/uuid/AVTransport:1/control", strings.NewReader(body))
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return r
}

func envelopeWith(inner string) string {
	return `<?xml version="1.0" encoding="utf-8"?>` +
		`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" ` +
		`s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/"><s:Body>` +
		inner + `</s:Body></s:Envelope>`
}

func TestParseRequest(t *testing.T) {
	body := envelopeWith(`<u:SetAVTransportURI xmlns:u="` + avtNamespace + `">` +
		`<InstanceID>0</InstanceID>` +
		`<CurrentURI>http://x/a.mp3</CurrentURI>` +
		`<CurrentURIMetaData>&lt;DIDL-Lite&gt;&lt;/DIDL-Lite&gt;</CurrentURIMetaData>` +
		`</u:SetAVTransportURI>`)
	r := controlRequest(body, map[string]string{
		"Content-Type": `text/xml; charset="utf-8"`,
		"SOAPAction":   `"` + avtNamespace + `#SetAVTransportURI"`,
	})

	req, err := ParseRequest(r)
	if err != nil {
		t.Fatalf("ParseRequest() error = %v", err)
	}

	want := &Request{
		Namespace: avtNamespace,
		Action:    "SetAVTransportURI",
		Args: []Arg{
			{Name: "InstanceID", Value: "0"},
			{Name: "CurrentURI", Value: "http://x/a.mp3"},
			{Name: "CurrentURIMetaData", Value: "<DIDL-Lite></DIDL-Lite>"},
		},
	}
	if diff := cmp.Diff(want, req); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}

	if v, ok := req.Arg("CurrentURI"); !ok || v != "http://x/a.mp3" {
		t.Errorf("Arg(CurrentURI) = %q, %v", v, ok)
	}
	if _, ok := req.Arg("Missing"); ok {
		t.Error("Arg(Missing) should not be found")
	}
}

func TestParseRequestSOAP12ContentType(t *testing.T) {
	body := envelopeWith(`<u:Play xmlns:u="` + avtNamespace + `"><InstanceID>0</InstanceID><Speed>1</Speed></u:Play>`)
	r := controlRequest(body, map[string]string{"Content-Type": "application/soap+xml"})

	req, err := ParseRequest(r)
	if err != nil {
		t.Fatalf("ParseRequest() error = %v", err)
	}
	if req.Action != "Play" || len(req.Args) != 2 {
		t.Errorf("got action %q with %d args", req.Action, len(req.Args))
	}
}

func TestParseRequestCharset(t *testing.T) {
	// "Caf\xe9" is "Café" in ISO-8859-1.
	body := `<?xml version="1.0"?>` +
		`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body>` +
		`<u:SetAVTransportURI xmlns:u="` + avtNamespace + `"><CurrentURIMetaData>Caf` + "\xe9" +
		`</CurrentURIMetaData></u:SetAVTransportURI></s:Body></s:Envelope>`

	tests := []struct {
		name    string
		headers map[string]string
		body    string
	}{
		{
			name: "content type charset",
			headers: map[string]string{
				"Content-Type": "text/xml; charset=iso-8859-1",
				"SOAPAction":   `"x#SetAVTransportURI"`,
			},
			body: body,
		},
		{
			name:    "xml declaration",
			headers: map[string]string{"SOAPAction": `"x#SetAVTransportURI"`},
			body:    strings.Replace(body, `<?xml version="1.0"?>`, `<?xml version="1.0" encoding="ISO-8859-1"?>`, 1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseRequest(controlRequest(tt.body, tt.headers))
			if err != nil {
				t.Fatalf("ParseRequest() error = %v", err)
			}
			if v, _ := req.Arg("CurrentURIMetaData"); v != "Café" {
				t.Errorf("CurrentURIMetaData = %q, want %q", v, "Café")
			}
		})
	}
}

func TestParseRequestErrors(t *testing.T) {
	soapHeaders := map[string]string{"SOAPAction": `"x#y"`, "Content-Type": "text/xml"}

	tests := []struct {
		name    string
		body    string
		headers map[string]string
		wantErr error
	}{
		{
			name:    "plain post",
			body:    envelopeWith(`<u:Play xmlns:u="x"/>`),
			headers: map[string]string{"Content-Type": "text/xml"},
			wantErr: ErrNotSOAP,
		},
		{name: "not xml", body: "hello", headers: soapHeaders, wantErr: ErrMalformed},
		{name: "wrong root", body: `<html><Body><Play/></Body></html>`, headers: soapHeaders, wantErr: ErrMalformed},
		{name: "empty body", body: envelopeWith(""), headers: soapHeaders, wantErr: ErrMalformed},
		{
			name:    "unknown charset",
			body:    envelopeWith(`<u:Play xmlns:u="x"/>`),
			headers: map[string]string{"SOAPAction": `"x#y"`, "Content-Type": "text/xml; charset=klingon"},
			wantErr: ErrMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRequest(controlRequest(tt.body, tt.headers))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ParseRequest() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDispatch(t *testing.T) {
	table := ActionTable{
		"GetVolume": func(_ context.Context, _ *Request) ([]Arg, error) {
			return []Arg{{Name: "CurrentVolume", Value: "50"}}, nil
		},
		"SetVolume": func(_ context.Context, _ *Request) ([]Arg, error) {
			return nil, NewError(CodeArgumentValueOutOfRange)
		},
		"Broken": func(_ context.Context, _ *Request) ([]Arg, error) {
			return nil, errors.New("player offline")
		},
	}

	tests := []struct {
		action   string
		wantArgs []Arg
		wantCode int
	}{
		{action: "GetVolume", wantArgs: []Arg{{Name: "CurrentVolume", Value: "50"}}},
		{action: "SetVolume", wantCode: CodeArgumentValueOutOfRange},
		{action: "Broken", wantCode: CodeActionFailed},
		{action: "SelfDestruct", wantCode: CodeInvalidAction},
	}

	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			args, err := Dispatch(context.Background(), table, &Request{Action: tt.action})
			if tt.wantCode == 0 {
				if err != nil {
					t.Fatalf("Dispatch() error = %v", err)
				}
				if diff := cmp.Diff(tt.wantArgs, args); diff != "" {
					t.Errorf("args mismatch (-want +got):\n%s", diff)
				}
				return
			}
			var soapErr *Error
			if !errors.As(err, &soapErr) {
				t.Fatalf("Dispatch() error = %v, want *Error", err)
			}
			if soapErr.Code != tt.wantCode || soapErr.Description != Description(tt.wantCode) {
				t.Errorf("error = %d %q, want %d", soapErr.Code, soapErr.Description, tt.wantCode)
			}
		})
	}
}

func TestWriteResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	err := WriteResponse(rec, avtNamespace, "GetTransportInfo", []Arg{
		{Name: "CurrentTransportState", Value: "PLAYING"},
		{Name: "CurrentTransportStatus", Value: "OK"},
		{Name: "CurrentSpeed", Value: "1"},
	})
	if err != nil {
		t.Fatalf("WriteResponse() error = %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != `text/xml; charset="utf-8"` {
		t.Errorf("Content-Type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "<?xml version='1.0' encoding='utf-8'?>") {
		t.Errorf("missing prologue: %q", body)
	}
	if !strings.Contains(body, `<u:GetTransportInfoResponse xmlns:u="`+avtNamespace+`">`) {
		t.Errorf("missing response element: %s", body)
	}

	// The written envelope parses as a request with the same arguments.
	r := controlRequest(body, map[string]string{"SOAPAction": `"x#y"`})
	got, err := ParseRequest(r)
	if err != nil {
		t.Fatalf("response does not parse: %v", err)
	}
	if got.Action != "GetTransportInfoResponse" || got.Namespace != avtNamespace {
		t.Errorf("parsed %s in %s", got.Action, got.Namespace)
	}
	if v, _ := got.Arg("CurrentTransportState"); v != "PLAYING" {
		t.Errorf("CurrentTransportState = %q", v)
	}
}

func TestWriteResponseEscapes(t *testing.T) {
	rec := httptest.NewRecorder()
	meta := `<DIDL-Lite xmlns="urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/"><item id="1"/></DIDL-Lite>`
	if err := WriteResponse(rec, avtNamespace, "GetMediaInfo", []Arg{{Name: "CurrentURIMetaData", Value: meta}}); err != nil {
		t.Fatalf("WriteResponse() error = %v", err)
	}
	if strings.Contains(rec.Body.String(), "<DIDL-Lite") {
		t.Error("metadata was not escaped")
	}
	got, err := ParseRequest(controlRequest(rec.Body.String(), map[string]string{"SOAPAction": `"x#y"`}))
	if err != nil {
		t.Fatalf("ParseRequest() error = %v", err)
	}
	if v, _ := got.Arg("CurrentURIMetaData"); v != meta {
		t.Errorf("metadata = %q, want %q", v, meta)
	}
}

func TestWriteFault(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := WriteFault(rec, NewError(CodeInvalidAction)); err != nil {
		t.Fatalf("WriteFault() error = %v", err)
	}

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}

	var fault struct {
		Body struct {
			Fault struct {
				Code   string `xml:"faultcode"`
				String string `xml:"faultstring"`
				Detail struct {
					UPnPError struct {
						XMLName     xml.Name
						Code        int    `xml:"errorCode"`
						Description string `xml:"errorDescription"`
					} `xml:"UPnPError"`
				} `xml:"detail"`
			} `xml:"Fault"`
		} `xml:"Body"`
	}
	if err := xml.Unmarshal(rec.Body.Bytes(), &fault); err != nil {
		t.Fatalf("fault does not parse: %v", err)
	}
	f := fault.Body.Fault
	if f.Code != "s:Client" || f.String != "UPnPError" {
		t.Errorf("faultcode/faultstring = %q/%q", f.Code, f.String)
	}
	if f.Detail.UPnPError.XMLName.Space != "urn:schemas-upnp-org:control-1-0" {
		t.Errorf("UPnPError namespace = %q", f.Detail.UPnPError.XMLName.Space)
	}
	if f.Detail.UPnPError.Code != 401 || f.Detail.UPnPError.Description != "Invalid Action" {
		t.Errorf("error = %d %q", f.Detail.UPnPError.Code, f.Detail.UPnPError.Description)
	}
}

func TestDescription(t *testing.T) {
	tests := map[int]string{
		401: "Invalid Action",
		402: "Invalid Args",
		501: "Action Failed",
		600: "Argument Value Invalid",
		601: "Argument Value Out of Range",
		602: "Optional Action Not Implemented",
		603: "Out of Memory",
		604: "Human Intervention Required",
		605: "String Argument Too Long",
		999: "Action Failed",
	}
	for code, want := range tests {
		if got := Description(code); got != want {
			t.Errorf("Description(%d) = %q, want %q", code, got, want)
		}
	}
}
