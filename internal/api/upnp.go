package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-upnp/internal/upnp"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp/device"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp/gena"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp/soap"
)

// xmlContentType is the Content-Type of description documents.
const xmlContentType = `text/xml; charset="utf-8"`

// handleDeviceDescription serves GET /{uuid}/description.xml.
func (s *Server) handleDeviceDescription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var doc []byte
	if !s.onLoop(w, r, func() {
		if a, ok := s.registry.Get(id); ok {
			doc = a.Description()
		}
	}) {
		return
	}
	if doc == nil {
		writeNotFound(w, r, "device not found")
		return
	}
	writeXML(w, doc)
}

// handleServiceDescription serves GET /{Type}_{ver}/service.xml.
func (s *Server) handleServiceDescription(w http.ResponseWriter, r *http.Request) {
	segment := chi.URLParam(r, "id")

	var (
		doc   []byte
		found bool
	)
	if !s.onLoop(w, r, func() {
		doc, found = s.registry.SCPD(segment)
	}) {
		return
	}
	if !found {
		writeNotFound(w, r, "service description not found")
		return
	}
	writeXML(w, doc)
}

// handleControl serves POST /{uuid}/{serviceID}/control.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	req, err := soap.ParseRequest(r)
	switch {
	case errors.Is(err, soap.ErrNotSOAP):
		writeNotFound(w, r, "not a SOAP request")
		return
	case err != nil:
		s.logger.Debug("rejecting control request", "path", r.URL.Path, "error", err)
		writeBadRequest(w, r, "malformed SOAP envelope")
		return
	}

	var (
		svc    *device.ServiceInstance
		args   []soap.Arg
		actErr error
	)
	if !s.onLoop(w, r, func() {
		var ok bool
		if svc, ok = s.service(r); ok {
			args, actErr = soap.Dispatch(r.Context(), svc.Actions, req)
		}
	}) {
		return
	}
	if svc == nil {
		writeNotFound(w, r, "service not found")
		return
	}

	if actErr != nil {
		fault := soap.AsError(actErr)
		s.logger.Debug("action failed",
			"service", svc.Type, "action", req.Action, "code", fault.Code)
		//nolint:errcheck // Best-effort write; connection may be closed
		soap.WriteFault(w, fault)
		return
	}
	//nolint:errcheck // Best-effort write; connection may be closed
	soap.WriteResponse(w, upnp.ServiceType(svc.Type), req.Action, args)
}

// handleSubscribe serves SUBSCRIBE /{uuid}/{serviceID}/sub, both for new
// subscriptions and for renewals (requests carrying a SID).
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	sid := r.Header.Get("SID")
	callback := r.Header.Get("CALLBACK")
	nt := r.Header.Get("NT")
	timeout := gena.ParseTimeout(r.Header.Get("TIMEOUT"))

	if sid != "" {
		if callback != "" || nt != "" {
			writeBadRequest(w, r, "renewal must not carry CALLBACK or NT")
			return
		}
		s.renew(w, r, sid, timeout)
		return
	}

	if nt != gena.NTEvent {
		writePreconditionFailed(w, r, "NT must be "+gena.NTEvent)
		return
	}
	callbacks, err := gena.ParseCallbacks(callback)
	if err != nil {
		writePreconditionFailed(w, r, "no usable CALLBACK")
		return
	}

	var (
		pub     *gena.Publisher
		granted time.Duration
	)
	if !s.onLoop(w, r, func() {
		svc, ok := s.service(r)
		if !ok {
			return
		}
		pub = svc.Publisher
		sid, granted = pub.Subscribe(callbacks, timeout)
	}) {
		return
	}
	if pub == nil {
		writeNotFound(w, r, "service not found")
		return
	}
	writeSubscription(w, sid, granted)

	// The initial NOTIFY must not overtake the response carrying the SID.
	http.NewResponseController(w).Flush() //nolint:errcheck // delivery starts either way
	s.loop.Post(func() { pub.Activate(sid) })
}

func (s *Server) renew(w http.ResponseWriter, r *http.Request, sid string, timeout time.Duration) {
	var (
		found, renewed bool
		granted        time.Duration
	)
	if !s.onLoop(w, r, func() {
		svc, ok := s.service(r)
		if !ok {
			return
		}
		found = true
		granted, renewed = svc.Publisher.Renew(sid, timeout)
	}) {
		return
	}
	switch {
	case !found:
		writeNotFound(w, r, "service not found")
	case !renewed:
		writePreconditionFailed(w, r, "unknown SID")
	default:
		writeSubscription(w, sid, granted)
	}
}

// handleUnsubscribe serves UNSUBSCRIBE /{uuid}/{serviceID}/sub.
func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	sid := r.Header.Get("SID")
	if sid == "" {
		writePreconditionFailed(w, r, "SID is required")
		return
	}
	if r.Header.Get("CALLBACK") != "" || r.Header.Get("NT") != "" {
		writeBadRequest(w, r, "UNSUBSCRIBE must not carry CALLBACK or NT")
		return
	}

	var found, removed bool
	if !s.onLoop(w, r, func() {
		svc, ok := s.service(r)
		if !ok {
			return
		}
		found = true
		removed = svc.Publisher.Unsubscribe(sid)
	}) {
		return
	}
	switch {
	case !found:
		writeNotFound(w, r, "service not found")
	case !removed:
		writePreconditionFailed(w, r, "unknown SID")
	default:
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusOK)
	}
}

// service resolves the {id} and {service} URL parameters. It must be
// called on the event loop.
func (s *Server) service(r *http.Request) (*device.ServiceInstance, bool) {
	a, ok := s.registry.Get(chi.URLParam(r, "id"))
	if !ok {
		return nil, false
	}
	// chi matches the raw path, so "SwitchPower%3A1" arrives escaped.
	id := chi.URLParam(r, "service")
	if u, err := url.PathUnescape(id); err == nil {
		id = u
	}
	return a.Service(id)
}

func writeXML(w http.ResponseWriter, doc []byte) {
	w.Header().Set("Content-Type", xmlContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(doc)))
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write; connection may be closed
	w.Write(doc)
}

// writeSubscription writes the success answer of a SUBSCRIBE. The SERVER
// header is set by middleware.
func writeSubscription(w http.ResponseWriter, sid string, timeout time.Duration) {
	h := w.Header()
	h.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	h.Set("SID", sid)
	h.Set("Timeout", gena.FormatTimeout(timeout))
	h.Set("Content-Length", "0")
	w.WriteHeader(http.StatusOK)
}
