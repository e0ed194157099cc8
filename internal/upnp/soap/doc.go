// Package soap parses UPnP control requests and writes their responses.
//
// A control request is a SOAP 1.1 envelope POSTed to a service's control
// URL. ParseRequest extracts the action name, the service namespace and
// the ordered arguments; Dispatch looks the action up in an ActionTable
// built by the service controller; WriteResponse and WriteFault produce
// the reply. Failures are reported as *Error values carrying a UPnP error
// code, which WriteFault renders as an HTTP 500 SOAP fault.
package soap
