package gena

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Notification is one NOTIFY message for one subscription.
type Notification struct {
	SID  string
	Seq  uint32
	Body []byte
}

// Sender delivers a notification to one callback URL.
type Sender interface {
	Notify(ctx context.Context, callback string, n Notification) error
}

// HTTPSender sends NOTIFY requests over HTTP.
type HTTPSender struct {
	client *http.Client
}

// NewHTTPSender creates a sender whose requests time out after timeout.
func NewHTTPSender(timeout time.Duration) *HTTPSender {
	return &HTTPSender{client: &http.Client{Timeout: timeout}}
}

// Notify implements Sender. Any non-2xx answer is ErrDelivery.
func (s *HTTPSender) Notify(ctx context.Context, callback string, n Notification) error {
	req, err := http.NewRequestWithContext(ctx, "NOTIFY", callback, bytes.NewReader(n.Body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	// Some control points match these header names case-sensitively.
	req.Header["CONTENT-TYPE"] = []string{`text/xml; charset="utf-8"`}
	req.Header["NT"] = []string{NTEvent}
	req.Header["NTS"] = []string{NTSPropChange}
	req.Header["SID"] = []string{n.SID}
	req.Header["SEQ"] = []string{strconv.FormatUint(uint64(n.Seq), 10)}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	defer resp.Body.Close() //nolint:errcheck // response body
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s answered %d", ErrDelivery, callback, resp.StatusCode)
	}
	return nil
}
