package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// HTTPTransport is the default Transport, grounded on the teacher's
// rpc/server.go + rpc/client.go dial/request pattern but carried over
// net/http instead of the teacher's incomplete gRPC wiring (no .proto
// sources ever shipped with the teacher — see DESIGN.md).
type HTTPTransport struct {
	client *http.Client
}

func NewHTTPTransport(dialTimeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: dialTimeout}).DialContext,
			},
		},
	}
}

func (t *HTTPTransport) Send(ctx context.Context, endpoint, method, path string, body []byte) Result {
	correlationID := uuid.New()
	log.WithFields(log.Fields{"endpoint": endpoint, "path": path, "cid": correlationID}).Debug("transport: send")

	u, err := buildURL(endpoint, path)
	if err != nil {
		return Result{Status: StatusError, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(body))
	if err != nil {
		return Result{Status: StatusError, Err: err}
	}
	req.Header.Set("X-Correlation-Id", correlationID.String())
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		status := StatusError
		if errors.Is(err, context.DeadlineExceeded) {
			status = StatusTimeout
		} else if isUnreachable(err) {
			status = StatusUnreachable
		}
		log.WithFields(log.Fields{"endpoint": endpoint, "cid": correlationID, "err": err}).Warn("transport: send failed")
		return Result{Status: status, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Status: StatusError, Err: err}
	}
	return Result{Body: respBody, Status: StatusOK}
}

func (t *HTTPTransport) SendAsync(endpoint, method, path string, body []byte) {
	go func() {
		defer recoverLog()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		res := t.Send(ctx, endpoint, method, path, body)
		if res.Err != nil {
			log.WithFields(log.Fields{"endpoint": endpoint, "path": path, "err": res.Err}).Debug("transport: fire-and-forget failed")
		}
	}()
}

func (t *HTTPTransport) Notify(uri string, body []byte) {
	go func() {
		defer recoverLog()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, bytes.NewReader(body))
		if err != nil {
			log.WithFields(log.Fields{"uri": uri, "err": err}).Warn("transport: bad observer uri")
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := t.client.Do(req)
		if err != nil {
			log.WithFields(log.Fields{"uri": uri, "err": err}).Debug("transport: observer notify failed")
			return
		}
		resp.Body.Close()
	}()
}

// buildURL concatenates endpoint + path rather than routing through
// net/url's Path field, since path already carries its own query
// string (e.g. "/_api/agency_priv/requestVote?term=..."). An endpoint
// given as plain "host:port" is prefixed with "http://".
func buildURL(endpoint, path string) (string, error) {
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	if _, err := url.Parse(endpoint); err != nil {
		return "", err
	}
	return strings.TrimRight(endpoint, "/") + path, nil
}

func isUnreachable(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}

func recoverLog() {
	if r := recover(); r != nil {
		log.WithField("panic", r).Error("transport: recovered from panic")
	}
}
