package elasticbulk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/relex/bulk-sink/base"
	"github.com/relex/bulk-sink/defs"
	"github.com/relex/bulk-sink/util"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
)

// HTTPTransport posts bulk payloads to {endpoint}/_bulk
//
// The underlying http.Client and its connections are reused for all sends.
type HTTPTransport struct {
	logger   logger.Logger
	client   *http.Client
	bulkURL  string
	username string
	password string
	compress bool
	metrics  *clientMetrics
}

// bulkResponse is the part of bulk API response needed to find rejected items
type bulkResponse struct {
	Errors bool                         `json:"errors"`
	Items  []map[string]bulkItemOutcome `json:"items"`
}

type bulkItemOutcome struct {
	Status int             `json:"status"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// NewHTTPTransport creates a HTTPTransport from verified config
func NewHTTPTransport(parentLogger logger.Logger, config UpstreamConfig, metricCreator promreg.MetricCreator) (*HTTPTransport, error) {
	endpoint, err := ParseEndpoint(config.Endpoint)
	if err != nil {
		return nil, err
	}
	timeout := config.RequestTimeout
	if timeout == 0 {
		timeout = defs.TransportRequestTimeout
	}
	return &HTTPTransport{
		logger:   parentLogger.WithFields(logger.Fields{defs.LabelComponent: "BulkHTTPTransport", defs.LabelRemote: endpoint.Host}),
		client:   &http.Client{Timeout: timeout},
		bulkURL:  makeBulkURL(endpoint),
		username: config.Username,
		password: config.Password,
		compress: config.Compress,
		metrics:  newClientMetrics(metricCreator),
	}, nil
}

// BulkURL returns the full URL where payloads are posted
func (transport *HTTPTransport) BulkURL() string {
	return transport.bulkURL
}

// Send posts the payload and classifies the response: 2xx success (or partial failure if items are rejected),
// 4xx client error, anything else transport failure
func (transport *HTTPTransport) Send(payload base.BulkPayload) base.SendOutcome {
	transport.metrics.OnForwarding(payload)
	outcome := transport.send(payload)
	transport.metrics.OnOutcome(payload, outcome)
	return outcome
}

func (transport *HTTPTransport) send(payload base.BulkPayload) base.SendOutcome {
	request, rerr := transport.newRequest(payload.Data)
	if rerr != nil {
		return base.SendOutcome{
			Kind:          base.OutcomeTransportFailure,
			Detail:        rerr.Error(),
			FailedEntries: payload.NumEntries,
			Err:           rerr,
		}
	}

	transport.logger.Debugf("post payload %s", payload.String())
	response, err := transport.client.Do(request)
	if err != nil {
		transport.metrics.OnError(err)
		detail := err.Error()
		if util.IsNetworkTimeout(err) {
			detail = "timeout: " + detail
		}
		return base.SendOutcome{
			Kind:          base.OutcomeTransportFailure,
			Detail:        detail,
			FailedEntries: payload.NumEntries,
			Err:           err,
		}
	}
	defer response.Body.Close()

	status := response.StatusCode
	switch {
	case status >= 200 && status < 300:
		return transport.interpretBulkResponse(payload, response)
	case status >= 400 && status < 500:
		return base.SendOutcome{
			Kind:          base.OutcomeClientError,
			StatusCode:    status,
			Detail:        readResponseExcerpt(response.Body),
			FailedEntries: payload.NumEntries,
		}
	default:
		return base.SendOutcome{
			Kind:          base.OutcomeTransportFailure,
			StatusCode:    status,
			Detail:        readResponseExcerpt(response.Body),
			FailedEntries: payload.NumEntries,
		}
	}
}

func (transport *HTTPTransport) newRequest(data []byte) (*http.Request, error) {
	body := data
	if transport.compress {
		compressed, err := gzipCompress(data)
		if err != nil {
			return nil, err
		}
		body = compressed
	}
	request, err := http.NewRequest(http.MethodPost, transport.bulkURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	request.Header.Set("Content-Type", defs.BulkContentType)
	if transport.compress {
		request.Header.Set("Content-Encoding", defs.GzipContentEncoding)
	}
	if transport.username != "" {
		request.SetBasicAuth(transport.username, transport.password)
	}
	return request, nil
}

// interpretBulkResponse checks per-item results of a 2xx response
//
// Bodies which cannot be parsed are treated as full success, since the status already says so
func (transport *HTTPTransport) interpretBulkResponse(payload base.BulkPayload, response *http.Response) base.SendOutcome {
	success := base.SendOutcome{
		Kind:       base.OutcomeSuccess,
		StatusCode: response.StatusCode,
		Detail:     http.StatusText(response.StatusCode),
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, int64(defs.TransportResponseMaxBytes)))
	if err != nil {
		transport.logger.Warnf("failed to read response of %s: %s", payload.String(), err.Error())
		return success
	}
	var result bulkResponse
	if err := json.Unmarshal(body, &result); err != nil {
		transport.logger.Debugf("unparsable response of %s: %s", payload.String(), err.Error())
		return success
	}
	if !result.Errors {
		return success
	}

	var failedItems []int
	var firstError json.RawMessage
	for i, item := range result.Items {
		for _, itemOutcome := range item {
			if itemOutcome.Status < 300 && (len(itemOutcome.Error) == 0 || string(itemOutcome.Error) == "null") {
				continue
			}
			failedItems = append(failedItems, i)
			if firstError == nil {
				firstError = itemOutcome.Error
			}
			break
		}
	}
	numFailed := len(failedItems)
	if numFailed == 0 || len(result.Items) != payload.NumEntries {
		// items can't be matched to entries; count the whole payload as uncertain
		numFailed = payload.NumEntries
		failedItems = nil
	}
	return base.SendOutcome{
		Kind:          base.OutcomePartialFailure,
		StatusCode:    response.StatusCode,
		Detail:        fmt.Sprintf("%d of %d items rejected, first error: %s", numFailed, payload.NumEntries, excerptString(string(firstError))),
		FailedEntries: numFailed,
		FailedItems:   failedItems,
	}
}

func makeBulkURL(endpoint *url.URL) string {
	u := *endpoint
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + defs.BulkPath
	u.RawPath = ""
	return u.String()
}

func readResponseExcerpt(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, int64(defs.TransportResponseExcerptBytes)+1))
	if err != nil && len(data) == 0 {
		return "failed to read response: " + err.Error()
	}
	return excerptString(string(data))
}

func excerptString(s string) string {
	if len(s) > defs.TransportResponseExcerptBytes {
		return s[:defs.TransportResponseExcerptBytes] + "..."
	}
	return s
}
