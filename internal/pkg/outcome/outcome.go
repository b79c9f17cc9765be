// Package outcome IMS LTI 1.1 Basic Outcomes 客户端, 以带 oauth_body_hash 签名的 POST 发送 POX replaceResult
package outcome

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"lti-tool-provider/internal/pkg/oauth1"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	Namespace    = "http://www.imsglobal.org/services/ltiv1p1/xsd/imsoms_v1p0"
	imsxVersion  = "V1.0"
	contentType  = "application/xml"
	maxBodyBytes = 1 << 20

	CodeMajorSuccess = "success"
)

// Client 发送 replaceResult 请求
type Client struct {
	httpClient *http.Client
	messageID  func() string
}

type Option func(*Client)

// WithHTTPClient 替换默认的 otelhttp 客户端
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

func WithMessageID(fn func() string) Option {
	return func(client *Client) {
		client.messageID = fn
	}
}

// NewClient 创建客户端, 签名包在 httpClient 外层.
// 默认 http.Client 不设置超时, 由调用方通过 context 控制截止时间.
func NewClient(consumerKey, consumerSecret string, opts ...Option) (*Client, error) {
	c := &Client{
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		messageID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}

	signed, err := oauth1.NewBodyHashClient(consumerKey, consumerSecret, c.httpClient)
	if err != nil {
		return nil, err
	}
	c.httpClient = signed
	return c, nil
}

// Response 是 imsx_POXEnvelopeResponse 中的状态信息
type Response struct {
	CodeMajor              string
	Severity               string
	Description            string
	MessageIdentifier      string
	MessageRefIdentifier   string
	OperationRefIdentifier string
}

func (r *Response) IsSuccess() bool {
	return r != nil && r.CodeMajor == CodeMajorSuccess
}

// ReplaceResult 把 score 写入 sourcedID 对应的成绩. 非 success 的响应不作为 error 返回,
// 由调用方根据 IsSuccess 判断.
func (c *Client) ReplaceResult(ctx context.Context, serviceURL, sourcedID string, score float64) (*Response, error) {
	messageID := c.messageID()
	body, err := buildReplaceResult(messageID, sourcedID, score)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serviceURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create outcome request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post outcome request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read outcome response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("outcome service returned status %d", resp.StatusCode)
	}

	return parseResponse(payload)
}

type envelopeRequest struct {
	XMLName   xml.Name `xml:"imsx_POXEnvelopeRequest"`
	Namespace string   `xml:"xmlns,attr"`
	Version   string   `xml:"imsx_POXHeader>imsx_POXRequestHeaderInfo>imsx_version"`
	MessageID string   `xml:"imsx_POXHeader>imsx_POXRequestHeaderInfo>imsx_messageIdentifier"`
	SourcedID string   `xml:"imsx_POXBody>replaceResultRequest>resultRecord>sourcedGUID>sourcedId"`
	Language  string   `xml:"imsx_POXBody>replaceResultRequest>resultRecord>result>resultScore>language"`
	Score     string   `xml:"imsx_POXBody>replaceResultRequest>resultRecord>result>resultScore>textString"`
}

func buildReplaceResult(messageID, sourcedID string, score float64) ([]byte, error) {
	env := envelopeRequest{
		Namespace: Namespace,
		Version:   imsxVersion,
		MessageID: messageID,
		SourcedID: sourcedID,
		Language:  "en",
		Score:     strconv.FormatFloat(score, 'f', -1, 64),
	}
	out, err := xml.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode replaceResult request: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

type envelopeResponse struct {
	XMLName xml.Name `xml:"imsx_POXEnvelopeResponse"`
	Header  struct {
		MessageID string `xml:"imsx_messageIdentifier"`
		Status    struct {
			CodeMajor              string `xml:"imsx_codeMajor"`
			Severity               string `xml:"imsx_severity"`
			Description            string `xml:"imsx_description"`
			MessageRefIdentifier   string `xml:"imsx_messageRefIdentifier"`
			OperationRefIdentifier string `xml:"imsx_operationRefIdentifier"`
		} `xml:"imsx_statusInfo"`
	} `xml:"imsx_POXHeader>imsx_POXResponseHeaderInfo"`
}

func parseResponse(payload []byte) (*Response, error) {
	var env envelopeResponse
	if err := xml.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode outcome response: %w", err)
	}
	s := env.Header.Status
	return &Response{
		CodeMajor:              s.CodeMajor,
		Severity:               s.Severity,
		Description:            s.Description,
		MessageIdentifier:      env.Header.MessageID,
		MessageRefIdentifier:   s.MessageRefIdentifier,
		OperationRefIdentifier: s.OperationRefIdentifier,
	}, nil
}
