// Package firestore reads and writes the datalog collection through the
// Firestore REST API.
package firestore

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"liyu1981.xyz/water-quality-monitor/pkg/common"
	"liyu1981.xyz/water-quality-monitor/pkg/config"
	"liyu1981.xyz/water-quality-monitor/pkg/datalog"
)

const (
	fieldValue     = "value"
	fieldTimestamp = "timestamp"

	defaultDatabase = "(default)"
)

type runQueryRequest struct {
	StructuredQuery structuredQuery `json:"structuredQuery"`
}

type structuredQuery struct {
	From  []collectionSelector `json:"from"`
	Where filter               `json:"where"`
}

type collectionSelector struct {
	CollectionID string `json:"collectionId"`
}

type filter struct {
	FieldFilter fieldFilter `json:"fieldFilter"`
}

type fieldFilter struct {
	Field fieldReference `json:"field"`
	Op    string         `json:"op"`
	Value value          `json:"value"`
}

type fieldReference struct {
	FieldPath string `json:"fieldPath"`
}

// runQuery streams one entry per match; an entry without a document only
// carries the read time.
type runQueryResponse struct {
	Document *document `json:"document,omitempty"`
	ReadTime string    `json:"readTime,omitempty"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

type Client struct {
	httpClient *resty.Client
	project    string
	database   string
	apiKey     string
}

func NewClient(cfg config.FirestoreConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = config.DefaultFirestoreBaseURL
	}
	database := cfg.Database
	if database == "" {
		database = defaultDatabase
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: httpClient,
		project:    cfg.ProjectID,
		database:   database,
		apiKey:     cfg.APIKey,
	}
}

func (c *Client) logger(category string) *zap.Logger {
	return common.GetLoggerWith(
		common.LoggerNameFirestoreClient,
		zap.String(common.LoggerFieldCategory, category),
	)
}

func (c *Client) documentsPath() string {
	return fmt.Sprintf("/projects/%s/databases/%s/documents",
		url.PathEscape(c.project), url.PathEscape(c.database))
}

func (c *Client) request(ctx context.Context) *resty.Request {
	r := c.httpClient.R().SetContext(ctx).SetError(&errorResponse{})
	if c.apiKey != "" {
		r.SetQueryParam("key", c.apiKey)
	}
	return r
}

func responseError(op string, resp *resty.Response) error {
	if e, ok := resp.Error().(*errorResponse); ok && e.Error.Message != "" {
		return fmt.Errorf("firestore %s: %s: %s", op, resp.Status(), e.Error.Message)
	}
	return fmt.Errorf("firestore %s: %s", op, resp.Status())
}

// Query runs an equality query and returns matches in server order.
func (c *Client) Query(ctx context.Context, q datalog.Query) ([]datalog.Document, error) {
	if q.Collection == "" || q.Field == "" {
		return nil, fmt.Errorf("%w: collection and field are required", datalog.ErrUnsupportedQuery)
	}

	logger := c.logger(common.LoggerCategoryFetch)

	body := runQueryRequest{
		StructuredQuery: structuredQuery{
			From: []collectionSelector{{CollectionID: q.Collection}},
			Where: filter{FieldFilter: fieldFilter{
				Field: fieldReference{FieldPath: q.Field},
				Op:    "EQUAL",
				Value: stringValue(q.Value),
			}},
		},
	}

	var entries []runQueryResponse
	resp, err := c.request(ctx).
		SetBody(body).
		SetResult(&entries).
		Post(c.documentsPath() + ":runQuery")
	if err != nil {
		logger.Error("Firestore runQuery failed", zap.Error(err), zap.String("collection", q.Collection))
		return nil, fmt.Errorf("firestore runQuery: %w", err)
	}
	if resp.IsError() {
		err := responseError("runQuery", resp)
		logger.Error("Firestore runQuery returned error", zap.Error(err), zap.Int("status_code", resp.StatusCode()))
		return nil, err
	}

	docs := make([]datalog.Document, 0, len(entries))
	for _, entry := range entries {
		if entry.Document == nil {
			continue
		}
		docs = append(docs, entry.Document.decode())
	}

	logger.Debug("Firestore runQuery done",
		zap.String("collection", q.Collection),
		zap.String("value", q.Value),
		zap.Int("count", len(docs)))
	return docs, nil
}

// Append creates a document with a server-assigned id.
func (c *Client) Append(ctx context.Context, collection string, doc datalog.RawDocument) (string, error) {
	if collection == "" {
		return "", fmt.Errorf("%w: collection is required", datalog.ErrUnsupportedQuery)
	}

	fields := map[string]value{
		common.FieldDatalogSensor: stringValue(doc.SensorID),
	}
	if v, ok := encodeJSON(doc.Value); ok {
		fields[fieldValue] = v
	}
	if v, ok := encodeJSON(doc.Timestamp); ok {
		fields[fieldTimestamp] = v
	}

	var created document
	resp, err := c.request(ctx).
		SetBody(document{Fields: fields}).
		SetResult(&created).
		Post(c.documentsPath() + "/" + url.PathEscape(collection))
	if err != nil {
		return "", fmt.Errorf("firestore createDocument: %w", err)
	}
	if resp.IsError() {
		return "", responseError("createDocument", resp)
	}

	id := created.id()
	c.logger(common.LoggerCategoryIngest).Info("Created datalog document",
		zap.String("id", id), zap.String("sensor_id", doc.SensorID))
	return id, nil
}
