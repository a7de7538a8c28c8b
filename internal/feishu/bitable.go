package feishu

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// MaxPageSize is the largest page the bitable list endpoints accept, and the
// largest batch the batch endpoints accept
const MaxPageSize = 500

// Table is a bitable data table
type Table struct {
	TableID  string `json:"table_id"`
	Name     string `json:"name"`
	Revision int    `json:"revision"`
}

// Field describes a bitable column
type Field struct {
	FieldID   string `json:"field_id"`
	FieldName string `json:"field_name"`
	Type      int    `json:"type"`
}

// Record is a bitable row
type Record struct {
	RecordID string                 `json:"record_id,omitempty"`
	Fields   map[string]interface{} `json:"fields"`
}

// RecordPage is one page of a record listing
type RecordPage struct {
	Items     []Record `json:"items"`
	HasMore   bool     `json:"has_more"`
	PageToken string   `json:"page_token"`
	Total     int      `json:"total"`
}

// ListOptions filters and orders a record listing
type ListOptions struct {
	PageSize  int
	PageToken string
	Filter    string
	Sort      string
}

func (o ListOptions) query() url.Values {
	q := url.Values{}
	size := o.PageSize
	if size <= 0 {
		size = 100
	}
	q.Set("page_size", strconv.Itoa(size))
	if o.PageToken != "" {
		q.Set("page_token", o.PageToken)
	}
	if o.Filter != "" {
		q.Set("filter", o.Filter)
	}
	if o.Sort != "" {
		q.Set("sort", o.Sort)
	}
	return q
}

func tablePath(app, table string) string {
	return fmt.Sprintf("/bitable/v1/apps/%s/tables/%s", url.PathEscape(app), url.PathEscape(table))
}

// ListTables lists the tables of a bitable app
func (c *Client) ListTables(ctx context.Context, app string) ([]Table, error) {
	var data struct {
		Items []Table `json:"items"`
	}
	path := fmt.Sprintf("/bitable/v1/apps/%s/tables", url.PathEscape(app))
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &data); err != nil {
		return nil, err
	}
	return data.Items, nil
}

// ListFields lists the fields of a table
func (c *Client) ListFields(ctx context.Context, app, table string) ([]Field, error) {
	var data struct {
		Items []Field `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, tablePath(app, table)+"/fields", nil, nil, &data); err != nil {
		return nil, err
	}
	return data.Items, nil
}

// ListRecords lists one page of records
func (c *Client) ListRecords(ctx context.Context, app, table string, opts ListOptions) (*RecordPage, error) {
	var page RecordPage
	if err := c.do(ctx, http.MethodGet, tablePath(app, table)+"/records", opts.query(), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ListAllRecords follows page tokens until every record has been read
func (c *Client) ListAllRecords(ctx context.Context, app, table string, opts ListOptions) ([]Record, error) {
	opts.PageSize = MaxPageSize
	opts.PageToken = ""

	var all []Record
	for {
		page, err := c.ListRecords(ctx, app, table, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		if !page.HasMore || page.PageToken == "" {
			return all, nil
		}
		opts.PageToken = page.PageToken
	}
}

// CreateRecord creates a single record
func (c *Client) CreateRecord(ctx context.Context, app, table string, fields map[string]interface{}) (*Record, error) {
	var data struct {
		Record Record `json:"record"`
	}
	body := map[string]interface{}{"fields": fields}
	if err := c.do(ctx, http.MethodPost, tablePath(app, table)+"/records", nil, body, &data); err != nil {
		return nil, err
	}
	return &data.Record, nil
}

// BatchCreateRecords creates up to MaxPageSize records in one call
func (c *Client) BatchCreateRecords(ctx context.Context, app, table string, records []map[string]interface{}) ([]Record, error) {
	items := make([]Record, len(records))
	for i, fields := range records {
		items[i] = Record{Fields: fields}
	}

	var data struct {
		Records []Record `json:"records"`
	}
	body := map[string]interface{}{"records": items}
	if err := c.do(ctx, http.MethodPost, tablePath(app, table)+"/records/batch_create", nil, body, &data); err != nil {
		return nil, err
	}
	return data.Records, nil
}

// UpdateRecord replaces fields of a single record
func (c *Client) UpdateRecord(ctx context.Context, app, table, recordID string, fields map[string]interface{}) (*Record, error) {
	var data struct {
		Record Record `json:"record"`
	}
	path := tablePath(app, table) + "/records/" + url.PathEscape(recordID)
	body := map[string]interface{}{"fields": fields}
	if err := c.do(ctx, http.MethodPut, path, nil, body, &data); err != nil {
		return nil, err
	}
	return &data.Record, nil
}

// BatchUpdateRecords updates up to MaxPageSize records in one call. Each
// record must carry its RecordID.
func (c *Client) BatchUpdateRecords(ctx context.Context, app, table string, records []Record) ([]Record, error) {
	var data struct {
		Records []Record `json:"records"`
	}
	body := map[string]interface{}{"records": records}
	if err := c.do(ctx, http.MethodPost, tablePath(app, table)+"/records/batch_update", nil, body, &data); err != nil {
		return nil, err
	}
	return data.Records, nil
}

// DeleteRecord deletes a single record
func (c *Client) DeleteRecord(ctx context.Context, app, table, recordID string) error {
	path := tablePath(app, table) + "/records/" + url.PathEscape(recordID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// BatchDeleteRecords deletes up to MaxPageSize records in one call
func (c *Client) BatchDeleteRecords(ctx context.Context, app, table string, recordIDs []string) error {
	body := map[string]interface{}{"records": recordIDs}
	return c.do(ctx, http.MethodPost, tablePath(app, table)+"/records/batch_delete", nil, body, nil)
}
